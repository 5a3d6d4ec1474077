// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rand provides the random numbers the discovery stack needs:
// retransmission jitter, instance sequence seeds and short identifiers. It
// is backed by crypto/rand so that peers on the same segment never end up
// with correlated jitter.
package rand

import (
	"bufio"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	mathRand "math/rand"
	"sync"
	"time"
)

// randomCharset contains the characters that can make up a rand.String().
const randomCharset = "2345679abcdefghijkmnopqrstuvwxyzACDEFGHJKLMNPQRSTUVWXYZ"

var (
	defaultSource = newLockedSource(cryptoRand.Reader)
	defaultRand   = mathRand.New(defaultSource)
)

// String returns a random string of the given length, taken from
// randomCharset.
func String(l int) string {
	bs := make([]byte, l)
	for i := range bs {
		bs[i] = randomCharset[Intn(len(randomCharset))]
	}
	return string(bs)
}

// Uint64 returns a random uint64.
func Uint64() uint64 {
	defaultSource.mut.Lock()
	defer defaultSource.mut.Unlock()
	return defaultSource.uint64()
}

// Intn returns a random number in [0,n). It panics if n <= 0.
func Intn(n int) int {
	defaultSource.mut.Lock()
	defer defaultSource.mut.Unlock()
	return defaultRand.Intn(n)
}

// Int63n returns a random number in [0,n). It panics if n <= 0.
func Int63n(n int64) int64 {
	defaultSource.mut.Lock()
	defer defaultSource.mut.Unlock()
	return defaultRand.Int63n(n)
}

// DurationBetween returns a uniformly distributed duration in [lo,hi]. If
// hi <= lo, lo is returned.
func DurationBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(Int63n(int64(hi-lo)+1))
}

// lockedSource is a math/rand.Source reading from a buffered secure reader.
// Its methods expect mut to be held; the mutex also serializes use of the
// math/rand.Rand on top of it.
type lockedSource struct {
	mut sync.Mutex
	rd  *bufio.Reader
	buf [8]byte
}

func newLockedSource(r io.Reader) *lockedSource {
	return &lockedSource{rd: bufio.NewReader(r)}
}

func (*lockedSource) Seed(int64) {
	panic("rand: secure source is not seedable")
}

func (s *lockedSource) Int63() int64 {
	return int64(s.uint64() & (1<<63 - 1))
}

func (s *lockedSource) uint64() uint64 {
	if _, err := io.ReadFull(s.rd, s.buf[:]); err != nil {
		panic("randomness failure: " + err.Error())
	}
	return binary.LittleEndian.Uint64(s.buf[:])
}
