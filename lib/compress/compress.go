// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package compress implements the optional payload transforms applied to
// datagrams beneath the wire codec.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"
	lz4 "github.com/pierrec/lz4/v4"
)

// MaxDecodedSize bounds the size of a decompressed datagram.
const MaxDecodedSize = 1 << 20

var (
	ErrUnknownCodec = errors.New("unknown codec plugin")
	errTooLarge     = errors.New("decoded payload too large")
)

// A Plugin transforms outbound payloads and reverses the transform on
// inbound ones. Both sides of a conversation must use the same plugin.
type Plugin interface {
	Name() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

var plugins = map[string]Plugin{
	"none": none{},
	"zlib": zlibPlugin{},
	"lz4":  lz4Plugin{},
}

// ByName returns the plugin registered as name. The empty name is the
// identity plugin.
func ByName(name string) (Plugin, error) {
	if name == "" {
		name = "none"
	}
	p, ok := plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return p, nil
}

// Names returns the registered plugin names, sorted.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for n := range plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type none struct{}

func (none) Name() string                      { return "none" }
func (none) Encode(src []byte) ([]byte, error) { return src, nil }
func (none) Decode(src []byte) ([]byte, error) { return src, nil }

type zlibPlugin struct{}

func (zlibPlugin) Name() string { return "zlib" }

func (zlibPlugin) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibPlugin) Decode(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	bs, err := io.ReadAll(io.LimitReader(r, MaxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if len(bs) > MaxDecodedSize {
		return nil, errTooLarge
	}
	return bs, nil
}

// lz4Plugin produces a raw lz4 block prefixed by the big endian
// uncompressed size.
type lz4Plugin struct{}

func (lz4Plugin) Name() string { return "lz4" }

func (lz4Plugin) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return make([]byte, 4), nil
	}
	buf := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, buf[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 {
		// Incompressible input is stored as a single literal run, which
		// UncompressBlock accepts as is.
		n, err = literalBlock(src, buf[4:])
		if err != nil {
			return nil, err
		}
	}
	binary.BigEndian.PutUint32(buf, uint32(len(src)))
	return buf[:4+n], nil
}

func (lz4Plugin) Decode(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("lz4: short payload (%d bytes)", len(src))
	}
	size := binary.BigEndian.Uint32(src)
	if size > MaxDecodedSize {
		return nil, errTooLarge
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(src[4:], buf)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return buf[:n], nil
}

// literalBlock writes src as an lz4 block consisting only of literals.
func literalBlock(src, dst []byte) (int, error) {
	n := 0
	l := len(src)
	if l < 15 {
		dst[n] = byte(l << 4)
		n++
	} else {
		dst[n] = 0xF0
		n++
		rem := l - 15
		for rem >= 255 {
			dst[n] = 255
			n++
			rem -= 255
		}
		dst[n] = byte(rem)
		n++
	}
	if n+l > len(dst) {
		return 0, errors.New("lz4: block buffer too small")
	}
	n += copy(dst[n:], src)
	return n, nil
}
