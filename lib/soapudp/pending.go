// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package soapudp

import (
	"container/heap"
	"net/netip"
	"time"

	"github.com/wsdd/wsdd/lib/rand"
)

// A PendingSend is an outbound datagram with its retransmission state.
type PendingSend struct {
	Data []byte
	Dst  netip.AddrPort
	// Remaining is the number of transmissions still to be made.
	Remaining int
	// Due is when the next transmission should happen.
	Due time.Time
	// Delay is the interval to wait after the next transmission.
	Delay time.Duration

	seq   uint64
	index int
	err   error
	done  chan struct{}
}

func newPendingSend(cfg Config, data []byte, dst netip.AddrPort, repeats int, now time.Time) *PendingSend {
	delay := rand.DurationBetween(cfg.MinDelay, cfg.MaxDelay)
	if delay > cfg.UpperDelay {
		delay = cfg.UpperDelay
	}
	return &PendingSend{
		Data:      data,
		Dst:       dst,
		Remaining: repeats,
		Due:       now,
		Delay:     delay,
		done:      make(chan struct{}),
	}
}

// advance accounts for a transmission made at now. It returns false when
// no transmissions remain; otherwise Due is moved forward by the current
// delay and the delay is doubled, up to upper.
func (p *PendingSend) advance(now time.Time, upper time.Duration) bool {
	p.Remaining--
	if p.Remaining <= 0 {
		return false
	}
	p.Due = now.Add(p.Delay)
	p.Delay *= 2
	if p.Delay > upper {
		p.Delay = upper
	}
	return true
}

func (p *PendingSend) finish(err error) {
	p.err = err
	close(p.done)
}

// sendQueue is a min-heap of pending sends ordered by due time, and by
// insertion order among equal due times.
type sendQueue []*PendingSend

var _ heap.Interface = (*sendQueue)(nil)

func (q sendQueue) Len() int { return len(q) }

func (q sendQueue) Less(i, j int) bool {
	if q[i].Due.Equal(q[j].Due) {
		return q[i].seq < q[j].seq
	}
	return q[i].Due.Before(q[j].Due)
}

func (q sendQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *sendQueue) Push(x any) {
	p := x.(*PendingSend)
	p.index = len(*q)
	*q = append(*q, p)
}

func (q *sendQueue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*q = old[:n-1]
	return p
}

// popDue removes and returns every item due at or before now.
func (q *sendQueue) popDue(now time.Time) []*PendingSend {
	var due []*PendingSend
	for q.Len() > 0 && !(*q)[0].Due.After(now) {
		due = append(due, heap.Pop(q).(*PendingSend))
	}
	return due
}

// next returns the due time of the earliest item.
func (q sendQueue) next() (time.Time, bool) {
	if len(q) == 0 {
		return time.Time{}, false
	}
	return q[0].Due, true
}
