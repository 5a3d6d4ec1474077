// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"log/slog"
	"sync"
	"time"
)

const maxLogLines = 1000

// A Recorder keeps the most recent log lines for the API.
type Recorder interface {
	Since(t time.Time) []Line
	Clear()
}

func NewRecorder(level slog.Level) Recorder {
	return newRingRecorder(level, maxLogLines)
}

// ringRecorder holds the last len(buf) lines at or above level.
type ringRecorder struct {
	level slog.Level

	mut  sync.Mutex
	buf  []Line
	next int
	full bool
}

func newRingRecorder(level slog.Level, size int) *ringRecorder {
	return &ringRecorder{level: level, buf: make([]Line, size)}
}

func (r *ringRecorder) record(line Line) {
	if line.Level < r.level {
		return
	}
	r.mut.Lock()
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mut.Unlock()
}

func (r *ringRecorder) Clear() {
	r.mut.Lock()
	clear(r.buf)
	r.next = 0
	r.full = false
	r.mut.Unlock()
}

// Since returns the lines recorded after t, oldest first.
func (r *ringRecorder) Since(t time.Time) []Line {
	r.mut.Lock()
	defer r.mut.Unlock()
	var res []Line
	add := func(lines []Line) {
		for _, l := range lines {
			if l.When.After(t) {
				res = append(res, l)
			}
		}
	}
	if r.full {
		add(r.buf[r.next:])
	}
	add(r.buf[:r.next])
	return res
}
