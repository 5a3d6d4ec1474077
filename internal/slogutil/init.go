// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package slogutil installs the default slog handler: one line per
// record, per package levels, and an in memory copy of recent lines.
package slogutil

import (
	"log/slog"
	"os"
)

// GlobalRecorder holds everything the default logger emitted recently.
var GlobalRecorder Recorder = globalRecorder

var (
	globalRecorder = newRingRecorder(slog.LevelDebug, maxLogLines)
	globalLevels   = newLevelTracker()
)

func init() {
	s := newSink(os.Stdout, globalLevels, globalRecorder)
	s.format = LineFormat{
		TimestampFormat: "2006-01-02 15:04:05",
		LevelString:     true,
	}
	slog.SetDefault(slog.New(&handler{sink: s}))

	if err := SetLevelOverrides(os.Getenv("WSDD_TRACE")); err != nil {
		slog.Warn("Ignoring bad WSDD_TRACE entries", Error(err))
	}
}
