// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"path"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const modulePath = "github.com/wsdd/wsdd/"

type LineFormat struct {
	TimestampFormat string
	LevelString     bool
}

// A Line is one formatted log line, as kept by a Recorder.
type Line struct {
	When    time.Time  `json:"when"`
	Message string     `json:"message"`
	Level   slog.Level `json:"level"`
}

func (l Line) WriteTo(w io.Writer, f LineFormat) (int64, error) {
	var sb strings.Builder
	if f.TimestampFormat != "" {
		sb.WriteString(l.When.Format(f.TimestampFormat))
		sb.WriteByte(' ')
	}
	if f.LevelString {
		sb.WriteString(l.Level.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(l.Message)
	sb.WriteByte('\n')
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// A sink is where every handler derived from one root ends up: the level
// tracker deciding what is emitted, the output and the recorders.
type sink struct {
	format       LineFormat
	out          io.Writer
	recs         []*ringRecorder
	levels       *levelTracker
	callers      *xsync.MapOf[uintptr, caller]
	timeOverride time.Time
}

func newSink(out io.Writer, levels *levelTracker, recs ...*ringRecorder) *sink {
	return &sink{
		out:     out,
		recs:    recs,
		levels:  levels,
		callers: xsync.NewMapOf[uintptr, caller](),
	}
}

// caller is what we know about a log call site.
type caller struct {
	pkg  string
	typ  string
	file string
	line int
}

func (s *sink) callerOf(pc uintptr) caller {
	if pc == 0 {
		return caller{}
	}
	if c, ok := s.callers.Load(pc); ok {
		return c
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	var c caller
	if fr.Function != "" {
		c.pkg, c.typ = funcNameToPkg(fr.Function)
		c.file, c.line = path.Base(fr.File), fr.Line
	}
	s.callers.Store(pc, c)
	return c
}

// boundAttr is an attribute added through WithAttrs, together with the
// group it was added in.
type boundAttr struct {
	group string
	attr  slog.Attr
}

type handler struct {
	sink   *sink
	attrs  []boundAttr
	groups []string
}

var _ slog.Handler = (*handler)(nil)

func (*handler) Enabled(context.Context, slog.Level) bool {
	// Levels are per package, and the package is only known from the
	// record's PC.
	return true
}

func (h *handler) Handle(_ context.Context, rec slog.Record) error {
	c := h.sink.callerOf(rec.PC)
	level := h.sink.levels.get(c.pkg)
	if c.pkg != "" && rec.Level < level {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(rec.Message)
	aw := attrWriter{sb: &sb}
	group := strings.Join(h.groups, ".")
	rec.Attrs(func(a slog.Attr) bool {
		aw.write(group, a)
		return true
	})
	for _, ba := range h.attrs {
		aw.write(ba.group, ba.attr)
	}
	if c.pkg != "" {
		aw.write("log", slog.String("pkg", c.pkg))
		if level <= slog.LevelDebug {
			if c.typ != "" {
				aw.write("log", slog.String("type", c.typ))
			}
			aw.write("log", slog.String("src", c.file+":"+strconv.Itoa(c.line)))
		}
	}
	aw.close()

	line := Line{
		When:    cmp.Or(h.sink.timeOverride, rec.Time),
		Message: sb.String(),
		Level:   rec.Level,
	}
	for _, r := range h.sink.recs {
		r.record(line)
	}
	if h.sink.out != nil {
		_, _ = line.WriteTo(h.sink.out, h.sink.format)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	group := strings.Join(h.groups, ".")
	bound := slices.Clip(h.attrs)
	for _, a := range attrs {
		bound = append(bound, boundAttr{group: group, attr: a})
	}
	return &handler{sink: h.sink, attrs: bound, groups: h.groups}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &handler{sink: h.sink, attrs: h.attrs, groups: append(slices.Clip(h.groups), name)}
}

// attrWriter appends " (k=v k=v" to a message, flattening groups into
// dotted keys.
type attrWriter struct {
	sb *strings.Builder
	n  int
}

func (w *attrWriter) write(group string, a slog.Attr) {
	v := a.Value.Resolve()
	key := a.Key
	if group != "" {
		key = strings.TrimSuffix(group+"."+key, ".")
	}
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			w.write(key, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	if w.n == 0 {
		w.sb.WriteString(" (")
	} else {
		w.sb.WriteByte(' ')
	}
	w.sb.WriteString(key)
	w.sb.WriteByte('=')
	s := v.String()
	if s == "" || strings.ContainsAny(s, ` "()[]{},`) {
		s = strconv.Quote(s)
	}
	w.sb.WriteString(s)
	w.n++
}

func (w *attrWriter) close() {
	if w.n > 0 {
		w.sb.WriteByte(')')
	}
}

// funcNameToPkg turns "github.com/wsdd/wsdd/lib/discover.(*Engine).handle"
// into ("discover", "engine").
func funcNameToPkg(fn string) (string, string) {
	fn = strings.ToLower(fn)
	if rest, ok := strings.CutPrefix(fn, modulePath); ok {
		// Drop the lib/, internal/ or cmd/ level.
		if _, after, ok := strings.Cut(rest, "/"); ok {
			rest = after
		}
		fn = rest
	}

	parts := strings.Split(fn, ".")
	pkg := parts[0]
	if len(parts) <= 2 {
		return pkg, ""
	}
	typ := strings.Trim(parts[1], "(*)")
	typ = strings.TrimSuffix(typ, "service")
	if typ == pkg {
		typ = ""
	}
	return pkg, typ
}
