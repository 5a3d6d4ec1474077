// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// PackageInfo describes a package that registered for log level control.
type PackageInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Level       slog.Level `json:"level"`
}

// RegisterPackage makes a package visible in the list of packages whose
// level can be changed at runtime.
func RegisterPackage(name, descr string) {
	globalLevels.register(name, descr)
}

// Packages returns the registered packages with their current level,
// sorted by name.
func Packages() []PackageInfo {
	return globalLevels.packages()
}

func SetPackageLevel(pkg string, level slog.Level) {
	globalLevels.set(pkg, level)
}

func SetDefaultLevel(level slog.Level) {
	globalLevels.setDefault(level)
}

// SetLevelOverrides applies a trace specification such as
// "discover,soapudp:WARN": a bare package name means DEBUG. Entries with
// a bad level are skipped and reported in the returned error.
func SetLevelOverrides(trace string) error {
	return globalLevels.applyOverrides(trace)
}

type levelTracker struct {
	mut      sync.RWMutex
	defLevel slog.Level
	descrs   map[string]string
	levels   map[string]slog.Level
}

func newLevelTracker() *levelTracker {
	return &levelTracker{
		descrs: make(map[string]string),
		levels: make(map[string]slog.Level),
	}
}

func (t *levelTracker) get(pkg string) slog.Level {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if level, ok := t.levels[pkg]; ok {
		return level
	}
	return t.defLevel
}

func (t *levelTracker) set(pkg string, level slog.Level) {
	t.mut.Lock()
	prev, existed := t.levels[pkg]
	t.levels[pkg] = level
	t.mut.Unlock()
	if !existed || prev != level {
		slog.Info("Changed package log level", slog.String("package", pkg), slog.Any("level", level))
	}
}

func (t *levelTracker) setDefault(level slog.Level) {
	t.mut.Lock()
	changed := t.defLevel != level
	t.defLevel = level
	t.mut.Unlock()
	if changed {
		slog.Info("Changed default log level", slog.Any("level", level))
	}
}

func (t *levelTracker) register(pkg, descr string) {
	t.mut.Lock()
	t.descrs[pkg] = descr
	t.mut.Unlock()
}

func (t *levelTracker) packages() []PackageInfo {
	t.mut.RLock()
	res := make([]PackageInfo, 0, len(t.descrs))
	for pkg, descr := range t.descrs {
		level, ok := t.levels[pkg]
		if !ok {
			level = t.defLevel
		}
		res = append(res, PackageInfo{Name: pkg, Description: descr, Level: level})
	}
	t.mut.RUnlock()
	slices.SortFunc(res, func(a, b PackageInfo) int { return strings.Compare(a.Name, b.Name) })
	return res
}

func (t *levelTracker) applyOverrides(trace string) error {
	var errs []error
	for _, entry := range strings.Split(trace, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pkg, levelStr, hasLevel := strings.Cut(entry, ":")
		level := slog.LevelDebug
		if hasLevel {
			if err := level.UnmarshalText([]byte(strings.ToUpper(levelStr))); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", pkg, err))
				continue
			}
		}
		t.set(pkg, level)
	}
	return errors.Join(errs...)
}
