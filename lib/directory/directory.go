// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package directory implements the registry of known service
// descriptions and the type and scope matching used to answer Probes.
package directory

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/scope"
)

// DefaultThrottle is the minimum interval between Resolves, and between
// ResolveMatches to the same peer, for one service.
const DefaultThrottle = 10 * time.Second

var ErrNoEndpoint = errors.New("service description has no endpoint id")

type StoreResult int

const (
	Unchanged StoreResult = iota
	Added
	Updated
)

func (r StoreResult) String() string {
	switch r {
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// A Directory holds service descriptions keyed by endpoint id. Readers
// share a lock only for as long as it takes to copy out the entries they
// need; entries are never modified in place, every change replaces the
// stored pointer.
type Directory struct {
	name           string
	registry       *scope.Registry
	defaultMatchBy string
	throttle       time.Duration
	clock          clock.Clock

	mut      sync.RWMutex
	services map[string]*Description
}

type Option func(*Directory)

// WithClock sets the clock used for timestamps and throttling.
func WithClock(c clock.Clock) Option {
	return func(d *Directory) { d.clock = c }
}

// WithThrottle sets the Resolve and ResolveMatch throttle interval.
func WithThrottle(intv time.Duration) Option {
	return func(d *Directory) { d.throttle = intv }
}

// New returns an empty directory. The name labels log lines and metrics.
// Scope rules are looked up in registry; defaultMatchBy is used for
// probes and descriptions that do not name a rule.
func New(name string, registry *scope.Registry, defaultMatchBy string, opts ...Option) *Directory {
	d := &Directory{
		name:           name,
		registry:       registry,
		defaultMatchBy: defaultMatchBy,
		throttle:       DefaultThrottle,
		clock:          clock.New(),
		services:       make(map[string]*Description),
	}
	for _, opt := range opts {
		opt(d)
	}
	metricServices.WithLabelValues(name).Set(0)
	return d
}

// Store inserts desc, or updates the existing entry with the same endpoint
// id. When an update changes the content the metadata version becomes one
// more than the stored one; otherwise it is kept. Throttle state and the
// creation time of an existing entry are preserved. The returned
// description is a copy of what is now stored.
func (d *Directory) Store(desc Description) (StoreResult, Description, error) {
	if desc.EndpointID == "" {
		return Unchanged, Description{}, ErrNoEndpoint
	}

	d.mut.Lock()
	defer d.mut.Unlock()

	existing, ok := d.services[desc.EndpointID]
	if !ok {
		n := desc.Clone()
		if n.CreatedAt.IsZero() {
			n.CreatedAt = d.clock.Now()
		}
		d.services[n.EndpointID] = &n
		d.account(Added)
		slog.Debug("Stored new service", d.attrs(&n)...)
		return Added, n.Clone(), nil
	}

	if existing.SameContent(desc) {
		d.account(Unchanged)
		return Unchanged, existing.Clone(), nil
	}

	n := desc.Clone()
	n.MetadataVersion = existing.MetadataVersion + 1
	n.CreatedAt = existing.CreatedAt
	n.LastResolveAttempt = existing.LastResolveAttempt
	n.ResolveMatchSentTo = existing.ResolveMatchSentTo
	d.services[n.EndpointID] = &n
	d.account(Updated)
	slog.Debug("Updated service", d.attrs(&n)...)
	return Updated, n.Clone(), nil
}

// Remove deletes the entry for endpointID, if any, and returns it.
func (d *Directory) Remove(endpointID string) (Description, bool) {
	d.mut.Lock()
	defer d.mut.Unlock()
	existing, ok := d.services[endpointID]
	if !ok {
		return Description{}, false
	}
	delete(d.services, endpointID)
	metricServices.WithLabelValues(d.name).Set(float64(len(d.services)))
	slog.Debug("Removed service", d.attrs(existing)...)
	return existing.Clone(), true
}

// Find returns the entry for endpointID.
func (d *Directory) Find(endpointID string) (Description, bool) {
	d.mut.RLock()
	existing, ok := d.services[endpointID]
	d.mut.RUnlock()
	if !ok {
		return Description{}, false
	}
	return existing.Clone(), true
}

func (d *Directory) Len() int {
	d.mut.RLock()
	defer d.mut.RUnlock()
	return len(d.services)
}

// MatchAll returns a copy of every stored description.
func (d *Directory) MatchAll() []Description {
	snap := d.snapshot()
	res := make([]Description, len(snap))
	for i, s := range snap {
		res[i] = s.Clone()
	}
	return res
}

// MatchBy returns copies of all descriptions matched by a probe for the
// given types and scopes. A nil or empty types or scopes argument does not
// restrict the result. matchBy names the scope rule; if empty the
// description's own rule, and then the directory default, is used. An
// unknown rule matches nothing. A probe naming the "none" rule matches
// only services without scopes.
func (d *Directory) MatchBy(types []protocol.QName, scopes []string, matchBy string) []Description {
	var res []Description
	for _, s := range d.snapshot() {
		if d.isMatchedBy(s, types, scopes, matchBy) {
			res = append(res, s.Clone())
		}
	}
	return res
}

// snapshot copies out the entry pointers. Entries are immutable, so they
// can be read after the lock is released.
func (d *Directory) snapshot() []*Description {
	d.mut.RLock()
	defer d.mut.RUnlock()
	snap := make([]*Description, 0, len(d.services))
	for _, s := range d.services {
		snap = append(snap, s)
	}
	return snap
}

func (d *Directory) isMatchedBy(s *Description, types []protocol.QName, scopes []string, matchBy string) bool {
	if len(types) > 0 && !s.HasTypes(types) {
		return false
	}

	if matchBy != "" {
		if rule, ok := d.registry.Rule(matchBy); ok && rule == scope.RuleNone {
			return len(s.Scopes) == 0
		}
	}
	if len(scopes) == 0 {
		return true
	}

	uri := matchBy
	if uri == "" {
		uri = s.MatchBy
	}
	if uri == "" {
		uri = d.defaultMatchBy
	}

	matcher, ok := d.registry.Lookup(uri)
	if !ok {
		slog.Debug("Unknown scope matching rule", slog.String("directory", d.name), slog.String("matchBy", uri))
		return false
	}
	for _, candidate := range s.Scopes {
		for _, probe := range scopes {
			if matcher(candidate, probe) {
				return true
			}
		}
	}
	return false
}

// TryResolveAttempt records a Resolve attempt for endpointID and returns
// true, unless one was already made within the throttle interval or the
// service is unknown.
func (d *Directory) TryResolveAttempt(endpointID string) bool {
	d.mut.Lock()
	defer d.mut.Unlock()
	existing, ok := d.services[endpointID]
	if !ok {
		return false
	}
	now := d.clock.Now()
	if !existing.LastResolveAttempt.IsZero() && now.Sub(existing.LastResolveAttempt) < d.throttle {
		return false
	}
	n := existing.Clone()
	n.LastResolveAttempt = now
	d.services[endpointID] = &n
	return true
}

// TryResolveMatch records a ResolveMatch for endpointID sent to peer and
// returns true, unless one was already sent to that peer within the
// throttle interval or the service is unknown.
func (d *Directory) TryResolveMatch(endpointID, peer string) bool {
	d.mut.Lock()
	defer d.mut.Unlock()
	existing, ok := d.services[endpointID]
	if !ok {
		return false
	}
	now := d.clock.Now()
	if last, ok := existing.ResolveMatchSentTo[peer]; ok && now.Sub(last) < d.throttle {
		return false
	}
	n := existing.Clone()
	if n.ResolveMatchSentTo == nil {
		n.ResolveMatchSentTo = make(map[string]time.Time)
	}
	n.ResolveMatchSentTo[peer] = now
	d.services[endpointID] = &n
	return true
}

func (d *Directory) String() string {
	return "directory/" + d.name
}

// account must be called with the write lock held.
func (d *Directory) account(res StoreResult) {
	metricStores.WithLabelValues(d.name, res.String()).Inc()
	metricServices.WithLabelValues(d.name).Set(float64(len(d.services)))
}

func (d *Directory) attrs(s *Description) []any {
	return []any{
		slog.String("directory", d.name),
		slogutil.Endpoint(s.EndpointID),
		slog.Uint64("version", s.MetadataVersion),
	}
}
