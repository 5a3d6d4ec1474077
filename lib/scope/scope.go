// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scope implements the scope comparison rules used when matching
// a Probe against service descriptions.
//
// A Matcher decides whether a single service scope (the candidate) is
// matched by a single scope carried in a Probe. Matchers are registered in
// a Registry under the URI that identifies them on the wire, so that the
// MatchBy attribute of an inbound Probe can be turned into a Matcher.
package scope

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// A Matcher reports whether the service scope candidate is matched by the
// probe scope.
type Matcher func(candidate, probe string) bool

// Rule names one of the built in matchers.
type Rule string

const (
	RuleExact           Rule = "exact"
	RuleCaseInsensitive Rule = "case-insensitive"
	RulePrefix          Rule = "rfc2396"
	RuleUUID            Rule = "uuid"
	RuleNone            Rule = "none"
)

var ErrUnknownMatchBy = errors.New("unknown scope matching rule")

// Builtin returns the matcher implementing the given rule.
func Builtin(rule Rule) (Matcher, bool) {
	switch rule {
	case RuleExact:
		return Exact, true
	case RuleCaseInsensitive:
		return CaseInsensitive, true
	case RulePrefix:
		return Prefix, true
	case RuleUUID:
		return UUID, true
	case RuleNone:
		return None, true
	default:
		return nil, false
	}
}

// Exact compares the two scopes byte for byte.
func Exact(candidate, probe string) bool {
	return candidate == probe
}

// CaseInsensitive compares the two scopes ignoring case.
func CaseInsensitive(candidate, probe string) bool {
	return strings.EqualFold(candidate, probe)
}

// None never matches a scope pair. It is registered for the "none" rule,
// which only matches services that declare no scopes at all; the directory
// handles that case before pairwise comparison.
func None(_, _ string) bool {
	return false
}

// UUID matches when both scopes are the same urn:uuid: value, ignoring
// case and the urn:uuid: prefix.
func UUID(candidate, probe string) bool {
	c, err := uuid.Parse(candidate)
	if err != nil {
		return false
	}
	p, err := uuid.Parse(probe)
	if err != nil {
		return false
	}
	return c == p
}

// Prefix implements the RFC 2396 prefix rule: the schemes and authorities
// must be equal ignoring case, and the probe path must be a segment-wise,
// case sensitive prefix of the candidate path. Paths containing "." or ".."
// segments never match.
func Prefix(candidate, probe string) bool {
	cu, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	pu, err := url.Parse(probe)
	if err != nil {
		return false
	}

	if !strings.EqualFold(cu.Scheme, pu.Scheme) {
		return false
	}
	if cu.Opaque != "" || pu.Opaque != "" {
		// Opaque URIs (urn:, mailto: and friends) have no hierarchical
		// path to compare; only an exact match will do.
		return cu.Opaque == pu.Opaque && cu.Opaque != ""
	}
	if !strings.EqualFold(authority(cu), authority(pu)) {
		return false
	}

	cs, ok := segments(cu.EscapedPath())
	if !ok {
		return false
	}
	ps, ok := segments(pu.EscapedPath())
	if !ok {
		return false
	}
	if len(ps) > len(cs) {
		return false
	}
	for i := range ps {
		if ps[i] != cs[i] {
			return false
		}
	}
	return true
}

func authority(u *url.URL) string {
	if u.User != nil {
		return u.User.String() + "@" + u.Host
	}
	return u.Host
}

// segments splits a path into its segments, dropping empty ones produced
// by leading, trailing or doubled slashes. It returns false for paths
// containing dot segments.
func segments(path string) ([]string, bool) {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		switch s {
		case "":
			continue
		case ".", "..":
			return nil, false
		}
		segs = append(segs, s)
	}
	return segs, true
}

// A Registry maps MatchBy URIs to matchers. It is safe for concurrent use.
type Registry struct {
	mut      sync.RWMutex
	matchers map[string]Matcher
	rules    map[string]Rule
}

func NewRegistry() *Registry {
	return &Registry{
		matchers: make(map[string]Matcher),
		rules:    make(map[string]Rule),
	}
}

// RegisterRule binds a built in rule to the given URI.
func (r *Registry) RegisterRule(uri string, rule Rule) error {
	m, ok := Builtin(rule)
	if !ok {
		return ErrUnknownMatchBy
	}
	r.mut.Lock()
	r.matchers[uri] = m
	r.rules[uri] = rule
	r.mut.Unlock()
	return nil
}

// Register binds a custom matcher to the given URI.
func (r *Registry) Register(uri string, m Matcher) {
	r.mut.Lock()
	r.matchers[uri] = m
	delete(r.rules, uri)
	r.mut.Unlock()
}

// Lookup returns the matcher registered for uri.
func (r *Registry) Lookup(uri string) (Matcher, bool) {
	r.mut.RLock()
	m, ok := r.matchers[uri]
	r.mut.RUnlock()
	return m, ok
}

// Rule returns the built in rule registered for uri, if any.
func (r *Registry) Rule(uri string) (Rule, bool) {
	r.mut.RLock()
	rule, ok := r.rules[uri]
	r.mut.RUnlock()
	return rule, ok
}
