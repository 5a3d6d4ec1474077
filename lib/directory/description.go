// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"maps"
	"slices"
	"time"

	"github.com/wsdd/wsdd/lib/protocol"
)

// A Description is one advertised or discovered service endpoint. Values
// handed out by a Directory are deep copies; modifying them does not
// affect the directory.
type Description struct {
	EndpointID string
	// Types is the set of service types. A nil Types matches any type.
	Types  []protocol.QName
	Scopes []string
	// MatchBy is the URI of the scope rule for Scopes; empty means the
	// directory default.
	MatchBy         string
	XAddrs          []string
	MetadataVersion uint64

	CreatedAt time.Time
	// LastResolveAttempt is the zero time until a Resolve was sent.
	LastResolveAttempt time.Time
	// ResolveMatchSentTo holds, per peer address, when a ResolveMatch for
	// this service was last sent there.
	ResolveMatchSentTo map[string]time.Time
}

func (d Description) Clone() Description {
	c := d
	c.Types = slices.Clone(d.Types)
	c.Scopes = slices.Clone(d.Scopes)
	c.XAddrs = slices.Clone(d.XAddrs)
	c.ResolveMatchSentTo = maps.Clone(d.ResolveMatchSentTo)
	return c
}

// SameContent reports whether d and o advertise the same thing. Volatile
// fields (timestamps, throttle state) and the metadata version itself are
// not considered.
func (d Description) SameContent(o Description) bool {
	if d.EndpointID != o.EndpointID || d.MatchBy != o.MatchBy {
		return false
	}
	if (d.Types == nil) != (o.Types == nil) || !sameSet(d.Types, o.Types) {
		return false
	}
	return slices.Equal(d.Scopes, o.Scopes) && slices.Equal(d.XAddrs, o.XAddrs)
}

// HasTypes reports whether every one of the given types is implemented
// by the service. A service without types implements everything.
func (d Description) HasTypes(types []protocol.QName) bool {
	if d.Types == nil {
		return true
	}
	for _, t := range types {
		if !slices.Contains(d.Types, t) {
			return false
		}
	}
	return true
}

// Endpoint converts the description to its wire representation.
func (d Description) Endpoint() protocol.Endpoint {
	return protocol.Endpoint{
		Address:         d.EndpointID,
		Types:           slices.Clone(d.Types),
		Scopes:          slices.Clone(d.Scopes),
		MatchBy:         d.MatchBy,
		XAddrs:          slices.Clone(d.XAddrs),
		MetadataVersion: d.MetadataVersion,
	}
}

// FromEndpoint builds a description from a received endpoint.
func FromEndpoint(e protocol.Endpoint) Description {
	return Description{
		EndpointID:      e.Address,
		Types:           slices.Clone(e.Types),
		Scopes:          slices.Clone(e.Scopes),
		MatchBy:         e.MatchBy,
		XAddrs:          slices.Clone(e.XAddrs),
		MetadataVersion: e.MetadataVersion,
	}
}

func sameSet(a, b []protocol.QName) bool {
	if len(a) != len(b) {
		return false
	}
	for _, q := range a {
		if !slices.Contains(b, q) {
			return false
		}
	}
	for _, q := range b {
		if !slices.Contains(a, q) {
			return false
		}
	}
	return true
}
