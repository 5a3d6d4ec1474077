// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"strings"

	"github.com/wsdd/wsdd/lib/scope"
)

const (
	SOAPEnvelopeNS = "http://www.w3.org/2003/05/soap-envelope"

	// MatchByCaseInsensitive identifies the case insensitive scope rule. It
	// is not defined by either protocol version and is registered in both.
	MatchByCaseInsensitive = "urn:wsdd:matchby:case-insensitive"
)

// A Profile holds everything that differs between the supported versions
// of WS-Discovery. The dispatch engine runs the same state machine for all
// of them and consults the profile for wire level names.
type Profile struct {
	Name         string
	DiscoveryNS  string
	AddressingNS string

	// MulticastTo is the wsa:To value of multicast messages.
	MulticastTo string
	// Anonymous is the addressing anonymous URI used as wsa:To of replies.
	Anonymous string

	MatchBy        map[scope.Rule]string
	DefaultMatchBy scope.Rule

	// Suppression is the RelationshipType carried by a proxy's Hello sent
	// in reply to a multicast Probe or Resolve.
	Suppression string

	// RequireAppSequence is set when multicast messages must carry an
	// AppSequence header.
	RequireAppSequence bool
}

var (
	Draft2005 = &Profile{
		Name:         "2005",
		DiscoveryNS:  "http://schemas.xmlsoap.org/ws/2005/04/discovery",
		AddressingNS: "http://schemas.xmlsoap.org/ws/2004/08/addressing",
		MulticastTo:  "urn:schemas-xmlsoap-org:ws:2005:04:discovery",
		Anonymous:    "http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous",
		MatchBy: map[scope.Rule]string{
			scope.RulePrefix:          "http://schemas.xmlsoap.org/ws/2005/04/discovery/rfc2396",
			scope.RuleUUID:            "http://schemas.xmlsoap.org/ws/2005/04/discovery/uuid",
			scope.RuleExact:           "http://schemas.xmlsoap.org/ws/2005/04/discovery/strcmp0",
			scope.RuleCaseInsensitive: MatchByCaseInsensitive,
		},
		DefaultMatchBy:     scope.RulePrefix,
		Suppression:        "d:Suppression",
		RequireAppSequence: true,
	}

	Version11 = &Profile{
		Name:         "1.1",
		DiscoveryNS:  "http://docs.oasis-open.org/ws-dd/ns/discovery/2009/01",
		AddressingNS: "http://www.w3.org/2005/08/addressing",
		MulticastTo:  "urn:docs-oasis-open-org:ws-dd:ns:discovery:2009:01",
		Anonymous:    "http://www.w3.org/2005/08/addressing/anonymous",
		MatchBy: map[scope.Rule]string{
			scope.RulePrefix:          "http://docs.oasis-open.org/ws-dd/ns/discovery/2009/01/rfc3986",
			scope.RuleUUID:            "http://docs.oasis-open.org/ws-dd/ns/discovery/2009/01/uuid",
			scope.RuleExact:           "http://docs.oasis-open.org/ws-dd/ns/discovery/2009/01/strcmp0",
			scope.RuleNone:            "http://docs.oasis-open.org/ws-dd/ns/discovery/2009/01/none",
			scope.RuleCaseInsensitive: MatchByCaseInsensitive,
		},
		DefaultMatchBy:     scope.RulePrefix,
		Suppression:        "http://docs.oasis-open.org/ws-dd/ns/discovery/2009/01/Suppression",
		RequireAppSequence: true,
	}

	profiles = []*Profile{Version11, Draft2005}
)

// ProfileByName returns the profile with the given name ("1.1" or "2005").
func ProfileByName(name string) (*Profile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Profiles returns all supported profiles, newest first.
func Profiles() []*Profile {
	return append([]*Profile(nil), profiles...)
}

// ActionURI returns the wsa:Action value for the given action.
func (p *Profile) ActionURI(a Action) string {
	return p.DiscoveryNS + "/" + a.String()
}

// ParseAction maps a wsa:Action value back to an Action.
func (p *Profile) ParseAction(uri string) (Action, bool) {
	name, ok := strings.CutPrefix(uri, p.DiscoveryNS+"/")
	if !ok {
		return 0, false
	}
	a := actionByName(name)
	return a, a != 0
}

// ProxyType is the service type advertised by a discovery proxy.
func (p *Profile) ProxyType() QName {
	return QName{Space: p.DiscoveryNS, Local: "DiscoveryProxy"}
}

// DefaultMatchByURI returns the URI of the default scope rule.
func (p *Profile) DefaultMatchByURI() string {
	return p.MatchBy[p.DefaultMatchBy]
}

// IsSuppression reports whether a RelationshipType value marks a proxy
// suppression Hello. The 2005 draft carries it as a QName, so any prefix
// is accepted there.
func (p *Profile) IsSuppression(rel string) bool {
	if rel == p.Suppression {
		return true
	}
	if p == Draft2005 {
		_, local, ok := strings.Cut(rel, ":")
		return ok && local == "Suppression"
	}
	return false
}

// ScopeRegistry returns a new registry with the profile's MatchBy URIs
// bound to their rules. The empty URI is bound to the default rule.
func (p *Profile) ScopeRegistry() *scope.Registry {
	r := scope.NewRegistry()
	for rule, uri := range p.MatchBy {
		// Rules in the table are all built in.
		_ = r.RegisterRule(uri, rule)
	}
	_ = r.RegisterRule("", p.DefaultMatchBy)
	return r
}

// CombinedScopeRegistry returns a registry understanding the MatchBy
// URIs of every profile, with def providing the rule for the empty URI.
// Nodes answer Probes in whichever version they arrive in, so matching
// must accept all of them.
func CombinedScopeRegistry(def *Profile) *scope.Registry {
	r := scope.NewRegistry()
	for _, p := range profiles {
		for rule, uri := range p.MatchBy {
			_ = r.RegisterRule(uri, rule)
		}
	}
	_ = r.RegisterRule("", def.DefaultMatchBy)
	return r
}

func (p *Profile) String() string {
	return "WS-Discovery " + p.Name
}
