// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Action int

const (
	ActionHello Action = iota + 1
	ActionBye
	ActionProbe
	ActionProbeMatches
	ActionResolve
	ActionResolveMatches
)

func (a Action) String() string {
	switch a {
	case ActionHello:
		return "Hello"
	case ActionBye:
		return "Bye"
	case ActionProbe:
		return "Probe"
	case ActionProbeMatches:
		return "ProbeMatches"
	case ActionResolve:
		return "Resolve"
	case ActionResolveMatches:
		return "ResolveMatches"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

func actionByName(name string) Action {
	for a := ActionHello; a <= ActionResolveMatches; a++ {
		if a.String() == name {
			return a
		}
	}
	return 0
}

// AppSequence orders messages from a single sender instance.
type AppSequence struct {
	InstanceID    uint64
	SequenceID    string
	MessageNumber uint64
}

type Header struct {
	MessageID        string
	RelatesTo        string
	RelationshipType string
	To               string
	ReplyTo          string
	AppSequence      *AppSequence
}

// An Endpoint is the service information carried in Hello, Bye and the
// match messages.
type Endpoint struct {
	Address         string
	Types           []QName
	Scopes          []string
	MatchBy         string
	XAddrs          []string
	MetadataVersion uint64
}

// Body is one of Hello, Bye, Probe, ProbeMatches, Resolve or
// ResolveMatches.
type Body interface {
	Action() Action
}

type Hello struct{ Endpoint }

type Bye struct{ Endpoint }

type Probe struct {
	Types   []QName
	Scopes  []string
	MatchBy string
}

type ProbeMatches struct {
	Matches []Endpoint
}

type Resolve struct {
	Address string
}

// ResolveMatches carries at most one match. A proxy replies with an empty
// ResolveMatches when it does not know the endpoint.
type ResolveMatches struct {
	Match *Endpoint
}

func (*Hello) Action() Action          { return ActionHello }
func (*Bye) Action() Action            { return ActionBye }
func (*Probe) Action() Action          { return ActionProbe }
func (*ProbeMatches) Action() Action   { return ActionProbeMatches }
func (*Resolve) Action() Action        { return ActionResolve }
func (*ResolveMatches) Action() Action { return ActionResolveMatches }

type Message struct {
	Header
	Profile *Profile
	Body    Body
}

func (m *Message) Action() Action {
	if m.Body == nil {
		return 0
	}
	return m.Body.Action()
}

func (m *Message) String() string {
	return fmt.Sprintf("%v(%s)", m.Action(), m.MessageID)
}

// NewMessageID returns a fresh urn:uuid: message identifier.
func NewMessageID() string {
	return uuid.New().URN()
}

// NewEndpointAddress returns a fresh, stable looking endpoint address.
func NewEndpointAddress() string {
	return uuid.New().URN()
}

// NormalizeMessageID returns id in the urn:uuid: form if it is a UUID, and
// unchanged otherwise, so that ids compare equal regardless of how the
// sender spelled them.
func NormalizeMessageID(id string) string {
	if u, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
		return u.URN()
	}
	return strings.TrimSpace(id)
}
