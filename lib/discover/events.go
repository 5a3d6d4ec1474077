// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"net/netip"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wsdd/wsdd/lib/directory"
)

type EventType int

const (
	ServiceAdded EventType = iota + 1
	ServiceUpdated
	ServiceRemoved
	ProxyFound
	ProxyLost
)

func (t EventType) String() string {
	switch t {
	case ServiceAdded:
		return "ServiceAdded"
	case ServiceUpdated:
		return "ServiceUpdated"
	case ServiceRemoved:
		return "ServiceRemoved"
	case ProxyFound:
		return "ProxyFound"
	case ProxyLost:
		return "ProxyLost"
	default:
		return "Unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// An Event reports a change in the known services or the proxy state.
// Service is set for service events, Proxy for proxy events.
type Event struct {
	Type    EventType             `json:"type"`
	Service directory.Description `json:"service,omitempty"`
	Proxy   netip.AddrPort        `json:"proxy,omitempty"`
}

type Subscription struct {
	C    <-chan Event
	id   uint64
	subs *subscriptions
}

// Unsubscribe stops delivery. The channel is not closed.
func (s *Subscription) Unsubscribe() {
	s.subs.m.Delete(s.id)
}

type subscriptions struct {
	m    *xsync.MapOf[uint64, chan Event]
	next atomic.Uint64
}

func newSubscriptions() *subscriptions {
	return &subscriptions{m: xsync.NewMapOf[uint64, chan Event]()}
}

func (s *subscriptions) subscribe(bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Event, bufSize)
	id := s.next.Add(1)
	s.m.Store(id, ch)
	return &Subscription{C: ch, id: id, subs: s}
}

func (s *subscriptions) publish(ev Event) {
	s.m.Range(func(_ uint64, ch chan Event) bool {
		select {
		case ch <- ev:
		default:
			metricEventsDropped.Inc()
		}
		return true
	})
}
