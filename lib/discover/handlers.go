// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"log/slog"
	"net/netip"
	"net/url"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/transport"
)

// handle processes one received datagram. Nothing here returns an error
// or panics on bad input; failures are logged and the datagram is dropped.
func (e *Engine) handle(ctx context.Context, d transport.Datagram) {
	msg, err := e.codec.Unmarshal(d.Data)
	if err != nil {
		slog.DebugContext(ctx, "Dropping undecodable message", slogutil.Peer(d.Src), slogutil.Error(err))
		metricDropped.WithLabelValues(dropDecode).Inc()
		return
	}
	id := protocol.NormalizeMessageID(msg.MessageID)

	if e.sent.seen(id) {
		// Our own multicast, looped back.
		metricDropped.WithLabelValues(dropOwn).Inc()
		return
	}
	if e.recent.seen(id) {
		metricDropped.WithLabelValues(dropDuplicate).Inc()
		return
	}
	defer e.recent.add(id)

	action := msg.Action()
	metricReceived.WithLabelValues(action.String()).Inc()
	l := slog.With(slogutil.Peer(d.Src), slogutil.Action(action), slogutil.MessageID(msg.MessageID))
	l.DebugContext(ctx, "Received message", slog.Bool("multicast", d.Multicast))

	switch body := msg.Body.(type) {
	case *protocol.Hello:
		e.handleHello(ctx, l, d, msg, body)
	case *protocol.Bye:
		e.handleBye(ctx, l, d, body)
	case *protocol.Probe:
		e.handleProbe(ctx, l, d, msg, body)
	case *protocol.ProbeMatches:
		for _, m := range body.Matches {
			e.learn(ctx, l, m)
		}
	case *protocol.Resolve:
		e.handleResolve(ctx, l, d, msg, body)
	case *protocol.ResolveMatches:
		if body.Match != nil {
			e.learn(ctx, l, *body.Match)
		}
	default:
		l.DebugContext(ctx, "Ignoring message with unhandled body")
	}
}

func (e *Engine) handleHello(ctx context.Context, l *slog.Logger, d transport.Datagram, msg *protocol.Message, hello *protocol.Hello) {
	if msg.RelatesTo != "" && msg.Profile.IsSuppression(msg.RelationshipType) {
		if !e.usingProxy || e.remoteProxy != d.Src {
			l.InfoContext(ctx, "Using discovery proxy", slog.String("proxy", d.Src.String()), slogutil.Endpoint(hello.Address))
			e.subs.publish(Event{Type: ProxyFound, Proxy: d.Src})
		}
		e.usingProxy = true
		e.remoteProxy = d.Src
		e.remoteProxyID = hello.Address
		metricUsingProxy.Set(1)
	}
	e.learn(ctx, l, hello.Endpoint)
}

func (e *Engine) handleBye(ctx context.Context, l *slog.Logger, d transport.Datagram, bye *protocol.Bye) {
	if e.usingProxy && (bye.Address == e.remoteProxyID || (e.remoteProxyID == "" && d.Src == e.remoteProxy)) {
		l.InfoContext(ctx, "Discovery proxy left", slog.String("proxy", e.remoteProxy.String()))
		e.subs.publish(Event{Type: ProxyLost, Proxy: e.remoteProxy})
		e.usingProxy = false
		e.remoteProxy = netip.AddrPort{}
		e.remoteProxyID = ""
		metricUsingProxy.Set(0)
	}
	e.forget(bye.Address)
}

func (e *Engine) handleProbe(ctx context.Context, l *slog.Logger, d transport.Datagram, msg *protocol.Message, probe *protocol.Probe) {
	if !e.isProxy && !e.limiter.allow(d.Src.Addr()) {
		l.DebugContext(ctx, "Not replying, source is rate limited")
		metricDropped.WithLabelValues(dropRateLimited).Inc()
		return
	}
	if d.Multicast && e.isProxy {
		e.suppress(ctx, l, d, msg)
	}

	dir := e.local
	if e.isProxy {
		dir = e.services
	}
	matches := dir.MatchBy(probe.Types, probe.Scopes, probe.MatchBy)
	if len(matches) == 0 && !e.isProxy {
		return
	}

	pm := &protocol.ProbeMatches{Matches: make([]protocol.Endpoint, 0, len(matches))}
	for _, m := range matches {
		pm.Matches = append(pm.Matches, m.Endpoint())
	}
	l.DebugContext(ctx, "Replying to probe", slog.Int("matches", len(matches)))
	e.reply(ctx, l, d, msg, pm)
}

func (e *Engine) handleResolve(ctx context.Context, l *slog.Logger, d transport.Datagram, msg *protocol.Message, resolve *protocol.Resolve) {
	if !e.isProxy && !e.limiter.allow(d.Src.Addr()) {
		l.DebugContext(ctx, "Not replying, source is rate limited")
		metricDropped.WithLabelValues(dropRateLimited).Inc()
		return
	}
	if d.Multicast && e.isProxy {
		e.suppress(ctx, l, d, msg)
	}

	dir := e.local
	desc, ok := dir.Find(resolve.Address)
	if !ok && e.isProxy {
		dir = e.services
		desc, ok = dir.Find(resolve.Address)
	}
	if !ok && !e.isProxy {
		return
	}

	rm := &protocol.ResolveMatches{}
	if ok {
		if !dir.TryResolveMatch(desc.EndpointID, d.Src.String()) {
			l.DebugContext(ctx, "Not replying to resolve, throttled", slogutil.Endpoint(desc.EndpointID))
			metricDropped.WithLabelValues(dropThrottled).Inc()
			return
		}
		ep := desc.Endpoint()
		rm.Match = &ep
	}
	e.reply(ctx, l, d, msg, rm)
}

// suppress tells the sender of a multicast request to use us, the proxy,
// instead.
func (e *Engine) suppress(ctx context.Context, l *slog.Logger, d transport.Datagram, req *protocol.Message) {
	desc, ok := e.local.Find(e.proxyID)
	if !ok {
		return
	}
	m := e.newMessage(req.Profile, &protocol.Hello{Endpoint: desc.Endpoint()}, false)
	m.RelatesTo = req.MessageID
	m.RelationshipType = req.Profile.Suppression
	if err := e.transmit(m, replyAddr(l, req, d.Src)); err != nil {
		l.DebugContext(ctx, "Failed to send suppression", slogutil.Error(err))
	}
}

func (e *Engine) reply(ctx context.Context, l *slog.Logger, d transport.Datagram, req *protocol.Message, body protocol.Body) {
	m := e.newMessage(req.Profile, body, false)
	m.RelatesTo = req.MessageID
	if err := e.transmit(m, replyAddr(l, req, d.Src)); err != nil {
		l.DebugContext(ctx, "Failed to send reply", slogutil.Error(err))
	}
}

// replyAddr is where replies to req go: the wsa:ReplyTo address when it
// is a soap.udp URL with a literal IP, otherwise the datagram's source.
func replyAddr(l *slog.Logger, req *protocol.Message, src netip.AddrPort) netip.AddrPort {
	if req.ReplyTo == "" || req.ReplyTo == req.Profile.Anonymous {
		return src
	}
	u, err := url.Parse(req.ReplyTo)
	if err != nil || u.Scheme != "soap.udp" {
		l.Debug("Ignoring unusable ReplyTo", slog.String("replyTo", req.ReplyTo))
		return src
	}
	addr, err := netip.ParseAddrPort(u.Host)
	if err != nil {
		l.Debug("Ignoring ReplyTo without IP address and port", slog.String("replyTo", req.ReplyTo), slogutil.Error(err))
		return src
	}
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

// learn records a service announced by someone else and, if it came
// without addresses, asks for them.
func (e *Engine) learn(ctx context.Context, l *slog.Logger, ep protocol.Endpoint) {
	if ep.Address == "" {
		l.DebugContext(ctx, "Ignoring endpoint without address")
		return
	}
	stored, ok := e.storeKnown(directory.FromEndpoint(ep))
	if ok && len(stored.XAddrs) == 0 {
		if err := e.resolve(stored.EndpointID); err != nil {
			l.DebugContext(ctx, "Failed to resolve service", slogutil.Endpoint(stored.EndpointID), slogutil.Error(err))
		}
	}
}

// storeKnown stores desc in the directory of all services and publishes
// the resulting event.
func (e *Engine) storeKnown(desc directory.Description) (directory.Description, bool) {
	res, stored, err := e.services.Store(desc)
	if err != nil {
		slog.Debug("Failed to store service", slogutil.Endpoint(desc.EndpointID), slogutil.Error(err))
		return directory.Description{}, false
	}
	switch res {
	case directory.Added:
		e.subs.publish(Event{Type: ServiceAdded, Service: stored})
	case directory.Updated:
		e.subs.publish(Event{Type: ServiceUpdated, Service: stored})
	}
	return stored, true
}

func (e *Engine) forget(endpointID string) {
	if desc, ok := e.services.Remove(endpointID); ok {
		e.subs.publish(Event{Type: ServiceRemoved, Service: desc})
	}
}

// resolve sends a Resolve for endpointID unless one was sent recently.
func (e *Engine) resolve(endpointID string) error {
	var allowed bool
	if _, known := e.services.Find(endpointID); known {
		allowed = e.services.TryResolveAttempt(endpointID)
	} else {
		allowed = e.tryResolveUnknown(endpointID)
	}
	if !allowed {
		metricDropped.WithLabelValues(dropThrottled).Inc()
		return nil
	}
	return e.query(&protocol.Resolve{Address: endpointID})
}

// tryResolveUnknown applies the Resolve throttle to endpoints the
// directory does not hold.
func (e *Engine) tryResolveUnknown(endpointID string) bool {
	now := e.clock.Now()
	if last, ok := e.resolved.Get(endpointID); ok && now.Sub(last) < e.cfg.ResolveThrottle {
		return false
	}
	e.resolved.Add(endpointID, now)
	return true
}

// announce multicasts a Hello or Bye in our own protocol version.
func (e *Engine) announce(body protocol.Body) error {
	return e.transmit(e.newMessage(e.profile, body, true), e.transport.MulticastAddr())
}

// query sends a Probe or Resolve, to the remote proxy if we use one and
// to the group otherwise.
func (e *Engine) query(body protocol.Body) error {
	if e.usingProxy {
		return e.transmit(e.newMessage(e.profile, body, false), e.remoteProxy)
	}
	return e.transmit(e.newMessage(e.profile, body, true), e.transport.MulticastAddr())
}

func (e *Engine) newMessage(p *protocol.Profile, body protocol.Body, multicast bool) *protocol.Message {
	m := &protocol.Message{Profile: p, Body: body}
	m.MessageID = protocol.NewMessageID()
	m.To = p.Anonymous
	if multicast {
		m.To = p.MulticastTo
	}
	if p.RequireAppSequence {
		e.msgNumber++
		m.AppSequence = &protocol.AppSequence{InstanceID: e.instanceID, MessageNumber: e.msgNumber}
	}
	return m
}

func (e *Engine) marshal(m *protocol.Message) ([]byte, error) {
	data, err := e.codec.Marshal(m)
	if err != nil {
		return nil, err
	}
	e.sent.add(protocol.NormalizeMessageID(m.MessageID))
	return data, nil
}

func (e *Engine) transmit(m *protocol.Message, dst netip.AddrPort) error {
	data, err := e.marshal(m)
	if err != nil {
		return err
	}
	if err := e.sender.Send(data, dst); err != nil {
		return err
	}
	metricSent.WithLabelValues(m.Action().String()).Inc()
	return nil
}
