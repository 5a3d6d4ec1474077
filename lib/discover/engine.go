// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/scope"
	"github.com/wsdd/wsdd/lib/svcutil"
	"github.com/wsdd/wsdd/lib/transport"
)

var (
	ErrNotRunning     = errors.New("discovery engine not running")
	ErrNoProxyAddress = errors.New("no usable address for proxy mode")

	errEngineUsed = errors.New("discovery engine already served")
)

const (
	engineStateNew int32 = iota
	engineStateRunning
	engineStateStopped
)

type Config struct {
	// Profile is the protocol version used for our own announcements and
	// queries. Replies use the version of the request.
	Profile *protocol.Profile
	// DefaultMatchBy overrides the profile's default scope rule for
	// descriptions and Probes without an explicit MatchBy.
	DefaultMatchBy scope.Rule
	// ReadTimeout bounds each receive, and so the time it takes to notice
	// a stop.
	ReadTimeout time.Duration
	// RecentMessages is the capacity of the duplicate suppression buffer.
	RecentMessages int
	// ResolveThrottle is the minimum interval between Resolves for a
	// service, and between ResolveMatches for a service to one peer.
	ResolveThrottle time.Duration
	// ReplyRateLimit is the number of Probe and Resolve replies allowed
	// per source address per ten seconds, with bursts of ReplyBurst.
	// Zero disables limiting.
	ReplyRateLimit int
	ReplyBurst     int
	Clock          clock.Clock
}

func DefaultConfig() Config {
	return Config{
		Profile:         protocol.Version11,
		ReadTimeout:     time.Second,
		RecentMessages:  1000,
		ResolveThrottle: directory.DefaultThrottle,
		ReplyRateLimit:  100,
		ReplyBurst:      20,
	}
}

// Sender is the outbound half of the reliability layer.
type Sender interface {
	Send(data []byte, dst netip.AddrPort) error
	SendAndWait(ctx context.Context, data []byte, dst netip.AddrPort) error
}

// The Engine is the WS-Discovery dispatch engine. It keeps a directory of
// our own published services and one of every service known, answers
// Probes and Resolves, and tracks proxy state.
//
// Everything touching proxy state, and all sending, happens on the
// goroutine running Serve; public methods hand it closures to run.
type Engine struct {
	cfg       Config
	profile   *protocol.Profile
	codec     protocol.Codec
	transport transport.Transport
	sender    Sender
	clock     clock.Clock

	local    *directory.Directory
	services *directory.Directory

	recent  *messageIDs
	sent    *messageIDs
	limiter *replyLimiter
	subs    *subscriptions

	// Last Resolve sent for endpoints not in the directory.
	resolved *lru.Cache[string, time.Time]

	state    atomic.Int32
	ops      chan func()
	inbox    chan transport.Datagram
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Loop confined.
	instanceID    uint64
	msgNumber     uint64
	isProxy       bool
	proxyID       string
	usingProxy    bool
	remoteProxy   netip.AddrPort
	remoteProxyID string
}

// New returns an engine sending through s and receiving from t. It does
// nothing until Serve is called.
func New(t transport.Transport, s Sender, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Profile == nil {
		cfg.Profile = def.Profile
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = def.RecentMessages
	}
	if cfg.ResolveThrottle <= 0 {
		cfg.ResolveThrottle = def.ResolveThrottle
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	registry := protocol.CombinedScopeRegistry(cfg.Profile)
	defMatchBy := cfg.Profile.DefaultMatchByURI()
	if uri, ok := cfg.Profile.MatchBy[cfg.DefaultMatchBy]; ok {
		defMatchBy = uri
	}
	resolved, _ := lru.New[string, time.Time](cfg.RecentMessages)
	dirOpts := []directory.Option{
		directory.WithClock(cfg.Clock),
		directory.WithThrottle(cfg.ResolveThrottle),
	}

	return &Engine{
		cfg:       cfg,
		profile:   cfg.Profile,
		codec:     protocol.NewSOAPCodec(cfg.Profile),
		transport: t,
		sender:    s,
		clock:     cfg.Clock,
		local:     directory.New("local", registry, defMatchBy, dirOpts...),
		services:  directory.New("all", registry, defMatchBy, dirOpts...),
		recent:    newMessageIDs(cfg.RecentMessages),
		sent:      newMessageIDs(cfg.RecentMessages),
		limiter:   newReplyLimiter(cfg.ReplyRateLimit, cfg.ReplyBurst, cfg.Clock),
		resolved:  resolved,
		subs:      newSubscriptions(),
		ops:       make(chan func()),
		inbox:     make(chan transport.Datagram),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		proxyID:   protocol.NewEndpointAddress(),
	}
}

func (e *Engine) Serve(ctx context.Context) error {
	if !e.state.CompareAndSwap(engineStateNew, engineStateRunning) {
		// An engine runs once; after Shutdown it stays stopped.
		return svcutil.NoRestartErr(errEngineUsed)
	}
	defer func() {
		e.state.Store(engineStateStopped)
		close(e.done)
	}()

	e.instanceID = uint64(e.clock.Now().Unix())
	slog.DebugContext(ctx, "Discovery engine starting", slog.Uint64("instance", e.instanceID), slog.String("profile", e.profile.Name))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.receive(ctx)

	for {
		select {
		case fn := <-e.ops:
			fn()
		case d := <-e.inbox:
			e.handle(ctx, d)
		case <-e.stop:
			slog.DebugContext(ctx, "Discovery engine stopped")
			return svcutil.NoRestartErr(nil)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// receive feeds datagrams from the transport to the loop.
func (e *Engine) receive(ctx context.Context) {
	for ctx.Err() == nil {
		d, err := e.transport.Recv(e.cfg.ReadTimeout)
		switch {
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return
		case err != nil:
			slog.WarnContext(ctx, "Failed to receive datagram", slogutil.Error(err))
			continue
		}
		select {
		case e.inbox <- d:
		case <-ctx.Done():
			return
		}
	}
}

// do runs fn on the loop goroutine and returns its error.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	if e.state.Load() != engineStateRunning {
		return ErrNotRunning
	}
	res := make(chan error, 1)
	select {
	case e.ops <- func() { res <- fn() }:
	case <-e.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish adds desc to the local services and announces it with a Hello.
// A zero metadata version is taken to be 1.
func (e *Engine) Publish(ctx context.Context, desc directory.Description) (directory.Description, error) {
	if desc.MetadataVersion == 0 {
		desc.MetadataVersion = 1
	}
	var stored directory.Description
	err := e.do(ctx, func() error {
		var err error
		_, stored, err = e.local.Store(desc)
		if err != nil {
			return fmt.Errorf("publishing service: %w", err)
		}
		e.storeKnown(stored)
		return e.announce(&protocol.Hello{Endpoint: stored.Endpoint()})
	})
	return stored, err
}

// Unpublish sends a Bye for the local service and removes it. Unknown ids
// are ignored.
func (e *Engine) Unpublish(ctx context.Context, endpointID string) error {
	return e.do(ctx, func() error {
		desc, ok := e.local.Find(endpointID)
		if !ok {
			return nil
		}
		err := e.announce(&protocol.Bye{Endpoint: desc.Endpoint()})
		e.local.Remove(endpointID)
		e.forget(endpointID)
		return err
	})
}

// Probe sends a Probe for the given types and scopes. Matches arrive
// asynchronously and end up in AllServices.
func (e *Engine) Probe(ctx context.Context, types []protocol.QName, scopes []string, matchBy string) error {
	return e.do(ctx, func() error {
		return e.query(&protocol.Probe{Types: types, Scopes: scopes, MatchBy: matchBy})
	})
}

// Resolve asks for the current addresses of a known service. Resolves for
// the same service within the throttle interval are silently skipped.
func (e *Engine) Resolve(ctx context.Context, endpointID string) error {
	return e.do(ctx, func() error {
		return e.resolve(endpointID)
	})
}

// EnableProxyMode makes this node a discovery proxy: its proxy service is
// published and multicast Probes and Resolves are answered with a
// suppression Hello plus matches from all known services.
func (e *Engine) EnableProxyMode(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.isProxy {
			return nil
		}
		addr := e.transport.LocalAddr()
		if !addr.IsValid() || addr.Addr().IsUnspecified() {
			return ErrNoProxyAddress
		}
		desc := directory.Description{
			EndpointID:      e.proxyID,
			Types:           []protocol.QName{e.profile.ProxyType()},
			XAddrs:          []string{"soap.udp://" + addr.String()},
			MetadataVersion: 1,
		}
		_, stored, err := e.local.Store(desc)
		if err != nil {
			return err
		}
		e.storeKnown(stored)
		e.isProxy = true
		metricProxyMode.Set(1)
		slog.InfoContext(ctx, "Proxy mode enabled", slog.String("address", addr.String()))
		return e.announce(&protocol.Hello{Endpoint: stored.Endpoint()})
	})
}

func (e *Engine) DisableProxyMode(ctx context.Context) error {
	return e.do(ctx, func() error {
		if !e.isProxy {
			return nil
		}
		e.isProxy = false
		metricProxyMode.Set(0)
		desc, ok := e.local.Find(e.proxyID)
		if !ok {
			return nil
		}
		err := e.announce(&protocol.Bye{Endpoint: desc.Endpoint()})
		e.local.Remove(e.proxyID)
		e.forget(e.proxyID)
		slog.InfoContext(ctx, "Proxy mode disabled")
		return err
	})
}

// ProxyStatus describes the proxy state of an engine.
type ProxyStatus struct {
	IsProxy          bool           `json:"isProxy"`
	UsingRemoteProxy bool           `json:"usingRemoteProxy"`
	RemoteProxy      netip.AddrPort `json:"remoteProxy"`
	RemoteProxyID    string         `json:"remoteProxyId,omitempty"`
}

func (e *Engine) ProxyStatus(ctx context.Context) (ProxyStatus, error) {
	var st ProxyStatus
	err := e.do(ctx, func() error {
		st = ProxyStatus{
			IsProxy:          e.isProxy,
			UsingRemoteProxy: e.usingProxy,
			RemoteProxy:      e.remoteProxy,
			RemoteProxyID:    e.remoteProxyID,
		}
		return nil
	})
	return st, err
}

// Shutdown sends a Bye for every local service, waits for those to be
// transmitted, then stops the engine.
func (e *Engine) Shutdown(ctx context.Context) error {
	var byes [][]byte
	err := e.do(ctx, func() error {
		for _, desc := range e.local.MatchAll() {
			data, err := e.marshal(e.newMessage(e.profile, &protocol.Bye{Endpoint: desc.Endpoint()}, true))
			if err != nil {
				slog.WarnContext(ctx, "Failed to encode Bye", slogutil.Endpoint(desc.EndpointID), slogutil.Error(err))
				continue
			}
			byes = append(byes, data)
			e.local.Remove(desc.EndpointID)
			e.forget(desc.EndpointID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, data := range byes {
		g.Go(func() error {
			return e.sender.SendAndWait(gctx, data, e.transport.MulticastAddr())
		})
	}
	err = g.Wait()

	e.stopOnce.Do(func() { close(e.stop) })
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// AllServices returns every known service, local and remote.
func (e *Engine) AllServices() []directory.Description {
	return e.services.MatchAll()
}

// LocalServices returns the services published by this engine.
func (e *Engine) LocalServices() []directory.Description {
	return e.local.MatchAll()
}

// Lookup returns the known services matching the given probe criteria.
func (e *Engine) Lookup(types []protocol.QName, scopes []string, matchBy string) []directory.Description {
	return e.services.MatchBy(types, scopes, matchBy)
}

// Subscribe returns a subscription to service and proxy events. Events
// are dropped for subscribers that do not keep up.
func (e *Engine) Subscribe(bufSize int) *Subscription {
	return e.subs.subscribe(bufSize)
}

func (e *Engine) String() string {
	return fmt.Sprintf("discover.Engine@%p", e)
}
