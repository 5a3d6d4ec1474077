// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package soapudp implements SOAP-over-UDP style send side reliability:
// every datagram is transmitted a fixed number of times, with randomized
// and exponentially growing intervals between transmissions.
package soapudp

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/transport"
)

var ErrStopped = errors.New("sender stopped")

type Config struct {
	// MulticastRepeats and UnicastRepeats are the total number of
	// transmissions of each datagram.
	MulticastRepeats int
	UnicastRepeats   int
	// The first retransmission follows after a random interval between
	// MinDelay and MaxDelay; each further interval doubles, up to
	// UpperDelay.
	MinDelay   time.Duration
	MaxDelay   time.Duration
	UpperDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MulticastRepeats: 4,
		UnicastRepeats:   2,
		MinDelay:         50 * time.Millisecond,
		MaxDelay:         250 * time.Millisecond,
		UpperDelay:       450 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.MulticastRepeats < 1 || c.UnicastRepeats < 1 {
		return fmt.Errorf("repeat counts must be at least one (multicast %d, unicast %d)", c.MulticastRepeats, c.UnicastRepeats)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay || c.UpperDelay < c.MaxDelay {
		return fmt.Errorf("delays must satisfy 0 <= min <= max <= upper (%v, %v, %v)", c.MinDelay, c.MaxDelay, c.UpperDelay)
	}
	return nil
}

type Option func(*Sender)

func WithClock(c clock.Clock) Option {
	return func(s *Sender) { s.clock = c }
}

// Sender queues datagrams and transmits them on schedule. It is a
// suture service; datagrams may be queued before it is started.
type Sender struct {
	cfg       Config
	transport transport.Transport
	clock     clock.Clock
	wake      chan struct{}

	mut     sync.Mutex
	queue   sendQueue
	seq     uint64
	stopped bool
}

func NewSender(t transport.Transport, cfg Config, opts ...Option) *Sender {
	s := &Sender{
		cfg:       cfg,
		transport: t,
		clock:     clock.New(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send queues data for transmission to dst and returns immediately.
func (s *Sender) Send(data []byte, dst netip.AddrPort) error {
	_, err := s.enqueue(data, dst)
	return err
}

// SendAndWait queues data and blocks until every scheduled transmission
// of it has been made, the sender stops, or ctx is done.
func (s *Sender) SendAndWait(ctx context.Context, data []byte, dst netip.AddrPort) error {
	p, err := s.enqueue(data, dst)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of datagrams with transmissions outstanding.
func (s *Sender) Pending() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.queue.Len()
}

func (s *Sender) enqueue(data []byte, dst netip.AddrPort) (*PendingSend, error) {
	repeats := s.cfg.UnicastRepeats
	if transport.IsMulticast(s.transport, dst) {
		repeats = s.cfg.MulticastRepeats
	}

	s.mut.Lock()
	if s.stopped {
		s.mut.Unlock()
		return nil, ErrStopped
	}
	p := newPendingSend(s.cfg, data, dst, repeats, s.clock.Now())
	s.seq++
	p.seq = s.seq
	heap.Push(&s.queue, p)
	metricQueued.Set(float64(s.queue.Len()))
	s.mut.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return p, nil
}

func (s *Sender) Serve(ctx context.Context) error {
	s.mut.Lock()
	s.stopped = false
	s.mut.Unlock()
	defer s.stop()

	for {
		s.mut.Lock()
		due := s.queue.popDue(s.clock.Now())
		s.mut.Unlock()

		for _, p := range due {
			s.transmit(ctx, p)
		}

		s.mut.Lock()
		next, ok := s.queue.next()
		metricQueued.Set(float64(s.queue.Len()))
		s.mut.Unlock()

		var timer *clock.Timer
		var timerC <-chan time.Time
		if ok {
			wait := next.Sub(s.clock.Now())
			if wait <= 0 {
				continue
			}
			timer = s.clock.Timer(wait)
			timerC = timer.C
		}

		select {
		case <-timerC:
		case <-s.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Sender) transmit(ctx context.Context, p *PendingSend) {
	ch := channelOf(s.transport, p.Dst)
	if err := s.transport.Send(p.Data, p.Dst); err != nil {
		// Failed transmissions count against the schedule like
		// successful ones.
		slog.DebugContext(ctx, "Datagram transmission failed", slog.String("dst", p.Dst.String()), slogutil.Error(err))
		metricSendErrors.WithLabelValues(ch).Inc()
	} else {
		metricTransmissions.WithLabelValues(ch).Inc()
	}

	now := s.clock.Now()
	if !p.advance(now, s.cfg.UpperDelay) {
		p.finish(nil)
		return
	}
	metricRetransmissionsScheduled.WithLabelValues(ch).Inc()
	s.mut.Lock()
	heap.Push(&s.queue, p)
	s.mut.Unlock()
}

// stop refuses further sends and releases everyone still waiting.
func (s *Sender) stop() {
	s.mut.Lock()
	s.stopped = true
	abandoned := s.queue
	s.queue = nil
	metricQueued.Set(0)
	s.mut.Unlock()

	if len(abandoned) > 0 {
		slog.Debug("Sender stopped with pending datagrams", slog.Int("count", len(abandoned)))
	}
	for _, p := range abandoned {
		p.finish(ErrStopped)
	}
}

func (s *Sender) String() string {
	return fmt.Sprintf("soapudp.Sender@%p", s)
}

func channelOf(t transport.Transport, dst netip.AddrPort) string {
	if transport.IsMulticast(t, dst) {
		return "multicast"
	}
	return "unicast"
}
