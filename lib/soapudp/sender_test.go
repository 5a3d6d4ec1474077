// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package soapudp

import (
	"container/heap"
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/wsdd/wsdd/lib/transport"
	"github.com/wsdd/wsdd/lib/transport/mocks"
)

var (
	group = transport.DefaultMulticastAddr
	peer  = netip.MustParseAddrPort("192.0.2.7:49152")
)

func TestScheduleBound(t *testing.T) {
	cfg := Config{MinDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond, UpperDelay: 450 * time.Millisecond}

	for _, n := range []int{1, 2, 4, 8} {
		start := time.Unix(1700000000, 0)
		p := newPendingSend(cfg, nil, peer, n, start)

		var sent []time.Time
		now := p.Due
		for {
			sent = append(sent, now)
			if !p.advance(now, cfg.UpperDelay) {
				break
			}
			if !p.Due.After(now) {
				t.Fatalf("n=%d: next transmission not in the future", n)
			}
			now = p.Due
		}

		if len(sent) != n {
			t.Errorf("n=%d: %d transmissions", n, len(sent))
		}
		var prev time.Duration
		for i := 1; i < len(sent); i++ {
			gap := sent[i].Sub(sent[i-1])
			if gap < prev {
				t.Errorf("n=%d: gap %d (%v) shorter than the previous (%v)", n, i, gap, prev)
			}
			if gap > cfg.UpperDelay {
				t.Errorf("n=%d: gap %d (%v) exceeds the upper delay", n, i, gap)
			}
			prev = gap
		}
		if n >= 2 && sent[1].Sub(sent[0]) != cfg.MinDelay {
			t.Errorf("n=%d: first gap %v", n, sent[1].Sub(sent[0]))
		}
	}
}

func TestInitialDelayWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	for i := 0; i < 1000; i++ {
		p := newPendingSend(cfg, nil, peer, 2, time.Now())
		if p.Delay < cfg.MinDelay || p.Delay > cfg.MaxDelay {
			t.Fatalf("initial delay %v outside [%v, %v]", p.Delay, cfg.MinDelay, cfg.MaxDelay)
		}
	}
}

func TestQueueOrder(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var q sendQueue
	push := func(seq uint64, offset time.Duration) {
		heap.Push(&q, &PendingSend{seq: seq, Due: base.Add(offset)})
	}
	push(1, 30*time.Millisecond)
	push(2, 10*time.Millisecond)
	push(3, 20*time.Millisecond)
	push(4, 10*time.Millisecond)
	push(5, time.Second)

	due := q.popDue(base.Add(30 * time.Millisecond))
	var got []uint64
	for _, p := range due {
		got = append(got, p.seq)
	}
	want := []uint64{2, 4, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, expected %v", got, want)
		}
	}
	if next, ok := q.next(); !ok || !next.Equal(base.Add(time.Second)) {
		t.Errorf("unexpected next due %v", next)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Error(err)
	}
	bad := []Config{
		{MulticastRepeats: 0, UnicastRepeats: 2, MaxDelay: 1, UpperDelay: 1},
		{MulticastRepeats: 4, UnicastRepeats: 2, MinDelay: 2, MaxDelay: 1, UpperDelay: 3},
		{MulticastRepeats: 4, UnicastRepeats: 2, MinDelay: 1, MaxDelay: 3, UpperDelay: 2},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("config %d should not validate", i)
		}
	}
}

// recordingTransport returns a fake transport that records the time of
// every Send.
func recordingTransport() (*mocks.Transport, func() []time.Time) {
	var mut sync.Mutex
	var times []time.Time
	fake := &mocks.Transport{}
	fake.MulticastAddrReturns(group)
	fake.SendCalls(func([]byte, netip.AddrPort) error {
		mut.Lock()
		times = append(times, time.Now())
		mut.Unlock()
		return nil
	})
	return fake, func() []time.Time {
		mut.Lock()
		defer mut.Unlock()
		return append([]time.Time(nil), times...)
	}
}

func startSender(t *testing.T, s *Sender) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestSenderRetransmissionBound(t *testing.T) {
	fake, sent := recordingTransport()
	cfg := Config{
		MulticastRepeats: 4,
		UnicastRepeats:   5,
		MinDelay:         10 * time.Millisecond,
		MaxDelay:         10 * time.Millisecond,
		UpperDelay:       40 * time.Millisecond,
	}
	s := NewSender(fake, cfg)
	startSender(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SendAndWait(ctx, []byte("payload"), peer); err != nil {
		t.Fatal(err)
	}

	times := sent()
	if len(times) != cfg.UnicastRepeats {
		t.Fatalf("%d transmissions, expected %d", len(times), cfg.UnicastRepeats)
	}
	minGaps := []time.Duration{10, 20, 40, 40}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < minGaps[i-1]*time.Millisecond {
			t.Errorf("gap %d was %v, expected at least %v", i, gap, minGaps[i-1]*time.Millisecond)
		}
	}
	for i := 0; i < fake.SendCallCount(); i++ {
		data, dst := fake.SendArgsForCall(i)
		if string(data) != "payload" || dst != peer {
			t.Errorf("call %d: unexpected send of %q to %v", i, data, dst)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("%d datagrams still pending", s.Pending())
	}
}

func TestSenderMulticastRepeats(t *testing.T) {
	fake, sent := recordingTransport()
	cfg := Config{
		MulticastRepeats: 4,
		UnicastRepeats:   2,
		MinDelay:         time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		UpperDelay:       10 * time.Millisecond,
	}
	s := NewSender(fake, cfg)
	startSender(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SendAndWait(ctx, []byte("hello"), group); err != nil {
		t.Fatal(err)
	}
	if n := len(sent()); n != cfg.MulticastRepeats {
		t.Errorf("%d multicast transmissions, expected %d", n, cfg.MulticastRepeats)
	}
}

func TestSenderQueuesBeforeStart(t *testing.T) {
	fake, sent := recordingTransport()
	cfg := DefaultConfig()
	cfg.MinDelay, cfg.MaxDelay, cfg.UpperDelay = time.Millisecond, time.Millisecond, time.Millisecond
	s := NewSender(fake, cfg)

	if err := s.Send([]byte("early"), peer); err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 1 {
		t.Fatalf("pending %d", s.Pending())
	}
	startSender(t, s)

	deadline := time.Now().Add(5 * time.Second)
	for len(sent()) < cfg.UnicastRepeats {
		if time.Now().After(deadline) {
			t.Fatalf("only %d transmissions", len(sent()))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendErrorsCountAgainstSchedule(t *testing.T) {
	fake := &mocks.Transport{}
	fake.MulticastAddrReturns(group)
	fake.SendReturns(errors.New("network unreachable"))
	cfg := DefaultConfig()
	cfg.MinDelay, cfg.MaxDelay, cfg.UpperDelay = time.Millisecond, time.Millisecond, 2*time.Millisecond
	s := NewSender(fake, cfg)
	startSender(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SendAndWait(ctx, []byte("x"), peer); err != nil {
		t.Fatal(err)
	}
	if n := fake.SendCallCount(); n != cfg.UnicastRepeats {
		t.Errorf("%d send attempts, expected %d", n, cfg.UnicastRepeats)
	}
}

func TestSenderStopReleasesWaiters(t *testing.T) {
	fake, sent := recordingTransport()
	cfg := DefaultConfig()
	cfg.MinDelay, cfg.MaxDelay, cfg.UpperDelay = time.Hour, time.Hour, time.Hour
	s := NewSender(fake, cfg)
	stop := startSender(t, s)

	res := make(chan error, 1)
	go func() {
		res <- s.SendAndWait(context.Background(), []byte("bye"), peer)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(sent()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first transmission never happened")
		}
		time.Sleep(time.Millisecond)
	}
	stop()

	select {
	case err := <-res:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not released")
	}

	// Serve has returned once the waiter is released.
	if err := s.Send([]byte("late"), peer); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after stop, got %v", err)
	}
}
