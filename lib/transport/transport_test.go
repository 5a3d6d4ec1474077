// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"
)

var (
	ipA = netip.MustParseAddr("192.0.2.1")
	ipB = netip.MustParseAddr("192.0.2.2")
)

func TestMemMulticastReachesEveryone(t *testing.T) {
	n := NewMemNetwork(netip.AddrPort{})
	a := n.Join(ipA)
	b := n.Join(ipB)

	if err := a.Send([]byte("hello"), a.MulticastAddr()); err != nil {
		t.Fatal(err)
	}
	for _, tr := range []*MemTransport{a, b} {
		d, err := tr.Recv(time.Second)
		if err != nil {
			t.Fatalf("%v: %v", tr, err)
		}
		if string(d.Data) != "hello" || !d.Multicast || d.Src != a.LocalAddr() {
			t.Errorf("%v: unexpected datagram %+v", tr, d)
		}
	}
	if a.Sent() != 1 {
		t.Errorf("sent count %d", a.Sent())
	}
}

func TestMemUnicast(t *testing.T) {
	n := NewMemNetwork(DefaultMulticastAddr)
	a := n.Join(ipA)
	b := n.Join(ipB)

	if err := a.Send([]byte("direct"), b.LocalAddr()); err != nil {
		t.Fatal(err)
	}
	d, err := b.Recv(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if d.Multicast || d.Src != a.LocalAddr() {
		t.Errorf("unexpected datagram %+v", d)
	}
	if _, err := a.Recv(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("sender should not see its own unicast, got %v", err)
	}

	nowhere := netip.AddrPortFrom(ipB, 1)
	if err := a.Send([]byte("lost"), nowhere); !errors.Is(err, ErrNoRoute) {
		t.Errorf("expected ErrNoRoute, got %v", err)
	}
}

func TestMemDropFunc(t *testing.T) {
	n := NewMemNetwork(DefaultMulticastAddr)
	a := n.Join(ipA)
	b := n.Join(ipB)
	n.SetDropFunc(func(src, dst netip.AddrPort, data []byte) bool {
		return string(data) == "drop me"
	})

	a.Send([]byte("drop me"), b.LocalAddr())
	a.Send([]byte("keep me"), b.LocalAddr())
	d, err := b.Recv(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(d.Data) != "keep me" {
		t.Errorf("got %q", d.Data)
	}
}

func TestMemServeCloses(t *testing.T) {
	n := NewMemNetwork(DefaultMulticastAddr)
	a := n.Join(ipA)
	b := n.Join(ipB)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- a.Serve(ctx) }()
	cancel()
	<-done

	if _, err := a.Recv(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Recv, got %v", err)
	}
	if err := a.Send([]byte("x"), b.LocalAddr()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Send, got %v", err)
	}
	if err := b.Send([]byte("x"), a.LocalAddr()); !errors.Is(err, ErrNoRoute) {
		t.Errorf("closed transport should have left the network, got %v", err)
	}
}

func TestRecvQueueDropsWhenFull(t *testing.T) {
	q := newRecvQueue()
	for i := 0; i < recvQueueLen; i++ {
		if !q.put(Datagram{}) {
			t.Fatalf("put %d refused", i)
		}
	}
	if q.put(Datagram{}) {
		t.Error("put into a full queue should be refused")
	}
	q.close()
	if q.put(Datagram{}) {
		t.Error("put into a closed queue should be refused")
	}
}

func TestNewUDPDefaults(t *testing.T) {
	u := NewUDP(Options{})
	if u.MulticastAddr() != DefaultMulticastAddr {
		t.Errorf("multicast address %v", u.MulticastAddr())
	}
	if u.opts.TTL != 1 {
		t.Errorf("TTL %d", u.opts.TTL)
	}
	if u.plugin.Name() != "none" {
		t.Errorf("plugin %s", u.plugin.Name())
	}
	if u.LocalAddr().IsValid() {
		t.Error("unbound transport should have no local address")
	}
	if !IsMulticast(u, netip.MustParseAddrPort("239.255.255.250:3702")) {
		t.Error("group address not classified as multicast")
	}
	if channelOf(DefaultMulticastAddr, netip.MustParseAddrPort("192.0.2.1:3702")) != channelUnicast {
		t.Error("unicast destination classified as multicast")
	}
}
