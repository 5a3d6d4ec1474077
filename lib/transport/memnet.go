// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"
)

// MemNetwork is an in-process datagram network. Datagrams sent to the
// group reach every joined transport, the sender included, as they would
// with multicast loopback enabled.
type MemNetwork struct {
	group netip.AddrPort

	mut      sync.Mutex
	nodes    map[netip.AddrPort]*MemTransport
	nextPort uint16
	drop     func(src, dst netip.AddrPort, data []byte) bool
}

func NewMemNetwork(group netip.AddrPort) *MemNetwork {
	if !group.IsValid() {
		group = DefaultMulticastAddr
	}
	return &MemNetwork{
		group:    group,
		nodes:    make(map[netip.AddrPort]*MemTransport),
		nextPort: 49152,
	}
}

// Join attaches a new transport with the given IP and a fresh port.
func (n *MemNetwork) Join(ip netip.Addr) *MemTransport {
	n.mut.Lock()
	defer n.mut.Unlock()
	addr := netip.AddrPortFrom(ip, n.nextPort)
	n.nextPort++
	t := &MemTransport{
		network: n,
		addr:    addr,
		recv:    newRecvQueue(),
	}
	n.nodes[addr] = t
	return t
}

// SetDropFunc installs a filter; datagrams for which fn returns true are
// lost.
func (n *MemNetwork) SetDropFunc(fn func(src, dst netip.AddrPort, data []byte) bool) {
	n.mut.Lock()
	n.drop = fn
	n.mut.Unlock()
}

func (n *MemNetwork) leave(t *MemTransport) {
	n.mut.Lock()
	delete(n.nodes, t.addr)
	n.mut.Unlock()
}

func (n *MemNetwork) deliver(src, dst netip.AddrPort, data []byte) error {
	n.mut.Lock()
	drop := n.drop
	var targets []*MemTransport
	multicast := dst == n.group
	if multicast {
		for _, t := range n.nodes {
			targets = append(targets, t)
		}
	} else if t, ok := n.nodes[dst]; ok {
		targets = append(targets, t)
	}
	n.mut.Unlock()

	if drop != nil && drop(src, dst, data) {
		return nil
	}
	if !multicast && len(targets) == 0 {
		return fmt.Errorf("%w: %v", ErrNoRoute, dst)
	}
	for _, t := range targets {
		t.recv.put(Datagram{Data: slices.Clone(data), Src: src, Multicast: multicast})
	}
	return nil
}

// MemTransport is a Transport attached to a MemNetwork. It is usable as
// soon as it has joined; Serve detaches it when its context is cancelled.
type MemTransport struct {
	network *MemNetwork
	addr    netip.AddrPort
	recv    *recvQueue

	mut  sync.Mutex
	sent int
}

func (t *MemTransport) Serve(ctx context.Context) error {
	<-ctx.Done()
	t.Close()
	return ctx.Err()
}

// Close detaches the transport from the network.
func (t *MemTransport) Close() {
	t.network.leave(t)
	t.recv.close()
}

func (t *MemTransport) Send(data []byte, dst netip.AddrPort) error {
	select {
	case <-t.recv.closed:
		return ErrClosed
	default:
	}
	t.mut.Lock()
	t.sent++
	t.mut.Unlock()
	return t.network.deliver(t.addr, dst, data)
}

func (t *MemTransport) Recv(timeout time.Duration) (Datagram, error) {
	return t.recv.get(timeout)
}

func (t *MemTransport) MulticastAddr() netip.AddrPort {
	return t.network.group
}

func (t *MemTransport) LocalAddr() netip.AddrPort {
	return t.addr
}

// Sent returns the number of datagrams sent so far.
func (t *MemTransport) Sent() int {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.sent
}

func (t *MemTransport) String() string {
	return "transport.Mem@" + t.addr.String()
}
