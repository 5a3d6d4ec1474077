// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/transport.go --fake-name Transport . Transport

// Package transport moves raw datagrams between the discovery engine and
// the network: a multicast group socket for announcements and queries, and
// an ephemeral unicast socket for everything sent and all direct replies.
package transport

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

const (
	DefaultMulticastGroup = "239.255.255.250"
	DefaultPort           = 3702

	// maxDatagramSize is the largest UDP payload we read.
	maxDatagramSize = 65536
	// recvQueueLen is the number of received datagrams buffered for the
	// consumer before further ones are dropped.
	recvQueueLen = 64
	sendTimeout  = 5 * time.Second
)

var (
	ErrClosed  = errors.New("transport closed")
	ErrTimeout = errors.New("receive timed out")
	ErrNoRoute = errors.New("no such destination")
)

// DefaultMulticastAddr is the standard WS-Discovery group and port.
var DefaultMulticastAddr = netip.AddrPortFrom(netip.MustParseAddr(DefaultMulticastGroup), DefaultPort)

// A Datagram is one received packet, already decoded by the codec plugin.
type Datagram struct {
	Data []byte
	Src  netip.AddrPort
	// Multicast is set for datagrams that arrived on the group socket.
	Multicast bool
}

// Transport is the datagram layer beneath the reliability layer and the
// dispatch engine. Serve runs the sockets until the context is cancelled.
type Transport interface {
	suture.Service
	// Send transmits data to dst. Sending to MulticastAddr reaches the
	// group.
	Send(data []byte, dst netip.AddrPort) error
	// Recv returns the next received datagram, ErrTimeout if none arrived
	// within timeout, or ErrClosed once the transport has stopped.
	Recv(timeout time.Duration) (Datagram, error)
	MulticastAddr() netip.AddrPort
	// LocalAddr is the address peers can send unicast to. It is invalid
	// while the transport has no usable address.
	LocalAddr() netip.AddrPort
}

// IsMulticast reports whether dst is the multicast group of t.
func IsMulticast(t Transport, dst netip.AddrPort) bool {
	return dst == t.MulticastAddr()
}

// recvQueue is the buffered hand-off between socket readers and the
// consumer.
type recvQueue struct {
	ch        chan Datagram
	closed    chan struct{}
	closeOnce sync.Once
}

func newRecvQueue() *recvQueue {
	return &recvQueue{
		ch:     make(chan Datagram, recvQueueLen),
		closed: make(chan struct{}),
	}
}

// put queues d without blocking and reports whether it was accepted.
func (q *recvQueue) put(d Datagram) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.ch <- d:
		return true
	default:
		return false
	}
}

func (q *recvQueue) get(timeout time.Duration) (Datagram, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case d := <-q.ch:
		return d, nil
	case <-q.closed:
		return Datagram{}, ErrClosed
	case <-t.C:
		return Datagram{}, ErrTimeout
	}
}

func (q *recvQueue) close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

type errorHolder struct {
	err error
	mut sync.Mutex
}

func (e *errorHolder) setError(err error) {
	e.mut.Lock()
	e.err = err
	e.mut.Unlock()
}

func (e *errorHolder) Error() error {
	e.mut.Lock()
	err := e.err
	e.mut.Unlock()
	return err
}
