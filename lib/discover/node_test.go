// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/soapudp"
	"github.com/wsdd/wsdd/lib/transport"
	"github.com/wsdd/wsdd/lib/transport/mocks"
)

func fastSenderConfig() soapudp.Config {
	return soapudp.Config{
		MulticastRepeats: 4,
		UnicastRepeats:   2,
		MinDelay:         time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		UpperDelay:       5 * time.Millisecond,
	}
}

// startNode runs a node on the network until the test ends and waits for
// its engine to accept calls.
func startNode(t *testing.T, n *transport.MemNetwork, ip string) *Node {
	t.Helper()
	node := NewNode(n.Join(netip.MustParseAddr(ip)), fastSenderConfig(), Config{ReadTimeout: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		node.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := node.ProxyStatus(ctx); err == nil {
			return node
		}
		if time.Now().After(deadline) {
			t.Fatal("engine did not start")
		}
		time.Sleep(time.Millisecond)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishProbeEndToEnd(t *testing.T) {
	n := transport.NewMemNetwork(transport.DefaultMulticastAddr)
	a := startNode(t, n, "192.0.2.1")
	b := startNode(t, n, "192.0.2.2")
	ctx := context.Background()

	published, err := a.Publish(ctx, directory.Description{
		EndpointID: "urn:uuid:4d1d1c8e-7d9e-4b62-9d37-1a8f5d0f1a01",
		Types:      []protocol.QName{typeT1},
		Scopes:     []string{"http://example.com/s1"},
		XAddrs:     []string{"http://192.0.2.1:8080/svc"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if published.MetadataVersion != 1 {
		t.Errorf("published with version %d", published.MetadataVersion)
	}
	if err := b.Probe(ctx, []protocol.QName{typeT1}, nil, ""); err != nil {
		t.Fatal(err)
	}

	eventually(t, "B to learn A's service", func() bool {
		for _, desc := range b.AllServices() {
			if desc.EndpointID == published.EndpointID && desc.MetadataVersion == 1 {
				return true
			}
		}
		return false
	})
	if len(b.LocalServices()) != 0 {
		t.Error("B has local services")
	}
	if res := b.Lookup([]protocol.QName{typeT1}, []string{"http://example.com"}, ""); len(res) != 1 {
		t.Errorf("lookup by scope prefix found %d services", len(res))
	}

	if err := a.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "B to forget A's service after Bye", func() bool {
		return len(b.AllServices()) == 0
	})
	if _, err := a.Publish(ctx, published); !errors.Is(err, ErrNotRunning) {
		t.Errorf("publish after shutdown: %v", err)
	}
}

func TestUnpublish(t *testing.T) {
	n := transport.NewMemNetwork(transport.DefaultMulticastAddr)
	a := startNode(t, n, "192.0.2.1")
	b := startNode(t, n, "192.0.2.2")
	ctx := context.Background()
	sub := b.Subscribe(16)
	defer sub.Unsubscribe()

	desc := directory.Description{EndpointID: "urn:uuid:svc", Types: []protocol.QName{typeT2}}
	if _, err := a.Publish(ctx, desc); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, sub, ServiceAdded)

	if err := a.Unpublish(ctx, desc.EndpointID); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, sub, ServiceRemoved)
	if len(a.LocalServices()) != 0 {
		t.Error("service still published")
	}
	if err := a.Unpublish(ctx, "urn:uuid:never-published"); err != nil {
		t.Errorf("unpublishing an unknown service: %v", err)
	}
}

func waitEvent(t *testing.T, sub *Subscription, typ EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %v event", typ)
		}
	}
}

func TestProxyModeEndToEnd(t *testing.T) {
	n := transport.NewMemNetwork(transport.DefaultMulticastAddr)
	proxy := startNode(t, n, "192.0.2.1")
	client := startNode(t, n, "192.0.2.2")
	ctx := context.Background()

	if err := proxy.EnableProxyMode(ctx); err != nil {
		t.Fatal(err)
	}
	if err := client.Probe(ctx, []protocol.QName{typeT1}, nil, ""); err != nil {
		t.Fatal(err)
	}

	eventually(t, "client to adopt the proxy", func() bool {
		st, err := client.ProxyStatus(ctx)
		return err == nil && st.UsingRemoteProxy && st.RemoteProxy == proxy.Transport.LocalAddr()
	})

	st, _ := proxy.ProxyStatus(ctx)
	if !st.IsProxy {
		t.Error("proxy not in proxy mode")
	}

	if err := proxy.DisableProxyMode(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "client to drop the proxy", func() bool {
		st, err := client.ProxyStatus(ctx)
		return err == nil && !st.UsingRemoteProxy
	})
}

func TestEnableProxyModeWithoutAddress(t *testing.T) {
	fake := &mocks.Transport{}
	fake.MulticastAddrReturns(transport.DefaultMulticastAddr)
	fake.RecvCalls(func(d time.Duration) (transport.Datagram, error) {
		time.Sleep(d)
		return transport.Datagram{}, transport.ErrTimeout
	})

	e := New(fake, &captureSender{}, Config{ReadTimeout: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Serve(ctx)

	eventually(t, "engine to start", func() bool {
		_, err := e.ProxyStatus(ctx)
		return err == nil
	})
	if err := e.EnableProxyMode(ctx); !errors.Is(err, ErrNoProxyAddress) {
		t.Errorf("expected ErrNoProxyAddress, got %v", err)
	}
}
