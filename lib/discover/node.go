// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/wsdd/wsdd/lib/soapudp"
	"github.com/wsdd/wsdd/lib/svcutil"
	"github.com/wsdd/wsdd/lib/transport"
)

// A Node is a complete discovery participant: a transport, the
// reliability layer on top of it and an engine, under one supervisor.
type Node struct {
	*suture.Supervisor
	*Engine
	Transport transport.Transport
	Sender    *soapudp.Sender

	mut    sync.Mutex
	cancel context.CancelFunc
}

func NewNode(t transport.Transport, scfg soapudp.Config, cfg Config) *Node {
	var opts []soapudp.Option
	if cfg.Clock != nil {
		opts = append(opts, soapudp.WithClock(cfg.Clock))
	}
	sender := soapudp.NewSender(t, scfg, opts...)
	n := &Node{
		Supervisor: suture.New("discover.Node", svcutil.SupervisorSpec(slog.LevelDebug)),
		Engine:     New(t, sender, cfg),
		Transport:  t,
		Sender:     sender,
	}
	n.Supervisor.Add(t)
	n.Supervisor.Add(sender)
	n.Supervisor.Add(n.Engine)
	return n
}

func (n *Node) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	n.mut.Lock()
	n.cancel = cancel
	n.mut.Unlock()
	return n.Supervisor.Serve(ctx)
}

// Shutdown says goodbye for all local services and then stops the engine,
// the sender and the transport.
func (n *Node) Shutdown(ctx context.Context) error {
	err := n.Engine.Shutdown(ctx)
	n.mut.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.mut.Unlock()
	return err
}

func (n *Node) String() string {
	return fmt.Sprintf("discover.Node@%p", n)
}
