// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/api"
	"github.com/wsdd/wsdd/lib/config"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/svcutil"
	"github.com/wsdd/wsdd/lib/transport"
)

var errStopped = errors.New("discovery node stopped")

// Long enough for every Bye to go out the configured number of times.
const shutdownTimeout = 10 * time.Second

type serveCmd struct {
	Proxy bool `help:"Act as a discovery proxy" env:"WSDD_PROXY"`
}

func (c *serveCmd) Run(opts *config.Options) error {
	if c.Proxy {
		opts.Proxy = true
	}
	descs, err := opts.Descriptions()
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return runDaemon(ctx, opts, descs)
}

// newNode builds a discovery node on the network transport.
func newNode(opts *config.Options) (*discover.Node, error) {
	topts, err := opts.TransportOptions()
	if err != nil {
		return nil, err
	}
	return discover.NewNode(transport.NewUDP(topts), opts.SenderConfig(), opts.DiscoverConfig()), nil
}

// A daemon is a running node, and the API when configured, under one
// supervisor. The supervisor outlives the caller's context so that
// shutdown can still say goodbye.
type daemon struct {
	node *discover.Node
	errc <-chan error
	stop context.CancelFunc
}

// startDaemon returns once the engine accepts calls, or with the first
// fatal error.
func startDaemon(ctx context.Context, opts *config.Options) (*daemon, error) {
	node, err := newNode(opts)
	if err != nil {
		return nil, svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}

	sup := suture.New("wsdd", svcutil.SupervisorSpec(slog.LevelInfo))
	sup.Add(node)
	if opts.APIAddress != "" {
		sup.Add(api.New(opts.APIAddress, node, slogutil.GlobalRecorder))
	}
	runCtx, stop := context.WithCancel(context.Background())
	d := &daemon{node: node, errc: sup.ServeBackground(runCtx), stop: stop}

	for {
		if _, err := node.ProxyStatus(ctx); err == nil {
			return d, nil
		}
		select {
		case err := <-d.errc:
			stop()
			if err = fatalServeError(err); err == nil {
				err = errStopped
			}
			return nil, err
		case <-ctx.Done():
			stop()
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// wait blocks until ctx is done or the supervisor fails.
func (d *daemon) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-d.errc:
		d.stop()
		if err = fatalServeError(err); err == nil {
			err = errStopped
		}
		return err
	}
}

// shutdown sends Byes for local services and stops everything.
func (d *daemon) shutdown() error {
	defer d.stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.node.Shutdown(ctx); err != nil && !errors.Is(err, discover.ErrNotRunning) {
		return err
	}
	return nil
}

func runDaemon(ctx context.Context, opts *config.Options, descs []directory.Description) error {
	d, err := startDaemon(ctx, opts)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Discovery node running", "protocol", opts.ProtocolVersion, "group", d.node.Transport.MulticastAddr())

	for _, desc := range descs {
		stored, err := d.node.Publish(ctx, desc)
		if err != nil {
			d.shutdown()
			return fmt.Errorf("publishing %s: %w", desc.EndpointID, err)
		}
		slog.InfoContext(ctx, "Published service", "endpoint", stored.EndpointID, "version", stored.MetadataVersion)
	}
	if opts.Proxy {
		if err := d.node.EnableProxyMode(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to enable proxy mode", slogutil.Error(err))
		}
	}

	if err := d.wait(ctx); err != nil {
		return err
	}
	slog.Info("Shutting down")
	return d.shutdown()
}

// fatalServeError turns the supervisor's exit into an error carrying an
// exit status.
func fatalServeError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	var ferr *svcutil.FatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	return svcutil.AsFatalErr(err, svcutil.ExitError)
}
