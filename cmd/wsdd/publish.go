// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wsdd/wsdd/lib/config"
	"github.com/wsdd/wsdd/lib/svcutil"
)

type publishCmd struct {
	EndpointID string   `name:"endpoint-id" help:"Endpoint address; a urn:uuid is generated when empty"`
	Types      []string `name:"type" short:"t" placeholder:"{NS}LOCAL" help:"Service type (repeatable)"`
	Scopes     []string `name:"scope" short:"s" help:"Scope (repeatable)"`
	MatchBy    string   `name:"match-by" help:"Scope matching rule name or URI"`
	XAddrs     []string `arg:"" optional:"" name:"xaddr" help:"Transport addresses of the service"`
}

func (c *publishCmd) Run(opts *config.Options) error {
	// Only the service given on the command line is published.
	opts.Services = []config.ServiceOptions{{
		EndpointID: c.EndpointID,
		Types:      c.Types,
		Scopes:     c.Scopes,
		MatchBy:    c.MatchBy,
		XAddrs:     c.XAddrs,
	}}
	descs, err := opts.Descriptions()
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return runDaemon(ctx, opts, descs)
}
