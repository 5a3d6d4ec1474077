// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command wsdd is a WS-Discovery daemon and client. It announces the
// services it is configured with, answers Probes and Resolves for them on
// the local network, and can act as a discovery proxy.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/config"
	"github.com/wsdd/wsdd/lib/svcutil"
)

type CLI struct {
	Config   string `name:"config" type:"path" placeholder:"PATH" env:"WSDD_CONFIG" help:"YAML configuration file"`
	LogLevel string `name:"log-level" env:"WSDD_LOG_LEVEL" help:"Default log level (debug, info, warn, error)"`

	Interface       string `help:"Restrict multicast to this network interface"`
	ProtocolVersion string `name:"protocol-version" help:"WS-Discovery version (1.1, 2005)"`
	Codec           string `help:"Datagram codec (none, zlib, lz4)"`
	APIAddress      string `name:"api-address" env:"WSDD_API_ADDRESS" placeholder:"ADDR" help:"Listen address for the HTTP API"`

	Serve   serveCmd   `cmd:"" default:"1" help:"Run the discovery daemon"`
	Probe   probeCmd   `cmd:"" help:"Probe for services and print what answers"`
	Publish publishCmd `cmd:"" help:"Publish one service until interrupted"`
}

// options loads the configuration file, or the defaults, and applies the
// command line on top.
func (c *CLI) options() (*config.Options, error) {
	var opts *config.Options
	if c.Config != "" {
		var err error
		opts, err = config.Load(c.Config)
		if err != nil {
			return nil, err
		}
	} else {
		opts = config.Default()
		if err := opts.ApplyEnvOverrides(); err != nil {
			return nil, err
		}
	}

	if c.LogLevel != "" {
		opts.LogLevel = c.LogLevel
	}
	if c.Interface != "" {
		opts.Interface = c.Interface
	}
	if c.ProtocolVersion != "" {
		opts.ProtocolVersion = c.ProtocolVersion
	}
	if c.Codec != "" {
		opts.Codec = c.Codec
	}
	if c.APIAddress != "" {
		opts.APIAddress = c.APIAddress
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func setLogLevel(s string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return fmt.Errorf("log level %q: %w", s, err)
	}
	slogutil.SetDefaultLevel(level)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wsdd"),
		kong.Description("WS-Discovery daemon and client"),
		kong.UsageOnError(),
	)

	opts, err := cli.options()
	if err == nil {
		err = setLogLevel(opts.LogLevel)
	}
	if err != nil {
		slog.Error("Bad configuration", slogutil.Error(err))
		os.Exit(svcutil.ExitConfig.AsInt())
	}

	if err := ctx.Run(opts); err != nil {
		status := exitStatus(err)
		slog.Error("Exiting", slogutil.Error(err), slog.String("status", status.String()))
		os.Exit(status.AsInt())
	}
}

func exitStatus(err error) svcutil.ExitStatus {
	var ferr *svcutil.FatalErr
	if errors.As(err, &ferr) {
		return ferr.Status
	}
	return svcutil.ExitError
}
