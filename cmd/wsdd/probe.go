// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/wsdd/wsdd/lib/config"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/svcutil"
)

type probeCmd struct {
	Types   []string      `name:"type" short:"t" placeholder:"{NS}LOCAL" help:"Service type to probe for (repeatable)"`
	Scopes  []string      `name:"scope" short:"s" help:"Scope to probe for (repeatable)"`
	MatchBy string        `name:"match-by" help:"Scope matching rule URI"`
	Wait    time.Duration `default:"3s" help:"How long to collect answers"`
	JSON    bool          `help:"Print results as JSON"`
}

func (c *probeCmd) Run(opts *config.Options) error {
	types, err := parseTypes(c.Types)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	d, err := startDaemon(ctx, opts)
	if err != nil {
		return err
	}
	defer d.shutdown()

	sub := d.node.Subscribe(64)
	defer sub.Unsubscribe()
	if err := d.node.Probe(ctx, types, c.Scopes, c.MatchBy); err != nil {
		return err
	}

	found := collectMatches(ctx, sub.C, c.Wait, func(desc directory.Description) bool {
		matches := d.node.Lookup(types, c.Scopes, c.MatchBy)
		return slices.ContainsFunc(matches, func(m directory.Description) bool {
			return m.EndpointID == desc.EndpointID
		})
	})
	return printServices(os.Stdout, found, c.JSON)
}

// collectMatches gathers services announced or updated within the wait
// period that satisfy match, newest version last.
func collectMatches(ctx context.Context, events <-chan discover.Event, wait time.Duration, match func(directory.Description) bool) []directory.Description {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var found []directory.Description
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case discover.ServiceAdded, discover.ServiceUpdated:
				if !match(ev.Service) {
					continue
				}
				idx := slices.IndexFunc(found, func(d directory.Description) bool { return d.EndpointID == ev.Service.EndpointID })
				if idx >= 0 {
					found[idx] = ev.Service
				} else {
					found = append(found, ev.Service)
				}
			case discover.ServiceRemoved:
				found = slices.DeleteFunc(found, func(d directory.Description) bool { return d.EndpointID == ev.Service.EndpointID })
			}
		case <-timer.C:
			return found
		case <-ctx.Done():
			return found
		}
	}
}

func parseTypes(ss []string) ([]protocol.QName, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	types := make([]protocol.QName, 0, len(ss))
	for _, s := range ss {
		qn, err := protocol.ParseQName(s)
		if err != nil {
			return nil, err
		}
		types = append(types, qn)
	}
	return types, nil
}

type printedService struct {
	EndpointID      string   `json:"endpointID"`
	Types           []string `json:"types"`
	Scopes          []string `json:"scopes"`
	XAddrs          []string `json:"xAddrs"`
	MetadataVersion uint64   `json:"metadataVersion"`
}

func printServices(w io.Writer, descs []directory.Description, asJSON bool) error {
	res := make([]printedService, 0, len(descs))
	for _, d := range descs {
		ps := printedService{
			EndpointID:      d.EndpointID,
			Scopes:          d.Scopes,
			XAddrs:          d.XAddrs,
			MetadataVersion: d.MetadataVersion,
		}
		for _, t := range d.Types {
			ps.Types = append(ps.Types, t.String())
		}
		res = append(res, ps)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, ps := range res {
		if _, err := fmt.Fprintf(w, "%s (version %d)\n", ps.EndpointID, ps.MetadataVersion); err != nil {
			return err
		}
		for _, line := range []struct{ label, value string }{
			{"types", strings.Join(ps.Types, " ")},
			{"scopes", strings.Join(ps.Scopes, " ")},
			{"xaddrs", strings.Join(ps.XAddrs, " ")},
		} {
			if line.value == "" {
				continue
			}
			if _, err := fmt.Fprintf(w, "    %-7s %s\n", line.label+":", line.value); err != nil {
				return err
			}
		}
	}
	return nil
}
