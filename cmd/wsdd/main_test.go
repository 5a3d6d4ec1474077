// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wsdd/wsdd/lib/config"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/svcutil"
)

func TestOptionsFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsdd.yaml")
	if err := os.WriteFile(path, []byte("codec: zlib\ninterface: eth0\nlog_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cli := CLI{Config: path, Interface: "eth1", ProtocolVersion: "2005"}
	opts, err := cli.options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Interface != "eth1" || opts.ProtocolVersion != "2005" {
		t.Errorf("flags did not override: %+v", opts)
	}
	if opts.Codec != "zlib" || opts.LogLevel != "warn" {
		t.Errorf("file values lost: %+v", opts)
	}
}

func TestOptionsInvalid(t *testing.T) {
	cli := CLI{Codec: "brotli"}
	if _, err := cli.options(); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected invalid configuration, got %v", err)
	}
}

func TestSetLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn"} {
		if err := setLogLevel(s); err != nil {
			t.Errorf("%s: %v", s, err)
		}
	}
	if err := setLogLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
	setLogLevel("info")
}

func TestExitStatus(t *testing.T) {
	bind := svcutil.AsFatalErr(errors.New("address in use"), svcutil.ExitBindError)
	if s := exitStatus(bind); s != svcutil.ExitBindError {
		t.Errorf("unexpected status %d", s)
	}
	if s := exitStatus(errors.New("other")); s != svcutil.ExitError {
		t.Errorf("unexpected status %d", s)
	}
	if err := fatalServeError(context.Canceled); err != nil {
		t.Errorf("cancellation should not be an error: %v", err)
	}
}

func TestCollectMatches(t *testing.T) {
	a := directory.Description{EndpointID: "urn:a", MetadataVersion: 1}
	b := directory.Description{EndpointID: "urn:b", MetadataVersion: 1}
	ignored := directory.Description{EndpointID: "urn:ignored"}

	events := make(chan discover.Event, 10)
	events <- discover.Event{Type: discover.ServiceAdded, Service: a}
	events <- discover.Event{Type: discover.ServiceAdded, Service: ignored}
	events <- discover.Event{Type: discover.ServiceAdded, Service: b}
	a.MetadataVersion = 2
	events <- discover.Event{Type: discover.ServiceUpdated, Service: a}
	events <- discover.Event{Type: discover.ServiceRemoved, Service: b}
	events <- discover.Event{Type: discover.ProxyFound}

	found := collectMatches(context.Background(), events, 100*time.Millisecond, func(d directory.Description) bool {
		return d.EndpointID != "urn:ignored"
	})
	if len(found) != 1 || found[0].EndpointID != "urn:a" || found[0].MetadataVersion != 2 {
		t.Errorf("unexpected matches %+v", found)
	}
}

func TestPrintServices(t *testing.T) {
	descs := []directory.Description{{
		EndpointID:      "urn:uuid:98190dc2-0890-4ef8-ac9a-5940995e6119",
		Types:           []protocol.QName{{Space: "http://example.com/printers", Local: "Printer"}},
		XAddrs:          []string{"http://192.0.2.10/print"},
		MetadataVersion: 4,
	}}

	var buf bytes.Buffer
	if err := printServices(&buf, descs, false); err != nil {
		t.Fatal(err)
	}
	expected := "urn:uuid:98190dc2-0890-4ef8-ac9a-5940995e6119 (version 4)\n" +
		"    types:  {http://example.com/printers}Printer\n" +
		"    xaddrs: http://192.0.2.10/print\n"
	if buf.String() != expected {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	if err := printServices(&buf, descs, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"metadataVersion": 4`) {
		t.Errorf("unexpected JSON output:\n%s", buf.String())
	}
}

func TestParseTypes(t *testing.T) {
	types, err := parseTypes([]string{"{urn:ns}A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 2 || types[0].Space != "urn:ns" || types[1].Local != "B" {
		t.Errorf("unexpected types %v", types)
	}
	if _, err := parseTypes([]string{"{urn:ns"}); err == nil {
		t.Error("expected error")
	}
}
