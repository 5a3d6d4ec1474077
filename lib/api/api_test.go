// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/protocol"
)

var (
	printerType = protocol.QName{Space: "http://example.com/printers", Local: "Printer"}
	scannerType = protocol.QName{Space: "http://example.com/scanners", Local: "Scanner"}
)

func newTestService(t *testing.T) (*mockedDiscovery, *httptest.Server) {
	t.Helper()
	disco := &mockedDiscovery{
		all: []directory.Description{
			{EndpointID: "urn:uuid:00000000-0000-0000-0000-000000000001", Types: []protocol.QName{printerType}, XAddrs: []string{"http://192.0.2.1/"}, MetadataVersion: 3},
			{EndpointID: "urn:uuid:00000000-0000-0000-0000-000000000002", Types: []protocol.QName{scannerType}},
		},
	}
	srv := httptest.NewServer(New("", disco, slogutil.NewRecorder(0)).Handler())
	t.Cleanup(srv.Close)
	return disco, srv
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeServices(t *testing.T, resp *http.Response) []service {
	t.Helper()
	var res []service
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestGetServices(t *testing.T) {
	_, srv := newTestService(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/rest/services", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("unexpected content type %q", ct)
	}
	res := decodeServices(t, resp)
	if len(res) != 2 {
		t.Fatalf("expected two services, got %d", len(res))
	}
	if res[0].MetadataVersion != 3 || res[0].Types[0] != printerType {
		t.Errorf("unexpected first service %+v", res[0])
	}
}

func TestGetServicesFiltered(t *testing.T) {
	_, srv := newTestService(t)

	q := url.Values{"type": []string{printerType.String()}}
	res := decodeServices(t, doRequest(t, http.MethodGet, srv.URL+"/rest/services?"+q.Encode(), ""))
	if len(res) != 1 || res[0].EndpointID != "urn:uuid:00000000-0000-0000-0000-000000000001" {
		t.Errorf("unexpected lookup result %+v", res)
	}

	q = url.Values{"type": []string{"{broken"}}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/rest/services?"+q.Encode(), ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestPostProbe(t *testing.T) {
	disco, srv := newTestService(t)

	body := `{"types": ["{http://example.com/scanners}Scanner"], "scopes": ["http://example.com/floor1"], "matchBy": "urn:x"}`
	resp := doRequest(t, http.MethodPost, srv.URL+"/rest/probe", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if res := decodeServices(t, resp); len(res) != 1 {
		t.Errorf("expected the known scanner, got %+v", res)
	}

	expected := []probeCall{{
		Types:   []protocol.QName{scannerType},
		Scopes:  []string{"http://example.com/floor1"},
		MatchBy: "urn:x",
	}}
	disco.mut.Lock()
	defer disco.mut.Unlock()
	if diff, equal := messagediff.PrettyDiff(expected, disco.probes); !equal {
		t.Errorf("unexpected probes:\n%s", diff)
	}
}

func TestPostProbeNotRunning(t *testing.T) {
	disco, srv := newTestService(t)
	disco.mut.Lock()
	disco.notRunning = true
	disco.mut.Unlock()

	if resp := doRequest(t, http.MethodPost, srv.URL+"/rest/probe", "{}"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodPost, srv.URL+"/rest/probe", "{not json"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unexpected status %d for malformed body", resp.StatusCode)
	}
}

func TestPublishAndUnpublish(t *testing.T) {
	disco, srv := newTestService(t)

	body := `{"types": ["{http://example.com/printers}Printer"], "xAddrs": ["http://192.0.2.9/"]}`
	resp := doRequest(t, http.MethodPost, srv.URL+"/rest/local", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var stored service
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored.EndpointID, "urn:uuid:") {
		t.Errorf("expected a generated endpoint id, got %q", stored.EndpointID)
	}
	if stored.MetadataVersion != 1 {
		t.Errorf("unexpected version %d", stored.MetadataVersion)
	}

	local := decodeServices(t, doRequest(t, http.MethodGet, srv.URL+"/rest/local", ""))
	if len(local) != 1 || local[0].EndpointID != stored.EndpointID {
		t.Errorf("unexpected local services %+v", local)
	}

	q := url.Values{"id": []string{stored.EndpointID}}
	if resp := doRequest(t, http.MethodDelete, srv.URL+"/rest/local?"+q.Encode(), ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	disco.mut.Lock()
	if len(disco.removed) != 1 || disco.removed[0] != stored.EndpointID {
		t.Errorf("unexpected removals %v", disco.removed)
	}
	disco.mut.Unlock()
	if resp := doRequest(t, http.MethodDelete, srv.URL+"/rest/local", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected bad request without id, got %d", resp.StatusCode)
	}
}

func TestProxyMode(t *testing.T) {
	disco, srv := newTestService(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/rest/proxy", `{"enabled": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var st discover.ProxyStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.IsProxy {
		t.Error("proxy mode not reported")
	}

	disco.mut.Lock()
	disco.proxyErr = discover.ErrNoProxyAddress
	disco.mut.Unlock()
	if resp := doRequest(t, http.MethodPost, srv.URL+"/rest/proxy", `{"enabled": true}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}

	doRequest(t, http.MethodPost, srv.URL+"/rest/proxy", `{"enabled": false}`)
	resp = doRequest(t, http.MethodGet, srv.URL+"/rest/proxy", "")
	bs, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(bs), `"isProxy": false`) {
		t.Errorf("unexpected status body %s", bs)
	}
}

func TestMetrics(t *testing.T) {
	_, srv := newTestService(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	bs, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(bs), "go_goroutines") {
		t.Error("metrics output lacks runtime metrics")
	}
}

func TestSystemDebug(t *testing.T) {
	_, srv := newTestService(t)
	t.Cleanup(func() { slogutil.SetPackageLevel("discover", slog.LevelInfo) })

	levelOf := func(resp *http.Response) slog.Level {
		t.Helper()
		var res struct {
			Packages []slogutil.PackageInfo `json:"packages"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatal(err)
		}
		for _, p := range res.Packages {
			if p.Name == "discover" {
				return p.Level
			}
		}
		t.Fatalf("discover not among %v", res.Packages)
		return 0
	}

	resp := doRequest(t, http.MethodPost, srv.URL+"/rest/system/debug?enable=discover", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if l := levelOf(resp); l != slog.LevelDebug {
		t.Errorf("discover at %v after enabling debug", l)
	}

	doRequest(t, http.MethodPost, srv.URL+"/rest/system/debug?disable=discover", "")
	if l := levelOf(doRequest(t, http.MethodGet, srv.URL+"/rest/system/debug", "")); l != slog.LevelInfo {
		t.Errorf("discover at %v after disabling debug", l)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/rest/system/debug?enable=nonexistent", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown package gave status %d", resp.StatusCode)
	}
}

func TestServeListens(t *testing.T) {
	s := New("127.0.0.1:0", &mockedDiscovery{}, slogutil.NewRecorder(0))
	s.started = make(chan string)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var addr string
	select {
	case addr = <-s.started:
	case err := <-done:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("API did not start")
	}

	resp := doRequest(t, http.MethodGet, "http://"+addr+"/rest/local", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("unexpected serve error %v", err)
	}
}
