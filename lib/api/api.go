// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package api serves a small HTTP status and control surface for a
// running discovery node, plus Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/protocol"
)

const maxRequestBody = 64 << 10

// Discovery is the part of a discovery node the API exposes.
type Discovery interface {
	AllServices() []directory.Description
	LocalServices() []directory.Description
	Lookup(types []protocol.QName, scopes []string, matchBy string) []directory.Description
	Probe(ctx context.Context, types []protocol.QName, scopes []string, matchBy string) error
	Publish(ctx context.Context, desc directory.Description) (directory.Description, error)
	Unpublish(ctx context.Context, endpointID string) error
	ProxyStatus(ctx context.Context) (discover.ProxyStatus, error)
	EnableProxyMode(ctx context.Context) error
	DisableProxyMode(ctx context.Context) error
}

// Service is the HTTP API as a suture service.
type Service struct {
	addr      string
	disco     Discovery
	systemLog slogutil.Recorder
	started   chan string // only set by tests
}

func New(addr string, disco Discovery, systemLog slogutil.Recorder) *Service {
	return &Service{
		addr:      addr,
		disco:     disco,
		systemLog: systemLog,
	}
}

func (s *Service) String() string {
	return fmt.Sprintf("api.Service@%p", s)
}

func (s *Service) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		slog.WarnContext(ctx, "Failed to start API", slogutil.Address(stringer(s.addr)), slogutil.Error(err))
		return err
	}
	defer listener.Close()

	srv := http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Errors worth knowing about are logged by the handlers.
		ErrorLog: log.New(io.Discard, "", 0),
	}

	slog.InfoContext(ctx, "API listening", slogutil.Address(listener.Addr()))
	if s.started != nil {
		select {
		case <-ctx.Done():
		case s.started <- listener.Addr().String():
		}
	}

	serveError := make(chan error, 1)
	go func() {
		select {
		case serveError <- srv.Serve(listener):
		case <-ctx.Done():
		}
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-serveError:
		slog.WarnContext(ctx, "API failed, restarting", slogutil.Error(err))
	}

	timeout, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(timeout); errors.Is(err, context.DeadlineExceeded) {
		srv.Close()
	}
	return err
}

// Handler returns the routes without a listener.
func (s *Service) Handler() http.Handler {
	mux := httprouter.New()

	mux.HandlerFunc(http.MethodGet, "/rest/services", s.getServices)
	mux.HandlerFunc(http.MethodGet, "/rest/local", s.getLocal)
	mux.HandlerFunc(http.MethodGet, "/rest/proxy", s.getProxy)
	mux.HandlerFunc(http.MethodGet, "/rest/log", s.getLog)
	mux.HandlerFunc(http.MethodGet, "/rest/system/debug", getSystemDebug)

	mux.HandlerFunc(http.MethodPost, "/rest/probe", s.postProbe)
	mux.HandlerFunc(http.MethodPost, "/rest/local", s.postLocal)
	mux.HandlerFunc(http.MethodDelete, "/rest/local", s.deleteLocal)
	mux.HandlerFunc(http.MethodPost, "/rest/proxy", s.postProxy)
	mux.HandlerFunc(http.MethodPost, "/rest/system/debug", postSystemDebug)

	mux.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return debugMiddleware(mux)
}

// service is the JSON form of a directory description.
type service struct {
	EndpointID      string           `json:"endpointID"`
	Types           []protocol.QName `json:"types"`
	Scopes          []string         `json:"scopes"`
	MatchBy         string           `json:"matchBy,omitempty"`
	XAddrs          []string         `json:"xAddrs"`
	MetadataVersion uint64           `json:"metadataVersion"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func fromDescriptions(descs []directory.Description) []service {
	res := make([]service, 0, len(descs))
	for _, d := range descs {
		res = append(res, service{
			EndpointID:      d.EndpointID,
			Types:           d.Types,
			Scopes:          d.Scopes,
			MatchBy:         d.MatchBy,
			XAddrs:          d.XAddrs,
			MetadataVersion: d.MetadataVersion,
			CreatedAt:       d.CreatedAt,
		})
	}
	return res
}

// query is a Probe or lookup filter. Types are in "{namespace}local"
// notation.
type query struct {
	Types   []string `json:"types"`
	Scopes  []string `json:"scopes"`
	MatchBy string   `json:"matchBy"`
}

func (q query) qnames() ([]protocol.QName, error) {
	if len(q.Types) == 0 {
		return nil, nil
	}
	res := make([]protocol.QName, 0, len(q.Types))
	for _, t := range q.Types {
		qn, err := protocol.ParseQName(t)
		if err != nil {
			return nil, err
		}
		res = append(res, qn)
	}
	return res, nil
}

func (s *Service) getServices(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := query{Types: qs["type"], Scopes: qs["scope"], MatchBy: qs.Get("matchBy")}
	if len(q.Types) == 0 && len(q.Scopes) == 0 {
		sendJSON(w, fromDescriptions(s.disco.AllServices()))
		return
	}
	types, err := q.qnames()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sendJSON(w, fromDescriptions(s.disco.Lookup(types, q.Scopes, q.MatchBy)))
}

func (s *Service) getLocal(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, fromDescriptions(s.disco.LocalServices()))
}

func (s *Service) getProxy(w http.ResponseWriter, r *http.Request) {
	st, err := s.disco.ProxyStatus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendJSON(w, st)
}

func (s *Service) getLog(w http.ResponseWriter, r *http.Request) {
	since, err := time.Parse(time.RFC3339, r.URL.Query().Get("since"))
	if err != nil {
		slog.Debug("Ignoring log query", slogutil.Error(err))
	}
	sendJSON(w, map[string][]slogutil.Line{
		"messages": s.systemLog.Since(since),
	})
}

// getSystemDebug lists the packages whose log level can be changed.
func getSystemDebug(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, map[string][]slogutil.PackageInfo{
		"packages": slogutil.Packages(),
	})
}

// postSystemDebug switches debug logging on for the comma separated
// packages in "enable" and back to INFO for those in "disable".
func postSystemDebug(w http.ResponseWriter, r *http.Request) {
	known := make(map[string]bool)
	for _, p := range slogutil.Packages() {
		known[p.Name] = true
	}
	q := r.URL.Query()
	changes := make(map[string]slog.Level)
	params := []struct {
		name  string
		level slog.Level
	}{
		{"disable", slog.LevelInfo},
		{"enable", slog.LevelDebug},
	}
	for _, p := range params {
		for _, pkg := range strings.Split(q.Get(p.name), ",") {
			if pkg == "" {
				continue
			}
			if !known[pkg] {
				http.Error(w, fmt.Sprintf("unknown package %q", pkg), http.StatusBadRequest)
				return
			}
			changes[pkg] = p.level
		}
	}
	for pkg, level := range changes {
		slogutil.SetPackageLevel(pkg, level)
	}
	getSystemDebug(w, r)
}

// postProbe sends a Probe and returns what is already known to match it.
// Matches arriving later show up in /rest/services.
func (s *Service) postProbe(w http.ResponseWriter, r *http.Request) {
	var q query
	if err := decodeJSON(r, &q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	types, err := q.qnames()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.disco.Probe(r.Context(), types, q.Scopes, q.MatchBy); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	sendJSON(w, fromDescriptions(s.disco.Lookup(types, q.Scopes, q.MatchBy)))
}

func (s *Service) postLocal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		query
		EndpointID string   `json:"endpointID"`
		XAddrs     []string `json:"xAddrs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	types, err := req.qnames()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	desc := directory.Description{
		EndpointID: req.EndpointID,
		Types:      types,
		Scopes:     req.Scopes,
		MatchBy:    req.MatchBy,
		XAddrs:     req.XAddrs,
	}
	if desc.EndpointID == "" {
		desc.EndpointID = protocol.NewEndpointAddress()
	}
	stored, err := s.disco.Publish(r.Context(), desc)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	sendJSON(w, fromDescriptions([]directory.Description{stored})[0])
}

func (s *Service) deleteLocal(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if err := s.disco.Unpublish(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) postProxy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var err error
	if req.Enabled {
		err = s.disco.EnableProxyMode(r.Context())
	} else {
		err = s.disco.DisableProxyMode(r.Context())
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.getProxy(w, r)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, directory.ErrNoEndpoint):
		return http.StatusBadRequest
	case errors.Is(err, discover.ErrNoProxyAddress):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func sendJSON(w http.ResponseWriter, jsonObject any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	bs, err := json.MarshalIndent(jsonObject, "", "  ")
	if err != nil {
		bs, _ = json.Marshal(map[string]string{"error": err.Error()})
		http.Error(w, string(bs), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s\n", bs)
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(bs []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(bs)
	w.written += n
	return n, err
}

func debugMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		h.ServeHTTP(sw, r)
		slog.Debug("HTTP request", "method", r.Method, "url", r.URL.String(), "status", sw.status, "bytes", sw.written, "duration", time.Since(t0))
	})
}

type stringer string

func (s stringer) String() string { return string(s) }
