// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil connects suture supervision to the wsdd command: how a
// service says it is done for good, how a failure ends the process, and
// how supervisors log.
package svcutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

// ServiceTimeout is how long a supervisor waits for a service to return
// after its context is cancelled.
const ServiceTimeout = 10 * time.Second

type ExitStatus int

const (
	ExitSuccess   ExitStatus = 0
	ExitError     ExitStatus = 1
	ExitBindError ExitStatus = 2
	ExitConfig    ExitStatus = 3
)

func (s ExitStatus) AsInt() int {
	return int(s)
}

func (s ExitStatus) String() string {
	switch s {
	case ExitSuccess:
		return "success"
	case ExitError:
		return "error"
	case ExitBindError:
		return "bind error"
	case ExitConfig:
		return "configuration error"
	default:
		return fmt.Sprintf("ExitStatus(%d)", int(s))
	}
}

// A FatalErr stops the whole supervisor tree; the command exits with
// Status.
type FatalErr struct {
	Err    error
	Status ExitStatus
}

// AsFatalErr wraps err with an exit status, unless it already carries
// one.
func AsFatalErr(err error, status ExitStatus) *FatalErr {
	var ferr *FatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	return &FatalErr{Err: err, Status: status}
}

func (e *FatalErr) Error() string {
	return e.Err.Error()
}

func (e *FatalErr) Unwrap() error {
	return e.Err
}

func (e *FatalErr) Is(target error) bool {
	return target == suture.ErrTerminateSupervisorTree
}

// NoRestartErr marks err as the final result of a service: the supervisor
// drops the service and keeps the rest of the tree running. A nil err
// means the service finished normally.
func NoRestartErr(err error) error {
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return &noRestartErr{err}
}

type noRestartErr struct {
	err error
}

func (e *noRestartErr) Error() string {
	return e.err.Error()
}

func (e *noRestartErr) Unwrap() error {
	return e.err
}

func (e *noRestartErr) Is(target error) bool {
	return target == suture.ErrDoNotRestart
}

// ServiceWithError is a supervised function that remembers how it last
// returned.
type ServiceWithError interface {
	suture.Service
	fmt.Stringer
	Error() error
}

// AsService turns fn into a suture service named name.
func AsService(fn func(ctx context.Context) error, name string) ServiceWithError {
	return &funcService{name: name, fn: fn}
}

type funcService struct {
	name string
	fn   func(ctx context.Context) error

	mut sync.Mutex
	err error
}

func (s *funcService) Serve(ctx context.Context) error {
	s.setError(nil)
	err := s.fn(ctx)
	s.setError(err)
	return err
}

func (s *funcService) setError(err error) {
	s.mut.Lock()
	s.err = err
	s.mut.Unlock()
}

func (s *funcService) Error() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.err
}

func (s *funcService) String() string {
	return s.name
}

// SupervisorSpec returns the spec used for every supervisor, logging
// supervision events at the given level.
func SupervisorSpec(level slog.Level) suture.Spec {
	return suture.Spec{
		EventHook: func(e suture.Event) {
			slog.Log(context.Background(), level, "Supervisor event", slog.String("event", e.String()))
		},
		Timeout:           ServiceTimeout,
		PassThroughPanics: true,
	}
}
