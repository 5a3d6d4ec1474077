// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package svcutil

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func TestNoRestartErr(t *testing.T) {
	if !errors.Is(NoRestartErr(nil), suture.ErrDoNotRestart) {
		t.Error("nil error should become ErrDoNotRestart")
	}

	base := errors.New("engine stopped")
	err := NoRestartErr(base)
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Error("wrapped error should match ErrDoNotRestart")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to the original")
	}
	if err.Error() != base.Error() {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestNoRestartKeepsSupervisorRunning(t *testing.T) {
	sup := suture.New("test", SupervisorSpec(slog.LevelDebug))
	finished := make(chan struct{})
	sup.Add(AsService(func(context.Context) error {
		close(finished)
		return NoRestartErr(errors.New("done for good"))
	}, "once"))
	sup.Add(AsService(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, "forever"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := sup.ServeBackground(ctx)

	<-finished
	select {
	case err := <-errc:
		t.Fatalf("supervisor stopped early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	cancel()
	<-errc
}

func TestAsFatalErr(t *testing.T) {
	base := errors.New("no interfaces")
	ferr := AsFatalErr(base, ExitBindError)
	if ferr.Status != ExitBindError {
		t.Errorf("status %v != %v", ferr.Status, ExitBindError)
	}
	if again := AsFatalErr(ferr, ExitError); again != ferr {
		t.Error("an existing FatalErr should not be wrapped again")
	}
	if !errors.Is(ferr, suture.ErrTerminateSupervisorTree) {
		t.Error("FatalErr should terminate the supervisor tree")
	}
	if ExitBindError.String() != "bind error" {
		t.Errorf("unexpected status name %q", ExitBindError.String())
	}
}

func TestAsServiceRecordsError(t *testing.T) {
	want := errors.New("boom")
	svc := AsService(func(context.Context) error { return want }, "transport.UDP/unicast")
	if err := svc.Serve(context.Background()); err != want {
		t.Fatalf("unexpected serve result %v", err)
	}
	if svc.Error() != want {
		t.Errorf("Error() = %v, want %v", svc.Error(), want)
	}
	if svc.String() != "transport.UDP/unicast" {
		t.Errorf("unexpected name %q", svc.String())
	}
}
