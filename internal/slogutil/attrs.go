// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"fmt"
	"log/slog"
	"net/netip"
)

// Error returns an attribute for the given error, under the key "error".
// A nil error gives an empty attribute, which is not printed.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Address returns an attribute for a listening or configured address.
func Address(addr fmt.Stringer) slog.Attr {
	if addr == nil {
		return slog.Attr{}
	}
	return slog.String("address", addr.String())
}

// Peer is the remote side of a datagram.
func Peer(addr netip.AddrPort) slog.Attr {
	if !addr.IsValid() {
		return slog.Attr{}
	}
	return slog.String("peer", addr.String())
}

// Endpoint is a WS-Discovery endpoint address, usually a urn:uuid.
func Endpoint(id string) slog.Attr {
	return slog.String("endpoint", id)
}

func MessageID(id string) slog.Attr {
	return slog.String("msgID", id)
}

func Action(a fmt.Stringer) slog.Attr {
	return slog.String("action", a.String())
}
