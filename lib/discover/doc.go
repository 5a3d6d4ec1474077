// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

/*
Package discover implements the WS-Discovery dispatch engine.

Announcements
-------------

A node announces each service it publishes with a multicast Hello, and
says Bye when the service is withdrawn or the node shuts down. Every
announcement is repeated by the reliability layer (see lib/soapudp), so a
receiver sees the same message id several times; the engine remembers the
last thousand or so ids and handles each message once.

Queries
-------

A Probe names the types a service must implement and the scopes it must
be in. Nodes reply by unicast with a ProbeMatches listing their matching
services, or stay silent when nothing matches. A Resolve asks for the
current addresses (XAddrs) of a single endpoint and is answered with a
ResolveMatches by the node publishing it.

Services learned from Hello, ProbeMatches and ResolveMatches go into the
directory of all known services. A service learned without addresses is
resolved, at most once per throttle interval.

Proxies
-------

A node in proxy mode answers multicast Probes and Resolves with a Hello
carrying the Suppression relationship, followed by the reply itself,
matched against everything it knows. A proxy always replies to a Probe,
even with zero matches. Nodes receiving a suppression Hello send their
further Probes and Resolves directly to the proxy until it says Bye.
*/
package discover
