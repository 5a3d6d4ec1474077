// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropDecode      = "decode"
	dropOwn         = "own"
	dropDuplicate   = "duplicate"
	dropRateLimited = "rate_limited"
	dropThrottled   = "throttled"
)

var (
	metricReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "discover",
		Name:      "messages_received_total",
		Help:      "Total number of messages handled, per action",
	}, []string{"action"})
	metricSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "discover",
		Name:      "messages_sent_total",
		Help:      "Total number of messages queued for sending, per action",
	}, []string{"action"})
	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "discover",
		Name:      "dropped_total",
		Help:      "Total number of received messages or replies dropped, per reason",
	}, []string{"reason"})
	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "discover",
		Name:      "events_dropped_total",
		Help:      "Total number of events not delivered to slow subscribers",
	})
	metricProxyMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsdd",
		Subsystem: "discover",
		Name:      "proxy_mode",
		Help:      "Whether this node acts as a discovery proxy (1) or not (0)",
	})
	metricUsingProxy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsdd",
		Subsystem: "discover",
		Name:      "using_remote_proxy",
		Help:      "Whether this node directs queries to a remote proxy (1) or not (0)",
	})
)
