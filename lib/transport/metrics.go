// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	channelMulticast = "multicast"
	channelUnicast   = "unicast"

	dropDecode    = "decode"
	dropRecvQueue = "recv_queue"
	dropSendQueue = "send_queue"
	dropSendError = "send_error"
)

var (
	metricDatagramsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "transport",
		Name:      "datagrams_received_total",
		Help:      "Total number of datagrams received, per channel",
	}, []string{"channel"})
	metricBytesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "transport",
		Name:      "received_bytes_total",
		Help:      "Total number of bytes received on the wire, per channel",
	}, []string{"channel"})
	metricDatagramsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "transport",
		Name:      "datagrams_sent_total",
		Help:      "Total number of datagrams sent, per channel",
	}, []string{"channel"})
	metricBytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "transport",
		Name:      "sent_bytes_total",
		Help:      "Total number of bytes sent on the wire, per channel",
	}, []string{"channel"})
	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "transport",
		Name:      "dropped_datagrams_total",
		Help:      "Total number of datagrams dropped, per reason",
	}, []string{"reason"})
)
