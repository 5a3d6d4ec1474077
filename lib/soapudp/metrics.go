// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package soapudp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "soapudp",
		Name:      "transmissions_total",
		Help:      "Total number of datagram transmissions, including repeats, per channel",
	}, []string{"channel"})
	metricRetransmissionsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "soapudp",
		Name:      "retransmissions_scheduled_total",
		Help:      "Total number of repeat transmissions scheduled, per channel",
	}, []string{"channel"})
	metricSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "soapudp",
		Name:      "send_errors_total",
		Help:      "Total number of failed transmissions, per channel",
	}, []string{"channel"})
	metricQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsdd",
		Subsystem: "soapudp",
		Name:      "pending_datagrams",
		Help:      "Number of datagrams with transmissions outstanding",
	})
)
