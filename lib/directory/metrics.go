// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricServices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wsdd",
		Subsystem: "directory",
		Name:      "services",
		Help:      "Number of services currently held, per directory",
	}, []string{"directory"})
	metricStores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsdd",
		Subsystem: "directory",
		Name:      "stores_total",
		Help:      "Total number of store operations, per directory and result",
	}, []string{"directory", "result"})
)
