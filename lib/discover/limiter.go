// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"net/netip"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const limiterCacheSize = 10240

// replyLimiter limits the replies we send to each source address. A nil
// replyLimiter allows everything.
type replyLimiter struct {
	avg   rate.Limit
	burst int
	clock clock.Clock
	cache *lru.Cache[netip.Addr, *rate.Limiter]
}

// newReplyLimiter returns a limiter allowing perTenSeconds replies per ten
// seconds per source, or nil when perTenSeconds is zero.
func newReplyLimiter(perTenSeconds, burst int, clk clock.Clock) *replyLimiter {
	if perTenSeconds <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	c, _ := lru.New[netip.Addr, *rate.Limiter](limiterCacheSize)
	return &replyLimiter{
		avg:   rate.Limit(perTenSeconds) / 10,
		burst: burst,
		clock: clk,
		cache: c,
	}
}

func (l *replyLimiter) allow(addr netip.Addr) bool {
	if l == nil {
		return true
	}
	lim, ok := l.cache.Get(addr)
	if !ok {
		lim = rate.NewLimiter(l.avg, l.burst)
		l.cache.Add(addr, lim)
	}
	return lim.AllowN(l.clock.Now(), 1)
}
