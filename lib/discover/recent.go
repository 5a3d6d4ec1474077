// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// messageIDs is a bounded set of message ids. Ids are only ever added
// once, so eviction is in insertion order.
type messageIDs struct {
	cache *lru.Cache[string, struct{}]
}

func newMessageIDs(size int) *messageIDs {
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		// Only happens for non-positive sizes.
		panic(err)
	}
	return &messageIDs{cache: c}
}

func (m *messageIDs) seen(id string) bool {
	return m.cache.Contains(id)
}

func (m *messageIDs) add(id string) {
	if !m.cache.Contains(id) {
		m.cache.Add(id, struct{}{})
	}
}

func (m *messageIDs) len() int {
	return m.cache.Len()
}
