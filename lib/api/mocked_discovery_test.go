// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"context"
	"sync"

	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/protocol"
)

type probeCall struct {
	Types   []protocol.QName
	Scopes  []string
	MatchBy string
}

type mockedDiscovery struct {
	mut        sync.Mutex
	all        []directory.Description
	local      []directory.Description
	probes     []probeCall
	proxy      discover.ProxyStatus
	proxyErr   error
	removed    []string
	notRunning bool
}

func (m *mockedDiscovery) AllServices() []directory.Description {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.all
}

func (m *mockedDiscovery) LocalServices() []directory.Description {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.local
}

func (m *mockedDiscovery) Lookup(types []protocol.QName, _ []string, _ string) []directory.Description {
	m.mut.Lock()
	defer m.mut.Unlock()
	var res []directory.Description
	for _, d := range m.all {
		if d.HasTypes(types) {
			res = append(res, d)
		}
	}
	return res
}

func (m *mockedDiscovery) Probe(_ context.Context, types []protocol.QName, scopes []string, matchBy string) error {
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.notRunning {
		return discover.ErrNotRunning
	}
	m.probes = append(m.probes, probeCall{types, scopes, matchBy})
	return nil
}

func (m *mockedDiscovery) Publish(_ context.Context, desc directory.Description) (directory.Description, error) {
	m.mut.Lock()
	defer m.mut.Unlock()
	if desc.EndpointID == "" {
		return directory.Description{}, directory.ErrNoEndpoint
	}
	desc.MetadataVersion = 1
	m.local = append(m.local, desc)
	return desc, nil
}

func (m *mockedDiscovery) Unpublish(_ context.Context, id string) error {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.removed = append(m.removed, id)
	return nil
}

func (m *mockedDiscovery) ProxyStatus(context.Context) (discover.ProxyStatus, error) {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.proxy, nil
}

func (m *mockedDiscovery) EnableProxyMode(context.Context) error {
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.proxyErr != nil {
		return m.proxyErr
	}
	m.proxy.IsProxy = true
	return nil
}

func (m *mockedDiscovery) DisableProxyMode(context.Context) error {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.proxy.IsProxy = false
	return nil
}
