// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the daemon options: defaults, YAML file loading,
// WSDD_* environment overrides and validation.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wsdd/wsdd/lib/compress"
	"github.com/wsdd/wsdd/lib/directory"
	"github.com/wsdd/wsdd/lib/discover"
	"github.com/wsdd/wsdd/lib/protocol"
	"github.com/wsdd/wsdd/lib/scope"
	"github.com/wsdd/wsdd/lib/soapudp"
	"github.com/wsdd/wsdd/lib/transport"
)

const envPrefix = "WSDD_"

var ErrInvalid = errors.New("invalid configuration")

type Options struct {
	MulticastAddress string `yaml:"multicast_address"`
	MulticastPort    int    `yaml:"multicast_port"`
	MulticastTTL     int    `yaml:"multicast_ttl"`
	// Interface restricts multicast to one network interface.
	Interface       string `yaml:"interface"`
	ProtocolVersion string `yaml:"protocol_version"`
	// DefaultMatchBy names the scope rule used when a description or
	// Probe has none: exact, case-insensitive, rfc2396, uuid or none.
	DefaultMatchBy string `yaml:"default_match_by"`
	Codec          string `yaml:"codec"`

	MulticastRepeats int           `yaml:"multicast_repeats"`
	UnicastRepeats   int           `yaml:"unicast_repeats"`
	MinDelay         time.Duration `yaml:"min_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	UpperDelay       time.Duration `yaml:"upper_delay"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	RecentMessages  int           `yaml:"recent_messages"`
	ResolveThrottle time.Duration `yaml:"resolve_throttle"`
	// ReplyRateLimit is in replies per source per ten seconds; a negative
	// value disables limiting.
	ReplyRateLimit int `yaml:"reply_rate_limit"`
	ReplyBurst     int `yaml:"reply_burst"`

	Proxy      bool   `yaml:"proxy"`
	APIAddress string `yaml:"api_address"`
	LogLevel   string `yaml:"log_level"`

	Services []ServiceOptions `yaml:"services"`
}

// ServiceOptions describes a service published at startup. Types are in
// "{namespace}local" notation.
type ServiceOptions struct {
	EndpointID string   `yaml:"endpoint_id"`
	Types      []string `yaml:"types"`
	Scopes     []string `yaml:"scopes"`
	MatchBy    string   `yaml:"match_by"`
	XAddrs     []string `yaml:"xaddrs"`
}

// Default returns options with every field at its default.
func Default() *Options {
	var o Options
	o.SetDefaults()
	return &o
}

// Load reads a YAML file, fills in defaults and applies environment
// overrides. The result is not validated.
func Load(path string) (*Options, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var o Options
	if err := yaml.Unmarshal(bs, &o); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	o.SetDefaults()
	if err := o.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetDefaults fills in zero valued fields.
func (o *Options) SetDefaults() {
	sender := soapudp.DefaultConfig()
	engine := discover.DefaultConfig()

	if o.MulticastAddress == "" {
		o.MulticastAddress = transport.DefaultMulticastGroup
	}
	if o.MulticastPort == 0 {
		o.MulticastPort = transport.DefaultPort
	}
	if o.MulticastTTL == 0 {
		o.MulticastTTL = 1
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = engine.Profile.Name
	}
	if o.DefaultMatchBy == "" {
		o.DefaultMatchBy = string(engine.Profile.DefaultMatchBy)
	}
	if o.Codec == "" {
		o.Codec = "none"
	}
	if o.MulticastRepeats == 0 {
		o.MulticastRepeats = sender.MulticastRepeats
	}
	if o.UnicastRepeats == 0 {
		o.UnicastRepeats = sender.UnicastRepeats
	}
	if o.MinDelay == 0 {
		o.MinDelay = sender.MinDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = sender.MaxDelay
	}
	if o.UpperDelay == 0 {
		o.UpperDelay = sender.UpperDelay
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = engine.ReadTimeout
	}
	if o.RecentMessages == 0 {
		o.RecentMessages = engine.RecentMessages
	}
	if o.ResolveThrottle == 0 {
		o.ResolveThrottle = engine.ResolveThrottle
	}
	if o.ReplyRateLimit == 0 {
		o.ReplyRateLimit = engine.ReplyRateLimit
	}
	if o.ReplyBurst == 0 {
		o.ReplyBurst = engine.ReplyBurst
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
}

// ApplyEnvOverrides sets fields from WSDD_* environment variables, for
// example WSDD_MULTICAST_PORT=3703 or WSDD_MIN_DELAY=100ms.
func (o *Options) ApplyEnvOverrides() error {
	strs := map[string]*string{
		"MULTICAST_ADDRESS": &o.MulticastAddress,
		"INTERFACE":         &o.Interface,
		"PROTOCOL_VERSION":  &o.ProtocolVersion,
		"DEFAULT_MATCH_BY":  &o.DefaultMatchBy,
		"CODEC":             &o.Codec,
		"API_ADDRESS":       &o.APIAddress,
		"LOG_LEVEL":         &o.LogLevel,
	}
	ints := map[string]*int{
		"MULTICAST_PORT":    &o.MulticastPort,
		"MULTICAST_TTL":     &o.MulticastTTL,
		"MULTICAST_REPEATS": &o.MulticastRepeats,
		"UNICAST_REPEATS":   &o.UnicastRepeats,
		"RECENT_MESSAGES":   &o.RecentMessages,
		"REPLY_RATE_LIMIT":  &o.ReplyRateLimit,
		"REPLY_BURST":       &o.ReplyBurst,
	}
	durs := map[string]*time.Duration{
		"MIN_DELAY":        &o.MinDelay,
		"MAX_DELAY":        &o.MaxDelay,
		"UPPER_DELAY":      &o.UpperDelay,
		"READ_TIMEOUT":     &o.ReadTimeout,
		"RESOLVE_THROTTLE": &o.ResolveThrottle,
	}

	for name, p := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*p = v
		}
	}
	for name, p := range ints {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*p = n
		}
	}
	for name, p := range durs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*p = d
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "PROXY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPROXY: %w", envPrefix, err)
		}
		o.Proxy = b
	}
	return nil
}

// Validate checks the options for consistency. Defaults should have been
// applied first.
func (o *Options) Validate() error {
	var errs []error
	if _, err := o.MulticastGroup(); err != nil {
		errs = append(errs, err)
	}
	if o.MulticastTTL < 1 || o.MulticastTTL > 255 {
		errs = append(errs, fmt.Errorf("multicast TTL %d out of range", o.MulticastTTL))
	}
	if _, ok := protocol.ProfileByName(o.ProtocolVersion); !ok {
		errs = append(errs, fmt.Errorf("unknown protocol version %q", o.ProtocolVersion))
	}
	if _, ok := scope.Builtin(scope.Rule(o.DefaultMatchBy)); !ok {
		errs = append(errs, fmt.Errorf("unknown scope rule %q", o.DefaultMatchBy))
	}
	if _, err := compress.ByName(o.Codec); err != nil {
		errs = append(errs, err)
	}
	if err := o.SenderConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.ReadTimeout <= 0 || o.ResolveThrottle <= 0 {
		errs = append(errs, errors.New("read timeout and resolve throttle must be positive"))
	}
	if o.RecentMessages <= 0 {
		errs = append(errs, fmt.Errorf("recent message capacity %d must be positive", o.RecentMessages))
	}
	if _, err := o.Descriptions(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// MulticastGroup returns the multicast address and port.
func (o *Options) MulticastGroup() (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(o.MulticastAddress)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("multicast address: %w", err)
	}
	if !addr.Is4() || !addr.IsMulticast() {
		return netip.AddrPort{}, fmt.Errorf("multicast address %s is not an IPv4 multicast group", addr)
	}
	if o.MulticastPort <= 0 || o.MulticastPort > 65535 {
		return netip.AddrPort{}, fmt.Errorf("multicast port %d out of range", o.MulticastPort)
	}
	return netip.AddrPortFrom(addr, uint16(o.MulticastPort)), nil
}

func (o *Options) Profile() *protocol.Profile {
	if p, ok := protocol.ProfileByName(o.ProtocolVersion); ok {
		return p
	}
	return protocol.Version11
}

func (o *Options) TransportOptions() (transport.Options, error) {
	group, err := o.MulticastGroup()
	if err != nil {
		return transport.Options{}, err
	}
	plugin, err := compress.ByName(o.Codec)
	if err != nil {
		return transport.Options{}, err
	}
	return transport.Options{
		Group:     group,
		Interface: o.Interface,
		Plugin:    plugin,
		TTL:       o.MulticastTTL,
	}, nil
}

func (o *Options) SenderConfig() soapudp.Config {
	return soapudp.Config{
		MulticastRepeats: o.MulticastRepeats,
		UnicastRepeats:   o.UnicastRepeats,
		MinDelay:         o.MinDelay,
		MaxDelay:         o.MaxDelay,
		UpperDelay:       o.UpperDelay,
	}
}

func (o *Options) DiscoverConfig() discover.Config {
	limit := o.ReplyRateLimit
	if limit < 0 {
		limit = 0
	}
	return discover.Config{
		Profile:         o.Profile(),
		DefaultMatchBy:  scope.Rule(o.DefaultMatchBy),
		ReadTimeout:     o.ReadTimeout,
		RecentMessages:  o.RecentMessages,
		ResolveThrottle: o.ResolveThrottle,
		ReplyRateLimit:  limit,
		ReplyBurst:      o.ReplyBurst,
	}
}

// Descriptions converts the configured services. A service without an
// endpoint id gets a fresh urn:uuid address. A MatchBy may be given as a
// rule name, which is translated to the profile's URI.
func (o *Options) Descriptions() ([]directory.Description, error) {
	profile := o.Profile()
	descs := make([]directory.Description, 0, len(o.Services))
	for i, svc := range o.Services {
		desc := directory.Description{
			EndpointID: svc.EndpointID,
			Scopes:     svc.Scopes,
			MatchBy:    svc.MatchBy,
			XAddrs:     svc.XAddrs,
		}
		if desc.EndpointID == "" {
			desc.EndpointID = protocol.NewEndpointAddress()
		}
		if uri, ok := profile.MatchBy[scope.Rule(svc.MatchBy)]; ok {
			desc.MatchBy = uri
		}
		for _, s := range svc.Types {
			qn, err := protocol.ParseQName(s)
			if err != nil {
				return nil, fmt.Errorf("service %d: type %q: %w", i, s, err)
			}
			desc.Types = append(desc.Types, qn)
		}
		for _, x := range svc.XAddrs {
			if strings.TrimSpace(x) == "" {
				return nil, fmt.Errorf("service %d: empty transport address", i)
			}
		}
		descs = append(descs, desc)
	}
	return descs, nil
}
