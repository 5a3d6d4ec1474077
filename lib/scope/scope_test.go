// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package scope

import "testing"

func TestPrefix(t *testing.T) {
	cases := []struct {
		candidate, probe string
		match            bool
	}{
		{"http://example.com/a/b", "http://example.com/a", true},
		{"http://example.com/a/b", "http://example.com/a/", true},
		{"http://example.com/a/b", "http://example.com/a/b", true},
		{"http://example.com/a/b", "http://example.com", true},
		{"http://example.com/a/b", "http://example.org/a", false},
		{"http://example.com/a/b", "http://example.com/a/b/c", false},
		{"http://example.com/abc", "http://example.com/ab", false},
		{"http://example.com/a/b", "http://example.com/A", false},
		{"HTTP://EXAMPLE.COM/a/b", "http://example.com/a", true},
		{"http://example.com/a/b", "https://example.com/a", false},
		{"http://example.com:8080/a", "http://example.com/a", false},
		{"http://example.com/a/../b", "http://example.com/a", false},
		{"urn:example:scope", "urn:example:scope", true},
		{"urn:example:scope:sub", "urn:example:scope", false},
		{"%%%", "http://example.com", false},
	}
	for _, tc := range cases {
		if got := Prefix(tc.candidate, tc.probe); got != tc.match {
			t.Errorf("Prefix(%q, %q) = %v, expected %v", tc.candidate, tc.probe, got, tc.match)
		}
	}
}

func TestUUID(t *testing.T) {
	const id = "urn:uuid:7f16d1a4-3e4d-4f3f-8f2b-3b5c6d7e8f90"
	cases := []struct {
		candidate, probe string
		match            bool
	}{
		{id, id, true},
		{id, "URN:UUID:7F16D1A4-3E4D-4F3F-8F2B-3B5C6D7E8F90", true},
		{id, "7f16d1a4-3e4d-4f3f-8f2b-3b5c6d7e8f90", true},
		{id, "urn:uuid:7f16d1a4-3e4d-4f3f-8f2b-3b5c6d7e8f91", false},
		{id, "http://example.com/", false},
	}
	for _, tc := range cases {
		if got := UUID(tc.candidate, tc.probe); got != tc.match {
			t.Errorf("UUID(%q, %q) = %v, expected %v", tc.candidate, tc.probe, got, tc.match)
		}
	}
}

func TestExactAndCaseInsensitive(t *testing.T) {
	if !Exact("urn:a", "urn:a") || Exact("urn:a", "URN:A") {
		t.Error("Exact compares byte for byte")
	}
	if !CaseInsensitive("urn:a", "URN:A") || CaseInsensitive("urn:a", "urn:b") {
		t.Error("CaseInsensitive ignores case only")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterRule("urn:test:prefix", RulePrefix); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterRule("urn:test:bogus", Rule("bogus")); err != ErrUnknownMatchBy {
		t.Errorf("unexpected error %v for unknown rule", err)
	}

	m, ok := r.Lookup("urn:test:prefix")
	if !ok {
		t.Fatal("registered rule not found")
	}
	if !m("http://example.com/a/b", "http://example.com/a") {
		t.Error("registered matcher does not behave like Prefix")
	}
	if rule, _ := r.Rule("urn:test:prefix"); rule != RulePrefix {
		t.Errorf("unexpected rule %q", rule)
	}

	if _, ok := r.Lookup("urn:test:unknown"); ok {
		t.Error("unregistered URI should not resolve")
	}

	r.Register("urn:test:custom", func(c, p string) bool { return len(c) == len(p) })
	m, ok = r.Lookup("urn:test:custom")
	if !ok || !m("abc", "xyz") {
		t.Error("custom matcher not registered")
	}
	if _, ok := r.Rule("urn:test:custom"); ok {
		t.Error("custom matcher should not report a built in rule")
	}
}
