// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"fmt"
	"strings"
)

// A QName is a namespace qualified name, as used for service types.
type QName struct {
	Space string
	Local string
}

// String returns the QName in Clark notation, "{space}local", or just the
// local part when there is no namespace.
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

func (q QName) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *QName) UnmarshalText(bs []byte) error {
	v, err := ParseQName(string(bs))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// ParseQName parses a QName in Clark notation. A string without braces is
// taken as a local name without namespace.
func ParseQName(s string) (QName, error) {
	if !strings.HasPrefix(s, "{") {
		if s == "" {
			return QName{}, fmt.Errorf("%w: empty qualified name", ErrMalformed)
		}
		return QName{Local: s}, nil
	}
	end := strings.IndexByte(s, '}')
	if end < 0 || end == len(s)-1 {
		return QName{}, fmt.Errorf("%w: bad qualified name %q", ErrMalformed, s)
	}
	return QName{Space: s[1:end], Local: s[end+1:]}, nil
}
