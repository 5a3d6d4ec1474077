// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A Codec turns messages into datagram payloads and back.
type Codec interface {
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
}

// SOAPCodec encodes messages as SOAP 1.2 envelopes with WS-Addressing
// headers. Unmarshal accepts any of the configured profiles and records
// the one that matched in Message.Profile.
type SOAPCodec struct {
	def      *Profile
	profiles []*Profile
}

// NewSOAPCodec returns a codec that marshals with def when a message has
// no profile set, and understands all known profiles when unmarshalling.
func NewSOAPCodec(def *Profile) *SOAPCodec {
	if def == nil {
		def = Version11
	}
	return &SOAPCodec{def: def, profiles: Profiles()}
}

const (
	prefixSOAP = "soap"
	prefixWSA  = "wsa"
	prefixWSD  = "d"
)

func (c *SOAPCodec) Marshal(msg *Message) ([]byte, error) {
	if msg.Body == nil {
		return nil, fmt.Errorf("%w: message has no body", ErrMalformed)
	}
	p := msg.Profile
	if p == nil {
		p = c.def
	}

	w := &xmlWriter{}
	w.raw(`<?xml version="1.0" encoding="UTF-8"?>`)
	w.raw(`<soap:Envelope xmlns:soap="`)
	w.attr(SOAPEnvelopeNS)
	w.raw(`" xmlns:wsa="`)
	w.attr(p.AddressingNS)
	w.raw(`" xmlns:d="`)
	w.attr(p.DiscoveryNS)
	w.raw(`">`)

	w.raw("<soap:Header>")
	w.element(prefixWSA, "Action", p.ActionURI(msg.Action()))
	w.element(prefixWSA, "MessageID", msg.MessageID)
	if msg.RelatesTo != "" {
		w.raw("<wsa:RelatesTo")
		if msg.RelationshipType != "" {
			w.raw(` RelationshipType="`)
			w.attr(msg.RelationshipType)
			w.raw(`"`)
		}
		w.raw(">")
		w.text(msg.RelatesTo)
		w.raw("</wsa:RelatesTo>")
	}
	if msg.To != "" {
		w.element(prefixWSA, "To", msg.To)
	}
	if msg.ReplyTo != "" {
		w.raw("<wsa:ReplyTo>")
		w.element(prefixWSA, "Address", msg.ReplyTo)
		w.raw("</wsa:ReplyTo>")
	}
	if seq := msg.AppSequence; seq != nil {
		w.raw(`<d:AppSequence InstanceId="`)
		w.raw(strconv.FormatUint(seq.InstanceID, 10))
		w.raw(`"`)
		if seq.SequenceID != "" {
			w.raw(` SequenceId="`)
			w.attr(seq.SequenceID)
			w.raw(`"`)
		}
		w.raw(` MessageNumber="`)
		w.raw(strconv.FormatUint(seq.MessageNumber, 10))
		w.raw(`"/>`)
	}
	w.raw("</soap:Header>")

	w.raw("<soap:Body>")
	switch b := msg.Body.(type) {
	case *Hello:
		w.raw("<d:Hello>")
		w.endpoint(&b.Endpoint, true)
		w.raw("</d:Hello>")
	case *Bye:
		w.raw("<d:Bye>")
		w.endpoint(&b.Endpoint, false)
		w.raw("</d:Bye>")
	case *Probe:
		w.raw("<d:Probe>")
		w.types(b.Types)
		w.scopes(b.Scopes, b.MatchBy)
		w.raw("</d:Probe>")
	case *ProbeMatches:
		w.raw("<d:ProbeMatches>")
		for i := range b.Matches {
			w.raw("<d:ProbeMatch>")
			w.endpoint(&b.Matches[i], true)
			w.raw("</d:ProbeMatch>")
		}
		w.raw("</d:ProbeMatches>")
	case *Resolve:
		w.raw("<d:Resolve>")
		w.epr(b.Address)
		w.raw("</d:Resolve>")
	case *ResolveMatches:
		w.raw("<d:ResolveMatches>")
		if b.Match != nil {
			w.raw("<d:ResolveMatch>")
			w.endpoint(b.Match, true)
			w.raw("</d:ResolveMatch>")
		}
		w.raw("</d:ResolveMatches>")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, msg.Body)
	}
	w.raw("</soap:Body>")
	w.raw("</soap:Envelope>")

	return w.buf.Bytes(), nil
}

type xmlWriter struct {
	buf bytes.Buffer
}

func (w *xmlWriter) raw(s string) {
	w.buf.WriteString(s)
}

func (w *xmlWriter) text(s string) {
	_ = xml.EscapeText(&w.buf, []byte(s))
}

// attr escapes s for use inside a double quoted attribute value.
// xml.EscapeText escapes quotes as well, which makes it usable here.
func (w *xmlWriter) attr(s string) {
	w.text(s)
}

func (w *xmlWriter) element(prefix, local, value string) {
	w.raw("<" + prefix + ":" + local + ">")
	w.text(value)
	w.raw("</" + prefix + ":" + local + ">")
}

func (w *xmlWriter) epr(address string) {
	w.raw("<wsa:EndpointReference>")
	w.element(prefixWSA, "Address", address)
	w.raw("</wsa:EndpointReference>")
}

// types writes the Types element, declaring a prefix for every distinct
// namespace on the element itself.
func (w *xmlWriter) types(types []QName) {
	if len(types) == 0 {
		return
	}
	prefixes := make(map[string]string)
	var decls []string
	for _, t := range types {
		if t.Space == "" {
			continue
		}
		if _, ok := prefixes[t.Space]; !ok {
			p := "t" + strconv.Itoa(len(prefixes))
			prefixes[t.Space] = p
			decls = append(decls, p, t.Space)
		}
	}
	w.raw("<d:Types")
	for i := 0; i < len(decls); i += 2 {
		w.raw(" xmlns:" + decls[i] + `="`)
		w.attr(decls[i+1])
		w.raw(`"`)
	}
	w.raw(">")
	for i, t := range types {
		if i > 0 {
			w.raw(" ")
		}
		if p, ok := prefixes[t.Space]; ok {
			w.raw(p + ":")
		}
		w.text(t.Local)
	}
	w.raw("</d:Types>")
}

func (w *xmlWriter) scopes(scopes []string, matchBy string) {
	if len(scopes) == 0 {
		return
	}
	w.raw("<d:Scopes")
	if matchBy != "" {
		w.raw(` MatchBy="`)
		w.attr(matchBy)
		w.raw(`"`)
	}
	w.raw(">")
	w.text(strings.Join(scopes, " "))
	w.raw("</d:Scopes>")
}

func (w *xmlWriter) endpoint(e *Endpoint, withVersion bool) {
	w.epr(e.Address)
	w.types(e.Types)
	w.scopes(e.Scopes, e.MatchBy)
	if len(e.XAddrs) > 0 {
		w.element(prefixWSD, "XAddrs", strings.Join(e.XAddrs, " "))
	}
	if withVersion {
		w.element(prefixWSD, "MetadataVersion", strconv.FormatUint(e.MetadataVersion, 10))
	}
}

// node is an element of the parsed envelope. Namespaces are resolved by
// encoding/xml for element names; ns holds the prefix bindings in scope so
// that QName valued text (Types) can be resolved too.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	text     strings.Builder
	children []*node
	ns       map[string]string
}

func (n *node) child(local string) *node {
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

func (n *node) childText(local string) string {
	if c := n.child(local); c != nil {
		return strings.TrimSpace(c.text.String())
	}
	return ""
}

func (n *node) attr(local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local && a.Name.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

const maxDepth = 32

func parseTree(data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []*node
	var root *node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) >= maxDepth {
				return nil, fmt.Errorf("%w: nesting too deep", ErrMalformed)
			}
			n := &node{name: t.Name, attrs: t.Copy().Attr, ns: make(map[string]string)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				for k, v := range parent.ns {
					n.ns[k] = v
				}
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns":
					n.ns[a.Name.Local] = a.Value
				case a.Name.Space == "" && a.Name.Local == "xmlns":
					n.ns[""] = a.Value
				}
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	return root, nil
}

func (c *SOAPCodec) Unmarshal(data []byte) (*Message, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, err
	}
	if root.name.Local != "Envelope" || root.name.Space != SOAPEnvelopeNS {
		return nil, fmt.Errorf("%w: not a SOAP 1.2 envelope", ErrMalformed)
	}
	hdr := root.child("Header")
	body := root.child("Body")
	if hdr == nil || body == nil || len(body.children) == 0 {
		return nil, fmt.Errorf("%w: missing header or body", ErrMalformed)
	}

	actionURI := hdr.childText("Action")
	var (
		profile *Profile
		action  Action
	)
	for _, p := range c.profiles {
		if a, ok := p.ParseAction(actionURI); ok {
			profile, action = p, a
			break
		}
	}
	if profile == nil {
		if strings.TrimSpace(actionURI) == "" {
			return nil, fmt.Errorf("%w: missing action", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %q", ErrNoProfile, actionURI)
	}

	msg := &Message{Profile: profile}
	msg.MessageID = hdr.childText("MessageID")
	if msg.MessageID == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrMalformed)
	}
	if rel := hdr.child("RelatesTo"); rel != nil {
		msg.RelatesTo = strings.TrimSpace(rel.text.String())
		msg.RelationshipType = rel.attr("RelationshipType")
	}
	msg.To = hdr.childText("To")
	if rt := hdr.child("ReplyTo"); rt != nil {
		msg.ReplyTo = rt.childText("Address")
	}
	if seq := hdr.child("AppSequence"); seq != nil {
		inst, err := strconv.ParseUint(seq.attr("InstanceId"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad AppSequence InstanceId: %w", ErrMalformed, err)
		}
		num, err := strconv.ParseUint(seq.attr("MessageNumber"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad AppSequence MessageNumber: %w", ErrMalformed, err)
		}
		msg.AppSequence = &AppSequence{InstanceID: inst, SequenceID: seq.attr("SequenceId"), MessageNumber: num}
	}

	elem := body.children[0]
	if elem.name.Local != action.String() {
		return nil, fmt.Errorf("%w: body %q does not match action %v", ErrMalformed, elem.name.Local, action)
	}

	switch action {
	case ActionHello:
		ep, err := parseEndpoint(elem)
		if err != nil {
			return nil, err
		}
		msg.Body = &Hello{ep}
	case ActionBye:
		ep, err := parseEndpoint(elem)
		if err != nil {
			return nil, err
		}
		msg.Body = &Bye{ep}
	case ActionProbe:
		types, err := parseTypes(elem.child("Types"))
		if err != nil {
			return nil, err
		}
		scopes, matchBy := parseScopes(elem.child("Scopes"))
		msg.Body = &Probe{Types: types, Scopes: scopes, MatchBy: matchBy}
	case ActionProbeMatches:
		pm := &ProbeMatches{}
		for _, m := range elem.children {
			if m.name.Local != "ProbeMatch" {
				continue
			}
			ep, err := parseEndpoint(m)
			if err != nil {
				return nil, err
			}
			pm.Matches = append(pm.Matches, ep)
		}
		msg.Body = pm
	case ActionResolve:
		addr := eprAddress(elem)
		if addr == "" {
			return nil, fmt.Errorf("%w: Resolve without endpoint reference", ErrMalformed)
		}
		msg.Body = &Resolve{Address: addr}
	case ActionResolveMatches:
		rm := &ResolveMatches{}
		if m := elem.child("ResolveMatch"); m != nil {
			ep, err := parseEndpoint(m)
			if err != nil {
				return nil, err
			}
			rm.Match = &ep
		}
		msg.Body = rm
	}
	return msg, nil
}

func eprAddress(n *node) string {
	if epr := n.child("EndpointReference"); epr != nil {
		return epr.childText("Address")
	}
	return ""
}

func parseEndpoint(n *node) (Endpoint, error) {
	ep := Endpoint{Address: eprAddress(n)}
	if ep.Address == "" {
		return Endpoint{}, fmt.Errorf("%w: %s without endpoint reference", ErrMalformed, n.name.Local)
	}
	types, err := parseTypes(n.child("Types"))
	if err != nil {
		return Endpoint{}, err
	}
	ep.Types = types
	ep.Scopes, ep.MatchBy = parseScopes(n.child("Scopes"))
	ep.XAddrs = strings.Fields(n.childText("XAddrs"))
	if v := n.childText("MetadataVersion"); v != "" {
		ep.MetadataVersion, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: bad MetadataVersion: %w", ErrMalformed, err)
		}
	}
	return ep, nil
}

func parseTypes(n *node) ([]QName, error) {
	if n == nil {
		return nil, nil
	}
	var types []QName
	for _, f := range strings.Fields(n.text.String()) {
		prefix, local, ok := strings.Cut(f, ":")
		if !ok {
			types = append(types, QName{Space: n.ns[""], Local: f})
			continue
		}
		space, known := n.ns[prefix]
		if !known {
			return nil, fmt.Errorf("%w: undeclared prefix in type %q", ErrMalformed, f)
		}
		types = append(types, QName{Space: space, Local: local})
	}
	return types, nil
}

func parseScopes(n *node) ([]string, string) {
	if n == nil {
		return nil, ""
	}
	return strings.Fields(n.text.String()), n.attr("MatchBy")
}
