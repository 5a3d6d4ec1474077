// Copyright (C) 2026 The WSDD Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/net/ipv4"

	"github.com/wsdd/wsdd/internal/slogutil"
	"github.com/wsdd/wsdd/lib/compress"
	"github.com/wsdd/wsdd/lib/svcutil"
)

type Options struct {
	// Group is the multicast group address and port.
	Group netip.AddrPort
	// Interface restricts multicast to the named interface. Empty means
	// all multicast capable interfaces.
	Interface string
	// Plugin is applied to every datagram; nil means none.
	Plugin compress.Plugin
	// TTL is the multicast hop limit.
	TTL int
}

type outgoing struct {
	data []byte
	dst  netip.AddrPort
}

// UDP is the network transport. It is a supervisor running a unicast
// socket service (which also does all sending) and a multicast reader.
type UDP struct {
	*suture.Supervisor
	opts   Options
	plugin compress.Plugin
	recv   *recvQueue
	outbox chan outgoing

	mut       sync.Mutex
	localAddr netip.AddrPort

	errorHolder
}

func NewUDP(opts Options) *UDP {
	if !opts.Group.IsValid() {
		opts.Group = DefaultMulticastAddr
	}
	if opts.TTL <= 0 {
		opts.TTL = 1
	}
	plugin := opts.Plugin
	if plugin == nil {
		plugin, _ = compress.ByName("none")
	}

	spec := svcutil.SupervisorSpec(slog.LevelDebug)
	// Socket errors are usually either permanent or take a while to
	// resolve; don't retry too frenetically.
	spec.FailureThreshold = 2
	spec.FailureBackoff = 60 * time.Second

	u := &UDP{
		Supervisor: suture.New("transport.UDP", spec),
		opts:       opts,
		plugin:     plugin,
		recv:       newRecvQueue(),
		outbox:     make(chan outgoing, 16),
	}
	u.Add(svcutil.AsService(u.serveUnicast, u.String()+"/unicast"))
	u.Add(svcutil.AsService(u.serveMulticast, u.String()+"/multicast"))
	return u
}

func (u *UDP) Serve(ctx context.Context) error {
	defer u.recv.close()
	return u.Supervisor.Serve(ctx)
}

func (u *UDP) Send(data []byte, dst netip.AddrPort) error {
	enc, err := u.plugin.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding datagram: %w", err)
	}
	t := time.NewTimer(sendTimeout)
	defer t.Stop()
	select {
	case u.outbox <- outgoing{data: enc, dst: dst}:
		return nil
	case <-u.recv.closed:
		return ErrClosed
	case <-t.C:
		metricDropped.WithLabelValues(dropSendQueue).Inc()
		return errors.New("send queue full")
	}
}

func (u *UDP) Recv(timeout time.Duration) (Datagram, error) {
	return u.recv.get(timeout)
}

func (u *UDP) MulticastAddr() netip.AddrPort {
	return u.opts.Group
}

// LocalAddr returns the address of the unicast socket, with the IP of the
// interface used for multicast. It is invalid until the socket is bound.
func (u *UDP) LocalAddr() netip.AddrPort {
	u.mut.Lock()
	defer u.mut.Unlock()
	return u.localAddr
}

func (u *UDP) String() string {
	return fmt.Sprintf("transport.UDP@%v", u.opts.Group)
}

func (u *UDP) serveUnicast(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		err = fmt.Errorf("listening for unicast: %w", err)
		u.setError(err)
		return svcutil.AsFatalErr(err, svcutil.ExitBindError)
	}
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		conn.Close()
	}()

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastTTL(u.opts.TTL); err != nil {
		slog.DebugContext(ctx, "Failed to set multicast TTL", slogutil.Error(err))
	}
	if err := pconn.SetMulticastLoopback(true); err != nil {
		slog.DebugContext(ctx, "Failed to enable multicast loopback", slogutil.Error(err))
	}
	intfs, err := multicastInterfaces(u.opts.Interface)
	if err == nil && u.opts.Interface != "" && len(intfs) > 0 {
		if err := pconn.SetMulticastInterface(&intfs[0]); err != nil {
			slog.DebugContext(ctx, "Failed to set multicast interface", slogutil.Error(err), slog.String("interface", intfs[0].Name))
		}
	}

	port := conn.LocalAddr().(*net.UDPAddr).Port
	u.mut.Lock()
	if ip, ok := interfaceIPv4(intfs); ok {
		u.localAddr = netip.AddrPortFrom(ip, uint16(port))
	}
	u.mut.Unlock()
	u.setError(nil)
	slog.DebugContext(ctx, "Unicast socket ready", slog.Int("port", port))

	readErr := make(chan error, 1)
	go func() {
		readErr <- u.readLoop(doneCtx, conn, false)
	}()

	for {
		select {
		case pkt := <-u.outbox:
			dst := net.UDPAddrFromAddrPort(pkt.dst)
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, err := pconn.WriteTo(pkt.data, nil, dst)
			_ = conn.SetWriteDeadline(time.Time{})
			ch := channelOf(u.opts.Group, pkt.dst)
			if err != nil {
				// Individual send failures are not fatal; there is no
				// acknowledgement to wait for anyway.
				slog.DebugContext(ctx, "Failed to send datagram", slogutil.Error(err), slog.String("dst", pkt.dst.String()))
				metricDropped.WithLabelValues(dropSendError).Inc()
				continue
			}
			metricDatagramsOut.WithLabelValues(ch).Inc()
			metricBytesOut.WithLabelValues(ch).Add(float64(len(pkt.data)))

		case err := <-readErr:
			u.setError(err)
			return err

		case <-doneCtx.Done():
			return doneCtx.Err()
		}
	}
}

func (u *UDP) serveMulticast(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(u.opts.Group.Port())})
	if err != nil {
		err = fmt.Errorf("listening for multicast: %w", err)
		u.setError(err)
		return svcutil.AsFatalErr(err, svcutil.ExitBindError)
	}
	doneCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-doneCtx.Done()
		conn.Close()
	}()

	intfs, err := multicastInterfaces(u.opts.Interface)
	if err != nil {
		return err
	}

	pconn := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: u.opts.Group.Addr().AsSlice()}
	joined := 0
	for _, intf := range intfs {
		if err := pconn.JoinGroup(&intf, group); err != nil {
			slog.DebugContext(ctx, "IPv4 multicast join failed", slog.String("interface", intf.Name), slogutil.Error(err))
			continue
		}
		slog.DebugContext(ctx, "IPv4 multicast join succeeded", slog.String("interface", intf.Name))
		joined++
	}
	if joined == 0 {
		err := errors.New("no multicast interfaces available")
		u.setError(err)
		return err
	}

	return u.readLoop(doneCtx, conn, true)
}

func (u *UDP) readLoop(ctx context.Context, conn *net.UDPConn, multicast bool) error {
	ch := channelUnicast
	if multicast {
		ch = channelMulticast
	}
	bs := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(bs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.DebugContext(ctx, "Datagram read failed", slogutil.Error(err))
			return err
		}
		metricDatagramsIn.WithLabelValues(ch).Inc()
		metricBytesIn.WithLabelValues(ch).Add(float64(n))

		data, err := u.plugin.Decode(bs[:n])
		if err != nil {
			slog.DebugContext(ctx, "Dropping undecodable datagram", slog.String("src", src.String()), slogutil.Error(err))
			metricDropped.WithLabelValues(dropDecode).Inc()
			continue
		}
		// The none plugin returns its input; don't hand out the read
		// buffer.
		c := make([]byte, len(data))
		copy(c, data)

		d := Datagram{Data: c, Src: netip.AddrPortFrom(src.Addr().Unmap(), src.Port()), Multicast: multicast}
		if !u.recv.put(d) {
			slog.DebugContext(ctx, "Dropping datagram, receive queue full", slog.String("src", src.String()))
			metricDropped.WithLabelValues(dropRecvQueue).Inc()
		}
	}
}

// multicastInterfaces returns the running multicast capable interfaces,
// or only the named one.
func multicastInterfaces(name string) ([]net.Interface, error) {
	if name != "" {
		intf, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("looking up interface: %w", err)
		}
		return []net.Interface{*intf}, nil
	}
	intfs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	var res []net.Interface
	for _, intf := range intfs {
		if intf.Flags&net.FlagRunning == 0 || intf.Flags&net.FlagMulticast == 0 {
			continue
		}
		res = append(res, intf)
	}
	return res, nil
}

// interfaceIPv4 returns the first global unicast IPv4 address among the
// given interfaces, preferring non-loopback ones.
func interfaceIPv4(intfs []net.Interface) (netip.Addr, bool) {
	var loopback netip.Addr
	for _, intf := range intfs {
		addrs, err := intf.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipn.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			if !ip.Is4() {
				continue
			}
			if ip.IsLoopback() {
				if !loopback.IsValid() {
					loopback = ip
				}
				continue
			}
			if ip.IsGlobalUnicast() {
				return ip, true
			}
		}
	}
	return loopback, loopback.IsValid()
}

func channelOf(group, dst netip.AddrPort) string {
	if dst == group {
		return channelMulticast
	}
	return channelUnicast
}
