// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import (
	"bytes"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/go-gev/gevcam/regs"
)

type fakeSender struct {
	pkts  [][]byte
	dests []net.Addr
	fail  int // fail the first n sends
}

func (f *fakeSender) WriteTo(p []byte, addr net.Addr) (int, error) {
	if f.fail > 0 {
		f.fail--
		return 0, io.ErrClosedPipe
	}
	f.pkts = append(f.pkts, append([]byte(nil), p...))
	f.dests = append(f.dests, addr)
	return len(p), nil
}

func newTestDiscovery(opts ...DiscOption) *Discovery {
	space := regs.New(regs.Config{}, []byte("<xml/>"))
	opts = append([]DiscOption{WithDiscLogger(log.New(io.Discard, "", 0))}, opts...)
	d := NewDiscovery(space, opts...)
	d.sleep = func(time.Duration) {}
	return d
}

func TestSolicitedAckVariants(t *testing.T) {
	structured := newTestDiscovery(WithStructuredAck(true)).SolicitedAck(0x1234)
	hdr, err := decodeHeader(structured)
	if err != nil {
		t.Fatalf("could not decode structured ack: %+v", err)
	}
	if hdr.Type != TypeAck || hdr.Command != AckDiscovery || hdr.ID != 0x1234 {
		t.Fatalf("bad structured header: %#v", hdr)
	}
	if got, want := hdr.PayloadLen(), regs.DiscoveryPayloadSize; got != want {
		t.Fatalf("declared payload: got=%d, want=%d", got, want)
	}

	raw := newTestDiscovery(WithStructuredAck(false)).SolicitedAck(0x1234)
	want := []byte{'B', 'E', TypeAck, FlagAckRequired, 0x00, AckDiscovery, 0x12, 0x34}
	if !bytes.Equal(raw[:8], want) {
		t.Fatalf("raw header: got=%v, want=%v", raw[:8], want)
	}
	if got, want := len(raw), 8+regs.DiscoveryPayloadSize; got != want {
		t.Fatalf("raw size: got=%d, want=%d", got, want)
	}

	// both variants carry the same bootstrap payload.
	if !bytes.Equal(structured[HeaderSize:], raw[8:]) {
		t.Fatalf("payload mismatch between variants")
	}
}

func TestAnnounceSequence(t *testing.T) {
	dests := []*net.UDPAddr{
		{IP: net.IPv4(239, 0, 0, 1), Port: Port},
		{IP: net.IPv4bcast, Port: Port},
	}
	d := newTestDiscovery(WithDestinations(dests...))
	d.SetEnabled(true)

	conn := &fakeSender{}
	if err := d.Announce(conn); err != nil {
		t.Fatalf("could not announce: %+v", err)
	}
	if got, want := len(conn.pkts), 2; got != want {
		t.Fatalf("packets: got=%d, want=%d", got, want)
	}

	// every packet gets its own sequence number as id.
	for i, pkt := range conn.pkts {
		id := uint16(pkt[6])<<8 | uint16(pkt[7])
		if got, want := id, uint16(i+1); got != want {
			t.Fatalf("packet[%d] id: got=%d, want=%d", i, got, want)
		}
		if pkt[0] != 'B' || pkt[1] != 'E' {
			t.Fatalf("packet[%d] not raw variant: %v", i, pkt[:2])
		}
	}
	if got, want := d.Sequence(), uint32(2); got != want {
		t.Fatalf("sequence: got=%d, want=%d", got, want)
	}
	if got, want := d.Sent(), uint32(2); got != want {
		t.Fatalf("sent: got=%d, want=%d", got, want)
	}

	// disabled broadcasts do nothing.
	d.SetEnabled(false)
	if err := d.Announce(conn); err != nil {
		t.Fatalf("disabled announce: %+v", err)
	}
	if got := len(conn.pkts); got != 2 {
		t.Fatalf("packets after disable: got=%d, want=2", got)
	}
}

func TestAnnounceRetryAndFailure(t *testing.T) {
	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}
	d := newTestDiscovery(WithDestinations(dest))
	d.SetEnabled(true)

	// first two sends fail, third retry succeeds: cycle succeeds.
	conn := &fakeSender{fail: 2}
	if err := d.Announce(conn); err != nil {
		t.Fatalf("announce with retries: %+v", err)
	}
	if got, want := d.Sent(), uint32(1); got != want {
		t.Fatalf("sent: got=%d, want=%d", got, want)
	}
	if got := d.Failures(); got != 0 {
		t.Fatalf("failures: got=%d, want=0", got)
	}

	// every retry of every destination fails: the cycle fails.
	conn = &fakeSender{fail: 3}
	if err := d.Announce(conn); err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := d.Failures(), uint32(1); got != want {
		t.Fatalf("failures: got=%d, want=%d", got, want)
	}
}

func TestSetInterval(t *testing.T) {
	d := newTestDiscovery()
	if err := d.SetInterval(2000); err != nil {
		t.Fatalf("could not set interval: %+v", err)
	}
	if got, want := d.Interval(), uint32(2000); got != want {
		t.Fatalf("interval: got=%d, want=%d", got, want)
	}
	for _, ms := range []uint32{0, 999, 30001} {
		if err := d.SetInterval(ms); err == nil {
			t.Fatalf("interval %d accepted, want error", ms)
		}
	}
	if got, want := d.Interval(), uint32(2000); got != want {
		t.Fatalf("interval after rejects: got=%d, want=%d", got, want)
	}
}

func TestPoll(t *testing.T) {
	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}
	d := newTestDiscovery(WithDestinations(dest))
	d.SetEnabled(true)
	if err := d.SetInterval(1000); err != nil {
		t.Fatalf("could not set interval: %+v", err)
	}

	conn := &fakeSender{}
	now := time.Now()

	d.Poll(now, conn)
	if got := len(conn.pkts); got != 1 {
		t.Fatalf("first poll: got=%d packets, want=1", got)
	}
	d.Poll(now.Add(500*time.Millisecond), conn)
	if got := len(conn.pkts); got != 1 {
		t.Fatalf("early poll: got=%d packets, want=1", got)
	}
	d.Poll(now.Add(1100*time.Millisecond), conn)
	if got := len(conn.pkts); got != 2 {
		t.Fatalf("due poll: got=%d packets, want=2", got)
	}
}
