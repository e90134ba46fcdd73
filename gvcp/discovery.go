// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/go-gev/gevcam/regs"
)

// Broadcast interval bounds (milliseconds).
const (
	MinBcastInterval = 1000
	MaxBcastInterval = 30000
)

const bcastRetryDelay = 50 * time.Millisecond

// sender is the outbound half of a packet connection.
type sender interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// Discovery answers solicited discovery commands and periodically
// announces the device to a set of broadcast destinations.
//
// Two wire variants of the discovery acknowledge exist: the
// structured form reuses the standard GVCP header, the raw form
// prefixes the payload with the legacy 0x42 0x45 magic bytes.
// Solicited replies use the variant selected at construction;
// broadcasts always use the raw form.
type Discovery struct {
	space      *regs.Space
	structured bool
	retries    int
	sleep      func(time.Duration)
	msg        *log.Logger

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	last     time.Time
	seq      uint32
	sent     uint32
	failures uint32
	dests    []*net.UDPAddr
}

// DiscOption configures a Discovery.
type DiscOption func(*Discovery)

// WithStructuredAck selects the solicited acknowledge wire variant.
func WithStructuredAck(on bool) DiscOption {
	return func(d *Discovery) { d.structured = on }
}

// WithDestinations replaces the default broadcast destination set.
func WithDestinations(dests ...*net.UDPAddr) DiscOption {
	return func(d *Discovery) { d.dests = dests }
}

// WithDiscLogger sets the discovery log output.
func WithDiscLogger(msg *log.Logger) DiscOption {
	return func(d *Discovery) { d.msg = msg }
}

// NewDiscovery returns a discovery responder over the given register
// space. Broadcasting starts disabled.
func NewDiscovery(space *regs.Space, opts ...DiscOption) *Discovery {
	d := &Discovery{
		space:      space,
		structured: true,
		retries:    3,
		sleep:      time.Sleep,
		msg:        log.New(os.Stdout, "gvcp: ", 0),
		interval:   5 * time.Second,
		dests: []*net.UDPAddr{
			{IP: net.IPv4(224, 0, 0, 1), Port: Port},
			{IP: net.IPv4bcast, Port: Port},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SolicitedAck builds the discovery acknowledge for a solicited
// request, echoing the requester's exact packet id.
func (d *Discovery) SolicitedAck(id uint16) []byte {
	return d.buildAck(d.structured, id)
}

func (d *Discovery) buildAck(structured bool, id uint16) []byte {
	payload := d.space.DiscoveryPayload()
	w := newWbuf(HeaderSize + len(payload))
	if structured {
		w.header(Header{
			Type:    TypeAck,
			Flags:   FlagAckRequired,
			Command: AckDiscovery,
			Size:    uint16(len(payload) / 4),
			ID:      id,
		})
	} else {
		// legacy raw header: 'B' 'E' magic, ack type, ack flag,
		// command, id.
		w.u8('B')
		w.u8('E')
		w.u8(TypeAck)
		w.u8(FlagAckRequired)
		w.u16(AckDiscovery)
		w.u16(id)
	}
	w.write(payload)
	return w.bytes()
}

// Announce runs one broadcast cycle: every destination gets one
// announcement with bounded retries and its own sequence number. The
// cycle fails only when every send failed.
func (d *Discovery) Announce(conn sender) error {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return nil
	}
	dests := d.dests
	retries := d.retries
	d.mu.Unlock()

	ok := false
	for _, dest := range dests {
		d.mu.Lock()
		d.seq++
		id := uint16(d.seq & 0xFFFF)
		d.mu.Unlock()

		pkt := d.buildAck(false, id)
		sent := false
		for try := 0; try < retries && !sent; try++ {
			if _, err := conn.WriteTo(pkt, dest); err != nil {
				if try < retries-1 {
					d.sleep(bcastRetryDelay)
				}
				continue
			}
			sent = true
		}

		d.mu.Lock()
		if sent {
			d.sent++
			ok = true
		}
		d.mu.Unlock()
		if !sent {
			d.msg.Printf("discovery announcement to %v failed after %d tries", dest, retries)
		}
	}

	if !ok {
		d.mu.Lock()
		d.failures++
		d.mu.Unlock()
		return fmt.Errorf("gvcp: discovery broadcast cycle failed for all %d destinations", len(dests))
	}
	return nil
}

// Poll sends a broadcast cycle when one is due. The serving loop
// calls it on every receive timeout.
func (d *Discovery) Poll(now time.Time, conn sender) {
	d.mu.Lock()
	due := d.enabled && (d.last.IsZero() || now.Sub(d.last) >= d.interval)
	if due {
		d.last = now
	}
	d.mu.Unlock()
	if !due {
		return
	}
	if err := d.Announce(conn); err != nil {
		d.msg.Printf("%v", err)
	}
}

// SetEnabled switches periodic broadcasting on or off.
func (d *Discovery) SetEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = on
}

// Enabled reports whether periodic broadcasting is on.
func (d *Discovery) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetInterval updates the broadcast interval. Values outside the
// legal bounds are rejected.
func (d *Discovery) SetInterval(ms uint32) error {
	if ms < MinBcastInterval || ms > MaxBcastInterval {
		return fmt.Errorf("gvcp: broadcast interval %d ms out of [%d, %d]: %w",
			ms, MinBcastInterval, MaxBcastInterval, regs.ErrInvalidValue,
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = time.Duration(ms) * time.Millisecond
	return nil
}

// Interval returns the broadcast interval in milliseconds.
func (d *Discovery) Interval() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(d.interval / time.Millisecond)
}

// Sent returns the number of announcements delivered.
func (d *Discovery) Sent() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}

// Failures returns the number of fully failed broadcast cycles.
func (d *Discovery) Failures() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// Sequence returns the broadcast sequence counter.
func (d *Discovery) Sequence() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}
