// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import (
	"net"
	"time"

	"golang.org/x/xerrors"
)

// RegVal is one address/value pair of a write-register batch.
type RegVal struct {
	Addr  uint32
	Value uint32
}

// Client speaks GVCP to a device, one command in flight at a time.
type Client struct {
	conn    *net.UDPConn
	timeout time.Duration
	id      uint16
	buf     []byte
}

// Dial connects a control client to the device at addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, xerrors.Errorf("gvcp: could not resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, xerrors.Errorf("gvcp: could not dial %q: %w", addr, err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		conn:    conn,
		timeout: timeout,
		buf:     make([]byte, 16+MaxReadSizeXML),
	}, nil
}

// Close releases the client socket.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) roundTrip(cmd uint16, payload []byte) (Header, []byte, error) {
	c.id++
	if c.id == 0 {
		c.id = 1
	}

	w := newWbuf(HeaderSize + len(payload))
	w.header(Header{
		Type:    TypeCmd,
		Flags:   FlagAckRequired,
		Command: cmd,
		Size:    uint16(len(payload) / 4),
		ID:      c.id,
	})
	w.write(payload)

	if _, err := c.conn.Write(w.bytes()); err != nil {
		return Header{}, nil, xerrors.Errorf("gvcp: could not send command 0x%04x: %w", cmd, err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return Header{}, nil, xerrors.Errorf("gvcp: no reply to command 0x%04x: %w", cmd, err)
	}

	hdr, err := decodeHeader(c.buf[:n])
	if err != nil {
		return Header{}, nil, err
	}
	resp := c.buf[HeaderSize:n]

	if hdr.Type == TypeError {
		st := StatusNotImplemented
		if len(resp) >= 2 {
			st = Status(uint16(resp[0])<<8 | uint16(resp[1]))
		}
		return hdr, nil, xerrors.Errorf("gvcp: command 0x%04x rejected: %w", cmd, st)
	}
	if hdr.Command != cmd+1 {
		return hdr, nil, xerrors.Errorf("gvcp: unexpected ack command 0x%04x for command 0x%04x",
			hdr.Command, cmd,
		)
	}
	if hdr.ID != c.id {
		return hdr, nil, xerrors.Errorf("gvcp: ack id 0x%04x does not match request id 0x%04x",
			hdr.ID, c.id,
		)
	}
	return hdr, resp, nil
}

// Discover requests the device's bootstrap block. Both discovery
// acknowledge wire variants are understood.
func (c *Client) Discover() ([]byte, error) {
	c.id++
	if c.id == 0 {
		c.id = 1
	}
	w := newWbuf(HeaderSize)
	w.header(Header{
		Type:    TypeCmd,
		Flags:   FlagAckRequired,
		Command: CmdDiscovery,
		ID:      c.id,
	})
	if _, err := c.conn.Write(w.bytes()); err != nil {
		return nil, xerrors.Errorf("gvcp: could not send discovery: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, xerrors.Errorf("gvcp: no discovery reply: %w", err)
	}
	pkt := c.buf[:n]
	if len(pkt) < HeaderSize {
		return nil, xerrors.Errorf("gvcp: discovery reply too short (%d bytes)", n)
	}

	if pkt[0] == 'B' && pkt[1] == 'E' {
		// legacy raw header variant.
		return append([]byte(nil), pkt[8:]...), nil
	}
	hdr, err := decodeHeader(pkt)
	if err != nil {
		return nil, err
	}
	if hdr.Command != AckDiscovery {
		return nil, xerrors.Errorf("gvcp: unexpected discovery ack command 0x%04x", hdr.Command)
	}
	if hdr.ID != c.id {
		return nil, xerrors.Errorf("gvcp: discovery ack id 0x%04x does not match 0x%04x", hdr.ID, c.id)
	}
	return append([]byte(nil), pkt[HeaderSize:]...), nil
}

// ReadReg reads a batch of 32-bit registers.
func (c *Client) ReadReg(addrs ...uint32) ([]uint32, error) {
	w := newWbuf(4 * len(addrs))
	for _, addr := range addrs {
		w.u32(addr)
	}
	_, resp, err := c.roundTrip(CmdReadReg, w.bytes())
	if err != nil {
		return nil, err
	}
	if len(resp) < 4*len(addrs) {
		return nil, xerrors.Errorf("gvcp: short readreg ack: %d bytes for %d registers",
			len(resp), len(addrs),
		)
	}
	r := newRbuf(resp)
	vals := make([]uint32, len(addrs))
	for i := range vals {
		vals[i] = r.u32()
	}
	return vals, r.err
}

// WriteReg writes a batch of 32-bit registers. The device applies the
// batch all-or-nothing with respect to address validation.
func (c *Client) WriteReg(regs ...RegVal) error {
	w := newWbuf(8 * len(regs))
	for _, rv := range regs {
		w.u32(rv.Addr)
		w.u32(rv.Value)
	}
	_, _, err := c.roundTrip(CmdWriteReg, w.bytes())
	return err
}

// ReadMem reads size bytes of device memory at addr. The device may
// clamp the size; the returned slice holds what came back.
func (c *Client) ReadMem(addr uint32, size uint32) ([]byte, error) {
	w := newWbuf(8)
	w.u32(addr)
	w.u32(size)
	_, resp, err := c.roundTrip(CmdReadMem, w.bytes())
	if err != nil {
		return nil, err
	}
	if len(resp) < 4 {
		return nil, xerrors.Errorf("gvcp: short readmem ack: %d bytes", len(resp))
	}
	return append([]byte(nil), resp[4:]...), nil
}

// WriteMem writes raw bytes at addr. The data length must be a
// multiple of 4.
func (c *Client) WriteMem(addr uint32, data []byte) error {
	if len(data)%4 != 0 {
		return xerrors.Errorf("gvcp: writemem data length %d not a multiple of 4", len(data))
	}
	w := newWbuf(4 + len(data))
	w.u32(addr)
	w.write(data)
	_, _, err := c.roundTrip(CmdWriteMem, w.bytes())
	return err
}

// Resend asks the device to retransmit the given block on stream
// channel 0.
func (c *Client) Resend(block uint32) error {
	w := newWbuf(8)
	w.u32(0)
	w.u32(block)
	_, _, err := c.roundTrip(CmdPacketResend, w.bytes())
	return err
}
