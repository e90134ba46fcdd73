// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

var errShortPacket = xerrors.New("gvcp: packet too short")

// DecodeHeader parses the leading control packet header. It is used
// by capture analysis tooling; the serving path keeps the unexported
// form.
func DecodeHeader(p []byte) (Header, error) { return decodeHeader(p) }

func decodeHeader(p []byte) (Header, error) {
	if len(p) < HeaderSize {
		return Header{}, xerrors.Errorf("gvcp: could not decode header (%d bytes): %w",
			len(p), errShortPacket,
		)
	}
	return Header{
		Type:    p[0],
		Flags:   p[1],
		Command: binary.BigEndian.Uint16(p[2:4]),
		Size:    binary.BigEndian.Uint16(p[4:6]),
		ID:      binary.BigEndian.Uint16(p[6:8]),
	}, nil
}

// wbuf builds a datagram field by field.
type wbuf struct {
	p []byte
}

func newWbuf(size int) *wbuf {
	return &wbuf{p: make([]byte, 0, size)}
}

func (w *wbuf) header(h Header) {
	w.u8(h.Type)
	w.u8(h.Flags)
	w.u16(h.Command)
	w.u16(h.Size)
	w.u16(h.ID)
}

func (w *wbuf) u8(v uint8)  { w.p = append(w.p, v) }
func (w *wbuf) u16(v uint16) {
	w.p = append(w.p, byte(v>>8), byte(v))
}
func (w *wbuf) u32(v uint32) {
	w.p = append(w.p, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (w *wbuf) write(p []byte) { w.p = append(w.p, p...) }
func (w *wbuf) bytes() []byte  { return w.p }

// rbuf reads a datagram payload field by field with a sticky error.
type rbuf struct {
	p   []byte
	pos int
	err error
}

func newRbuf(p []byte) *rbuf { return &rbuf{p: p} }

func (r *rbuf) load(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.p) {
		r.err = xerrors.Errorf("gvcp: could not read %d bytes at offset %d: %w",
			n, r.pos, errShortPacket,
		)
		return nil
	}
	p := r.p[r.pos : r.pos+n]
	r.pos += n
	return p
}

func (r *rbuf) u16() uint16 {
	p := r.load(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (r *rbuf) u32() uint32 {
	p := r.load(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

func (r *rbuf) bytes(n int) []byte { return r.load(n) }
func (r *rbuf) rest() []byte       { return r.load(len(r.p) - r.pos) }
func (r *rbuf) len() int           { return len(r.p) - r.pos }

// ackHeader returns the acknowledge header for a request, with the
// payload size given in bytes.
func ackHeader(req Header, cmd uint16, paylen int) Header {
	return Header{
		Type:    TypeAck,
		Flags:   FlagAckRequired,
		Command: cmd,
		Size:    uint16((paylen + 3) / 4),
		ID:      req.ID,
	}
}

// nack builds an error datagram echoing the request's command (in its
// acknowledge form) and packet id. The status rides in the first two
// payload bytes.
func nack(req Header, st Status) []byte {
	w := newWbuf(HeaderSize + 4)
	w.header(Header{
		Type:    TypeError,
		Flags:   0,
		Command: req.Command + 1,
		Size:    1,
		ID:      req.ID,
	})
	w.u16(uint16(st))
	w.u16(0)
	return w.bytes()
}
