// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvsp

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

var errShortPacket = xerrors.New("gvsp: packet too short")

// frameInfo is the per-frame metadata shared by the leader, data and
// trailer encoders and kept in the resend ring.
type frameInfo struct {
	block     uint32
	width     uint32
	height    uint32
	format    uint32
	timestamp uint64 // microseconds
	payload   uint16
	component uint32
	multipart bool
}

// aux is the value of Data[1]: the component index in multipart mode,
// the given byte offset otherwise.
func (fi frameInfo) aux(offset uint32) uint32 {
	if fi.multipart {
		return fi.component
	}
	return offset
}

type wbuf struct {
	p []byte
}

func newWbuf(size int) *wbuf {
	return &wbuf{p: make([]byte, 0, size)}
}

func (w *wbuf) header(typ uint8, id uint16, d0, d1 uint32) {
	w.u8(typ)
	w.u8(0)
	w.u16(id)
	w.u32(d0)
	w.u32(d1)
}

func (w *wbuf) u8(v uint8) { w.p = append(w.p, v) }
func (w *wbuf) u16(v uint16) {
	w.p = append(w.p, byte(v>>8), byte(v))
}
func (w *wbuf) u32(v uint32) {
	w.p = append(w.p, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (w *wbuf) write(p []byte) { w.p = append(w.p, p...) }
func (w *wbuf) bytes() []byte  { return w.p }

// encodeLeader builds the leader packet opening one frame (or one
// component of a multipart frame).
func encodeLeader(id uint16, fi frameInfo) []byte {
	var flags uint16
	if fi.multipart {
		flags = uint16(fi.component)
	}
	w := newWbuf(HeaderSize + 36)
	w.header(TypeLeader, id, fi.block, fi.aux(0))
	w.u16(flags)
	w.u16(fi.payload)
	w.u32(uint32(fi.timestamp >> 32))
	w.u32(uint32(fi.timestamp))
	w.u32(fi.format)
	w.u32(fi.width)
	w.u32(fi.height)
	w.u32(0) // offset x
	w.u32(0) // offset y
	w.u16(0) // padding x
	w.u16(0) // padding y
	return w.bytes()
}

// encodeData builds one data packet carrying chunk at the given byte
// offset into the frame payload.
func encodeData(id uint16, fi frameInfo, offset uint32, chunk []byte) []byte {
	w := newWbuf(HeaderSize + len(chunk))
	w.header(TypeData, id, fi.block, fi.aux(offset))
	w.write(chunk)
	return w.bytes()
}

// encodeTrailer builds the trailer packet closing one frame.
func encodeTrailer(id uint16, fi frameInfo) []byte {
	var reserved uint16
	if fi.multipart {
		reserved = uint16(fi.component)
	}
	w := newWbuf(HeaderSize + 8)
	w.header(TypeTrailer, id, fi.block, fi.aux(0))
	w.u16(reserved)
	w.u16(fi.payload)
	w.u32(fi.height)
	return w.bytes()
}

// encodeChunkMeta builds the chunk-metadata blob sent as the second
// component of a multipart frame.
func encodeChunkMeta(fi frameInfo) []byte {
	w := newWbuf(24)
	w.u32(fi.block)
	w.u32(uint32(fi.timestamp >> 32))
	w.u32(uint32(fi.timestamp))
	w.u32(fi.width)
	w.u32(fi.height)
	w.u32(fi.format)
	return w.bytes()
}

// Leader is the decoded payload of a leader packet.
type Leader struct {
	Flags       uint16
	PayloadType uint16
	Timestamp   uint64
	PixelFormat uint32
	SizeX       uint32
	SizeY       uint32
	OffsetX     uint32
	OffsetY     uint32
	PaddingX    uint16
	PaddingY    uint16
}

// Trailer is the decoded payload of a trailer packet.
type Trailer struct {
	Reserved    uint16
	PayloadType uint16
	SizeY       uint32
}

// Packet is a decoded stream packet. Exactly one of Leader, Trailer
// and Data is set, according to Header.Type.
type Packet struct {
	Header  Header
	Leader  *Leader
	Trailer *Trailer
	Data    []byte
}

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
		r.err = xerrors.Errorf("gvsp: could not read %d bytes at offset %d: %w",
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

func (r *rbuf) rest() []byte { return r.load(len(r.p) - r.pos) }

// DecodePacket parses one stream datagram. It is the inverse of the
// engine's encoders and is used by capture analysis tooling.
func DecodePacket(p []byte) (Packet, error) {
	if len(p) < HeaderSize {
		return Packet{}, xerrors.Errorf("gvsp: could not decode header (%d bytes): %w",
			len(p), errShortPacket,
		)
	}
	pkt := Packet{
		Header: Header{
			Type:     p[0],
			Flags:    p[1],
			PacketID: binary.BigEndian.Uint16(p[2:4]),
			Data: [2]uint32{
				binary.BigEndian.Uint32(p[4:8]),
				binary.BigEndian.Uint32(p[8:12]),
			},
		},
	}
	r := newRbuf(p[HeaderSize:])
	switch pkt.Header.Type {
	case TypeLeader:
		lead := Leader{
			Flags:       r.u16(),
			PayloadType: r.u16(),
		}
		hi, lo := r.u32(), r.u32()
		lead.Timestamp = uint64(hi)<<32 | uint64(lo)
		lead.PixelFormat = r.u32()
		lead.SizeX = r.u32()
		lead.SizeY = r.u32()
		lead.OffsetX = r.u32()
		lead.OffsetY = r.u32()
		lead.PaddingX = r.u16()
		lead.PaddingY = r.u16()
		if r.err != nil {
			return Packet{}, r.err
		}
		pkt.Leader = &lead
	case TypeTrailer:
		trail := Trailer{
			Reserved:    r.u16(),
			PayloadType: r.u16(),
			SizeY:       r.u32(),
		}
		if r.err != nil {
			return Packet{}, r.err
		}
		pkt.Trailer = &trail
	case TypeData:
		pkt.Data = r.rest()
	default:
		return Packet{}, xerrors.Errorf("gvsp: unknown packet type 0x%02x", pkt.Header.Type)
	}
	return pkt, nil
}
