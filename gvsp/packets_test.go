// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvsp

import (
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	fi := frameInfo{
		block:     7,
		width:     320,
		height:    240,
		format:    0x01080001,
		timestamp: 0x0000000100000002,
		payload:   PayloadImage,
	}

	t.Run("leader", func(t *testing.T) {
		pkt, err := DecodePacket(encodeLeader(11, fi))
		if err != nil {
			t.Fatalf("could not decode leader: %+v", err)
		}
		if pkt.Header.Type != TypeLeader {
			t.Fatalf("type: got=%d, want=%d", pkt.Header.Type, TypeLeader)
		}
		if pkt.Header.PacketID != 11 {
			t.Fatalf("packet id: got=%d, want=11", pkt.Header.PacketID)
		}
		if pkt.Header.Data[0] != 7 {
			t.Fatalf("block: got=%d, want=7", pkt.Header.Data[0])
		}
		lead := pkt.Leader
		if lead == nil {
			t.Fatalf("no leader payload")
		}
		if lead.PayloadType != PayloadImage {
			t.Fatalf("payload type: got=0x%04x", lead.PayloadType)
		}
		if lead.Timestamp != fi.timestamp {
			t.Fatalf("timestamp: got=0x%016x, want=0x%016x", lead.Timestamp, fi.timestamp)
		}
		if lead.PixelFormat != fi.format || lead.SizeX != 320 || lead.SizeY != 240 {
			t.Fatalf("geometry: format=0x%08x %dx%d", lead.PixelFormat, lead.SizeX, lead.SizeY)
		}
	})

	t.Run("data", func(t *testing.T) {
		chunk := []byte{0xDE, 0xAD, 0xBE, 0xEF}
		pkt, err := DecodePacket(encodeData(12, fi, 1400, chunk))
		if err != nil {
			t.Fatalf("could not decode data: %+v", err)
		}
		if pkt.Header.Type != TypeData {
			t.Fatalf("type: got=%d", pkt.Header.Type)
		}
		if got, want := pkt.Header.Data[1], uint32(1400); got != want {
			t.Fatalf("offset: got=%d, want=%d", got, want)
		}
		if !bytes.Equal(pkt.Data, chunk) {
			t.Fatalf("data: got=%v, want=%v", pkt.Data, chunk)
		}
	})

	t.Run("trailer", func(t *testing.T) {
		pkt, err := DecodePacket(encodeTrailer(13, fi))
		if err != nil {
			t.Fatalf("could not decode trailer: %+v", err)
		}
		if pkt.Header.Type != TypeTrailer {
			t.Fatalf("type: got=%d", pkt.Header.Type)
		}
		trail := pkt.Trailer
		if trail == nil {
			t.Fatalf("no trailer payload")
		}
		if trail.PayloadType != PayloadImage || trail.SizeY != 240 {
			t.Fatalf("trailer: payload=0x%04x size_y=%d", trail.PayloadType, trail.SizeY)
		}
	})
}

func TestPacketMultipart(t *testing.T) {
	fi := frameInfo{
		block:     3,
		width:     24,
		height:    1,
		format:    0x01080001,
		payload:   PayloadChunk,
		component: ComponentChunk,
		multipart: true,
	}

	lead, err := DecodePacket(encodeLeader(0, fi))
	if err != nil {
		t.Fatalf("could not decode leader: %+v", err)
	}
	if got, want := lead.Header.Data[1], uint32(ComponentChunk); got != want {
		t.Fatalf("leader component: got=%d, want=%d", got, want)
	}
	if got, want := lead.Leader.Flags, uint16(ComponentChunk); got != want {
		t.Fatalf("leader flags: got=%d, want=%d", got, want)
	}

	data, err := DecodePacket(encodeData(1, fi, 512, []byte{1}))
	if err != nil {
		t.Fatalf("could not decode data: %+v", err)
	}
	// in multipart mode the aux word carries the component index, not
	// the byte offset.
	if got, want := data.Header.Data[1], uint32(ComponentChunk); got != want {
		t.Fatalf("data component: got=%d, want=%d", got, want)
	}

	trail, err := DecodePacket(encodeTrailer(2, fi))
	if err != nil {
		t.Fatalf("could not decode trailer: %+v", err)
	}
	if got, want := trail.Trailer.Reserved, uint16(ComponentChunk); got != want {
		t.Fatalf("trailer reserved: got=%d, want=%d", got, want)
	}
	if trail.Trailer.PayloadType != PayloadChunk {
		t.Fatalf("trailer payload: got=0x%04x", trail.Trailer.PayloadType)
	}
}

func TestPacketDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"short-header", make([]byte, HeaderSize-1)},
		{"short-leader", append([]byte{TypeLeader}, make([]byte, HeaderSize)...)},
		{"short-trailer", append([]byte{TypeTrailer}, make([]byte, HeaderSize)...)},
		{"unknown-type", append([]byte{0x7F}, make([]byte, HeaderSize)...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodePacket(tc.pkt); err == nil {
				t.Fatalf("decode succeeded, want error")
			}
		})
	}
}
