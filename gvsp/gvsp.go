// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gvsp implements the stream-channel side of the device: it
// paces frames from a camera source onto the wire as leader, data and
// trailer datagrams, keeps a small ring of sent frames for resend
// requests, and watches client liveness.
package gvsp // import "github.com/go-gev/gevcam/gvsp"

import "time"

// Port is the default UDP port frames are sent to.
const Port = 50010

// Packet types.
const (
	TypeData    uint8 = 0x00
	TypeLeader  uint8 = 0x01
	TypeTrailer uint8 = 0x02
)

// Payload types carried in leaders and trailers.
const (
	PayloadImage uint16 = 0x0001
	PayloadChunk uint16 = 0x4000
)

// Multipart component indices. In multipart mode each frame goes out
// as an image component followed by a chunk-metadata component, both
// under the same block id.
const (
	ComponentImage = 0
	ComponentChunk = 1
)

// HeaderSize is the length of the packet header in bytes.
const HeaderSize = 12

// Header is the stream packet header. Data[0] carries the block id;
// Data[1] carries the byte offset of a data packet, or the component
// index in multipart mode.
type Header struct {
	Type     uint8
	Flags    uint8
	PacketID uint16
	Data     [2]uint32
}

// Clock abstracts time for the engine so tests can drive pacing and
// health checks without waiting.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type sysClock struct{}

func (sysClock) Now() time.Time        { return time.Now() }
func (sysClock) Sleep(d time.Duration) { time.Sleep(d) }
