// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package camera defines the frame-source collaborator consumed by
// the streaming engine, the pixel-format codes shared with the wire
// protocols, and the sensor parameter state.
package camera // import "github.com/go-gev/gevcam/camera"

import (
	"errors"
	"time"
)

// Format is a 32-bit pixel-format identifier as used on the wire.
type Format uint32

// Supported pixel formats.
const (
	Mono8  Format = 0x01080001
	RGB565 Format = 0x02100005
	YUV422 Format = 0x02100004
	RGB8   Format = 0x02180014
	JPEG   Format = 0x80000001
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case Mono8, RGB565, YUV422, RGB8, JPEG:
		return true
	}
	return false
}

// BytesPerPixel returns the storage cost of one pixel, or 0 for
// compressed formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case Mono8:
		return 1
	case RGB565, YUV422:
		return 2
	case RGB8:
		return 3
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case Mono8:
		return "Mono8"
	case RGB565:
		return "RGB565Packed"
	case YUV422:
		return "YUV422Packed"
	case RGB8:
		return "RGB8Packed"
	case JPEG:
		return "JPEG"
	}
	return "Format(0x" + itox(uint32(f)) + ")"
}

func itox(v uint32) string {
	const digits = "0123456789abcdef"
	var b [8]byte
	for i := range b {
		b[7-i] = digits[v&0xF]
		v >>= 4
	}
	return string(b[:])
}

// ErrUnavailable reports that no frame could be captured right now.
// The caller should treat it as transient.
var ErrUnavailable = errors.New("camera: frame unavailable")

// Frame is one captured image buffer.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    Format
	Seq       uint32
	Timestamp time.Time
}

// FrameSource produces frames for the streaming engine. Release
// returns the frame buffer to the source once it has been sent.
type FrameSource interface {
	Capture() (*Frame, error)
	Release(*Frame)
}
