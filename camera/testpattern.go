// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camera

import (
	"sync"
	"time"
)

// Default capture geometry.
const (
	DefaultWidth  = 320
	DefaultHeight = 240
)

// TestPattern is a FrameSource producing deterministic gradient
// frames in the format currently selected on its controls. It stands
// in for a real sensor in simulation mode and in tests.
type TestPattern struct {
	ctl    *Controls
	width  int
	height int
	now    func() time.Time

	mu  sync.Mutex
	seq uint32
}

// NewTestPattern returns a test-pattern source with the given
// geometry. Zero dimensions fall back to the defaults.
func NewTestPattern(ctl *Controls, width, height int) *TestPattern {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if ctl == nil {
		ctl = NewControls()
	}
	return &TestPattern{
		ctl:    ctl,
		width:  width,
		height: height,
		now:    time.Now,
	}
}

// Controls returns the sensor controls backing this source.
func (tp *TestPattern) Controls() *Controls { return tp.ctl }

// Size returns the capture geometry.
func (tp *TestPattern) Size() (width, height int) { return tp.width, tp.height }

// Capture produces the next frame. The pattern shifts with the frame
// sequence number so consecutive frames differ.
func (tp *TestPattern) Capture() (*Frame, error) {
	tp.mu.Lock()
	tp.seq++
	seq := tp.seq
	tp.mu.Unlock()

	format := tp.ctl.Format()
	frame := &Frame{
		Width:     tp.width,
		Height:    tp.height,
		Format:    format,
		Seq:       seq,
		Timestamp: tp.now(),
	}

	switch format {
	case JPEG:
		frame.Data = tp.jpegPattern(seq)
	default:
		bpp := format.BytesPerPixel()
		data := make([]byte, tp.width*tp.height*bpp)
		for y := 0; y < tp.height; y++ {
			for x := 0; x < tp.width; x++ {
				base := (y*tp.width + x) * bpp
				v := byte(x + y + int(seq))
				for i := 0; i < bpp; i++ {
					data[base+i] = v + byte(i)
				}
			}
		}
		frame.Data = data
	}
	return frame, nil
}

// jpegPattern builds a stand-in compressed payload: a JPEG SOI/EOI
// envelope around gradient bytes, sized by the quality factor.
func (tp *TestPattern) jpegPattern(seq uint32) []byte {
	q := tp.ctl.JPEGQuality()
	size := tp.width * tp.height * q / MaxJPEGQ / 4
	if size < 64 {
		size = 64
	}
	data := make([]byte, size)
	data[0], data[1] = 0xFF, 0xD8
	for i := 2; i < size-2; i++ {
		data[i] = byte(i + int(seq))
	}
	data[size-2], data[size-1] = 0xFF, 0xD9
	return data
}

// Release is a no-op: pattern buffers are garbage collected.
func (tp *TestPattern) Release(*Frame) {}

var _ FrameSource = (*TestPattern)(nil)
