// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camera

import (
	"bytes"
	"testing"
)

func TestFormat(t *testing.T) {
	for _, tc := range []struct {
		f     Format
		valid bool
		bpp   int
		str   string
	}{
		{Mono8, true, 1, "Mono8"},
		{RGB565, true, 2, "RGB565Packed"},
		{YUV422, true, 2, "YUV422Packed"},
		{RGB8, true, 3, "RGB8Packed"},
		{JPEG, true, 0, "JPEG"},
		{Format(0xDEAD), false, 0, "Format(0x0000dead)"},
	} {
		t.Run(tc.str, func(t *testing.T) {
			if got := tc.f.Valid(); got != tc.valid {
				t.Errorf("valid: got=%v, want=%v", got, tc.valid)
			}
			if got := tc.f.BytesPerPixel(); got != tc.bpp {
				t.Errorf("bpp: got=%d, want=%d", got, tc.bpp)
			}
			if got := tc.f.String(); got != tc.str {
				t.Errorf("string: got=%q, want=%q", got, tc.str)
			}
		})
	}
}

func TestControls(t *testing.T) {
	ctl := NewControls()

	if err := ctl.SetGain(12); err != nil {
		t.Fatalf("could not set gain: %+v", err)
	}
	if got := ctl.Gain(); got != 12 {
		t.Fatalf("gain: got=%d, want=12", got)
	}
	if err := ctl.SetGain(31); err == nil {
		t.Fatalf("gain 31 accepted, want error")
	}
	if got := ctl.Gain(); got != 12 {
		t.Fatalf("gain after reject: got=%d, want=12", got)
	}

	if err := ctl.SetExposure(250); err != nil {
		t.Fatalf("could not set exposure: %+v", err)
	}
	if err := ctl.SetExposure(0); err == nil {
		t.Fatalf("exposure 0 accepted, want error")
	}

	for _, tc := range []struct {
		name string
		set  func(int) error
		get  func() int
	}{
		{"brightness", ctl.SetBrightness, ctl.Brightness},
		{"contrast", ctl.SetContrast, ctl.Contrast},
		{"saturation", ctl.SetSaturation, ctl.Saturation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.set(-2); err != nil {
				t.Fatalf("could not set %s: %+v", tc.name, err)
			}
			if got := tc.get(); got != -2 {
				t.Fatalf("%s: got=%d, want=-2", tc.name, got)
			}
			if err := tc.set(3); err == nil {
				t.Fatalf("%s 3 accepted, want error", tc.name)
			}
		})
	}

	if err := ctl.SetTriggerMode(TriggerSoftware); err != nil {
		t.Fatalf("could not set trigger: %+v", err)
	}
	if err := ctl.SetTriggerMode(3); err == nil {
		t.Fatalf("trigger 3 accepted, want error")
	}
	if err := ctl.SetWhiteBalance(WBOff); err != nil {
		t.Fatalf("could not set white balance: %+v", err)
	}
	if err := ctl.SetJPEGQuality(64); err == nil {
		t.Fatalf("jpeg quality 64 accepted, want error")
	}
	if err := ctl.SetFormat(Format(0x42)); err == nil {
		t.Fatalf("unknown format accepted, want error")
	}
}

func TestTestPattern(t *testing.T) {
	tp := NewTestPattern(nil, 8, 4)

	f1, err := tp.Capture()
	if err != nil {
		t.Fatalf("could not capture: %+v", err)
	}
	if f1.Width != 8 || f1.Height != 4 || f1.Format != Mono8 {
		t.Fatalf("frame geometry: %dx%d %v", f1.Width, f1.Height, f1.Format)
	}
	if got, want := len(f1.Data), 8*4; got != want {
		t.Fatalf("mono8 size: got=%d, want=%d", got, want)
	}
	if f1.Seq != 1 {
		t.Fatalf("seq: got=%d, want=1", f1.Seq)
	}

	f2, err := tp.Capture()
	if err != nil {
		t.Fatalf("could not capture: %+v", err)
	}
	if f2.Seq != 2 {
		t.Fatalf("seq: got=%d, want=2", f2.Seq)
	}
	if bytes.Equal(f1.Data, f2.Data) {
		t.Fatalf("consecutive frames identical")
	}

	if err := tp.Controls().SetFormat(RGB8); err != nil {
		t.Fatalf("could not switch format: %+v", err)
	}
	f3, err := tp.Capture()
	if err != nil {
		t.Fatalf("could not capture: %+v", err)
	}
	if got, want := len(f3.Data), 8*4*3; got != want {
		t.Fatalf("rgb8 size: got=%d, want=%d", got, want)
	}

	if err := tp.Controls().SetFormat(JPEG); err != nil {
		t.Fatalf("could not switch format: %+v", err)
	}
	f4, err := tp.Capture()
	if err != nil {
		t.Fatalf("could not capture: %+v", err)
	}
	if f4.Data[0] != 0xFF || f4.Data[1] != 0xD8 {
		t.Fatalf("jpeg SOI missing: % x", f4.Data[:2])
	}
	if n := len(f4.Data); f4.Data[n-2] != 0xFF || f4.Data[n-1] != 0xD9 {
		t.Fatalf("jpeg EOI missing")
	}

	tp.Release(f4) // no-op, must not panic
}
