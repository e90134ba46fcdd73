// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camera

import (
	"fmt"
	"sync"
)

// Trigger modes.
const (
	TriggerOff      = 0
	TriggerOn       = 1
	TriggerSoftware = 2
)

// White balance modes.
const (
	WBOff  = 0
	WBAuto = 1
)

// Parameter bounds.
const (
	MinExposureUs = 10
	MaxExposureUs = 1000000
	MinGain       = 0
	MaxGain       = 30
	MinLevel      = -2 // brightness, contrast, saturation
	MaxLevel      = 2
	MinJPEGQ      = 1
	MaxJPEGQ      = 63
)

// Controls holds the sensor parameter state behind the camera
// registers. Setters reject out-of-range values; all methods are safe
// for concurrent use.
type Controls struct {
	mu           sync.Mutex
	format       Format
	exposureUs   float64
	gain         int
	brightness   int
	contrast     int
	saturation   int
	whiteBalance int
	triggerMode  int
	jpegQuality  int
}

// NewControls returns controls at their power-on defaults.
func NewControls() *Controls {
	return &Controls{
		format:       Mono8,
		exposureUs:   10000,
		gain:         0,
		whiteBalance: WBAuto,
		triggerMode:  TriggerOff,
		jpegQuality:  12,
	}
}

func rangeErr(name string, v, lo, hi int) error {
	return fmt.Errorf("camera: %s %d out of [%d, %d]", name, v, lo, hi)
}

// SetFormat selects the capture pixel format.
func (c *Controls) SetFormat(f Format) error {
	if !f.Valid() {
		return fmt.Errorf("camera: unknown pixel format 0x%08x", uint32(f))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = f
	return nil
}

// Format returns the capture pixel format.
func (c *Controls) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// SetExposure sets the exposure time in microseconds.
func (c *Controls) SetExposure(us float64) error {
	if us < MinExposureUs || us > MaxExposureUs {
		return fmt.Errorf("camera: exposure %g us out of [%d, %d]", us, MinExposureUs, MaxExposureUs)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exposureUs = us
	return nil
}

// Exposure returns the exposure time in microseconds.
func (c *Controls) Exposure() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposureUs
}

// SetGain sets the sensor gain.
func (c *Controls) SetGain(v int) error {
	if v < MinGain || v > MaxGain {
		return rangeErr("gain", v, MinGain, MaxGain)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gain = v
	return nil
}

// Gain returns the sensor gain.
func (c *Controls) Gain() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

func (c *Controls) setLevel(dst *int, name string, v int) error {
	if v < MinLevel || v > MaxLevel {
		return rangeErr(name, v, MinLevel, MaxLevel)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	*dst = v
	return nil
}

func (c *Controls) level(src *int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *src
}

// SetBrightness sets the brightness level.
func (c *Controls) SetBrightness(v int) error { return c.setLevel(&c.brightness, "brightness", v) }

// Brightness returns the brightness level.
func (c *Controls) Brightness() int { return c.level(&c.brightness) }

// SetContrast sets the contrast level.
func (c *Controls) SetContrast(v int) error { return c.setLevel(&c.contrast, "contrast", v) }

// Contrast returns the contrast level.
func (c *Controls) Contrast() int { return c.level(&c.contrast) }

// SetSaturation sets the saturation level.
func (c *Controls) SetSaturation(v int) error { return c.setLevel(&c.saturation, "saturation", v) }

// Saturation returns the saturation level.
func (c *Controls) Saturation() int { return c.level(&c.saturation) }

// SetWhiteBalance selects the white balance mode.
func (c *Controls) SetWhiteBalance(mode int) error {
	if mode != WBOff && mode != WBAuto {
		return rangeErr("white balance", mode, WBOff, WBAuto)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.whiteBalance = mode
	return nil
}

// WhiteBalance returns the white balance mode.
func (c *Controls) WhiteBalance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.whiteBalance
}

// SetTriggerMode selects the trigger mode.
func (c *Controls) SetTriggerMode(mode int) error {
	if mode < TriggerOff || mode > TriggerSoftware {
		return rangeErr("trigger mode", mode, TriggerOff, TriggerSoftware)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggerMode = mode
	return nil
}

// TriggerMode returns the trigger mode.
func (c *Controls) TriggerMode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggerMode
}

// SetJPEGQuality sets the JPEG quality factor.
func (c *Controls) SetJPEGQuality(q int) error {
	if q < MinJPEGQ || q > MaxJPEGQ {
		return rangeErr("jpeg quality", q, MinJPEGQ, MaxJPEGQ)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jpegQuality = q
	return nil
}

// JPEGQuality returns the JPEG quality factor.
func (c *Controls) JPEGQuality() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jpegQuality
}
