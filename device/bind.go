// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"math"

	"github.com/go-gev/gevcam/camera"
	"github.com/go-gev/gevcam/gvsp"
	"github.com/go-gev/gevcam/regs"
)

// valueErr tags a component error as a value problem so the command
// processor answers with the invalid-parameter status.
func valueErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", err, regs.ErrInvalidValue)
}

func b2u(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}

// bindRegisters installs the virtual registers over the device
// components. Callbacks run under the register space lock and never
// call back into the space.
func (dev *Device) bindRegisters() {
	sp := dev.space
	eng := dev.eng
	ctl := dev.ctl
	disc := dev.disc
	stats := dev.proc.Stats()

	// acquisition control
	sp.Bind(regs.RegAcquisitionStart, regs.Register{
		Name: "AcquisitionStart",
		Read: func() uint32 { return b2u(eng.Streaming()) },
		Write: func(v uint32) error {
			if v == 0 {
				return nil
			}
			return eng.Start()
		},
	})
	sp.Bind(regs.RegAcquisitionStop, regs.Register{
		Name: "AcquisitionStop",
		Read: func() uint32 { return 0 },
		Write: func(v uint32) error {
			if v != 0 {
				eng.Stop()
			}
			return nil
		},
	})
	sp.Bind(regs.RegAcquisitionMode, regs.Register{
		Name: "AcquisitionMode",
		Read: func() uint32 { return dev.acqMode },
		Write: func(v uint32) error {
			if v != 0 { // only continuous acquisition exists
				return valueErr(fmt.Errorf("acquisition mode %d unsupported", v))
			}
			dev.acqMode = v
			return nil
		},
	})
	sp.Bind(regs.RegStreamStatus, regs.Register{
		Name: "StreamStatus",
		Read: func() uint32 { return b2u(eng.Streaming()) },
	})

	// image format
	sp.Bind(regs.RegPixelFormat, regs.Register{
		Name:  "PixelFormat",
		Read:  func() uint32 { return uint32(ctl.Format()) },
		Write: func(v uint32) error { return valueErr(ctl.SetFormat(camera.Format(v))) },
	})
	sp.Bind(regs.RegPayloadSize, regs.Register{
		Name: "PayloadSize",
		Read: func() uint32 { return dev.payloadSize() },
	})

	// transmission parameters
	sp.Bind(regs.RegPacketSize, regs.Register{
		Name:  "PacketSize",
		Read:  eng.PacketSize,
		Write: eng.SetPacketSize,
	})
	sp.Bind(regs.RegPacketDelay, regs.Register{
		Name:  "PacketDelay",
		Read:  eng.PacketDelay,
		Write: eng.SetPacketDelay,
	})
	sp.Bind(regs.RegFrameRate, regs.Register{
		Name: "FrameRate",
		Read: func() uint32 { return math.Float32bits(float32(eng.FrameRate())) },
		Write: func(v uint32) error {
			fps := float64(math.Float32frombits(v))
			if math.IsNaN(fps) || math.IsInf(fps, 0) {
				return fmt.Errorf("device: frame rate bits 0x%08x: %w", v, regs.ErrInvalidValue)
			}
			return eng.SetFrameRate(fps)
		},
	})

	// camera parameters
	sp.Bind(regs.RegExposureTime, regs.Register{
		Name: "ExposureTime",
		Read: func() uint32 { return math.Float32bits(float32(ctl.Exposure())) },
		Write: func(v uint32) error {
			us := float64(math.Float32frombits(v))
			if math.IsNaN(us) || math.IsInf(us, 0) {
				return fmt.Errorf("device: exposure bits 0x%08x: %w", v, regs.ErrInvalidValue)
			}
			return valueErr(ctl.SetExposure(us))
		},
	})
	sp.Bind(regs.RegGain, regs.Register{
		Name:  "Gain",
		Read:  func() uint32 { return uint32(ctl.Gain()) },
		Write: func(v uint32) error { return valueErr(ctl.SetGain(int(int32(v)))) },
	})
	sp.Bind(regs.RegBrightness, regs.Register{
		Name:  "Brightness",
		Read:  func() uint32 { return uint32(int32(ctl.Brightness())) },
		Write: func(v uint32) error { return valueErr(ctl.SetBrightness(int(int32(v)))) },
	})
	sp.Bind(regs.RegContrast, regs.Register{
		Name:  "Contrast",
		Read:  func() uint32 { return uint32(int32(ctl.Contrast())) },
		Write: func(v uint32) error { return valueErr(ctl.SetContrast(int(int32(v)))) },
	})
	sp.Bind(regs.RegSaturation, regs.Register{
		Name:  "Saturation",
		Read:  func() uint32 { return uint32(int32(ctl.Saturation())) },
		Write: func(v uint32) error { return valueErr(ctl.SetSaturation(int(int32(v)))) },
	})
	sp.Bind(regs.RegWhiteBalance, regs.Register{
		Name:  "WhiteBalance",
		Read:  func() uint32 { return uint32(ctl.WhiteBalance()) },
		Write: func(v uint32) error { return valueErr(ctl.SetWhiteBalance(int(v))) },
	})
	sp.Bind(regs.RegTriggerMode, regs.Register{
		Name:  "TriggerMode",
		Read:  func() uint32 { return uint32(ctl.TriggerMode()) },
		Write: func(v uint32) error { return valueErr(ctl.SetTriggerMode(int(v))) },
	})
	sp.Bind(regs.RegJPEGQuality, regs.Register{
		Name:  "JPEGQuality",
		Read:  func() uint32 { return uint32(ctl.JPEGQuality()) },
		Write: func(v uint32) error { return valueErr(ctl.SetJPEGQuality(int(v))) },
	})

	// stream channel
	sp.Bind(regs.RegTLParamsLocked, regs.Register{
		Name: "TLParamsLocked",
		Read: func() uint32 { return dev.tlLocked },
		Write: func(v uint32) error {
			dev.tlLocked = v & 1
			return nil
		},
	})
	scps := regs.Register{
		Name: "GevSCPSPacketSize",
		Read: func() uint32 { return dev.scps },
		Write: func(v uint32) error {
			// GigE range, 128-byte aligned. The engine caps the
			// on-wire packet size below the transport MTU.
			if v < 576 || v > 9000 || v%128 != 0 {
				return fmt.Errorf("device: scps %d: %w", v, regs.ErrInvalidValue)
			}
			dev.scps = v
			size := v
			if size > gvsp.MaxPacketSize {
				size = gvsp.MaxPacketSize
			}
			return eng.SetPacketSize(size)
		},
	}
	dev.scps = eng.PacketSize() &^ 127
	if dev.scps < 576 {
		dev.scps = 576
	}
	sp.Bind(regs.RegSCPSPacketSize, scps)
	sp.Bind(regs.RegSCPS, scps)
	sp.Bind(regs.RegSCPD, regs.Register{
		Name:  "GevSCPD",
		Read:  eng.PacketDelay,
		Write: eng.SetPacketDelay,
	})
	sp.Bind(regs.RegSCDA, regs.Register{
		Name: "GevSCDA",
		Read: func() uint32 { return dev.scda },
		Write: func(v uint32) error {
			dev.scda = v
			return nil
		},
	})
	sp.Bind(regs.RegSCPHostPort, regs.Register{
		Name:  "GevSCPHostPort",
		Read:  eng.HostPort,
		Write: eng.SetHostPort,
	})
	sp.Bind(regs.RegSCCfg, regs.Register{
		Name: "GevSCCfg",
		Read: func() uint32 { return dev.sccfg },
		Write: func(v uint32) error {
			dev.sccfg = v
			return nil
		},
	})
	sp.Bind(regs.RegStreamChannels, regs.Register{
		Name: "StreamChannelCount",
		Read: func() uint32 { return 1 },
	})
	sp.Bind(regs.RegNumInterfaces, regs.Register{
		Name: "InterfaceCount",
		Read: func() uint32 { return 1 },
	})
	multipart := regs.Register{
		Name: "MultipartEnable",
		Read: func() uint32 { return b2u(eng.Multipart()) },
		Write: func(v uint32) error {
			eng.SetMultipart(v&1 == 1)
			return nil
		},
	}
	sp.Bind(regs.RegMultipartEnable, multipart)
	sp.Bind(regs.RegMultipartAravis, multipart)
	sp.Bind(regs.RegMultipartCaps, regs.Register{
		Name: "MultipartCaps",
		Read: func() uint32 { return 1 },
	})
	sp.Bind(regs.RegTickFreqHigh, regs.Register{
		Name: "TickFrequencyHigh",
		Read: func() uint32 { return 0 },
	})
	sp.Bind(regs.RegTickFreqLow, regs.Register{
		Name: "TickFrequencyLow",
		Read: func() uint32 { return 1000000 }, // microsecond timestamps
	})

	// statistics, all read-only
	for _, sr := range []struct {
		addr uint32
		name string
		read func() uint32
	}{
		{regs.RegStatTotalCommands, "StatTotalCommands", stats.TotalCommands},
		{regs.RegStatTotalErrors, "StatTotalErrors", stats.TotalErrors},
		{regs.RegStatUnknownCommands, "StatUnknownCommands", stats.UnknownCommands},
		{regs.RegStatPacketsSent, "StatPacketsSent", eng.PacketsSent},
		{regs.RegStatPacketErrors, "StatPacketErrors", eng.PacketErrors},
		{regs.RegStatFramesSent, "StatFramesSent", eng.FramesSent},
		{regs.RegStatFrameErrors, "StatFrameErrors", eng.FrameErrors},
		{regs.RegStatConnection, "StatConnection", stats.ConnStatus},
		{regs.RegStatOutOfOrder, "StatOutOfOrder", func() uint32 {
			_, _, ooo := eng.SeqCounters()
			return ooo
		}},
		{regs.RegStatLost, "StatLost", func() uint32 {
			lost, _, _ := eng.SeqCounters()
			return lost
		}},
		{regs.RegStatDuplicates, "StatDuplicates", func() uint32 {
			_, dups, _ := eng.SeqCounters()
			return dups
		}},
		{regs.RegStatExpectedSeq, "StatExpectedSeq", func() uint32 {
			expected, _ := eng.SeqState()
			return expected
		}},
		{regs.RegStatLastSeq, "StatLastSeq", func() uint32 {
			_, last := eng.SeqState()
			return last
		}},
		{regs.RegStatFramesInRing, "StatFramesInRing", eng.FramesInRing},
		{regs.RegStatConnFailures, "StatConnFailures", eng.Failures},
		{regs.RegStatRecoveryMode, "StatRecoveryMode", func() uint32 {
			return b2u(eng.RecoveryMode())
		}},
	} {
		sp.Bind(sr.addr, regs.Register{Name: sr.name, Read: sr.read})
	}

	// discovery broadcast control
	sp.Bind(regs.RegBcastEnable, regs.Register{
		Name: "BroadcastEnable",
		Read: func() uint32 { return b2u(disc.Enabled()) },
		Write: func(v uint32) error {
			disc.SetEnabled(v != 0)
			return nil
		},
	})
	sp.Bind(regs.RegBcastInterval, regs.Register{
		Name:  "BroadcastInterval",
		Read:  disc.Interval,
		Write: disc.SetInterval,
	})
	sp.Bind(regs.RegBcastSent, regs.Register{Name: "BroadcastSent", Read: disc.Sent})
	sp.Bind(regs.RegBcastFailures, regs.Register{Name: "BroadcastFailures", Read: disc.Failures})
	sp.Bind(regs.RegBcastSequence, regs.Register{Name: "BroadcastSequence", Read: disc.Sequence})
}

// payloadSize returns the byte size of one frame in the current
// format. Compressed formats report a conservative upper bound.
func (dev *Device) payloadSize() uint32 {
	tp, ok := dev.src.(*camera.TestPattern)
	w, h := camera.DefaultWidth, camera.DefaultHeight
	if ok {
		w, h = tp.Size()
	}
	if bpp := dev.ctl.Format().BytesPerPixel(); bpp > 0 {
		return uint32(w * h * bpp)
	}
	return uint32(w * h / 4)
}
