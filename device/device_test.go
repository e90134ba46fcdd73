// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gev/gevcam/cfgstore"
	"github.com/go-gev/gevcam/gvcp"
	"github.com/go-gev/gevcam/gvsp"
	"github.com/go-gev/gevcam/regs"
)

func newTestDevice(t *testing.T, cfg Config) (*Device, *gvcp.Client, net.PacketConn, func()) {
	t.Helper()

	cfg.ControlAddr = "127.0.0.1:0"
	cfg.StreamAddr = "127.0.0.1:0"
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = 8, 4
	}

	dev, err := New(cfg, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errch := make(chan error)
	go func() { errch <- dev.Run(ctx) }()

	cli, err := gvcp.Dial(dev.ControlAddr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("could not dial device: %+v", err)
	}

	sink, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not bind stream sink: %+v", err)
	}

	stop := func() {
		cancel()
		select {
		case err := <-errch:
			if err != nil {
				t.Errorf("device run failed: %+v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("device did not stop")
		}
		cli.Close()
		sink.Close()
	}
	return dev, cli, sink, stop
}

func recvStream(t *testing.T, conn net.PacketConn, n int) []gvsp.Packet {
	t.Helper()
	pkts := make([]gvsp.Packet, 0, n)
	buf := make([]byte, 4096)
	for len(pkts) < n {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		m, _, err := conn.ReadFrom(buf)
		if err != nil {
			t.Fatalf("could not read stream packet %d: %+v", len(pkts), err)
		}
		pkt, err := gvsp.DecodePacket(buf[:m])
		if err != nil {
			t.Fatalf("could not decode stream packet: %+v", err)
		}
		pkts = append(pkts, pkt)
	}
	return pkts
}

func TestDevice(t *testing.T) {
	dev, cli, sink, stop := newTestDevice(t, Config{})
	defer stop()

	boot, err := cli.Discover()
	if err != nil {
		t.Fatalf("could not discover device: %+v", err)
	}
	if got, want := len(boot), regs.DiscoveryPayloadSize; got != want {
		t.Fatalf("discovery payload: got=%d, want=%d", got, want)
	}

	sinkPort := uint32(sink.LocalAddr().(*net.UDPAddr).Port)
	if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegSCPHostPort, Value: sinkPort}); err != nil {
		t.Fatalf("could not set host port: %+v", err)
	}

	t.Run("registers", func(t *testing.T) {
		vals, err := cli.ReadReg(regs.RegPayloadSize, regs.RegStreamStatus, regs.RegTickFreqLow)
		if err != nil {
			t.Fatalf("could not read registers: %+v", err)
		}
		if got, want := vals[0], uint32(8*4); got != want {
			t.Fatalf("payload size: got=%d, want=%d", got, want)
		}
		if vals[1] != 0 {
			t.Fatalf("stream status before start: got=%d", vals[1])
		}
		if got, want := vals[2], uint32(1000000); got != want {
			t.Fatalf("tick frequency: got=%d, want=%d", got, want)
		}
	})

	t.Run("float-registers", func(t *testing.T) {
		bits := math.Float32bits(15)
		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegFrameRate, Value: bits}); err != nil {
			t.Fatalf("could not set frame rate: %+v", err)
		}
		vals, err := cli.ReadReg(regs.RegFrameRate)
		if err != nil {
			t.Fatalf("could not read frame rate: %+v", err)
		}
		if vals[0] != bits {
			t.Fatalf("frame rate bits: got=0x%08x, want=0x%08x", vals[0], bits)
		}
		if got := dev.Engine().FrameRate(); got != 15 {
			t.Fatalf("engine frame rate: got=%g, want=15", got)
		}

		bad := math.Float32bits(100)
		err = cli.WriteReg(gvcp.RegVal{Addr: regs.RegFrameRate, Value: bad})
		if !errors.Is(err, gvcp.StatusInvalidParameter) {
			t.Fatalf("got err=%v, want %v", err, gvcp.StatusInvalidParameter)
		}

		exp := math.Float32bits(5000)
		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegExposureTime, Value: exp}); err != nil {
			t.Fatalf("could not set exposure: %+v", err)
		}
		if got := dev.Controls().Exposure(); got != 5000 {
			t.Fatalf("exposure: got=%g, want=5000", got)
		}
	})

	t.Run("signed-registers", func(t *testing.T) {
		neg := uint32(0xFFFFFFFF) // -1
		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegBrightness, Value: neg}); err != nil {
			t.Fatalf("could not set brightness: %+v", err)
		}
		vals, err := cli.ReadReg(regs.RegBrightness)
		if err != nil {
			t.Fatalf("could not read brightness: %+v", err)
		}
		if vals[0] != neg {
			t.Fatalf("brightness: got=0x%08x, want=0x%08x", vals[0], neg)
		}
	})

	t.Run("scps", func(t *testing.T) {
		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegSCPSPacketSize, Value: 1280}); err != nil {
			t.Fatalf("could not set scps: %+v", err)
		}
		if got := dev.Engine().PacketSize(); got != 1280 {
			t.Fatalf("packet size: got=%d, want=1280", got)
		}
		// unaligned sizes are rejected
		err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegSCPSPacketSize, Value: 700})
		if !errors.Is(err, gvcp.StatusInvalidParameter) {
			t.Fatalf("got err=%v, want %v", err, gvcp.StatusInvalidParameter)
		}
	})

	t.Run("streaming", func(t *testing.T) {
		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegAcquisitionStart, Value: 1}); err != nil {
			t.Fatalf("could not start acquisition: %+v", err)
		}
		pkts := recvStream(t, sink, 3)
		if pkts[0].Header.Type != gvsp.TypeLeader {
			t.Fatalf("first packet type: got=%d", pkts[0].Header.Type)
		}
		if pkts[0].Leader.SizeX != 8 || pkts[0].Leader.SizeY != 4 {
			t.Fatalf("leader geometry: %dx%d", pkts[0].Leader.SizeX, pkts[0].Leader.SizeY)
		}

		vals, err := cli.ReadReg(regs.RegStreamStatus, regs.RegStatFramesSent)
		if err != nil {
			t.Fatalf("could not read stream stats: %+v", err)
		}
		if vals[0] != 1 {
			t.Fatalf("stream status: got=%d, want=1", vals[0])
		}
		if vals[1] == 0 {
			t.Fatalf("no frames counted")
		}

		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegAcquisitionStop, Value: 1}); err != nil {
			t.Fatalf("could not stop acquisition: %+v", err)
		}
		vals, err = cli.ReadReg(regs.RegStreamStatus, regs.RegStatFramesInRing)
		if err != nil {
			t.Fatalf("could not read after stop: %+v", err)
		}
		if vals[0] != 0 {
			t.Fatalf("stream status after stop: got=%d", vals[0])
		}
		if vals[1] != 0 {
			t.Fatalf("ring after stop: got=%d frames", vals[1])
		}
	})

	t.Run("broadcast-control", func(t *testing.T) {
		if err := cli.WriteReg(
			gvcp.RegVal{Addr: regs.RegBcastEnable, Value: 1},
			gvcp.RegVal{Addr: regs.RegBcastInterval, Value: 2000},
		); err != nil {
			t.Fatalf("could not enable broadcasts: %+v", err)
		}
		vals, err := cli.ReadReg(regs.RegBcastEnable, regs.RegBcastInterval)
		if err != nil {
			t.Fatalf("could not read broadcast regs: %+v", err)
		}
		if vals[0] != 1 || vals[1] != 2000 {
			t.Fatalf("broadcast regs: got=%v", vals)
		}

		err = cli.WriteReg(gvcp.RegVal{Addr: regs.RegBcastInterval, Value: 100})
		if !errors.Is(err, gvcp.StatusInvalidParameter) {
			t.Fatalf("got err=%v, want %v", err, gvcp.StatusInvalidParameter)
		}
		// the stored interval survives the rejected write.
		if got := dev.disc.Interval(); got != 2000 {
			t.Fatalf("interval after reject: got=%d, want=2000", got)
		}

		if err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegBcastEnable, Value: 0}); err != nil {
			t.Fatalf("could not disable broadcasts: %+v", err)
		}
	})

	t.Run("stats-read-only", func(t *testing.T) {
		err := cli.WriteReg(gvcp.RegVal{Addr: regs.RegStatTotalCommands, Value: 0})
		if !errors.Is(err, gvcp.StatusAccessDenied) {
			t.Fatalf("got err=%v, want %v", err, gvcp.StatusAccessDenied)
		}
	})
}

func TestDevicePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gevcam.yaml")

	_, cli, _, stop := newTestDevice(t, Config{SettingsPath: path})

	name := make([]byte, regs.UserNameSize)
	copy(name, "line-3-cam")
	if err := cli.WriteMem(regs.RegUserName, name); err != nil {
		t.Fatalf("could not write user name: %+v", err)
	}
	if err := cli.WriteReg(
		gvcp.RegVal{Addr: regs.RegHeartbeatTimeout, Value: 10000},
		gvcp.RegVal{Addr: regs.RegGain, Value: 7},
	); err != nil {
		t.Fatalf("could not write settings: %+v", err)
	}

	stop() // persists on shutdown

	store, err := cfgstore.Open(path)
	if err != nil {
		t.Fatalf("could not reopen store: %+v", err)
	}
	st, err := store.Load()
	if err != nil {
		t.Fatalf("could not load settings: %+v", err)
	}
	if st.Device.UserName != "line-3-cam" {
		t.Errorf("user name: got=%q, want=%q", st.Device.UserName, "line-3-cam")
	}
	if st.Control.HeartbeatMs != 10000 {
		t.Errorf("heartbeat: got=%d, want=10000", st.Control.HeartbeatMs)
	}
	if st.Camera.Gain != 7 {
		t.Errorf("gain: got=%d, want=7", st.Camera.Gain)
	}

	// a fresh device picks the persisted settings up.
	dev, err := New(Config{
		ControlAddr:  "127.0.0.1:0",
		StreamAddr:   "127.0.0.1:0",
		SettingsPath: path,
	}, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not recreate device: %+v", err)
	}
	if got := dev.Controls().Gain(); got != 7 {
		t.Errorf("restored gain: got=%d, want=7", got)
	}
	if got := dev.Space().ReadReg(regs.RegHeartbeatTimeout); got != 10000 {
		t.Errorf("restored heartbeat: got=%d, want=10000", got)
	}
}
