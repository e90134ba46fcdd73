// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device assembles a complete simulated camera: the register
// space, the control server, the discovery responder, the streaming
// engine and the settings store, wired together behind one Run loop.
package device // import "github.com/go-gev/gevcam/device"

import (
	"bytes"
	"context"
	"log"
	"net"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/go-gev/gevcam/camera"
	"github.com/go-gev/gevcam/cfgstore"
	"github.com/go-gev/gevcam/gvcp"
	"github.com/go-gev/gevcam/gvsp"
	"github.com/go-gev/gevcam/internal/genicam"
	"github.com/go-gev/gevcam/regs"
)

// Config describes one device instance.
type Config struct {
	Identity regs.Config

	ControlAddr string // default ":3956"
	StreamAddr  string // default ":50010"

	Width  int
	Height int

	// Multipart starts the engine in multipart transmission mode.
	Multipart bool

	// RawDiscoveryAck selects the legacy raw discovery acknowledge
	// for solicited replies instead of the structured one.
	RawDiscoveryAck bool

	// SettingsPath names the settings file. Empty disables
	// persistence.
	SettingsPath string
}

func (cfg *Config) setDefaults() {
	if cfg.ControlAddr == "" {
		cfg.ControlAddr = ":3956"
	}
	if cfg.StreamAddr == "" {
		cfg.StreamAddr = ":50010"
	}
}

// Device is a running camera simulation.
type Device struct {
	space *regs.Space
	ctl   *camera.Controls
	src   camera.FrameSource
	eng   *gvsp.Engine
	disc  *gvcp.Discovery
	proc  *gvcp.Processor
	srv   *gvcp.Server
	store *cfgstore.Store
	msg   *log.Logger

	// plain stored registers without behaviour of their own. The
	// register space lock serializes all access to them.
	tlLocked uint32
	scps     uint32
	scda     uint32
	sccfg    uint32
	acqMode  uint32
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the log output of the device and its components.
func WithLogger(msg *log.Logger) Option {
	return func(dev *Device) { dev.msg = msg }
}

// WithSource replaces the test-pattern frame source.
func WithSource(src camera.FrameSource) Option {
	return func(dev *Device) { dev.src = src }
}

// WithStore attaches a settings store, overriding Config.SettingsPath.
func WithStore(store *cfgstore.Store) Option {
	return func(dev *Device) { dev.store = store }
}

// New assembles a device and binds its control and stream sockets.
func New(cfg Config, opts ...Option) (*Device, error) {
	cfg.setDefaults()

	dev := &Device{
		ctl: camera.NewControls(),
		msg: log.New(os.Stdout, "gevcam: ", 0),
	}
	for _, opt := range opts {
		opt(dev)
	}

	if dev.store == nil && cfg.SettingsPath != "" {
		store, err := cfgstore.Open(cfg.SettingsPath)
		if err != nil {
			return nil, xerrors.Errorf("device: could not open settings: %w", err)
		}
		dev.store = store
	}

	var st cfgstore.Settings
	if dev.store != nil {
		var err error
		st, err = dev.store.Load()
		if err != nil {
			return nil, xerrors.Errorf("device: could not load settings: %w", err)
		}
		if st.Device.UserName != "" {
			cfg.Identity.UserName = st.Device.UserName
		}
	}

	if dev.src == nil {
		dev.src = camera.NewTestPattern(dev.ctl, cfg.Width, cfg.Height)
	}

	dev.space = regs.New(cfg.Identity, genicam.XML())

	stats := &gvcp.Stats{}
	eng, err := gvsp.New(dev.src,
		gvsp.WithListen(cfg.StreamAddr),
		gvsp.WithStats(stats),
		gvsp.WithLogger(dev.msg),
		gvsp.WithMultipart(cfg.Multipart),
	)
	if err != nil {
		return nil, err
	}
	dev.eng = eng

	dev.disc = gvcp.NewDiscovery(dev.space,
		gvcp.WithStructuredAck(!cfg.RawDiscoveryAck),
		gvcp.WithDiscLogger(dev.msg),
	)
	dev.proc = gvcp.NewProcessor(dev.space, dev.eng, dev.disc, stats,
		gvcp.WithProcLogger(dev.msg),
	)

	srv, err := gvcp.NewServer(cfg.ControlAddr, dev.proc, dev.disc,
		gvcp.WithSrvLogger(dev.msg),
	)
	if err != nil {
		return nil, err
	}
	dev.srv = srv

	dev.bindRegisters()
	if dev.store != nil {
		dev.applySettings(st)
	}
	dev.publishAddr()
	return dev, nil
}

// publishAddr mirrors the bound control address into the current IP
// register when the socket is bound to a concrete interface.
func (dev *Device) publishAddr() {
	udp, ok := dev.srv.Addr().(*net.UDPAddr)
	if !ok || udp.IP == nil || udp.IP.IsUnspecified() {
		return
	}
	dev.space.SetIP(udp.IP, net.IPv4(255, 255, 255, 0), nil)
}

// applySettings pushes stored settings into the live components.
// Invalid stored values are logged and skipped.
func (dev *Device) applySettings(st cfgstore.Settings) {
	apply := func(name string, err error) {
		if err != nil {
			dev.msg.Printf("stored %s ignored: %v", name, err)
		}
	}
	apply("heartbeat", dev.space.WriteReg(regs.RegHeartbeatTimeout, st.Control.HeartbeatMs))
	apply("pixel format", dev.ctl.SetFormat(camera.Format(st.Camera.Format)))
	apply("gain", dev.ctl.SetGain(st.Camera.Gain))
	apply("exposure", dev.ctl.SetExposure(st.Camera.ExposureUs))
	apply("jpeg quality", dev.ctl.SetJPEGQuality(st.Camera.JPEGQuality))
	apply("packet size", dev.eng.SetPacketSize(st.Stream.PacketSize))
	apply("packet delay", dev.eng.SetPacketDelay(st.Stream.PacketDelay))
	apply("frame rate", dev.eng.SetFrameRate(st.Stream.FrameRate))
	dev.eng.SetMultipart(st.Stream.Multipart)
	apply("broadcast interval", dev.disc.SetInterval(st.Discovery.IntervalMs))
	dev.disc.SetEnabled(st.Discovery.Enabled)
}

// Persist writes the current device settings to the store.
func (dev *Device) Persist() error {
	if dev.store == nil {
		return nil
	}
	st, err := dev.store.Load()
	if err != nil {
		return err
	}

	name := dev.space.ReadMem(regs.RegUserName, regs.UserNameSize)
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	st.Device.UserName = string(name)
	st.Control.HeartbeatMs = dev.space.ReadReg(regs.RegHeartbeatTimeout)
	st.Discovery.Enabled = dev.disc.Enabled()
	st.Discovery.IntervalMs = dev.disc.Interval()
	st.Stream.PacketSize = dev.eng.PacketSize()
	st.Stream.PacketDelay = dev.eng.PacketDelay()
	st.Stream.FrameRate = dev.eng.FrameRate()
	st.Stream.Multipart = dev.eng.Multipart()
	st.Camera.Format = uint32(dev.ctl.Format())
	st.Camera.Gain = dev.ctl.Gain()
	st.Camera.ExposureUs = dev.ctl.Exposure()
	st.Camera.JPEGQuality = dev.ctl.JPEGQuality()

	return dev.store.Save(st)
}

// Run serves the control and stream channels until the context is
// cancelled, then persists the settings.
func (dev *Device) Run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return dev.srv.Run(ctx) })
	grp.Go(func() error { return dev.eng.Run(ctx) })
	err := grp.Wait()

	if perr := dev.Persist(); perr != nil {
		dev.msg.Printf("could not persist settings: %v", perr)
	}
	return err
}

// ControlAddr returns the bound control socket address.
func (dev *Device) ControlAddr() net.Addr { return dev.srv.Addr() }

// StreamAddr returns the bound stream socket address.
func (dev *Device) StreamAddr() net.Addr { return dev.eng.Addr() }

// Space returns the device register space.
func (dev *Device) Space() *regs.Space { return dev.space }

// Controls returns the camera parameter state.
func (dev *Device) Controls() *camera.Controls { return dev.ctl }

// Engine returns the streaming engine.
func (dev *Device) Engine() *gvsp.Engine { return dev.eng }

// Stats returns the shared counters and connection status.
func (dev *Device) Stats() *gvcp.Stats { return dev.proc.Stats() }
