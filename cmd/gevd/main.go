// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// gevd runs a simulated GigE-Vision-style camera: a GVCP control
// server, a periodic discovery announcer and a GVSP streaming engine
// fed by a test-pattern source.
//
// Usage: gevd [OPTIONS]
//
// Example:
//
//	$> gevd -name bench-cam -settings /var/lib/gevd/settings.yaml
//	gevd: control on [::]:3956
//	gevd: stream on [::]:50010
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-gev/gevcam/device"
)

func main() {
	log.SetPrefix("gevd: ")
	log.SetFlags(0)

	var (
		ctlAddr   = flag.String("addr", ":3956", "control channel listen address")
		strAddr   = flag.String("stream", ":50010", "stream channel listen address")
		mac       = flag.String("mac", "", "device MAC address (e.g. 02:00:00:c0:ff:ee)")
		name      = flag.String("name", "", "user-defined device name")
		serial    = flag.String("serial", "", "device serial number")
		width     = flag.Int("width", 320, "frame width in pixels")
		height    = flag.Int("height", 240, "frame height in pixels")
		settings  = flag.String("settings", "", "path to the settings file (empty disables persistence)")
		multipart = flag.Bool("multipart", false, "start in multipart transmission mode")
		rawDisc   = flag.Bool("raw-discovery", false, "use the legacy raw discovery acknowledge")
	)
	flag.Parse()

	cfg := device.Config{
		ControlAddr:     *ctlAddr,
		StreamAddr:      *strAddr,
		Width:           *width,
		Height:          *height,
		Multipart:       *multipart,
		RawDiscoveryAck: *rawDisc,
		SettingsPath:    *settings,
	}
	cfg.Identity.UserName = *name
	cfg.Identity.Serial = *serial
	if *mac != "" {
		hw, err := net.ParseMAC(*mac)
		if err != nil {
			log.Fatalf("could not parse MAC %q: %+v", *mac, err)
		}
		cfg.Identity.MAC = hw
	}

	dev, err := device.New(cfg, device.WithLogger(log.Default()))
	if err != nil {
		log.Fatalf("could not create device: %+v", err)
	}
	log.Printf("control on %v", dev.ControlAddr())
	log.Printf("stream on %v", dev.StreamAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dev.Run(ctx); err != nil {
		log.Fatalf("device failed: %+v", err)
	}
	log.Printf("bye")
}
