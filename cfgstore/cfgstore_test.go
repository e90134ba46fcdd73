// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfgstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gev/gevcam/camera"
)

func TestStoreDefaults(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "gevcam.yaml"))
	if err != nil {
		t.Fatalf("could not open store: %+v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("could not load settings: %+v", err)
	}
	if got, want := st.Control.HeartbeatMs, uint32(3000); got != want {
		t.Fatalf("heartbeat: got=%d, want=%d", got, want)
	}
	if got, want := st.Stream.FrameRate, 10.0; got != want {
		t.Fatalf("frame rate: got=%g, want=%g", got, want)
	}
	if got, want := st.Camera.Format, uint32(camera.Mono8); got != want {
		t.Fatalf("format: got=0x%08x, want=0x%08x", got, want)
	}
	if st.Discovery.Enabled {
		t.Fatalf("discovery enabled by default")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gevcam.yaml")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("could not open store: %+v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("could not load settings: %+v", err)
	}
	st.Device.UserName = "hall-cam"
	st.Control.HeartbeatMs = 10000
	st.Stream.PacketSize = 900
	st.Stream.Multipart = true
	st.Camera.Format = uint32(camera.JPEG)
	st.Camera.JPEGQuality = 20

	if err := store.Save(st); err != nil {
		t.Fatalf("could not save settings: %+v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file missing: %+v", err)
	}

	// reopen and verify the file carries the values.
	store2, err := Open(path)
	if err != nil {
		t.Fatalf("could not reopen store: %+v", err)
	}
	got, err := store2.Load()
	if err != nil {
		t.Fatalf("could not reload settings: %+v", err)
	}
	if got.Device.UserName != "hall-cam" {
		t.Errorf("user name: got=%q, want=%q", got.Device.UserName, "hall-cam")
	}
	if got.Control.HeartbeatMs != 10000 {
		t.Errorf("heartbeat: got=%d, want=10000", got.Control.HeartbeatMs)
	}
	if got.Stream.PacketSize != 900 {
		t.Errorf("packet size: got=%d, want=900", got.Stream.PacketSize)
	}
	if !got.Stream.Multipart {
		t.Errorf("multipart not persisted")
	}
	if got.Camera.Format != uint32(camera.JPEG) {
		t.Errorf("format: got=0x%08x", got.Camera.Format)
	}
	// untouched keys keep their defaults.
	if got.Stream.FrameRate != 10.0 {
		t.Errorf("frame rate: got=%g, want=10", got.Stream.FrameRate)
	}
}

func TestStoreBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gevcam.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("could not write file: %+v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("open succeeded on corrupt file, want error")
	}
}
