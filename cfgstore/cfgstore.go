// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cfgstore persists device settings across restarts. The
// store is best effort: a missing or unreadable file yields the
// defaults, and the device keeps running when a save fails.
package cfgstore // import "github.com/go-gev/gevcam/cfgstore"

import (
	"os"
	"sync"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/go-gev/gevcam/camera"
	"github.com/go-gev/gevcam/gvsp"
)

// Settings are the device parameters worth keeping across restarts.
type Settings struct {
	Device struct {
		UserName string `mapstructure:"user_name"`
	} `mapstructure:"device"`

	Control struct {
		HeartbeatMs uint32 `mapstructure:"heartbeat_ms"`
	} `mapstructure:"control"`

	Discovery struct {
		Enabled    bool   `mapstructure:"enabled"`
		IntervalMs uint32 `mapstructure:"interval_ms"`
	} `mapstructure:"discovery"`

	Stream struct {
		PacketSize  uint32  `mapstructure:"packet_size"`
		PacketDelay uint32  `mapstructure:"packet_delay"`
		FrameRate   float64 `mapstructure:"frame_rate"`
		Multipart   bool    `mapstructure:"multipart"`
	} `mapstructure:"stream"`

	Camera struct {
		Format      uint32  `mapstructure:"format"`
		Gain        int     `mapstructure:"gain"`
		ExposureUs  float64 `mapstructure:"exposure_us"`
		JPEGQuality int     `mapstructure:"jpeg_quality"`
	} `mapstructure:"camera"`
}

// Store reads and writes one settings file.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// Open returns a store over the given file. A file that does not
// exist yet is not an error: loads return the defaults until the
// first save.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, xerrors.Errorf("cfgstore: could not read %q: %w", path, err)
	}
	return &Store{v: v, path: path}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.user_name", "")
	v.SetDefault("control.heartbeat_ms", 3000)
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.interval_ms", 5000)
	v.SetDefault("stream.packet_size", gvsp.DefaultPacketSize)
	v.SetDefault("stream.packet_delay", gvsp.DefaultPacketDelay)
	v.SetDefault("stream.frame_rate", gvsp.DefaultFrameRate)
	v.SetDefault("stream.multipart", false)
	v.SetDefault("camera.format", uint32(camera.Mono8))
	v.SetDefault("camera.gain", 0)
	v.SetDefault("camera.exposure_us", 10000)
	v.SetDefault("camera.jpeg_quality", 12)
}

// Load returns the stored settings, with defaults filled in for
// anything the file does not carry.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Settings
	if err := s.v.Unmarshal(&st); err != nil {
		return Settings{}, xerrors.Errorf("cfgstore: could not decode %q: %w", s.path, err)
	}
	return st, nil
}

// Save writes the settings to the file, replacing its contents.
func (s *Store) Save(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set("device.user_name", st.Device.UserName)
	s.v.Set("control.heartbeat_ms", st.Control.HeartbeatMs)
	s.v.Set("discovery.enabled", st.Discovery.Enabled)
	s.v.Set("discovery.interval_ms", st.Discovery.IntervalMs)
	s.v.Set("stream.packet_size", st.Stream.PacketSize)
	s.v.Set("stream.packet_delay", st.Stream.PacketDelay)
	s.v.Set("stream.frame_rate", st.Stream.FrameRate)
	s.v.Set("stream.multipart", st.Stream.Multipart)
	s.v.Set("camera.format", st.Camera.Format)
	s.v.Set("camera.gain", st.Camera.Gain)
	s.v.Set("camera.exposure_us", st.Camera.ExposureUs)
	s.v.Set("camera.jpeg_quality", st.Camera.JPEGQuality)

	if err := s.v.WriteConfigAs(s.path); err != nil {
		return xerrors.Errorf("cfgstore: could not write %q: %w", s.path, err)
	}
	return nil
}
