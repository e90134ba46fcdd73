// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regs

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Config describes the device identity published through the
// bootstrap registers.
type Config struct {
	MAC          net.HardwareAddr
	IP           net.IP
	SubnetMask   net.IP
	Gateway      net.IP
	LinkSpeed    uint32 // bit/s
	Manufacturer string
	Model        string
	Version      string
	Serial       string
	UserName     string
}

func (cfg *Config) setDefaults() {
	if cfg.MAC == nil {
		cfg.MAC = net.HardwareAddr{0x02, 0x00, 0x00, 0xC0, 0xFF, 0xEE}
	}
	if cfg.LinkSpeed == 0 {
		cfg.LinkSpeed = 100000000
	}
	if cfg.Manufacturer == "" {
		cfg.Manufacturer = "go-gev"
	}
	if cfg.Model == "" {
		cfg.Model = "GevCam"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Serial == "" {
		cfg.Serial = "GEVCAM001"
	}
	if cfg.UserName == "" {
		cfg.UserName = "gevcam"
	}
}

// initBootstrap fills the bootstrap memory block from the device
// identity. Write order matters: the network configuration registers
// overlap the 128-bit UUID words and are written last.
func (sp *Space) initBootstrap(cfg Config) {
	mem := sp.bootstrap[:]

	putU32 := func(off uint32, v uint32) {
		binary.BigEndian.PutUint32(mem[off:off+4], v)
	}
	putStr := func(off uint32, size int, s string) {
		if len(s) > size-1 {
			s = s[:size-1]
		}
		copy(mem[off:off+uint32(size)], s)
	}

	putU32(RegVersion, 0x00010000)    // major=1, minor=0
	putU32(RegDeviceMode, 0x80000000) // big-endian, UTF-8
	putU32(RegDeviceCaps, 0x00000001)

	mac := cfg.MAC
	putU32(RegMACHigh, uint32(mac[0])<<8|uint32(mac[1]))
	putU32(RegMACLow, uint32(mac[2])<<24|uint32(mac[3])<<16|uint32(mac[4])<<8|uint32(mac[5]))

	copy(mem[RegUUID:RegUUID+16], deviceUUID(mac, cfg.Model, cfg.Version, cfg.Serial))

	putU32(RegSupportedIPConfig, 0x00000006) // DHCP + AutoIP
	putU32(RegCurrentIPConfig, 0x00000002)   // DHCP active
	putU32(RegLinkSpeed, cfg.LinkSpeed)
	sp.setIPLocked(cfg.IP, cfg.SubnetMask, cfg.Gateway)

	putStr(RegManufacturer, 32, cfg.Manufacturer)
	putStr(RegModel, 32, cfg.Model)
	putStr(RegDeviceVersion, 32, cfg.Version)
	putStr(RegSerial, 16, cfg.Serial)
	putStr(RegUserName, 16, cfg.UserName)

	putU32(RegXMLURLPointer, RegXMLURL)

	url := fmt.Sprintf("Local:camera.xml;0x%X;0x%X", XMLBase, len(sp.xml))
	putStr(RegXMLURL, int(RegHeartbeatTimeout-RegXMLURL), url)
	putStr(RegXMLURLAravis, int(RegHeartbeatTimeout-RegXMLURLAravis), url)

	putU32(RegHeartbeatTimeout, 3000) // ms
}

// SetIP updates the current IP address, subnet mask and gateway
// registers, typically once the control socket is bound.
func (sp *Space) SetIP(ip, mask, gw net.IP) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.setIPLocked(ip, mask, gw)
}

func (sp *Space) setIPLocked(ip, mask, gw net.IP) {
	put := func(off uint32, v net.IP) {
		if v4 := v.To4(); v4 != nil {
			copy(sp.bootstrap[off:off+4], v4)
		}
	}
	put(RegCurrentIP, ip)
	put(RegSubnetMask, mask)
	put(RegGateway, gw)
}

// deviceUUID derives a stable 128-bit device identifier from the MAC
// address and the identity strings.
func deviceUUID(mac net.HardwareAddr, model, version, serial string) []byte {
	var in []byte
	in = append(in, mac...)
	in = append(in, model...)
	in = append(in, version...)
	in = append(in, serial...)

	uuid := make([]byte, 16)
	for i, seed := range [4]uint32{0x12345678, 0x9ABCDEF0, 0xFEDCBA98, 0x76543210} {
		binary.BigEndian.PutUint32(uuid[4*i:], mixHash(in, seed))
	}
	return uuid
}

func mixHash(p []byte, seed uint32) uint32 {
	h := seed
	for _, b := range p {
		h = h*31 + uint32(b)
		h ^= h >> 16
	}
	return h
}
