// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regs

import (
	"bytes"
	"net"
	"testing"
)

func TestSetIP(t *testing.T) {
	sp := newTestSpace()
	sp.SetIP(
		net.IPv4(10, 0, 0, 7),
		net.IPv4(255, 0, 0, 0),
		net.IPv4(10, 0, 0, 1),
	)

	for _, tc := range []struct {
		name string
		addr uint32
		want uint32
	}{
		{"ip", RegCurrentIP, 0x0A000007},
		{"mask", RegSubnetMask, 0xFF000000},
		{"gateway", RegGateway, 0x0A000001},
	} {
		if got := sp.ReadReg(tc.addr); got != tc.want {
			t.Errorf("%s: got=0x%08x, want=0x%08x", tc.name, got, tc.want)
		}
	}
}

func TestDeviceUUID(t *testing.T) {
	mac := net.HardwareAddr{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}

	u1 := deviceUUID(mac, "GevCam", "1.0.0", "GEVCAM042")
	u2 := deviceUUID(mac, "GevCam", "1.0.0", "GEVCAM042")
	if !bytes.Equal(u1, u2) {
		t.Fatalf("uuid not deterministic: %x != %x", u1, u2)
	}

	u3 := deviceUUID(mac, "GevCam", "1.0.0", "GEVCAM043")
	if bytes.Equal(u1, u3) {
		t.Fatalf("uuid does not depend on serial: %x", u1)
	}
	if len(u1) != 16 {
		t.Fatalf("uuid size: got=%d, want=16", len(u1))
	}
}
