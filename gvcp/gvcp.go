// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gvcp implements the device side of the GVCP control
// protocol: command decoding, register and memory access, discovery
// and the UDP serving loop.
package gvcp // import "github.com/go-gev/gevcam/gvcp"

import "fmt"

// Port is the standard GVCP control port.
const Port = 3956

// Packet types.
const (
	TypeCmd   = 0x42
	TypeAck   = 0x00
	TypeError = 0x80
)

// Header flags.
const FlagAckRequired = 0x01

// Command codes and their acknowledge forms. The acknowledge code is
// always the command code plus one.
const (
	CmdDiscovery    = 0x0002
	AckDiscovery    = 0x0003
	CmdPacketResend = 0x0040
	AckPacketResend = 0x0041
	CmdReadReg      = 0x0080
	AckReadReg      = 0x0081
	CmdWriteReg     = 0x0082
	AckWriteReg     = 0x0083
	CmdReadMem      = 0x0084
	AckReadMem      = 0x0085
	CmdWriteMem     = 0x0086
	AckWriteMem     = 0x0087
)

// Status is a GVCP error status carried in NACK packets.
type Status uint16

// NACK status codes.
const (
	StatusNotImplemented   Status = 0x8001
	StatusInvalidParameter Status = 0x8002
	StatusInvalidAddress   Status = 0x8003
	StatusWriteProtect     Status = 0x8004
	StatusBadAlignment     Status = 0x8005
	StatusAccessDenied     Status = 0x8006
	// StatusBusy is reserved for allocation pressure on large
	// reads; the read-size clamps keep it unreachable here.
	StatusBusy             Status = 0x8007
	StatusMsgTimeout       Status = 0x800B
	StatusInvalidHeader    Status = 0x800E
	StatusWrongConfig      Status = 0x800F
)

func (st Status) String() string {
	switch st {
	case StatusNotImplemented:
		return "not-implemented"
	case StatusInvalidParameter:
		return "invalid-parameter"
	case StatusInvalidAddress:
		return "invalid-address"
	case StatusWriteProtect:
		return "write-protect"
	case StatusBadAlignment:
		return "bad-alignment"
	case StatusAccessDenied:
		return "access-denied"
	case StatusBusy:
		return "busy"
	case StatusMsgTimeout:
		return "msg-timeout"
	case StatusInvalidHeader:
		return "invalid-header"
	case StatusWrongConfig:
		return "wrong-config"
	}
	return fmt.Sprintf("status(0x%04x)", uint16(st))
}

// Error implements error so a NACK status can travel up a call chain.
func (st Status) Error() string {
	return fmt.Sprintf("gvcp: nack %s (0x%04x)", st.String(), uint16(st))
}

// Memory read caps. Reads inside the XML region may use the large
// cap; everything else is clamped to the default.
const (
	MaxReadSize    = 512
	MaxReadSizeXML = 8192
	MaxWriteSize   = 512
)

// Header is the 8-byte GVCP datagram header. Size counts the payload
// in 32-bit words.
type Header struct {
	Type    uint8
	Flags   uint8
	Command uint16
	Size    uint16
	ID      uint16
}

// HeaderSize is the wire size of a Header.
const HeaderSize = 8

// PayloadLen returns the declared payload length in bytes.
func (h Header) PayloadLen() int { return int(h.Size) * 4 }
