// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs implements the register space of a GigE-Vision-style
// camera device: the bootstrap memory block, the GenICam XML blob
// region and the virtual registers bound to device behaviour.
package regs // import "github.com/go-gev/gevcam/regs"

// Bootstrap register addresses.
//
// The layout follows the GigE Vision bootstrap register map. The
// 128-bit device UUID shares its words with the gateway and IP
// configuration registers, which take precedence once the network
// comes up.
const (
	RegVersion           = 0x0000
	RegDeviceMode        = 0x0004
	RegMACHigh           = 0x0008
	RegMACLow            = 0x000C
	RegDeviceCaps        = 0x0010
	RegSubnetMask        = 0x0014
	RegGateway           = 0x0018
	RegUUID              = 0x0018 // 16 bytes
	RegCurrentIPConfig   = 0x001C
	RegSupportedIPConfig = 0x0020
	RegCurrentIP         = 0x0024
	RegLinkSpeed         = 0x002C
	RegManufacturer      = 0x0048 // 32 bytes
	RegModel             = 0x0068 // 32 bytes
	RegDeviceVersion     = 0x0088 // 32 bytes
	RegSerial            = 0x00D8 // 16 bytes
	RegUserName          = 0x00E8 // 16 bytes, writable
	RegCCP               = 0x0200
	RegCCPKey            = 0x0204
	RegXMLURL            = 0x0220
	RegXMLURLPointer     = 0x0064
	RegXMLURLAravis      = 0x0400 // fallback copy of the XML URL
	RegHeartbeatTimeout  = 0x0934
)

// Memory regions.
const (
	BootstrapSize = 0x0940
	XMLBase       = 0x00010000

	UserNameSize = 16

	// DiscoveryPayloadSize is the number of leading bootstrap bytes
	// returned in a discovery acknowledge.
	DiscoveryPayloadSize = 0xF8
)

// Standard stream channel registers.
const (
	RegTLParamsLocked  = 0x0A00
	RegSCPSPacketSize  = 0x0A04
	RegSCPD            = 0x0A08
	RegSCDA            = 0x0A10
	RegStreamChannels  = 0x0D00
	RegNumInterfaces   = 0x0D04
	RegSCPHostPort     = 0x0D10
	RegSCPS            = 0x0D14
	RegSCCfg           = 0x0D20
	RegMultipartEnable = 0x0D24
	RegMultipartAravis = 0x0D30
	RegMultipartCaps   = 0x0D34
	RegTickFreqHigh    = 0x0D40
	RegTickFreqLow     = 0x0D44
)

// GenICam virtual registers.
const (
	RegAcquisitionStart = 0x1000
	RegAcquisitionStop  = 0x1004
	RegAcquisitionMode  = 0x1008
	RegPixelFormat      = 0x100C
	RegPacketDelay      = 0x1010
	RegFrameRate        = 0x1014 // IEEE-754 float bits
	RegPacketSize       = 0x1018
	RegStreamStatus     = 0x101C
	RegPayloadSize      = 0x1020
	RegJPEGQuality      = 0x1024
	RegExposureTime     = 0x1030 // IEEE-754 float bits
	RegGain             = 0x1034
	RegBrightness       = 0x1038
	RegContrast         = 0x103C
	RegSaturation       = 0x1040
	RegWhiteBalance     = 0x1044
	RegTriggerMode      = 0x1048
)

// Statistics registers (read-only).
const (
	RegStatTotalCommands   = 0x1070
	RegStatTotalErrors     = 0x1074
	RegStatUnknownCommands = 0x1078
	RegStatPacketsSent     = 0x107C
	RegStatPacketErrors    = 0x1080
	RegStatFramesSent      = 0x1084
	RegStatFrameErrors     = 0x1088
	RegStatConnection      = 0x108C
	RegStatOutOfOrder      = 0x1090
	RegStatLost            = 0x1094
	RegStatDuplicates      = 0x1098
	RegStatExpectedSeq     = 0x109C
	RegStatLastSeq         = 0x10A0
	RegStatFramesInRing    = 0x10A4
	RegStatConnFailures    = 0x10A8
	RegStatRecoveryMode    = 0x10AC
)

// Discovery broadcast control registers.
const (
	RegBcastEnable   = 0x10B0
	RegBcastInterval = 0x10B4
	RegBcastSent     = 0x10B8 // read-only
	RegBcastFailures = 0x10BC // read-only
	RegBcastSequence = 0x10C0 // read-only
)
