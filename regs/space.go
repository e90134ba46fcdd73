// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Register write errors, reported as-is by Space and mapped to GVCP
// status codes by the command processor.
var (
	ErrInvalidAddress = errors.New("regs: invalid address")
	ErrWriteProtected = errors.New("regs: write protected")
	ErrBadAlignment   = errors.New("regs: bad alignment")
	ErrInvalidValue   = errors.New("regs: invalid value")
)

// Register is a virtual 32-bit register backed by device behaviour.
// A nil Write marks the register read-only.
type Register struct {
	Name  string
	Read  func() uint32
	Write func(v uint32) error
}

// Space is the addressable register space of the device: bootstrap
// memory, the GenICam XML region and virtual registers. All methods
// are safe for concurrent use.
type Space struct {
	mu        sync.RWMutex
	bootstrap [BootstrapSize]byte
	xml       []byte
	vregs     map[uint32]Register

	ccp    uint32
	ccpKey uint32
}

// New returns a register space publishing the given identity and
// serving xml as the GenICam descriptor blob.
func New(cfg Config, xml []byte) *Space {
	cfg.setDefaults()

	sp := &Space{
		xml:   xml,
		vregs: make(map[uint32]Register),
	}
	sp.initBootstrap(cfg)

	sp.bind(RegCCP, Register{
		Name: "ControlChannelPrivilege",
		Read: func() uint32 { return sp.ccp },
		Write: func(v uint32) error {
			switch v {
			case 0x0000, 0x0001, 0x0200, 0x0201:
				sp.ccp = v
				return nil
			default:
				return fmt.Errorf("regs: privilege 0x%08x: %w", v, ErrInvalidValue)
			}
		},
	})
	sp.bind(RegCCPKey, Register{
		Name:  "ControlChannelPrivilegeKey",
		Read:  func() uint32 { return sp.ccpKey },
		Write: func(v uint32) error { sp.ccpKey = v; return nil },
	})

	return sp
}

// Bind installs a virtual register at addr, replacing any previous
// binding. The register callbacks run while the space lock is held
// and must not call back into the space.
func (sp *Space) Bind(addr uint32, reg Register) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.bind(addr, reg)
}

func (sp *Space) bind(addr uint32, reg Register) {
	if addr%4 != 0 {
		panic(fmt.Errorf("regs: bind %q at unaligned address 0x%x", reg.Name, addr))
	}
	sp.vregs[addr] = reg
}

// IsValid reports whether addr resolves to a known register or memory
// location.
func (sp *Space) IsValid(addr uint32) bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	if _, ok := sp.vregs[addr]; ok {
		return true
	}
	if addr < BootstrapSize {
		return true
	}
	return sp.inXML(addr)
}

// IsRegister reports whether addr is a bound virtual register.
func (sp *Space) IsRegister(addr uint32) bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	_, ok := sp.vregs[addr]
	return ok
}

func (sp *Space) inXML(addr uint32) bool {
	return addr >= XMLBase && addr < XMLBase+uint32(len(sp.xml))
}

// IsWritable reports whether a 32-bit register write at addr can
// succeed, value checks aside.
func (sp *Space) IsWritable(addr uint32) bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	if reg, ok := sp.vregs[addr]; ok {
		return reg.Write != nil
	}
	return addr == RegHeartbeatTimeout
}

// ReadReg reads the 32-bit register at addr. Unknown addresses read
// as zero.
func (sp *Space) ReadReg(addr uint32) uint32 {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	if reg, ok := sp.vregs[addr]; ok {
		return reg.Read()
	}
	if addr+4 <= BootstrapSize {
		return binary.BigEndian.Uint32(sp.bootstrap[addr : addr+4])
	}
	if sp.inXML(addr) {
		var word [4]byte
		copy(word[:], sp.xml[addr-XMLBase:])
		return binary.BigEndian.Uint32(word[:])
	}
	return 0
}

// WriteReg writes the 32-bit register at addr. Only virtual registers
// with a write handler and the writable bootstrap words accept writes.
func (sp *Space) WriteReg(addr, v uint32) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if addr%4 != 0 {
		return fmt.Errorf("regs: write at 0x%08x: %w", addr, ErrBadAlignment)
	}
	if reg, ok := sp.vregs[addr]; ok {
		if reg.Write == nil {
			return fmt.Errorf("regs: %s (0x%08x): %w", reg.Name, addr, ErrWriteProtected)
		}
		return reg.Write(v)
	}
	if addr+4 <= BootstrapSize {
		if addr != RegHeartbeatTimeout {
			return fmt.Errorf("regs: bootstrap 0x%08x: %w", addr, ErrWriteProtected)
		}
		binary.BigEndian.PutUint32(sp.bootstrap[addr:addr+4], v)
		return nil
	}
	if sp.inXML(addr) {
		return fmt.Errorf("regs: xml 0x%08x: %w", addr, ErrWriteProtected)
	}
	return fmt.Errorf("regs: 0x%08x: %w", addr, ErrInvalidAddress)
}

// ReadMem reads n bytes starting at addr. Bound registers within the
// span read as their current value, big-endian, one aligned word at a
// time. Spans outside the bootstrap, XML and register regions read as
// zeroes: memory reads never fail.
func (sp *Space) ReadMem(addr uint32, n int) []byte {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	out := make([]byte, n)
	if addr < BootstrapSize {
		copy(out, sp.bootstrap[addr:])
	}
	end := addr + uint32(n)
	if len(sp.xml) > 0 && end > XMLBase && addr < XMLBase+uint32(len(sp.xml)) {
		off := 0
		src := uint32(0)
		if addr >= XMLBase {
			src = addr - XMLBase
		} else {
			off = int(XMLBase - addr)
		}
		if off < n {
			copy(out[off:], sp.xml[src:])
		}
	}
	for word := addr &^ 3; word < end; word += 4 {
		reg, ok := sp.vregs[word]
		if !ok {
			continue
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], reg.Read())
		for i, b := range buf {
			pos := word + uint32(i)
			if pos >= addr && pos < end {
				out[pos-addr] = b
			}
		}
	}
	return out
}

// WriteMem writes raw bytes at addr. Only the user-defined name
// window of the bootstrap block is memory-writable.
func (sp *Space) WriteMem(addr uint32, p []byte) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	end := addr + uint32(len(p))
	if end < addr {
		return fmt.Errorf("regs: write [0x%08x, overflow): %w", addr, ErrInvalidAddress)
	}
	if addr >= RegUserName && end <= RegUserName+UserNameSize {
		copy(sp.bootstrap[addr:end], p)
		return nil
	}
	if addr < BootstrapSize || sp.inXML(addr) {
		return fmt.Errorf("regs: write [0x%08x, 0x%08x): %w", addr, end, ErrWriteProtected)
	}
	return fmt.Errorf("regs: write [0x%08x, 0x%08x): %w", addr, end, ErrInvalidAddress)
}

// DiscoveryPayload returns a copy of the leading bootstrap bytes sent
// in discovery acknowledges.
func (sp *Space) DiscoveryPayload() []byte {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	out := make([]byte, DiscoveryPayloadSize)
	copy(out, sp.bootstrap[:DiscoveryPayloadSize])
	return out
}

// XMLSize returns the size of the GenICam descriptor blob.
func (sp *Space) XMLSize() int { return len(sp.xml) }
