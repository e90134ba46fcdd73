// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import (
	"errors"
	"log"
	"net"
	"os"

	"github.com/go-gev/gevcam/regs"
)

// Streamer is the streaming-engine surface the command processor
// drives: resend requests, client hand-over and liveness marks.
type Streamer interface {
	Streaming() bool
	Resend(block uint32) error
	SetClient(addr *net.UDPAddr)
	MarkActivity()
}

// Processor decodes GVCP command datagrams and produces the matching
// acknowledge or error datagrams. It is stateless per packet: all
// state lives in the register space, the streamer and the counters.
type Processor struct {
	space *regs.Space
	str   Streamer
	disc  *Discovery
	stats *Stats
	msg   *log.Logger
}

// ProcOption configures a Processor.
type ProcOption func(*Processor)

// WithProcLogger sets the processor log output.
func WithProcLogger(msg *log.Logger) ProcOption {
	return func(proc *Processor) { proc.msg = msg }
}

// NewProcessor returns a command processor over the given register
// space. str may be nil when no streaming engine is attached.
func NewProcessor(space *regs.Space, str Streamer, disc *Discovery, stats *Stats, opts ...ProcOption) *Processor {
	proc := &Processor{
		space: space,
		str:   str,
		disc:  disc,
		stats: stats,
		msg:   log.New(os.Stdout, "gvcp: ", 0),
	}
	if proc.stats == nil {
		proc.stats = &Stats{}
	}
	for _, opt := range opts {
		opt(proc)
	}
	return proc
}

// Stats returns the processor counters.
func (proc *Processor) Stats() *Stats { return proc.stats }

// Process handles one inbound datagram and returns the response
// datagram, or nil when the input must be dropped silently.
func (proc *Processor) Process(src *net.UDPAddr, pkt []byte) []byte {
	hdr, err := decodeHeader(pkt)
	if err != nil {
		return nil // too short for any reply
	}
	if hdr.Type != TypeCmd {
		return nil
	}
	proc.stats.incCommands()

	if hdr.Flags&^FlagAckRequired != 0 || hdr.PayloadLen() != len(pkt)-HeaderSize {
		proc.msg.Printf("invalid header: cmd=0x%04x size=%d words, datagram=%d bytes",
			hdr.Command, hdr.Size, len(pkt),
		)
		return proc.nack(hdr, StatusInvalidHeader)
	}
	payload := pkt[HeaderSize:]

	switch hdr.Command {
	case CmdDiscovery:
		return proc.handleDiscovery(src, hdr)
	case CmdReadMem:
		return proc.handleReadMem(hdr, payload)
	case CmdWriteMem:
		return proc.handleWriteMem(hdr, payload)
	case CmdReadReg:
		return proc.handleReadReg(hdr, payload)
	case CmdWriteReg:
		return proc.handleWriteReg(hdr, payload)
	case CmdPacketResend:
		return proc.handleResend(hdr, payload)
	default:
		proc.stats.incUnknown()
		proc.msg.Printf("unknown command 0x%04x (id=0x%04x)", hdr.Command, hdr.ID)
		return proc.nack(hdr, StatusNotImplemented)
	}
}

func (proc *Processor) nack(hdr Header, st Status) []byte {
	proc.stats.incErrors()
	return nack(hdr, st)
}

func (proc *Processor) touch() {
	if proc.str != nil {
		proc.str.MarkActivity()
	}
}

func (proc *Processor) handleDiscovery(src *net.UDPAddr, hdr Header) []byte {
	if proc.str != nil && src != nil {
		proc.str.SetClient(src)
	}
	proc.stats.SetConnBit(ConnClient, true)
	return proc.disc.SolicitedAck(hdr.ID)
}

func (proc *Processor) handleReadMem(hdr Header, payload []byte) []byte {
	r := newRbuf(payload)
	addr := r.u32()
	size := r.u32()
	if r.err != nil || r.len() != 0 || size == 0 {
		return proc.nack(hdr, StatusInvalidParameter)
	}

	max := uint32(MaxReadSize)
	if addr >= regs.XMLBase && addr < regs.XMLBase+uint32(proc.space.XMLSize()) {
		max = MaxReadSizeXML
	}
	if size > max {
		size = max
	}
	// register access through memory reads must be word-aligned.
	if addr%4 != 0 && proc.space.IsRegister(addr&^3) {
		return proc.nack(hdr, StatusBadAlignment)
	}

	data := proc.space.ReadMem(addr, int(size))
	w := newWbuf(HeaderSize + 4 + len(data))
	w.header(ackHeader(hdr, AckReadMem, 4+len(data)))
	w.u32(addr)
	w.write(data)
	proc.touch()
	return w.bytes()
}

func (proc *Processor) handleWriteMem(hdr Header, payload []byte) []byte {
	r := newRbuf(payload)
	addr := r.u32()
	data := r.rest()
	if r.err != nil || len(data) == 0 || len(data) > MaxWriteSize {
		return proc.nack(hdr, StatusInvalidParameter)
	}

	switch {
	case addr >= regs.RegUserName && addr+uint32(len(data)) <= regs.RegUserName+regs.UserNameSize:
		if err := proc.space.WriteMem(addr, data); err != nil {
			return proc.nack(hdr, regErrStatus(err))
		}
	case len(data) == 4:
		if addr%4 != 0 {
			return proc.nack(hdr, StatusBadAlignment)
		}
		v := newRbuf(data).u32()
		if err := proc.space.WriteReg(addr, v); err != nil {
			return proc.nack(hdr, regErrStatus(err))
		}
	default:
		return proc.nack(hdr, StatusInvalidAddress)
	}

	w := newWbuf(HeaderSize + 4)
	w.header(ackHeader(hdr, AckWriteMem, 4))
	w.u32(addr)
	proc.touch()
	return w.bytes()
}

func (proc *Processor) handleReadReg(hdr Header, payload []byte) []byte {
	if len(payload) == 0 || len(payload)%4 != 0 {
		return proc.nack(hdr, StatusInvalidParameter)
	}
	n := len(payload) / 4

	r := newRbuf(payload)
	addrs := make([]uint32, n)
	for i := range addrs {
		addrs[i] = r.u32()
	}
	for _, addr := range addrs {
		if addr%4 != 0 {
			return proc.nack(hdr, StatusBadAlignment)
		}
		if !proc.space.IsValid(addr) {
			return proc.nack(hdr, StatusInvalidAddress)
		}
	}

	w := newWbuf(HeaderSize + 4*n)
	w.header(ackHeader(hdr, AckReadReg, 4*n))
	for _, addr := range addrs {
		w.u32(proc.space.ReadReg(addr))
	}
	proc.touch()
	return w.bytes()
}

func (proc *Processor) handleWriteReg(hdr Header, payload []byte) []byte {
	if len(payload) == 0 || len(payload)%8 != 0 {
		return proc.nack(hdr, StatusInvalidParameter)
	}
	n := len(payload) / 8

	r := newRbuf(payload)
	addrs := make([]uint32, n)
	vals := make([]uint32, n)
	for i := range addrs {
		addrs[i] = r.u32()
		vals[i] = r.u32()
	}

	// all-or-nothing over address and writability: no write happens
	// unless every address in the batch is writable. A value rejection
	// by a write hook mid-batch leaves the earlier writes applied.
	for _, addr := range addrs {
		if addr%4 != 0 {
			return proc.nack(hdr, StatusBadAlignment)
		}
		if !proc.space.IsValid(addr) {
			return proc.nack(hdr, StatusInvalidAddress)
		}
		if !proc.space.IsWritable(addr) {
			return proc.nack(hdr, StatusAccessDenied)
		}
	}
	for i, addr := range addrs {
		if err := proc.space.WriteReg(addr, vals[i]); err != nil {
			proc.msg.Printf("write 0x%08x=0x%08x failed: %v", addr, vals[i], err)
			return proc.nack(hdr, regErrStatus(err))
		}
	}

	w := newWbuf(HeaderSize + 4*n)
	w.header(ackHeader(hdr, AckWriteReg, 4*n))
	for _, addr := range addrs {
		w.u32(addr)
	}
	proc.touch()
	return w.bytes()
}

func (proc *Processor) handleResend(hdr Header, payload []byte) []byte {
	r := newRbuf(payload)
	channel := r.u32()
	block := r.u32()
	if r.err != nil {
		return proc.nack(hdr, StatusInvalidParameter)
	}
	if channel != 0 {
		return proc.nack(hdr, StatusInvalidParameter)
	}
	if proc.str == nil || !proc.str.Streaming() {
		return proc.nack(hdr, StatusWrongConfig)
	}
	if err := proc.str.Resend(block); err != nil {
		proc.msg.Printf("resend of block %d failed: %v", block, err)
		return proc.nack(hdr, StatusInvalidParameter)
	}

	w := newWbuf(HeaderSize + 8)
	w.header(ackHeader(hdr, AckPacketResend, 8))
	w.u32(channel)
	w.u32(block)
	proc.touch()
	return w.bytes()
}

func regErrStatus(err error) Status {
	switch {
	case errors.Is(err, regs.ErrInvalidAddress):
		return StatusInvalidAddress
	case errors.Is(err, regs.ErrWriteProtected):
		return StatusWriteProtect
	case errors.Is(err, regs.ErrBadAlignment):
		return StatusBadAlignment
	case errors.Is(err, regs.ErrInvalidValue):
		return StatusInvalidParameter
	}
	return StatusAccessDenied
}
