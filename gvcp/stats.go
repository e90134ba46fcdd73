// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import "sync/atomic"

// Connection status bits, exposed through the connection status
// register.
const (
	ConnGVCPSocket = 0
	ConnGVSPSocket = 1
	ConnClient     = 2
	ConnStreaming  = 3
)

// Stats aggregates control-channel counters and the connection status
// bitfield. All methods are safe for concurrent use.
type Stats struct {
	totalCommands   uint32
	totalErrors     uint32
	unknownCommands uint32
	connStatus      uint32
}

func (st *Stats) incCommands() { atomic.AddUint32(&st.totalCommands, 1) }
func (st *Stats) incErrors()   { atomic.AddUint32(&st.totalErrors, 1) }
func (st *Stats) incUnknown()  { atomic.AddUint32(&st.unknownCommands, 1) }

// TotalCommands returns the number of commands received.
func (st *Stats) TotalCommands() uint32 { return atomic.LoadUint32(&st.totalCommands) }

// TotalErrors returns the number of NACKs sent.
func (st *Stats) TotalErrors() uint32 { return atomic.LoadUint32(&st.totalErrors) }

// UnknownCommands returns the number of unknown command codes seen.
func (st *Stats) UnknownCommands() uint32 { return atomic.LoadUint32(&st.unknownCommands) }

// SetConnBit sets or clears one bit of the connection status register.
func (st *Stats) SetConnBit(bit uint, on bool) {
	for {
		old := atomic.LoadUint32(&st.connStatus)
		var v uint32
		if on {
			v = old | 1<<bit
		} else {
			v = old &^ (1 << bit)
		}
		if atomic.CompareAndSwapUint32(&st.connStatus, old, v) {
			return
		}
	}
}

// ConnStatus returns the connection status bitfield.
func (st *Stats) ConnStatus() uint32 { return atomic.LoadUint32(&st.connStatus) }
