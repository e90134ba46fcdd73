// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvsp

import "sync"

// RingSize is the number of sent frames kept for resend requests.
const RingSize = 3

type entry struct {
	info frameInfo
	data []byte
}

// ring keeps the last RingSize transmitted frames, evicting the
// oldest on overflow.
type ring struct {
	mu      sync.Mutex
	entries []entry
}

func newRing() *ring {
	return &ring{entries: make([]entry, 0, RingSize)}
}

func (r *ring) store(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == RingSize {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:RingSize-1]
	}
	r.entries = append(r.entries, e)
}

func (r *ring) lookup(block uint32) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.info.block == block {
			return e, true
		}
	}
	return entry{}, false
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
