// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvsp

import "sync"

// seqTracker classifies the sequence numbers of frames handed to the
// engine by the camera source. A gap counts its missing numbers as
// lost; a repeat of the newest number is a duplicate; anything older
// is out of order and leaves the tracking state untouched.
type seqTracker struct {
	mu         sync.Mutex
	started    bool
	expected   uint32
	last       uint32
	lost       uint32
	duplicates uint32
	outOfOrder uint32
}

func (t *seqTracker) classify(recv uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.started = true
		t.last = recv
		t.expected = recv + 1
		return
	}
	switch {
	case recv == t.expected:
		t.last = recv
		t.expected++
	case recv > t.expected:
		t.lost += recv - t.expected
		t.last = recv
		t.expected = recv + 1
	case recv == t.last:
		t.duplicates++
	default:
		t.outOfOrder++
	}
}

func (t *seqTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.expected = 0
	t.last = 0
	t.lost = 0
	t.duplicates = 0
	t.outOfOrder = 0
}

func (t *seqTracker) counters() (lost, dups, ooo uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lost, t.duplicates, t.outOfOrder
}

func (t *seqTracker) state() (expected, last uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expected, t.last
}
