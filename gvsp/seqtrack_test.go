// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvsp

import "testing"

func TestSeqTracking(t *testing.T) {
	var trk seqTracker

	for _, seq := range []uint32{1, 2, 3, 5, 4, 5} {
		trk.classify(seq)
	}

	lost, dups, ooo := trk.counters()
	if lost != 1 {
		t.Errorf("lost: got=%d, want=1", lost)
	}
	if dups != 1 {
		t.Errorf("duplicates: got=%d, want=1", dups)
	}
	if ooo != 1 {
		t.Errorf("out-of-order: got=%d, want=1", ooo)
	}

	expected, last := trk.state()
	if expected != 6 {
		t.Errorf("expected: got=%d, want=6", expected)
	}
	if last != 5 {
		t.Errorf("last: got=%d, want=5", last)
	}

	trk.reset()
	if lost, dups, ooo := trk.counters(); lost+dups+ooo != 0 {
		t.Errorf("counters after reset: %d/%d/%d", lost, dups, ooo)
	}

	// first frame after a reset starts a new baseline, whatever its
	// number.
	trk.classify(42)
	if lost, _, _ := trk.counters(); lost != 0 {
		t.Errorf("lost after restart: got=%d, want=0", lost)
	}
	if expected, last := trk.state(); expected != 43 || last != 42 {
		t.Errorf("state after restart: expected=%d last=%d", expected, last)
	}
}

func TestSeqTrackingGap(t *testing.T) {
	var trk seqTracker
	trk.classify(10)
	trk.classify(14)
	if lost, _, _ := trk.counters(); lost != 3 {
		t.Errorf("lost: got=%d, want=3", lost)
	}
	// an old number does not move the baseline back.
	trk.classify(12)
	trk.classify(15)
	lost, dups, ooo := trk.counters()
	if lost != 3 || dups != 0 || ooo != 1 {
		t.Errorf("counters: lost=%d dups=%d ooo=%d, want 3/0/1", lost, dups, ooo)
	}
}
