// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package clock

import "testing"

func TestManualSetAndAdvance(t *testing.T) {
	m := NewManual(1000)
	if m.Seconds() != 1000 {
		t.Fatalf("Seconds() = %d, want 1000", m.Seconds())
	}

	m.Advance(5)
	if m.Seconds() != 1005 {
		t.Fatalf("Seconds() after Advance(5) = %d, want 1005", m.Seconds())
	}

	m.Set(2000)
	if m.Seconds() != 2000 {
		t.Fatalf("Seconds() after Set(2000) = %d, want 2000", m.Seconds())
	}
	if m.Now() != 2000*1e9 {
		t.Fatalf("Now() after Set(2000) = %d, want %d", m.Now(), int64(2000*1e9))
	}
}

func TestSystemProducesIncreasingTime(t *testing.T) {
	s := System{}
	first := s.Now()
	second := s.Now()
	if second < first {
		t.Fatalf("System clock went backwards: %d then %d", first, second)
	}
}
