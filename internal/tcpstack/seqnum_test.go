package tcpstack

import (
	"testing"

	"gvisor.dev/gvisor/pkg/tcpip/header"
)

func TestWrappingOrdered(t *testing.T) {
	testCases := []struct {
		name     string
		a, b, c  uint32
		expected bool
	}{
		{name: "plain ascending", a: 10, b: 20, c: 30, expected: true},
		{name: "b below a", a: 20, b: 10, c: 30, expected: false},
		{name: "b at c", a: 10, b: 30, c: 30, expected: false},
		{name: "b equals a", a: 10, b: 10, c: 30, expected: true},
		{name: "wrap between c and a", a: 0xffff_fff0, b: 0xffff_fffa, c: 5, expected: true},
		{name: "wrap between b and c", a: 0xffff_fff0, b: 2, c: 5, expected: true},
		{name: "outside wrapped span", a: 0xffff_fff0, b: 10, c: 5, expected: false},
		{name: "full wrap boundary", a: 0xffff_ffff, b: 0, c: 1, expected: true},
	}

	for _, tc := range testCases {
		if got := wrappingOrdered(tc.a, tc.b, tc.c); got != tc.expected {
			t.Errorf("%s: wrappingOrdered(%d, %d, %d) = %t, want %t",
				tc.name, tc.a, tc.b, tc.c, got, tc.expected)
		}
	}
}

// A point is always between its predecessor and any sufficiently near future
// point, no matter where the span sits in the 32-bit circle.
func TestWrappingOrderedSuccessorProperty(t *testing.T) {
	starts := []uint32{0, 1, 100, 1 << 30, 1<<31 - 1, 1 << 31, 0xffff_fffe, 0xffff_ffff}
	spans := []uint32{1, 2, 1000, 1 << 20, 1 << 31}

	for _, a := range starts {
		for _, k := range spans {
			if !wrappingOrdered(a, a+1, a+k+1) {
				t.Errorf("wrappingOrdered(%d, %d, %d) should hold", a, a+1, a+k+1)
			}
		}
		// a <= a < c holds exactly when the span is non-empty.
		if !wrappingOrdered(a, a, a+1) {
			t.Errorf("wrappingOrdered(%d, %d, %d) should hold", a, a, a+1)
		}
		if wrappingOrdered(a, a, a) {
			t.Errorf("wrappingOrdered(%d, %d, %d) should not hold", a, a, a)
		}
	}
}

func TestAckInWindow(t *testing.T) {
	snd := &sendSpace{una: 100, nxt: 200}

	testCases := []struct {
		ack      uint32
		expected bool
	}{
		{ack: 150, expected: true},
		{ack: 100, expected: false}, // lower boundary excluded
		{ack: 101, expected: true},
		{ack: 200, expected: true}, // upper boundary included
		{ack: 201, expected: false},
		{ack: 99, expected: false},
	}
	for _, tc := range testCases {
		if got := ackInWindow(snd, tc.ack); got != tc.expected {
			t.Errorf("ackInWindow(una=100 nxt=200, %d) = %t, want %t", tc.ack, got, tc.expected)
		}
	}

	// Send window straddling the wrap point.
	wrapped := &sendSpace{una: 0xffff_fff0, nxt: 0x10}
	for ack, expected := range map[uint32]bool{
		0xffff_fff0: false,
		0xffff_fff1: true,
		0:           true,
		0x10:        true,
		0x11:        false,
	} {
		if got := ackInWindow(wrapped, ack); got != expected {
			t.Errorf("ackInWindow(wrapped, %#x) = %t, want %t", ack, got, expected)
		}
	}
}

func TestSegmentAcceptableZeroWindow(t *testing.T) {
	rcv := &recvSpace{nxt: 1000, wnd: 0}

	if !segmentAcceptable(rcv, segment{seq: 1000}) {
		t.Error("zero-length segment at rcv.nxt should be acceptable")
	}
	if segmentAcceptable(rcv, segment{seq: 1001}) {
		t.Error("zero-length segment past rcv.nxt should be rejected")
	}
	if segmentAcceptable(rcv, segment{seq: 1000, payload: []byte{1}}) {
		t.Error("data is never acceptable into a zero window")
	}
	// SYN and FIN occupy sequence space, so they count as length too.
	if segmentAcceptable(rcv, segment{seq: 1000, flags: header.TCPFlagSyn}) {
		t.Error("syn is never acceptable into a zero window")
	}
}

func TestSegmentAcceptableOpenWindow(t *testing.T) {
	rcv := &recvSpace{nxt: 1000, wnd: 500}

	testCases := []struct {
		name     string
		seg      segment
		expected bool
	}{
		{name: "zero-length at left edge", seg: segment{seq: 1000}, expected: true},
		{name: "zero-length inside", seg: segment{seq: 1400}, expected: true},
		{name: "zero-length at right edge", seg: segment{seq: 1500}, expected: false},
		{name: "zero-length before window", seg: segment{seq: 999}, expected: false},
		{name: "data starting inside", seg: segment{seq: 1499, payload: []byte{1, 2, 3}}, expected: true},
		{name: "data ending inside", seg: segment{seq: 998, payload: []byte{1, 2, 3}}, expected: true},
		{name: "data entirely before", seg: segment{seq: 900, payload: []byte{1}}, expected: false},
		{name: "fin counts one octet", seg: segment{seq: 999, flags: header.TCPFlagFin}, expected: false},
		{name: "syn plus fin count two", seg: segment{seq: 998, flags: header.TCPFlagSyn | header.TCPFlagFin}, expected: false},
	}

	for _, tc := range testCases {
		if got := segmentAcceptable(rcv, tc.seg); got != tc.expected {
			t.Errorf("%s: got %t, want %t", tc.name, got, tc.expected)
		}
	}
}

func TestSegmentAcceptableWrappedWindow(t *testing.T) {
	// Receive window straddling the wrap point: [0xfffffff0, 0x10).
	rcv := &recvSpace{nxt: 0xffff_fff0, wnd: 0x20}

	if !segmentAcceptable(rcv, segment{seq: 0xffff_fffa}) {
		t.Error("segment before the wrap point should be acceptable")
	}
	if !segmentAcceptable(rcv, segment{seq: 2}) {
		t.Error("segment after the wrap point should be acceptable")
	}
	if segmentAcceptable(rcv, segment{seq: 0x10}) {
		t.Error("segment at the wrapped right edge should be rejected")
	}
	if !segmentAcceptable(rcv, segment{seq: 0xffff_ffee, payload: []byte{1, 2, 3}}) {
		t.Error("data spanning into the window should be acceptable")
	}
}

func TestSeqLenCountsControlBits(t *testing.T) {
	if got := (segment{payload: []byte{1, 2, 3}}).seqLen(); got != 3 {
		t.Fatalf("payload-only seqLen = %d, want 3", got)
	}
	if got := (segment{flags: header.TCPFlagSyn}).seqLen(); got != 1 {
		t.Fatalf("syn seqLen = %d, want 1", got)
	}
	if got := (segment{flags: header.TCPFlagSyn | header.TCPFlagFin, payload: []byte{1}}).seqLen(); got != 3 {
		t.Fatalf("syn+fin+1 seqLen = %d, want 3", got)
	}
}
