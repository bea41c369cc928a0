package tcpstack

// Sequence-space arithmetic. TCP sequence numbers live in a 32-bit modular
// space, so every comparison here has to stay correct when the numbers wrap
// past 2^32-1 back to zero (RFC 793 section 3.3).

// sendSpace tracks the send side of a connection's sequence space.
//
//	1         2          3          4
//	----------|----------|----------|----------
//	       SND.UNA    SND.NXT    SND.UNA+SND.WND
//
//	1 - old sequence numbers which have been acknowledged
//	2 - sequence numbers of unacknowledged data
//	3 - sequence numbers allowed for new data transmission
//	4 - future sequence numbers which are not yet allowed
type sendSpace struct {
	una uint32 // oldest unacknowledged sequence number
	nxt uint32 // next sequence number to send
	wnd uint16 // send window
	up  bool   // urgent pointer significant (unused)
	wl1 uint32 // segment seq of last window update (unused)
	wl2 uint32 // segment ack of last window update (unused)
	iss uint32 // initial send sequence number, fixed once chosen
}

// recvSpace tracks the receive side.
//
//	1          2          3
//	----------|----------|----------
//	       RCV.NXT    RCV.NXT+RCV.WND
type recvSpace struct {
	nxt uint32 // next expected sequence number; only ever advances
	wnd uint16 // receive window
	up  bool   // urgent pointer significant (unused)
	irs uint32 // initial receive sequence number (the peer's opening seq)
}

// wrappingOrdered reports whether a <= b < c walking forward modulo 2^32.
// Exactly one of the three cases can hold for any triple; every window check
// in this package reduces to this primitive.
func wrappingOrdered(a, b, c uint32) bool {
	// case 1:  >>>> a >>>> b >>>> c
	if a <= b && b < c {
		return true
	}
	// case 2:  >>>> c >>>> a >>>> b
	if c < a && a <= b {
		return true
	}
	// case 3:  >>>> b >>>> c >>>> a
	if b < c && c < a {
		return true
	}
	return false
}

// ackInWindow reports whether an acknowledgment number is acceptable for snd,
// i.e. SND.UNA < SEG.ACK =< SND.NXT modulo 2^32. Note the lower bound is
// exclusive: an ack equal to SND.UNA acknowledges nothing.
func ackInWindow(snd *sendSpace, ack uint32) bool {
	// case 1:  >>>> una >>>> ack >>>> nxt
	if snd.una < ack && ack <= snd.nxt {
		return true
	}
	// case 2:  >>>> nxt >>>> una >>>> ack
	if snd.nxt < snd.una && snd.una < ack {
		return true
	}
	// case 3:  >>>> ack >>>> nxt >>>> una
	if ack <= snd.una && snd.nxt < snd.una {
		return true
	}
	return false
}

// segmentAcceptable implements the acceptance test for an incoming segment
// against the receive window (RFC 793 page 26). Zero windows and zero-length
// segments make this a four-way case split:
//
//	Segment Receive  Test
//	Length  Window
//	------- -------  -------------------------------------------
//	   0       0     SEG.SEQ = RCV.NXT
//	   0      >0     RCV.NXT =< SEG.SEQ < RCV.NXT+RCV.WND
//	  >0       0     not acceptable
//	  >0      >0     RCV.NXT =< SEG.SEQ < RCV.NXT+RCV.WND
//	                 or RCV.NXT =< SEG.SEQ+SEG.LEN-1 < RCV.NXT+RCV.WND
func segmentAcceptable(rcv *recvSpace, seg segment) bool {
	segLen := seg.seqLen()

	if segLen == 0 && rcv.wnd == 0 {
		return seg.seq == rcv.nxt
	}
	if segLen > 0 && rcv.wnd == 0 {
		return false
	}

	wndEdge := rcv.nxt + uint32(rcv.wnd)
	if wrappingOrdered(rcv.nxt, seg.seq, wndEdge) {
		return true
	}
	if segLen > 0 {
		last := seg.seq + segLen - 1
		return wrappingOrdered(rcv.nxt, last, wndEdge)
	}
	return false
}
