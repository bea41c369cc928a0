package tcpstack

import (
	"fmt"
	"math/rand"
	"sync"

	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// fourTuple uniquely identifies a TCP connection and keys the connection
// table. Comparable by value; never mutated after construction.
type fourTuple struct {
	srcAddr [4]byte
	dstAddr [4]byte
	srcPort uint16
	dstPort uint16
}

func (t fourTuple) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d->%d.%d.%d.%d:%d",
		t.srcAddr[0], t.srcAddr[1], t.srcAddr[2], t.srcAddr[3], t.srcPort,
		t.dstAddr[0], t.dstAddr[1], t.dstAddr[2], t.dstAddr[3], t.dstPort)
}

type connState int

const (
	stateListen connState = iota
	stateSynRcvd
	stateEstablished
)

func (s connState) String() string {
	switch s {
	case stateListen:
		return "listen"
	case stateSynRcvd:
		return "syn-rcvd"
	case stateEstablished:
		return "established"
	}
	return fmt.Sprintf("unknown state %d", int(s))
}

// conn is one entry in the connection table. Exactly one state is current at
// any time; transitions mutate the entry in place and advance the state tag
// only after every precondition has passed, so a rejected segment leaves the
// previous state fully intact and retryable.
type conn struct {
	id    fourTuple
	state connState
	snd   sendSpace
	rcv   recvSpace
}

func newListenConn(id fourTuple) *conn {
	return &conn{id: id, state: stateListen}
}

// synAck drives Listen -> SynRcvd for the SYN that created this entry
// (RFC 793 page 65). The caller supplies the chosen ISS and the window to
// advertise, and emits the SYN-ACK reply itself once this returns nil.
func (c *conn) synAck(seg segment, iss uint32, wnd uint16) error {
	if c.state != stateListen {
		return fmt.Errorf("%w: syn-ack attempted from %s", ErrProtocolState, c.state)
	}
	// An acknowledgment is bad if it arrives on a connection still in the
	// LISTEN state. RFC 793 page 64 calls for a RST reply here; out of scope,
	// we only reject.
	if seg.flags&header.TCPFlagAck != 0 {
		return fmt.Errorf("%w: ack set on a listen segment", ErrValidation)
	}
	if seg.flags&header.TCPFlagSyn == 0 {
		return fmt.Errorf("%w: syn not set on a listen segment", ErrValidation)
	}

	// SND.NXT is set to ISS+1 and SND.UNA to ISS; RCV.NXT to SEG.SEQ+1 and
	// IRS to SEG.SEQ.
	c.snd = sendSpace{una: iss, nxt: iss + 1, wnd: wnd, iss: iss}
	c.rcv = recvSpace{nxt: seg.seq + 1, wnd: seg.wnd, irs: seg.seq}
	c.state = stateSynRcvd
	return nil
}

// checkAck drives SynRcvd -> Established on the handshake's closing ACK. The
// ACK consumes no sequence-space octets, so both records carry over by plain
// copy: establishment is a relabeling of the same bookkeeping. No reply is
// sent. On error the entry stays in SynRcvd for a future retry.
func (c *conn) checkAck(seg segment) error {
	if c.state != stateSynRcvd {
		return fmt.Errorf("%w: check-ack attempted from %s", ErrProtocolState, c.state)
	}
	if seg.flags&header.TCPFlagAck == 0 {
		return fmt.Errorf("%w: ack not set on handshake segment", ErrValidation)
	}
	if !ackInWindow(&c.snd, seg.ack) {
		return fmt.Errorf("%w: ack %d outside (%d, %d]", ErrValidation,
			seg.ack, c.snd.una, c.snd.nxt)
	}
	// Handshake ACKs are validated as zero-length segments; piggybacked data
	// would be queued for a data path this endpoint does not have.
	ctl := seg
	ctl.payload = nil
	if !segmentAcceptable(&c.rcv, ctl) {
		return fmt.Errorf("%w: seq %d outside receive window [%d, %d+%d)", ErrValidation,
			seg.seq, c.rcv.nxt, c.rcv.nxt, c.rcv.wnd)
	}

	c.state = stateEstablished
	return nil
}

// issSource hands out initial send sequence numbers. Seeded once at stack
// construction; every new connection draws a fresh 32-bit value so a reborn
// identity does not collide with a recent incarnation of itself.
type issSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newISSSource(seed int64) *issSource {
	return &issSource{r: rand.New(rand.NewSource(seed))}
}

func (g *issSource) next() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.r.Uint32()
}
