// Package tcpstack implements a tiny, purpose-built TCP connection endpoint
// over raw IPv4 datagrams.
//
// The goals are:
//   - Exact RFC 793 sequence-space arithmetic (wraparound, zero windows,
//     zero-length segments) for the server side of the three-way handshake.
//   - A single-threaded dispatch loop demultiplexing inbound segments onto a
//     four-tuple keyed connection table.
//
// Notes and limitations:
//   - Connection establishment only: no data transfer, retransmission,
//     congestion control, or teardown past Established.
//   - No RST is emitted on rejection paths, even where RFC 793 asks for one.
//   - IPv4 only; no fragmentation/reassembly.
package tcpstack

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/willeslau/mini-tcp/internal/pcap"
)

// Defaults for emitted SYN-ACK segments.
const (
	DefaultWindowSize uint16 = 64240
	DefaultTTL        uint8  = 64
)

// Per-segment error classes. None of them terminate the dispatch loop; only
// interface read/write failures do.
var (
	// ErrParse marks a datagram that is malformed or not TCP. The datagram is
	// skipped before any connection lookup happens.
	ErrParse = errors.New("malformed packet")
	// ErrValidation marks a handshake precondition failure. The entry under
	// transition, if any, is left in its pre-attempt state.
	ErrValidation = errors.New("handshake validation failed")
	// ErrProtocolState marks a segment arriving for an identity whose current
	// state has no transition for it. The entry is untouched.
	ErrProtocolState = errors.New("invalid state for transition")
)

// DatagramInterface is the virtual point-to-point device the stack reads raw
// IPv4 datagrams from and writes replies to. Datagrams cross it whole, with
// no link-layer framing.
type DatagramInterface interface {
	// ReadDatagram blocks until one datagram is available and copies it into
	// buf, returning its length.
	ReadDatagram(buf []byte) (int, error)
	// WriteDatagram transmits one datagram.
	WriteDatagram(pkt []byte) error
}

// Options configures a Stack. Zero values select the defaults above.
type Options struct {
	WindowSize uint16
	TTL        uint8
	// Seed overrides the ISS source seed. Zero seeds from the clock.
	Seed int64
}

// Stack owns the connection table and drives every state transition. All
// table mutation happens under mu; the dispatch loop holds it across the
// whole lookup+transition step, so at most one transition is in flight per
// identity at any time.
type Stack struct {
	log *slog.Logger
	nic DatagramInterface
	wnd uint16
	ttl uint8
	iss *issSource

	mu    sync.Mutex
	conns map[fourTuple]*conn

	// Optional packet capture of both directions.
	capMu      sync.Mutex
	packetDump *pcap.Writer
}

// New constructs a Stack bound to nic. The caller brings the interface up
// and addresses it; the stack only moves datagrams.
func New(log *slog.Logger, nic DatagramInterface, opts Options) *Stack {
	if opts.WindowSize == 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Stack{
		log:   log,
		nic:   nic,
		wnd:   opts.WindowSize,
		ttl:   opts.TTL,
		iss:   newISSSource(opts.Seed),
		conns: make(map[fourTuple]*conn),
	}
}

// OpenPacketCapture enables streaming packet capture of every datagram the
// stack reads or writes. The stream uses the raw-IP link type since there is
// no link-layer framing on the wire.
func (s *Stack) OpenPacketCapture(out io.Writer) error {
	s.capMu.Lock()
	defer s.capMu.Unlock()

	writer := pcap.NewWriter(out)
	if err := writer.WriteFileHeader(MaxDatagramSize, pcap.LinkTypeRaw); err != nil {
		return fmt.Errorf("write pcap header: %w", err)
	}
	s.packetDump = writer
	return nil
}

func (s *Stack) writePacketCapture(data []byte) {
	s.capMu.Lock()
	defer s.capMu.Unlock()

	if s.packetDump == nil {
		return
	}
	if err := s.packetDump.WritePacket(pcap.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data); err != nil {
		s.log.Warn("pcap: write datagram failed", "err", err)
	}
}

// Run reads and processes one datagram at a time until the interface fails.
// Per-segment errors are logged and never stop the loop; a read or write
// error on the interface is fatal and propagates to the caller.
func (s *Stack) Run() error {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, err := s.nic.ReadDatagram(buf)
		if err != nil {
			return fmt.Errorf("read from interface: %w", err)
		}

		if err := s.handleDatagram(buf[:n]); err != nil {
			switch {
			case errors.Is(err, ErrParse):
				s.log.Debug("skipping datagram", "err", err)
			case errors.Is(err, ErrValidation), errors.Is(err, ErrProtocolState):
				s.log.Info("dropping segment", "err", err)
			default:
				return err
			}
		}
	}
}

// handleDatagram parses one raw datagram, demuxes it to its connection and
// drives the applicable transition.
func (s *Stack) handleDatagram(buf []byte) error {
	s.writePacketCapture(buf)

	id, _, tcp, err := parseDatagram(buf)
	if err != nil {
		return err
	}
	seg := segmentFromHeader(tcp)
	s.log.Debug("tcp segment",
		"id", id,
		"seq", seg.seq,
		"ack", seg.ack,
		"flags", seg.flags,
		"len", len(seg.payload),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return s.accept(id, seg)
	}

	switch {
	case seg.flags&header.TCPFlagSyn != 0:
		// Re-delivered SYN for a live entry. Reprocessing it would clobber
		// the sequence-space records, so it is rejected outright.
		return fmt.Errorf("%w: duplicate syn for %s connection %s",
			ErrProtocolState, c.state, id)
	case c.state == stateSynRcvd:
		if err := c.checkAck(seg); err != nil {
			// The entry survives: a single bad segment must not forget an
			// in-flight connection.
			return err
		}
		s.log.Info("connection established", "id", id,
			"iss", c.snd.iss, "irs", c.rcv.irs)
		return nil
	default:
		return fmt.Errorf("%w: no transition from %s for %s",
			ErrProtocolState, c.state, id)
	}
}

// accept attempts Listen -> SynRcvd for an identity with no table entry. The
// entry is inserted only after the transition succeeds; a failed handshake
// attempt leaves no trace in the table.
func (s *Stack) accept(id fourTuple, seg segment) error {
	// SYN floods land here unthrottled. Real kernels defend against that;
	// this endpoint does not care.
	c := newListenConn(id)
	iss := s.iss.next()
	if err := c.synAck(seg, iss, s.wnd); err != nil {
		return err
	}

	reply := buildSynAck(id, iss, c.rcv.nxt, s.wnd, s.ttl)
	s.conns[id] = c

	s.writePacketCapture(reply)
	if err := s.nic.WriteDatagram(reply); err != nil {
		return fmt.Errorf("write syn-ack to interface: %w", err)
	}
	s.log.Info("syn received, syn-ack sent", "id", id,
		"iss", iss, "irs", c.rcv.irs, "wnd", s.wnd)
	return nil
}
