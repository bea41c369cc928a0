package tcpstack

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// MaxDatagramSize is the largest raw datagram the dispatch loop accepts from
// the interface. Datagrams arrive whole; there is no fragment reassembly.
const MaxDatagramSize = 1500

// segment is the slice of an inbound TCP header the state machine consumes.
// The payload borrows from the receive buffer and is only valid until the
// next read.
type segment struct {
	seq     uint32
	ack     uint32
	wnd     uint16
	flags   header.TCPFlags
	payload []byte
}

// seqLen returns the number of sequence-space octets the segment occupies:
// payload octets plus one each for SYN and FIN (RFC 793 page 26).
func (s segment) seqLen() uint32 {
	n := uint32(len(s.payload))
	if s.flags&header.TCPFlagSyn != 0 {
		n++
	}
	if s.flags&header.TCPFlagFin != 0 {
		n++
	}
	return n
}

func segmentFromHeader(tcp header.TCP) segment {
	return segment{
		seq:     tcp.SequenceNumber(),
		ack:     tcp.AckNumber(),
		wnd:     tcp.WindowSize(),
		flags:   tcp.Flags(),
		payload: tcp.Payload(),
	}
}

// parseDatagram extracts the connection identity and header views from one
// raw IPv4 datagram. The returned views borrow from buf; nothing is copied.
// All failures are ErrParse: the caller skips the datagram without touching
// any connection state.
func parseDatagram(buf []byte) (fourTuple, header.IPv4, header.TCP, error) {
	var id fourTuple

	if len(buf) < header.IPv4MinimumSize {
		return id, nil, nil, fmt.Errorf("%w: truncated ipv4 header (%d bytes)", ErrParse, len(buf))
	}
	ip := header.IPv4(buf)
	if !ip.IsValid(len(buf)) {
		return id, nil, nil, fmt.Errorf("%w: invalid ipv4 header", ErrParse)
	}
	if ip.Protocol() != uint8(header.TCPProtocolNumber) {
		return id, nil, nil, fmt.Errorf("%w: protocol %d is not tcp", ErrParse, ip.Protocol())
	}

	l4 := buf[ip.HeaderLength():ip.TotalLength()]
	if len(l4) < header.TCPMinimumSize {
		return id, nil, nil, fmt.Errorf("%w: truncated tcp header (%d bytes)", ErrParse, len(l4))
	}
	tcp := header.TCP(l4)
	if off := int(tcp.DataOffset()); off < header.TCPMinimumSize || off > len(l4) {
		return id, nil, nil, fmt.Errorf("%w: bad tcp data offset %d", ErrParse, tcp.DataOffset())
	}

	id = fourTuple{
		srcAddr: ip.SourceAddress().As4(),
		srcPort: tcp.SourcePort(),
		dstAddr: ip.DestinationAddress().As4(),
		dstPort: tcp.DestinationPort(),
	}
	return id, ip, tcp, nil
}

// buildSynAck crafts the handshake reply for id: addresses and ports swapped,
// SEQ=ISS, ACK=RCV.NXT, SYN and ACK set, no payload.
func buildSynAck(id fourTuple, iss, ackNum uint32, wnd uint16, ttl uint8) []byte {
	pkt := make([]byte, header.IPv4MinimumSize+header.TCPMinimumSize)
	src := tcpip.AddrFrom4(id.dstAddr)
	dst := tcpip.AddrFrom4(id.srcAddr)

	ip := header.IPv4(pkt)
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(len(pkt)),
		TTL:         ttl,
		Protocol:    uint8(header.TCPProtocolNumber),
		SrcAddr:     src,
		DstAddr:     dst,
	})
	ip.SetChecksum(^ip.CalculateChecksum())

	tcp := header.TCP(pkt[header.IPv4MinimumSize:])
	tcp.Encode(&header.TCPFields{
		SrcPort:    id.dstPort,
		DstPort:    id.srcPort,
		SeqNum:     iss,
		AckNum:     ackNum,
		DataOffset: header.TCPMinimumSize,
		Flags:      header.TCPFlagSyn | header.TCPFlagAck,
		WindowSize: wnd,
	})
	// The checksum covers the standard TCP/IPv4 pseudo-header. Peers silently
	// ignore a SYN-ACK with a bad checksum, so this field is load bearing.
	sum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, src, dst,
		uint16(header.TCPMinimumSize))
	tcp.SetChecksum(^tcp.CalculateChecksum(sum))

	return pkt
}
