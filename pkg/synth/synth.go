// Package synth fabricates IPv4/IPv6 and TCP headers for captured chunks.
//
// The headers describe a plausible TCP segment carrying the chunk: ports and
// addresses come from the traced connection, the sequence number is the
// per-direction byte counter. Checksums are always zero and the flag set is
// fixed, so analyzers must be told to skip checksum validation.
package synth

import (
	"encoding/binary"

	"github.com/irctrakz/chunkcap/pkg/core"
)

const (
	ipv4HeaderLen = 20
	ipv6HeaderLen = 40
	tcpHeaderLen  = 20

	protoTCP = 6

	// SnapLen is the largest record the capture file declares.
	SnapLen = 65535
)

// Options controls the constant fields of synthesized headers.
type Options struct {
	TTL      uint8
	HopLimit uint8
	Window   uint16
	Flags    Flags
}

// DefaultOptions returns TTL/hop limit 128, window 0xffff and SYN+PSH.
func DefaultOptions() Options {
	return Options{
		TTL:      128,
		HopLimit: 128,
		Window:   0xffff,
		Flags:    FlagSYN | FlagPSH,
	}
}

// Synthesizer builds network+transport headers. It holds no mutable state and
// is safe for concurrent use.
type Synthesizer struct {
	opts Options
}

// New creates a synthesizer with the given options.
func New(opts Options) *Synthesizer {
	return &Synthesizer{opts: opts}
}

// Options returns the synthesizer's options.
func (s *Synthesizer) Options() Options { return s.opts }

// HeaderLen returns the combined network+TCP header length for a family.
func HeaderLen(f core.Family) int {
	if f == core.FamilyIPv6 {
		return ipv6HeaderLen + tcpHeaderLen
	}
	return ipv4HeaderLen + tcpHeaderLen
}

// MaxPayload returns the largest payload that fits one record of SnapLen
// bytes for the family.
func MaxPayload(f core.Family) int {
	return SnapLen - HeaderLen(f)
}

// Headers returns the network header followed by the TCP header for a chunk
// of n bytes travelling in direction dir. The sequence number is the state's
// counter for dir; the caller advances it afterwards.
func (s *Synthesizer) Headers(st core.ConnState, dir core.Direction, n int) []byte {
	from, to := st.Endpoints(dir)
	seq := st.Seq(dir)

	var hdr []byte
	var off int
	if from.Family() == core.FamilyIPv6 {
		hdr = make([]byte, ipv6HeaderLen+tcpHeaderLen)
		s.putIPv6(hdr, from, to, tcpHeaderLen+n)
		off = ipv6HeaderLen
	} else {
		hdr = make([]byte, ipv4HeaderLen+tcpHeaderLen)
		s.putIPv4(hdr, from, to, ipv4HeaderLen+tcpHeaderLen+n)
		off = ipv4HeaderLen
	}
	s.putTCP(hdr[off:], from.Port(), to.Port(), seq)
	return hdr
}

func (s *Synthesizer) putIPv4(b []byte, from, to core.Endpoint, total int) {
	b[0] = 0x45
	b[1] = 0x00
	binary.BigEndian.PutUint16(b[2:4], uint16(total))
	// identification, flags, fragment offset
	b[4], b[5], b[6], b[7] = 0, 0, 0, 0
	b[8] = s.opts.TTL
	b[9] = protoTCP
	// header checksum left zero
	b[10], b[11] = 0, 0
	copy(b[12:16], from.Addr())
	copy(b[16:20], to.Addr())
}

func (s *Synthesizer) putIPv6(b []byte, from, to core.Endpoint, payloadLen int) {
	// version 6, traffic class 0, flow label 0
	b[0] = 0x60
	b[1], b[2], b[3] = 0, 0, 0
	binary.BigEndian.PutUint16(b[4:6], uint16(payloadLen))
	b[6] = protoTCP
	b[7] = s.opts.HopLimit
	copy(b[8:24], from.Addr())
	copy(b[24:40], to.Addr())
}

func (s *Synthesizer) putTCP(b []byte, srcPort, dstPort uint16, seq uint32) {
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint32(b[4:8], seq)
	binary.BigEndian.PutUint32(b[8:12], 0) // ack
	b[12] = byte((tcpHeaderLen / 4) << 4)
	b[13] = byte(s.opts.Flags)
	binary.BigEndian.PutUint16(b[14:16], s.opts.Window)
	// checksum and urgent pointer
	b[16], b[17], b[18], b[19] = 0, 0, 0, 0
}
