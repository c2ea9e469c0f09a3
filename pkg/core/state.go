package core

// ConnState is a snapshot of a traced connection: both endpoints and the
// per-direction sequence counters. Counters start at zero and wrap at 2^32.
type ConnState struct {
	ID     ConnID
	Local  Endpoint
	Remote Endpoint
	SeqOut uint32
	SeqIn  uint32
}

// Family returns the address family shared by both endpoints.
func (s ConnState) Family() Family { return s.Local.Family() }

// Seq returns the counter for the given direction.
func (s ConnState) Seq(d Direction) uint32 {
	if d == Inbound {
		return s.SeqIn
	}
	return s.SeqOut
}

// Endpoints returns (from, to) for a chunk travelling in direction d.
func (s ConnState) Endpoints(d Direction) (from, to Endpoint) {
	if d == Inbound {
		return s.Remote, s.Local
	}
	return s.Local, s.Remote
}

// Advance grows the counter for direction d by n bytes, modulo 2^32.
func (s *ConnState) Advance(d Direction, n int) {
	if d == Inbound {
		s.SeqIn += uint32(n)
		return
	}
	s.SeqOut += uint32(n)
}
