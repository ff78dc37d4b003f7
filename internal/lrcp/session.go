package lrcp

import "strings"

const maxDataPerMessage = 950

// session holds one LRCP connection's reliable-delivery bookkeeping: what
// we've received and reassembled, and what we owe the peer by way of
// reversed lines. toSend always holds, from its front, the bytes not yet
// acknowledged; nextMessage is only ever called when nothing is in flight
// (lengthSent == lengthAcked), so it always reads from index 0.
type session struct {
	pending     strings.Builder // partial (newline-less) line received so far
	toSend      string          // reversed lines not yet acknowledged
	lengthRecv  int
	lengthSent  int
	lengthAcked int
}

func newSession() *session {
	return &session{}
}

// push appends newly-received application data (already unescaped) and
// reverses any newline-terminated lines it completes, matching the wire
// byte-accounting: lengthRecv always advances by len(data).
func (s *session) push(data string) {
	s.lengthRecv += len(data)
	if !strings.Contains(data, "\n") {
		s.pending.WriteString(data)
		return
	}

	lines := strings.Split(data, "\n")

	// The first completed line is whatever was pending plus lines[0]; reverse
	// it without concatenating first by reversing each half in swapped order
	// (reverse(pending+lines[0]) == reverse(lines[0])+reverse(pending)).
	var b strings.Builder
	b.WriteString(s.toSend)
	b.WriteString(reverseLine(lines[0]))
	b.WriteString(reverseLine(s.pending.String()))
	b.WriteByte('\n')
	s.pending.Reset()

	for _, line := range lines[1 : len(lines)-1] {
		b.WriteString(reverseLine(line))
		b.WriteByte('\n')
	}
	s.toSend = b.String()
	s.pending.WriteString(lines[len(lines)-1])
}

// readyToSend reports whether nothing is currently in flight, i.e. it is
// valid to call nextMessage.
func (s *session) readyToSend() bool {
	return s.lengthSent == s.lengthAcked
}

// nextMessage returns up to maxDataPerMessage bytes from the front of toSend
// and advances lengthSent, or ok=false if there's nothing pending.
func (s *session) nextMessage() (string, bool) {
	if s.toSend == "" {
		return "", false
	}
	n := len(s.toSend)
	if n > maxDataPerMessage {
		n = maxDataPerMessage
	}
	msg := s.toSend[:n]
	s.lengthSent += n
	return msg, true
}

// acknowledge drops the bytes now confirmed delivered from the front of
// toSend and marks everything sent so far as acked.
func (s *session) acknowledge() {
	confirmed := s.lengthSent - s.lengthAcked
	s.toSend = s.toSend[confirmed:]
	s.lengthAcked = s.lengthSent
}

// inFlightMessage returns the chunk already sent but not yet acknowledged,
// for retransmission. It never mutates session state.
func (s *session) inFlightMessage() (string, bool) {
	n := s.lengthSent - s.lengthAcked
	if n <= 0 {
		return "", false
	}
	return s.toSend[:n], true
}
