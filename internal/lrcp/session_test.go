package lrcp

import "testing"

func TestSessionPushReversesCompleteLines(t *testing.T) {
	s := newSession()
	s.push("hello\nworld\n")

	if !s.readyToSend() {
		t.Fatal("nothing sent yet, should be ready")
	}
	msg, ok := s.nextMessage()
	if !ok {
		t.Fatal("expected a pending message")
	}
	if msg != "olleh\ndlrow\n" {
		t.Fatalf("got %q", msg)
	}
}

func TestSessionPushAcrossPartialWrites(t *testing.T) {
	s := newSession()
	s.push("hel")
	s.push("lo\nwor")
	s.push("ld\n")

	msg, ok := s.nextMessage()
	if !ok || msg != "olleh\ndlrow\n" {
		t.Fatalf("got %q ok=%v", msg, ok)
	}
}

func TestSessionAcknowledgeAdvancesWindow(t *testing.T) {
	s := newSession()
	s.push("ab\n")
	msg, _ := s.nextMessage()
	if s.readyToSend() {
		t.Fatal("expected in-flight data to block readiness")
	}

	inFlight, ok := s.inFlightMessage()
	if !ok || inFlight != msg {
		t.Fatalf("expected in-flight chunk %q, got %q ok=%v", msg, inFlight, ok)
	}

	s.acknowledge()
	if !s.readyToSend() {
		t.Fatal("expected readiness after acknowledge")
	}
	if _, ok := s.nextMessage(); ok {
		t.Fatal("expected nothing left to send")
	}
}

func TestSessionLargePayloadSplitsAtMaxDataPerMessage(t *testing.T) {
	s := newSession()
	long := make([]byte, maxDataPerMessage+100)
	for i := range long {
		long[i] = 'a'
	}
	s.push(string(long) + "\n")

	first, ok := s.nextMessage()
	if !ok || len(first) != maxDataPerMessage {
		t.Fatalf("expected first chunk of %d bytes, got %d", maxDataPerMessage, len(first))
	}
	s.acknowledge()

	second, ok := s.nextMessage()
	if !ok || len(second) != 101 { // remaining 100 reversed bytes + trailing newline
		t.Fatalf("expected remaining 101 bytes, got %d", len(second))
	}
}
