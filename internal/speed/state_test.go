package speed

import "testing"

func TestComputeSpeed(t *testing.T) {
	a := observation{mile: 8, timestamp: 0}
	b := observation{mile: 9, timestamp: 45}
	got := computeSpeed(a, b)
	if got != 80 {
		t.Fatalf("expected 80, got %d", got)
	}
}

func TestReadPlateGeneratesTicketWhenOverLimit(t *testing.T) {
	s := newState()
	camID := ClientID(1)
	dispID := ClientID(2)

	if msg := s.addCamera(camID, camera{road: 123, mile: 8, limit: 60}); msg != "" {
		t.Fatalf("addCamera failed: %s", msg)
	}
	if _, msg := s.addDispatcher(dispID, dispatcher{roads: []uint16{123}}); msg != "" {
		t.Fatalf("addDispatcher failed: %s", msg)
	}

	if out, msg := s.readPlate(camID, "UN1X", 0); msg != "" || len(out) != 0 {
		t.Fatalf("first sighting should produce no ticket: %v %q", out, msg)
	}

	camID2 := ClientID(3)
	if msg := s.addCamera(camID2, camera{road: 123, mile: 9, limit: 60}); msg != "" {
		t.Fatalf("addCamera failed: %s", msg)
	}
	out, msg := s.readPlate(camID2, "UN1X", 45)
	if msg != "" {
		t.Fatalf("unexpected error: %s", msg)
	}
	if len(out) != 1 {
		t.Fatalf("expected one ticket, got %d", len(out))
	}
	if out[0].recipient != dispID {
		t.Fatalf("expected ticket routed to dispatcher %d, got %d", dispID, out[0].recipient)
	}
	if out[0].t.speed100 != 8000 {
		t.Fatalf("expected speed100=8000 (80mph), got %d", out[0].t.speed100)
	}
}

func TestReadPlateNoTicketUnderLimit(t *testing.T) {
	s := newState()
	cam1, cam2 := ClientID(1), ClientID(2)
	s.addCamera(cam1, camera{road: 1, mile: 0, limit: 100})
	s.addCamera(cam2, camera{road: 1, mile: 1, limit: 100})

	s.readPlate(cam1, "ABC", 0)
	out, _ := s.readPlate(cam2, "ABC", 3600) // exactly 1mph, well under limit
	if len(out) != 0 {
		t.Fatalf("expected no ticket under limit, got %d", len(out))
	}
}

func TestTicketDedupPerDay(t *testing.T) {
	s := newState()
	s.ticketSentDays["UN1X"] = map[uint32]bool{0: true}

	_, _, queued := s.generateTicket(
		observation{plate: "UN1X", timestamp: 100, mile: 0},
		observation{plate: "UN1X", timestamp: 200, mile: 1},
		100,
	)
	if !queued {
		t.Fatalf("expected already-ticketed day to suppress output, queued=%v", queued)
	}
}

func TestQueuesTicketWithoutDispatcher(t *testing.T) {
	s := newState()
	_, _, queued := s.generateTicket(
		observation{plate: "X", timestamp: 0, road: 7, mile: 0},
		observation{plate: "X", timestamp: 10, road: 7, mile: 1},
		200,
	)
	if !queued {
		t.Fatal("expected ticket to be queued without a dispatcher")
	}
	if len(s.ticketQueue[7]) != 1 {
		t.Fatalf("expected one queued ticket for road 7, got %d", len(s.ticketQueue[7]))
	}
}
