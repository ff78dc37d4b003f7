package speed

import (
	"math"
	"sync"
)

const secondsPerDay = 86400

// state holds every camera, dispatcher, observation and dedup record shared
// across all connections to one speed-daemon server. All mutation happens
// under mu; the caller is responsible for sending any resulting tickets
// after releasing it.
type state struct {
	mu             sync.Mutex
	cameras        map[ClientID]camera
	dispatchers    map[ClientID]dispatcher
	observations   []observation
	heartbeatsSent map[ClientID]bool
	ticketQueue    map[uint16][]ticket          // keyed by road, awaiting a dispatcher
	ticketSentDays map[string]map[uint32]bool   // plate -> set of days already ticketed
}

func newState() *state {
	return &state{
		cameras:        make(map[ClientID]camera),
		dispatchers:    make(map[ClientID]dispatcher),
		heartbeatsSent: make(map[ClientID]bool),
		ticketQueue:    make(map[uint16][]ticket),
		ticketSentDays: make(map[string]map[uint32]bool),
	}
}

func (s *state) hasClient(id ClientID) bool {
	if _, ok := s.cameras[id]; ok {
		return true
	}
	_, ok := s.dispatchers[id]
	return ok
}

// addCamera registers id as a camera. Returns an error message if id is
// already registered as either role.
func (s *state) addCamera(id ClientID, c camera) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasClient(id) {
		return "already identified as camera or dispatcher"
	}
	s.cameras[id] = c
	return ""
}

// addDispatcher registers id as a dispatcher and returns any queued tickets
// for the roads it now covers, addressed to it.
func (s *state) addDispatcher(id ClientID, d dispatcher) ([]ticket, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasClient(id) {
		return nil, "already identified as camera or dispatcher"
	}
	s.dispatchers[id] = d

	var toSend []ticket
	for _, road := range d.roads {
		if queued, ok := s.ticketQueue[road]; ok && len(queued) > 0 {
			toSend = append(toSend, queued...)
			delete(s.ticketQueue, road)
		}
	}
	return toSend, ""
}

// markHeartbeat records that id has already requested heartbeats. Returns an
// error message if it asked twice.
func (s *state) markHeartbeat(id ClientID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeatsSent[id] {
		return "already requested heartbeat"
	}
	s.heartbeatsSent[id] = true
	return ""
}

// readPlate records a plate sighting from the camera id and returns any
// tickets generated by comparing it against prior sightings of the same plate
// on the same road, plus the dispatcher (if any) each should go to.
func (s *state) readPlate(id ClientID, plate string, timestamp uint32) ([]ticketAssignment, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cam, ok := s.cameras[id]
	if !ok {
		return nil, "non-camera can't report a plate"
	}

	obs := observation{plate: plate, timestamp: timestamp, road: cam.road, mile: cam.mile}

	var relevant []observation
	for _, o := range s.observations {
		if o.plate == plate && o.road == cam.road {
			relevant = append(relevant, o)
		}
	}
	s.observations = append(s.observations, obs)

	var out []ticketAssignment
	for _, other := range relevant {
		avgSpeed := computeSpeed(obs, other)
		if avgSpeed <= cam.limit {
			continue
		}
		if t, recipient, queued := s.generateTicket(obs, other, avgSpeed); !queued {
			out = append(out, ticketAssignment{t: t, recipient: recipient})
		}
	}
	return out, ""
}

type ticketAssignment struct {
	t         ticket
	recipient ClientID
}

func computeSpeed(a, b observation) uint16 {
	dist := math.Abs(float64(int(a.mile) - int(b.mile)))
	secs := math.Abs(float64(int64(a.timestamp) - int64(b.timestamp)))
	return uint16(math.Round(3600 * dist / secs))
}

// generateTicket applies the per-plate per-day dedup rule and, if a
// dispatcher already covers the road, returns it ready to send; otherwise it
// queues the ticket and reports queued=true. A ticket suppressed by the dedup
// rule is neither sent nor queued, and also reports queued=true.
func (s *state) generateTicket(a, b observation, speed uint16) (t ticket, recipient ClientID, queued bool) {
	startTS, endTS := a.timestamp, b.timestamp
	if endTS < startTS {
		startTS, endTS = endTS, startTS
	}
	startDay, endDay := startTS/secondsPerDay, endTS/secondsPerDay

	days, ok := s.ticketSentDays[a.plate]
	if ok {
		for d := startDay; d <= endDay; d++ {
			if days[d] {
				return ticket{}, 0, true // already ticketed; nothing to send or queue
			}
		}
	} else {
		days = make(map[uint32]bool)
		s.ticketSentDays[a.plate] = days
	}
	for d := startDay; d <= endDay; d++ {
		days[d] = true
	}

	mile1, mile2 := a.mile, b.mile
	if a.timestamp > b.timestamp {
		mile1, mile2 = b.mile, a.mile
	}

	t = ticket{
		plate:      a.plate,
		road:       a.road,
		mile1:      mile1,
		timestamp1: startTS,
		mile2:      mile2,
		timestamp2: endTS,
		speed100:   speed * 100,
	}

	recipientID, hasDispatcher := s.dispatcherFor(a.road)
	if !hasDispatcher {
		s.ticketQueue[a.road] = append(s.ticketQueue[a.road], t)
		return t, 0, true
	}
	return t, recipientID, false
}

func (s *state) dispatcherFor(road uint16) (ClientID, bool) {
	for id, d := range s.dispatchers {
		for _, r := range d.roads {
			if r == road {
				return id, true
			}
		}
	}
	return 0, false
}

func (s *state) removeClient(id ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cameras, id)
	delete(s.dispatchers, id)
	delete(s.heartbeatsSent, id)
}
