package lrcp

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	retransmitInterval = 500 * time.Millisecond
	retransmitAttempts = 21 // initial send + 20 retries, matching the reference timing
	maxDatagramSize    = 1024
)

// Server runs the LRCP session layer: it owns every open session and the
// single UDP socket they share, and reverses each complete line a session
// receives before queuing it back out.
type Server struct {
	log *logrus.Entry

	mu       sync.Mutex
	sessions map[uint32]*session
	addrs    map[uint32]net.Addr
	cancels  map[uint32]context.CancelFunc
}

// New returns an LRCP Server ready to be handed to transport.ServeUDP.
func New(log *logrus.Entry) *Server {
	return &Server{
		log:      log,
		sessions: make(map[uint32]*session),
		addrs:    make(map[uint32]net.Addr),
		cancels:  make(map[uint32]context.CancelFunc),
	}
}

// MaxDatagramSize is the buffer size transport.ServeUDP should allocate per
// read; 950-byte payloads plus framing comfortably fit in 1024 bytes.
func (s *Server) MaxDatagramSize() int { return maxDatagramSize }

// Handle implements transport.PacketHandler.
func (s *Server) Handle(ctx context.Context, pc net.PacketConn, addr net.Addr, buf []byte) {
	raw := strings.TrimSpace(string(buf))
	msg, ok := parseMessage(raw)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[msg.sessionID] = addr

	switch msg.kind {
	case kindConnect:
		s.handleConnect(ctx, pc, msg.sessionID)
	case kindData:
		s.handleData(ctx, pc, msg.sessionID, msg.pos, msg.data)
	case kindAck:
		s.handleAck(ctx, pc, msg.sessionID, msg.pos)
	case kindClose:
		s.closeSession(pc, msg.sessionID)
	}
}

func (s *Server) handleConnect(ctx context.Context, pc net.PacketConn, id uint32) {
	if _, exists := s.sessions[id]; !exists {
		s.sessions[id] = newSession()
	}
	s.sendTo(pc, id, fmt.Sprintf("/ack/%d/0/", id))
}

func (s *Server) handleData(ctx context.Context, pc net.PacketConn, id uint32, pos int, data string) {
	sess, exists := s.sessions[id]
	if !exists {
		s.sendTo(pc, id, fmt.Sprintf("/close/%d/", id))
		return
	}

	if pos != sess.lengthRecv {
		s.sendTo(pc, id, fmt.Sprintf("/ack/%d/%d/", id, sess.lengthRecv))
		return
	}

	s.sendTo(pc, id, fmt.Sprintf("/ack/%d/%d/", id, pos+len(data)))
	sess.push(data)

	if sess.readyToSend() {
		if chunk, ok := sess.nextMessage(); ok {
			s.dispatchReliable(ctx, pc, id, sess.lengthAcked, chunk)
		}
	}
}

func (s *Server) handleAck(ctx context.Context, pc net.PacketConn, id uint32, pos int) {
	sess, exists := s.sessions[id]
	if !exists {
		s.sendTo(pc, id, fmt.Sprintf("/close/%d/", id))
		return
	}

	switch {
	case pos < sess.lengthAcked:
		// stale ack; the in-flight chunk keeps retransmitting
	case pos == sess.lengthSent:
		s.cancelRetransmit(id)
		sess.acknowledge()
		if chunk, ok := sess.nextMessage(); ok {
			s.dispatchReliable(ctx, pc, id, sess.lengthAcked, chunk)
		}
	case pos > sess.lengthSent:
		s.closeSessionLocked(pc, id)
	default:
		s.cancelRetransmit(id)
		if chunk, ok := sess.inFlightMessage(); ok {
			s.dispatchReliable(ctx, pc, id, sess.lengthAcked, chunk)
		}
	}
}

func (s *Server) closeSession(pc net.PacketConn, id uint32) {
	s.closeSessionLocked(pc, id)
}

func (s *Server) closeSessionLocked(pc net.PacketConn, id uint32) {
	s.cancelRetransmit(id)
	delete(s.sessions, id)
	s.sendTo(pc, id, fmt.Sprintf("/close/%d/", id))
}

func (s *Server) cancelRetransmit(id uint32) {
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

// dispatchReliable sends a /data/ message and spawns a goroutine that resends
// it every 500ms until acked (cancelRetransmit) or it exhausts its retry
// budget, at which point the session is considered dead.
func (s *Server) dispatchReliable(ctx context.Context, pc net.PacketConn, id uint32, ackedPos int, chunk string) {
	payload := fmt.Sprintf("/data/%d/%d/%s/", id, ackedPos, escape(chunk))
	s.sendTo(pc, id, payload)

	addr, ok := s.addrs[id]
	if !ok {
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.cancels[id] = cancel
	go s.retransmitLoop(taskCtx, pc, id, addr, payload)
}

// retransmitLoop resends payload straight to addr, the address captured when
// the session last heard from its peer, instead of re-reading s.addrs: the
// ticker case fires with no lock held, and s.addrs is mutated concurrently by
// Handle.
func (s *Server) retransmitLoop(ctx context.Context, pc net.PacketConn, id uint32, addr net.Addr, payload string) {
	ticker := time.NewTicker(retransmitInterval)
	defer ticker.Stop()

	for i := 1; i < retransmitAttempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = pc.WriteTo([]byte(payload), addr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, stillPending := s.cancels[id]; stillPending {
		s.closeSessionLocked(pc, id)
	}
}

// sendTo looks up the last known address for id and writes payload to it.
// Must be called with mu held.
func (s *Server) sendTo(pc net.PacketConn, id uint32, payload string) {
	addr, ok := s.addrs[id]
	if !ok {
		return
	}
	_, _ = pc.WriteTo([]byte(payload), addr)
}
