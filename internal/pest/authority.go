package pest

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// DefaultAuthorityAddr is the well-known pest-control authority endpoint.
const DefaultAuthorityAddr = "pestcontrol.protohackers.com:20547"

// Option configures a Server at construction time.
type Option func(*Server)

// WithAuthorityAddr overrides the authority endpoint every site's policy
// traffic is dialed against.
func WithAuthorityAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.authorityAddr = addr
		}
	}
}

// WithDialer overrides how authority connections are established, mainly
// for tests that want to substitute an in-memory pipe.
func WithDialer(dial func(ctx context.Context, addr string) (net.Conn, error)) Option {
	return func(s *Server) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// authorityConn serializes request/response traffic on one cached
// connection to the authority server.
type authorityConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (a *authorityConn) roundTrip(msg message) (message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.conn.Write(msg.encode()); err != nil {
		return message{}, fmt.Errorf("writing to authority: %w", err)
	}
	return readMessage(a.conn)
}

type siteStateEntry struct {
	mu    sync.Mutex
	state *siteState
	ready bool
}

func (s *Server) getConnection(ctx context.Context, site uint32) (*authorityConn, error) {
	s.mu.Lock()
	conn, ok := s.connections[site]
	s.mu.Unlock()
	if ok {
		return conn, nil
	}

	raw, err := s.dial(ctx, s.authorityAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing authority: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.connections[site]; ok {
		raw.Close()
		return conn, nil
	}
	conn = &authorityConn{conn: raw}
	s.connections[site] = conn
	return conn, nil
}

func (s *Server) getTargets(ctx context.Context, site uint32) (map[string]populationTarget, error) {
	conn, err := s.getConnection(ctx, site)
	if err != nil {
		return nil, err
	}

	hello, err := conn.roundTrip(helloMessage())
	if err != nil {
		return nil, err
	}
	if hello.msgType != msgHello || hello.protocol != "pestcontrol" || hello.version != 1 {
		return nil, fmt.Errorf("invalid Hello message from authority server")
	}

	resp, err := conn.roundTrip(dialAuthorityMessage(site))
	if err != nil {
		return nil, err
	}
	if resp.msgType != msgTargetPopulations {
		return nil, fmt.Errorf("invalid TargetPopulations message from authority server")
	}

	targets := make(map[string]populationTarget, len(resp.targets))
	for _, t := range resp.targets {
		targets[t.species] = t
	}
	return targets, nil
}

func (s *Server) getSiteState(ctx context.Context, site uint32) (*siteStateEntry, error) {
	s.mu.Lock()
	entry, ok := s.siteStates[site]
	if !ok {
		entry = &siteStateEntry{}
		s.siteStates[site] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	if entry.ready {
		entry.mu.Unlock()
		return entry, nil
	}

	targets, err := s.getTargets(ctx, site)
	if err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	entry.state = newSiteState()
	entry.state.targets = targets
	entry.ready = true
	entry.mu.Unlock()
	return entry, nil
}

func (s *Server) addPolicy(ctx context.Context, site uint32, species string, isCull bool) (uint32, error) {
	conn, err := s.getConnection(ctx, site)
	if err != nil {
		return 0, err
	}
	resp, err := conn.roundTrip(createPolicyMessage(species, policyTypeByte(isCull)))
	if err != nil {
		return 0, err
	}
	if resp.msgType != msgPolicyResult {
		return 0, fmt.Errorf("error when creating policy")
	}
	return resp.policyID, nil
}

func (s *Server) deletePolicy(ctx context.Context, site uint32, policyID uint32) error {
	conn, err := s.getConnection(ctx, site)
	if err != nil {
		return err
	}
	resp, err := conn.roundTrip(deletePolicyMessage(policyID))
	if err != nil {
		return err
	}
	if resp.msgType != msgOK {
		return fmt.Errorf("error when deleting policy")
	}
	return nil
}

// processObservation reconciles one site visit's observations against the
// site's targets and issues whatever CreatePolicy/DeletePolicy calls follow.
func (s *Server) processObservation(ctx context.Context, site uint32, observations []populationObs) error {
	entry, err := s.getSiteState(ctx, site)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for _, action := range entry.state.getActions(observations) {
		switch action.kind {
		case actionDelete:
			if err := s.deletePolicy(ctx, site, action.id); err != nil {
				return err
			}
			delete(entry.state.policies, action.species)
		case actionAdd:
			id, err := s.addPolicy(ctx, site, action.species, action.isCull)
			if err != nil {
				return err
			}
			entry.state.policies[action.species] = policy{id: id, species: action.species, isCull: action.isCull}
		}
	}
	return nil
}
