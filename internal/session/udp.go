package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/hollowreach/wakegate/internal/lifecycle"
)

// BedrockIdleTimeout is how long a client endpoint may go without
// activity before its Session is reaped.
const BedrockIdleTimeout = 60 * time.Second

// BedrockSession is the per-client relay state for one UDP endpoint. It
// owns a dedicated backend socket so datagrams returned from the
// backend can be unambiguously attributed back to this client.
type BedrockSession struct {
	mu sync.Mutex

	clientAddr *net.UDPAddr
	backend    *net.UDPConn
	listener   *net.UDPConn
	rt         *lifecycle.Runtime

	lastActivity time.Time
	countedOnce  bool
	closed       bool
	cancel       context.CancelFunc
}

// BedrockTable tracks one BedrockSession per (ip, port), guarded by a
// lock that is released before any socket close during expiry sweeps.
type BedrockTable struct {
	mu       sync.Mutex
	sessions map[string]*BedrockSession
}

func NewBedrockTable() *BedrockTable {
	return &BedrockTable{sessions: make(map[string]*BedrockSession)}
}

// GetOrCreate returns the existing session for clientAddr, or dials a
// fresh backend socket and starts its reader loop.
func (t *BedrockTable) GetOrCreate(listener *net.UDPConn, clientAddr *net.UDPAddr, backendAddr *net.UDPAddr, rt *lifecycle.Runtime) (*BedrockSession, error) {
	key := clientAddr.String()

	t.mu.Lock()
	if s, ok := t.sessions[key]; ok {
		t.mu.Unlock()
		s.touch()
		return s, nil
	}
	t.mu.Unlock()

	backendConn, err := net.DialUDP("udp", nil, backendAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &BedrockSession{
		clientAddr:   clientAddr,
		backend:      backendConn,
		listener:     listener,
		rt:           rt,
		lastActivity: time.Now(),
		cancel:       cancel,
	}

	t.mu.Lock()
	t.sessions[key] = s
	t.mu.Unlock()

	go s.readBackend(ctx)
	return s, nil
}

// Get returns the session for clientAddr if one exists.
func (t *BedrockTable) Get(clientAddr *net.UDPAddr) (*BedrockSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[clientAddr.String()]
	return s, ok
}

// ReapIdle closes and removes every session idle longer than timeout.
// Victims are snapshotted under lock then closed with the lock
// released, per §5's resource-model requirement.
func (t *BedrockTable) ReapIdle(timeout time.Duration) {
	var victims []*BedrockSession
	var keys []string

	t.mu.Lock()
	for k, s := range t.sessions {
		if s.idleFor() > timeout {
			victims = append(victims, s)
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		delete(t.sessions, k)
	}
	t.mu.Unlock()

	for _, s := range victims {
		s.Close()
	}
}

func (s *BedrockSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
	s.rt.Touch()
}

func (s *BedrockSession) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// CountOnce increments the runtime's session counter exactly once per
// Session, guarding against Open Connection Request 2 retransmits.
func (s *BedrockSession) CountOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countedOnce {
		return
	}
	s.countedOnce = true
	s.rt.IncSession()
}

// Forward sends payload to the backend over this session's dedicated socket.
func (s *BedrockSession) Forward(payload []byte) error {
	s.touch()
	_, err := s.backend.Write(payload)
	return err
}

func (s *BedrockSession) readBackend(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		s.backend.SetReadDeadline(time.Now().Add(BedrockIdleTimeout))
		n, err := s.backend.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Debug("bedrock backend read loop ended")
			}
			return
		}
		s.touch()
		if _, err := s.listener.WriteToUDP(buf[:n], s.clientAddr); err != nil {
			return
		}
	}
}

// Close tears down the backend socket and decrements the runtime's
// session counter exactly once, guarded against double-close.
func (s *BedrockSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	counted := s.countedOnce
	s.mu.Unlock()

	s.cancel()
	s.backend.Close()
	if counted {
		s.rt.DecSession()
	}
}
