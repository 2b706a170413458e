// Package bedrock implements the per-ServerConfig UDP receive loop:
// classify RakNet offline messages by first byte, answer status pings
// synthetically, and forward wake/session traffic to the backend.
package bedrock

import (
	"context"
	"net"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/bedrockproto"
	"github.com/hollowreach/wakegate/internal/eventbus"
	"github.com/hollowreach/wakegate/internal/lifecycle"
	"github.com/hollowreach/wakegate/internal/session"
)

// ReapInterval is how often idle Bedrock sessions are swept.
const ReapInterval = 15 * time.Second

// Listener is a bound UDP receive loop for one Bedrock-capable ServerConfig.
type Listener struct {
	cfg          config.ServerConfig
	port         uint16
	internalPort uint16
	manager      *lifecycle.Manager
	bus          *eventbus.Bus

	conn       *net.UDPConn
	sessions   *session.BedrockTable
	serverGUID int64
}

// New builds a Listener. port/internalPort let a Java server's crossplay
// fields be passed in place of the Bedrock-native external/internal ports.
func New(cfg config.ServerConfig, port, internalPort uint16, manager *lifecycle.Manager, bus *eventbus.Bus) *Listener {
	return &Listener{
		cfg:          cfg,
		port:         port,
		internalPort: internalPort,
		manager:      manager,
		bus:          bus,
		sessions:     session.NewBedrockTable(),
		serverGUID:   int64(uuid.New().ID()),
	}
}

func (l *Listener) Serve(ctx context.Context) error {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(l.port)))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "resolving bedrock listen addr for %s", l.cfg.ID)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return errors.Wrapf(err, "binding bedrock listener for %s", l.cfg.ID)
	}
	l.conn = conn

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go l.reapLoop(ctx)

	log.WithField("server_id", l.cfg.ID).WithField("addr", addr).Info("bedrock listener bound")

	buf := make([]byte, 2048)
	for {
		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go l.handle(ctx, datagram, clientAddr)
	}
}

func (l *Listener) handle(ctx context.Context, datagram []byte, clientAddr *net.UDPAddr) {
	id, ok := bedrockproto.MessageID(datagram)
	if !ok {
		return
	}

	switch id {
	case bedrockproto.IDUnconnectedPing:
		l.handlePing(ctx, datagram, clientAddr)
	case bedrockproto.IDOpenConnectionReq1:
		l.handleOpenConnectionReq1(ctx, datagram, clientAddr)
	case bedrockproto.IDOpenConnectionReq2:
		l.handleOpenConnectionReq2(datagram, clientAddr)
	default:
		if s, ok := l.sessions.Get(clientAddr); ok {
			s.Forward(datagram)
		}
	}
}

func (l *Listener) handlePing(ctx context.Context, datagram []byte, clientAddr *net.UDPAddr) {
	ts, _, ok := bedrockproto.ParseUnconnectedPing(datagram)
	if !ok {
		return
	}

	rt := l.manager.RuntimeFor(l.cfg.ID)
	if rt.State() == lifecycle.Running {
		if s, exists := l.sessions.Get(clientAddr); exists {
			s.Forward(datagram)
			return
		}
		l.relayPingToBackend(datagram, clientAddr)
		return
	}

	pong := bedrockproto.BuildUnconnectedPong(ts, bedrockproto.PongInfo{
		MOTD:          l.cfg.MOTD + " (sleeping)",
		Protocol:      int(l.cfg.FakeProtocol),
		GameVersion:   l.cfg.FakeVersion,
		OnlinePlayers: 0,
		MaxPlayers:    l.cfg.MaxPlayers,
		ServerGUID:    l.serverGUID,
		LevelName:     "wakegate",
		Gamemode:      "Survival",
		Port:          l.port,
	})
	l.conn.WriteToUDP(pong, clientAddr)
}

// relayPingToBackend forwards a status ping to a running backend without
// establishing a full Session, then relays the single pong reply back.
func (l *Listener) relayPingToBackend(datagram []byte, clientAddr *net.UDPAddr) {
	backendAddr := net.JoinHostPort(l.cfg.InternalHost, strconv.Itoa(int(l.internalPort)))
	udpAddr, err := net.ResolveUDPAddr("udp", backendAddr)
	if err != nil {
		return
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(datagram); err != nil {
		return
	}
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	l.conn.WriteToUDP(buf[:n], clientAddr)
}

func (l *Listener) handleOpenConnectionReq1(ctx context.Context, datagram []byte, clientAddr *net.UDPAddr) {
	startCtx, cancel := context.WithTimeout(ctx, time.Duration(l.cfg.MaxStartupWaitS)*time.Second+30*time.Second)
	defer cancel()

	if err := l.manager.EnsureRunning(startCtx, l.cfg); err != nil {
		l.emit(eventbus.TypeServerStartFailed, map[string]any{"error": err.Error()})
		return
	}

	backendAddr := net.JoinHostPort(l.cfg.InternalHost, strconv.Itoa(int(l.internalPort)))
	udpAddr, err := net.ResolveUDPAddr("udp", backendAddr)
	if err != nil {
		return
	}

	rt := l.manager.RuntimeFor(l.cfg.ID)
	s, err := l.sessions.GetOrCreate(l.conn, clientAddr, udpAddr, rt)
	if err != nil {
		log.WithError(err).Warn("failed to create bedrock session")
		return
	}
	s.Forward(datagram)
}

func (l *Listener) handleOpenConnectionReq2(datagram []byte, clientAddr *net.UDPAddr) {
	s, ok := l.sessions.Get(clientAddr)
	if !ok {
		return
	}
	s.CountOnce()
	s.Forward(datagram)
}

func (l *Listener) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sessions.ReapIdle(session.BedrockIdleTimeout)
		}
	}
}

func (l *Listener) emit(eventType string, fields map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Emit(eventbus.Event{Type: eventType, ServerID: l.cfg.ID, Fields: fields})
}
