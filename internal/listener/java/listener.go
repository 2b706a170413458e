// Package java implements the per-ServerConfig TCP accept loop: parse
// the handshake, answer status pings synthetically, or wake the backend
// and hand the connection to the Session Forwarder on login, ported and
// generalized from the teacher's MOTD-only java_server.go.
package java

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/eventbus"
	"github.com/hollowreach/wakegate/internal/javaproto"
	"github.com/hollowreach/wakegate/internal/lifecycle"
	"github.com/hollowreach/wakegate/internal/session"
	"github.com/hollowreach/wakegate/internal/statusjson"
	"github.com/hollowreach/wakegate/internal/wakeerr"
)

// HandshakeReadDeadline bounds how long a client has to send its first packet.
const HandshakeReadDeadline = 5 * time.Second

// Listener is a bound accept loop for one Java ServerConfig.
type Listener struct {
	cfg     config.ServerConfig
	manager *lifecycle.Manager
	bus     *eventbus.Bus

	ln net.Listener
	wg sync.WaitGroup
}

func New(cfg config.ServerConfig, manager *lifecycle.Manager, bus *eventbus.Bus) *Listener {
	return &Listener{cfg: cfg, manager: manager, bus: bus}
}

// Serve binds the listener and accepts connections until ctx is canceled.
func (l *Listener) Serve(ctx context.Context) error {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(l.cfg.ExternalPort)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "binding java listener for %s", l.cfg.ID)
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.WithField("server_id", l.cfg.ID).WithField("addr", addr).Info("java listener bound")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.wg.Wait()
				return nil
			}
			log.WithError(err).Warn("java accept failed")
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("java connection handler panicked")
			conn.Close()
		}
	}()

	conn.SetReadDeadline(time.Now().Add(HandshakeReadDeadline))
	r := bufio.NewReader(conn)

	first, err := r.Peek(1)
	if err == nil && len(first) == 1 && first[0] == 0xFE {
		l.handleLegacyPing(conn, r)
		return
	}

	pkt, err := javaproto.ReadPacket(r)
	if err != nil {
		conn.Close()
		return
	}
	hs, err := javaproto.ParseHandshake(pkt.Payload)
	if err != nil {
		conn.Close()
		return
	}

	switch hs.NextState {
	case javaproto.StateStatus:
		l.handleStatus(conn, r, hs)
	case javaproto.StateLogin, javaproto.StateTransfer:
		l.handleLogin(ctx, conn, r, pkt, hs)
	default:
		conn.Close()
	}
}

func (l *Listener) handleLegacyPing(conn net.Conn, r *bufio.Reader) {
	defer conn.Close()
	discardBuffered(r)
	resp := "§1\x00127\x00" + l.cfg.FakeVersion + "\x00" + l.cfg.MOTD + "\x000\x0020"
	conn.Write(append([]byte{0xFF}, utf16be(resp)...))
}

func (l *Listener) handleStatus(conn net.Conn, r *bufio.Reader, hs *javaproto.Handshake) {
	defer conn.Close()

	rt := l.manager.RuntimeFor(l.cfg.ID)
	desc := l.cfg.MOTD
	if rt.State() != lifecycle.Running {
		desc += " — sleeping"
	}

	body := statusjson.Build(statusjson.Params{
		ProtocolVersion: hs.ProtocolVersion,
		VersionName:     l.cfg.FakeVersion,
		MaxPlayers:      l.cfg.MaxPlayers,
		OnlinePlayers:   0,
		Description:     desc,
		FaviconDataURI:  l.cfg.FaviconBase64,
	})

	// Status Request: empty payload, id 0x00.
	req, err := javaproto.ReadPacket(r)
	if err != nil || req.ID != 0x00 {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(HandshakeReadDeadline))
	resp := javaproto.WriteString(nil, string(body))
	if _, err := conn.Write(javaproto.CreatePacket(0x00, resp)); err != nil {
		return
	}

	// Optional Ping: id 0x01, 8-byte payload, echoed unchanged.
	conn.SetReadDeadline(time.Now().Add(HandshakeReadDeadline))
	ping, err := javaproto.ReadPacket(r)
	if err != nil || ping.ID != 0x01 {
		return
	}
	conn.Write(javaproto.CreatePacket(0x01, ping.Payload))
}

func (l *Listener) handleLogin(ctx context.Context, conn net.Conn, r *bufio.Reader, handshakePkt *javaproto.RawPacket, hs *javaproto.Handshake) {
	loginPkt, err := javaproto.ReadPacket(r)
	if err != nil {
		conn.Close()
		return
	}
	username := peekUsername(loginPkt.Payload)

	l.emit(eventbus.TypePlayerLoginAttempt, map[string]any{"username": username, "remote": conn.RemoteAddr().String()})

	startCtx, cancel := context.WithTimeout(ctx, time.Duration(l.cfg.MaxStartupWaitS)*time.Second+30*time.Second)
	defer cancel()

	if err := l.manager.EnsureRunning(startCtx, l.cfg); err != nil {
		l.rejectLogin(conn, err)
		return
	}

	backendAddr := net.JoinHostPort(l.cfg.InternalHost, strconv.Itoa(int(l.cfg.InternalPort)))
	backend, err := net.Dial("tcp", backendAddr)
	if err != nil {
		l.rejectLogin(conn, errors.Wrap(wakeerr.ErrBackendDisconnect, err.Error()))
		return
	}

	if _, err := backend.Write(handshakePkt.Raw); err != nil {
		backend.Close()
		conn.Close()
		return
	}
	if _, err := backend.Write(loginPkt.Raw); err != nil {
		backend.Close()
		conn.Close()
		return
	}

	conn.SetReadDeadline(time.Time{})
	rt := l.manager.RuntimeFor(l.cfg.ID)
	session.ForwardTCP(ctx, conn, backend, rt)
}

func (l *Listener) rejectLogin(conn net.Conn, err error) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(HandshakeReadDeadline))
	conn.Write(javaproto.CreateDisconnectPacket("Server failed to start, try again shortly"))
	log.WithError(err).WithField("server_id", l.cfg.ID).Warn("login rejected, backend not ready")
}

func (l *Listener) emit(eventType string, fields map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Emit(eventbus.Event{Type: eventType, ServerID: l.cfg.ID, Fields: fields})
}

// peekUsername extracts the Login Start username (VarInt length | UTF-8)
// without requiring the caller to have consumed the packet any
// differently than it was already read.
func peekUsername(payload []byte) string {
	r := bufio.NewReader(bytes.NewReader(payload))
	name, err := javaproto.ReadString(r, javaproto.MaxStringLen)
	if err != nil {
		return ""
	}
	return name
}

func discardBuffered(r *bufio.Reader) {
	r.Discard(r.Buffered())
}

func utf16be(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, c := range s {
		out = append(out, byte(c>>8), byte(c))
	}
	return out
}
