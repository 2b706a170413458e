package java

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/containerctl"
	"github.com/hollowreach/wakegate/internal/eventbus"
	"github.com/hollowreach/wakegate/internal/javaproto"
	"github.com/hollowreach/wakegate/internal/lifecycle"
)

type stubProber struct {
	fail bool
}

func (p *stubProber) WaitReady(ctx context.Context, cfg config.ServerConfig, ctl containerctl.ContainerCtl) error {
	if p.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocating free port: %v", err)
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func testConfig(t *testing.T, backendAddr string) config.ServerConfig {
	host, portStr, _ := net.SplitHostPort(backendAddr)
	port, _ := strconv.Atoi(portStr)
	return config.ServerConfig{
		ID:              "survival",
		ContainerName:   "mc-survival",
		Edition:         config.Java,
		ExternalPort:    freePort(t),
		InternalHost:    host,
		InternalPort:    uint16(port),
		MOTD:            "A wakegate server",
		FakeVersion:     "1.20.4",
		FakeProtocol:    765,
		MaxPlayers:      20,
		MaxStartupWaitS: 5,
		IdleTimeoutS:    300,
	}
}

func dialHandshakeStatus(t *testing.T, addr string, protocol int32) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hsPayload := javaproto.WriteVarInt(nil, protocol)
	hsPayload = javaproto.WriteString(hsPayload, "localhost")
	hsPayload = append(hsPayload, 0x63, 0xDD) // port, arbitrary 2 bytes
	hsPayload = javaproto.WriteVarInt(hsPayload, 1)
	conn.Write(javaproto.CreatePacket(0x00, hsPayload))
	conn.Write(javaproto.CreatePacket(0x00, nil)) // Status Request
	return conn
}

// S1: status reply while the backend is stopped mentions sleeping.
func TestStatusReplyWhileStopped(t *testing.T) {
	bus := eventbus.New(context.Background(), 16, 1)
	defer bus.Close()
	ctl := containerctl.NewFakeContainerCtl()
	manager := lifecycle.New(ctl, &stubProber{}, bus)

	cfg := testConfig(t, "127.0.0.1:1") // backend unused for status path
	ln := New(cfg, manager, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(cfg.ExternalPort)))
	conn := dialHandshakeStatus(t, addr, cfg.FakeProtocol)
	defer conn.Close()

	r := bufio.NewReader(conn)
	pkt, err := javaproto.ReadPacket(r)
	if err != nil {
		t.Fatalf("reading status response: %v", err)
	}
	if !strings.Contains(string(pkt.Payload), "sleeping") {
		t.Fatalf("expected sleeping marker in status body, got %q", string(pkt.Payload))
	}
	if ctl.StartCalls != 0 {
		t.Fatalf("status traffic must not start the container, got %d start calls", ctl.StartCalls)
	}
}

// S2: a login packet wakes the backend and bytes are forwarded verbatim.
func TestLoginWakesBackendAndForwards(t *testing.T) {
	backendLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("backend listen: %v", err)
	}
	defer backendLn.Close()

	backendGotHandshake := make(chan []byte, 1)
	backendGotLogin := make(chan []byte, 1)
	go func() {
		conn, err := backendLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		hs, _ := javaproto.ReadPacket(r)
		backendGotHandshake <- hs.Raw
		lg, _ := javaproto.ReadPacket(r)
		backendGotLogin <- lg.Raw
		conn.Write(javaproto.CreatePacket(0x02, []byte("backend-hello")))
	}()

	bus := eventbus.New(context.Background(), 16, 1)
	defer bus.Close()
	ctl := containerctl.NewFakeContainerCtl()
	manager := lifecycle.New(ctl, &stubProber{}, bus)

	cfg := testConfig(t, backendLn.Addr().String())
	ln := New(cfg, manager, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(cfg.ExternalPort)))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hsPayload := javaproto.WriteVarInt(nil, cfg.FakeProtocol)
	hsPayload = javaproto.WriteString(hsPayload, "localhost")
	hsPayload = append(hsPayload, 0x63, 0xDD)
	hsPayload = javaproto.WriteVarInt(hsPayload, 2) // next state = login
	hsRaw := javaproto.CreatePacket(0x00, hsPayload)
	conn.Write(hsRaw)

	loginPayload := javaproto.WriteString(nil, "Steve")
	loginRaw := javaproto.CreatePacket(0x00, loginPayload)
	conn.Write(loginRaw)

	select {
	case got := <-backendGotHandshake:
		if string(got) != string(hsRaw) {
			t.Fatalf("handshake not forwarded verbatim")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for backend to receive handshake")
	}
	select {
	case got := <-backendGotLogin:
		if string(got) != string(loginRaw) {
			t.Fatalf("login not forwarded verbatim")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for backend to receive login")
	}

	r := bufio.NewReader(conn)
	pkt, err := javaproto.ReadPacket(r)
	if err != nil {
		t.Fatalf("reading forwarded backend reply: %v", err)
	}
	if string(pkt.Payload) != "backend-hello" {
		t.Fatalf("unexpected forwarded payload: %q", pkt.Payload)
	}
	if manager.RuntimeFor(cfg.ID).State() != lifecycle.Running {
		t.Fatal("expected runtime to be RUNNING after successful login wake")
	}
}

// S4: a startup failure sends a Disconnect rather than hanging the client.
func TestLoginStartupFailureDisconnects(t *testing.T) {
	bus := eventbus.New(context.Background(), 16, 1)
	defer bus.Close()
	ctl := containerctl.NewFakeContainerCtl()
	manager := lifecycle.New(ctl, &stubProber{fail: true}, bus)

	cfg := testConfig(t, "127.0.0.1:1")
	ln := New(cfg, manager, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(cfg.ExternalPort)))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hsPayload := javaproto.WriteVarInt(nil, cfg.FakeProtocol)
	hsPayload = javaproto.WriteString(hsPayload, "localhost")
	hsPayload = append(hsPayload, 0x63, 0xDD)
	hsPayload = javaproto.WriteVarInt(hsPayload, 2)
	conn.Write(javaproto.CreatePacket(0x00, hsPayload))
	conn.Write(javaproto.CreatePacket(0x00, javaproto.WriteString(nil, "Steve")))

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	r := bufio.NewReader(conn)
	pkt, err := javaproto.ReadPacket(r)
	if err != nil {
		t.Fatalf("reading disconnect packet: %v", err)
	}
	if pkt.ID != 0x00 {
		t.Fatalf("expected disconnect packet id 0x00, got %#x", pkt.ID)
	}
}
