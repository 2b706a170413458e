package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/hollowreach/wakegate/internal/lifecycle"
)

func TestForwardTCPRelaysBothDirectionsAndBalancesSessions(t *testing.T) {
	rt := lifecycle.NewRuntime()
	rt.SetRunning()

	clientConn, clientPeer := net.Pipe()
	backendConn, backendPeer := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		ForwardTCP(ctx, clientConn, backendConn, rt)
		close(done)
	}()

	go func() {
		clientPeer.Write([]byte("hello backend"))
	}()
	buf := make([]byte, 13)
	backendPeer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := io.ReadFull(backendPeer, buf)
	if err != nil {
		t.Fatalf("reading relayed bytes: %v", err)
	}
	if string(buf[:n]) != "hello backend" {
		t.Fatalf("got %q", buf[:n])
	}

	go func() {
		backendPeer.Write([]byte("pong"))
	}()
	buf2 := make([]byte, 4)
	clientPeer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(clientPeer, buf2); err != nil {
		t.Fatalf("reading reverse-direction bytes: %v", err)
	}
	if string(buf2) != "pong" {
		t.Fatalf("got %q", buf2)
	}

	clientPeer.Close()
	backendPeer.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ForwardTCP did not return after both ends closed")
	}

	if rt.ActiveSessions() != 0 {
		t.Fatalf("expected session count back to 0, got %d", rt.ActiveSessions())
	}
}
