// Package session implements the Session Forwarder: bidirectional TCP
// splicing for Java sessions and per-client UDP relay for Bedrock
// sessions, generalized from the connection-count accounting pattern in
// the Tnze/go-mc based proxy example into both editions.
package session

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/hollowreach/wakegate/internal/lifecycle"
)

// IdleReadDeadline bounds how long a TCP session may go without any
// forwarded bytes in either direction before it is considered dead.
const IdleReadDeadline = 10 * time.Minute

// ForwardTCP splices client and backend until either side closes, then
// closes both sockets and decrements the runtime's session counter
// exactly once.
func ForwardTCP(ctx context.Context, client, backend net.Conn, rt *lifecycle.Runtime) {
	rt.IncSession()

	var once sync.Once
	done := make(chan struct{})
	closeBoth := func() {
		once.Do(func() {
			client.Close()
			backend.Close()
			close(done)
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go copyDirection(&wg, client, backend, rt, closeBoth)
	go copyDirection(&wg, backend, client, rt, closeBoth)

	go func() {
		select {
		case <-ctx.Done():
			closeBoth()
		case <-done:
		}
	}()

	wg.Wait()
	rt.DecSession()
}

func copyDirection(wg *sync.WaitGroup, dst io.Writer, src net.Conn, rt *lifecycle.Runtime, onDone func()) {
	defer wg.Done()
	defer onDone()

	buf := make([]byte, 32*1024)
	for {
		src.SetReadDeadline(time.Now().Add(IdleReadDeadline))
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			rt.Touch()
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("session copy loop ended")
			}
			return
		}
	}
}
