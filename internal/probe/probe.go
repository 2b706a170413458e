// Package probe implements the Readiness Prober: a health-check
// short-circuit followed by an edition-specific liveness probe, retried
// with exponential backoff bounded by the server's max startup wait.
package probe

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/sandertv/go-raknet"

	"github.com/hollowreach/wakegate/config"
	"github.com/hollowreach/wakegate/internal/containerctl"
	"github.com/hollowreach/wakegate/internal/javaproto"
	"github.com/hollowreach/wakegate/internal/wakeerr"
)

// PerAttemptTimeout bounds a single Java (TCP) probe attempt. The
// Bedrock probe relies on raknet.Ping's own built-in timeout instead.
const PerAttemptTimeout = 3 * time.Second

// Prober determines when a backend is accepting real game traffic.
type Prober struct{}

func New() *Prober { return &Prober{} }

// WaitReady blocks until cfg's backend is ready or max_startup_wait_s
// elapses, per the policy in §4.3.
func (p *Prober) WaitReady(ctx context.Context, cfg config.ServerConfig, ctl containerctl.ContainerCtl) error {
	deadline := time.Duration(cfg.MaxStartupWaitS) * time.Second

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = deadline
	bo := backoff.WithContext(b, ctx)

	op := func() error {
		ready, err := p.attempt(ctx, cfg, ctl)
		if err != nil {
			return err
		}
		if !ready {
			return errors.Wrap(wakeerr.ErrStartup, "backend not yet ready")
		}
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return errors.Wrapf(wakeerr.ErrStartup, "prober timed out for %s: %v", cfg.ID, err)
	}
	return nil
}

func (p *Prober) attempt(ctx context.Context, cfg config.ServerConfig, ctl containerctl.ContainerCtl) (bool, error) {
	status, err := ctl.State(ctx, cfg.ContainerName)
	if err == nil && status.Health == containerctl.HealthHealthy {
		return true, nil
	}

	switch cfg.Edition {
	case config.Java:
		return p.probeJava(cfg)
	case config.Bedrock:
		return p.probeBedrock(cfg)
	default:
		return false, errors.Wrapf(wakeerr.ErrConfig, "unknown edition %q", cfg.Edition)
	}
}

func (p *Prober) probeJava(cfg config.ServerConfig) (bool, error) {
	addr := net.JoinHostPort(cfg.InternalHost, strconv.Itoa(int(cfg.InternalPort)))
	conn, err := net.DialTimeout("tcp", addr, PerAttemptTimeout)
	if err != nil {
		return false, nil
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(PerAttemptTimeout))

	var handshake []byte
	handshake = javaproto.WriteVarInt(handshake, 765)
	handshake = javaproto.WriteString(handshake, cfg.InternalHost)
	handshake = append(handshake, byte(cfg.InternalPort>>8), byte(cfg.InternalPort))
	handshake = javaproto.WriteVarInt(handshake, int32(javaproto.StateStatus))
	if _, err := conn.Write(javaproto.CreatePacket(0x00, handshake)); err != nil {
		return false, nil
	}
	if _, err := conn.Write(javaproto.CreatePacket(0x00, nil)); err != nil {
		return false, nil
	}

	r := bufio.NewReader(conn)
	pkt, err := javaproto.ReadPacket(r)
	if err != nil {
		return false, nil
	}
	return pkt.ID == 0x00, nil
}

func (p *Prober) probeBedrock(cfg config.ServerConfig) (bool, error) {
	addr := net.JoinHostPort(cfg.InternalHost, strconv.Itoa(int(cfg.InternalPort)))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return false, nil
	}
	_, err = raknet.Ping(udpAddr.String())
	if err != nil {
		return false, nil
	}
	return true, nil
}

