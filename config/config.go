// Package config loads, validates, and persists wakegate's proxy
// configuration, following the singleton-with-RWMutex-and-copy-on-read
// pattern used throughout the teacher's own config package.
package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/creasty/defaults"
	"github.com/go-co-op/gocron/v2"
	"gopkg.in/yaml.v3"

	"github.com/hollowreach/wakegate/internal/wakeerr"
)

// Edition names which wire protocol a backend speaks.
type Edition string

const (
	Java    Edition = "JAVA"
	Bedrock Edition = "BEDROCK"
)

// Proto names the transport a listener binds to.
type Proto string

const (
	TCP Proto = "tcp"
	UDP Proto = "udp"
)

// ServerConfig is one managed backend, as specified in §3.
type ServerConfig struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Edition       Edition `yaml:"edition"`
	ContainerName string  `yaml:"container_name"`

	ExternalPort uint16 `yaml:"external_port"`
	InternalHost string `yaml:"internal_host"`
	InternalPort uint16 `yaml:"internal_port"`

	// BedrockPort and BedrockInternalPort are only meaningful when
	// Edition is Java and Crossplay is set.
	BedrockPort         uint16 `yaml:"bedrock_port,omitempty"`
	BedrockInternalPort uint16 `yaml:"bedrock_internal_port,omitempty"`
	Crossplay           bool   `yaml:"crossplay,omitempty"`

	MOTD          string `yaml:"motd"`
	FakeVersion   string `yaml:"fake_version"`
	FakeProtocol  int32  `yaml:"fake_protocol"`
	MaxPlayers    int    `default:"20" yaml:"max_players"`
	FaviconBase64 string `yaml:"favicon_b64,omitempty"`

	IdleTimeoutS     int `default:"300" yaml:"idle_timeout_s"`
	MaxStartupWaitS  int `default:"120" yaml:"max_startup_wait_s"`
	StopGraceSeconds int `default:"20" yaml:"stop_grace_s"`
}

// NotificationsConfig is opaque to the core; it is only ever handed
// through to notifier subscribers.
type NotificationsConfig map[string]interface{}

// Configuration is the full on-disk document.
type Configuration struct {
	Servers       []ServerConfig      `yaml:"servers"`
	Notifications NotificationsConfig `yaml:"notifications,omitempty"`
}

// Validate enforces the uniqueness and edition-field invariants from §3.
func (c *Configuration) Validate() error {
	tcpPorts := map[uint16]string{}
	udpPorts := map[uint16]string{}
	ids := map[string]bool{}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.ID == "" {
			return errors.Wrap(wakeerr.ErrConfig, "server entry missing id")
		}
		if ids[s.ID] {
			return errors.Wrapf(wakeerr.ErrConfig, "duplicate server id %q", s.ID)
		}
		ids[s.ID] = true

		switch s.Edition {
		case Java:
			if prev, ok := tcpPorts[s.ExternalPort]; ok {
				return errors.Wrapf(wakeerr.ErrConfig, "external_port %d reused by %q and %q", s.ExternalPort, prev, s.ID)
			}
			tcpPorts[s.ExternalPort] = s.ID
			if s.Crossplay {
				if s.BedrockPort == 0 {
					return errors.Wrapf(wakeerr.ErrConfig, "server %q has crossplay set with no bedrock_port", s.ID)
				}
				if prev, ok := udpPorts[s.BedrockPort]; ok {
					return errors.Wrapf(wakeerr.ErrConfig, "bedrock_port %d reused by %q and %q", s.BedrockPort, prev, s.ID)
				}
				udpPorts[s.BedrockPort] = s.ID
			}
		case Bedrock:
			if s.Crossplay || s.BedrockInternalPort != 0 {
				return errors.Wrapf(wakeerr.ErrConfig, "server %q is BEDROCK and cannot set crossplay fields", s.ID)
			}
			if prev, ok := udpPorts[s.ExternalPort]; ok {
				return errors.Wrapf(wakeerr.ErrConfig, "external_port %d reused by %q and %q", s.ExternalPort, prev, s.ID)
			}
			udpPorts[s.ExternalPort] = s.ID
		default:
			return errors.Wrapf(wakeerr.ErrConfig, "server %q has unknown edition %q", s.ID, s.Edition)
		}
	}
	return nil
}

// Store holds the last-known-good Configuration and serializes access
// the way the teacher's package-level config singleton does, but scoped
// to an instance rather than process globals so tests can run in parallel.
type Store struct {
	mu        sync.RWMutex
	cfg       Configuration
	path      string
	writeLock sync.Mutex
}

// NewAtPath creates a Store bound to path without reading it yet.
func NewAtPath(path string) *Store {
	return &Store{path: path}
}

// Load reads and validates the configuration file at s.path.
func (s *Store) Load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", s.path)
	}
	var cfg Configuration
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return errors.Wrap(err, "parsing config yaml")
	}
	for i := range cfg.Servers {
		if err := defaults.Set(&cfg.Servers[i]); err != nil {
			return errors.Wrap(err, "applying server defaults")
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Reload re-reads the config file, keeping the previous snapshot on any
// failure so the proxy continues on last-known-good config.
func (s *Store) Reload() error {
	if err := s.Load(); err != nil {
		log.WithError(err).WithField("path", s.path).Warn("config reload failed, keeping last-known-good snapshot")
		return err
	}
	return nil
}

// Watch registers a recurring reload-from-disk job against s, via gocron
// the way the Lifecycle Manager's idle ticker is scheduled, and runs it
// until ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "creating config reload scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { _ = s.Reload() }),
	)
	if err != nil {
		return errors.Wrap(err, "scheduling config reload job")
	}
	sched.Start()

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
	}()
	return nil
}

// Snapshot returns a copy of the current server list.
func (s *Store) Snapshot() []ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServerConfig, len(s.cfg.Servers))
	copy(out, s.cfg.Servers)
	return out
}

// Notifications returns a copy of the opaque notifications block.
func (s *Store) Notifications() NotificationsConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(NotificationsConfig, len(s.cfg.Notifications))
	for k, v := range s.cfg.Notifications {
		out[k] = v
	}
	return out
}

// LookupByExternalPort finds the ServerConfig bound to the given public
// port and protocol, matching a Bedrock server's external port or a
// Java server's crossplay bedrock_port for proto=UDP.
func (s *Store) LookupByExternalPort(port uint16, proto Proto) (ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.cfg.Servers {
		switch proto {
		case TCP:
			if sc.Edition == Java && sc.ExternalPort == port {
				return sc, true
			}
		case UDP:
			if sc.Edition == Bedrock && sc.ExternalPort == port {
				return sc, true
			}
			if sc.Edition == Java && sc.Crossplay && sc.BedrockPort == port {
				return sc, true
			}
		}
	}
	return ServerConfig{}, false
}

// Persist validates cfg, then atomically writes it to s.path via a
// temp-file-write-then-rename, unlike the teacher's direct os.WriteFile.
func (s *Store) Persist(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config yaml")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".wakegate-config-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp config file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp config file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "syncing temp config file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp config file")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return errors.Wrap(err, "chmod temp config file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "renaming temp config file into place")
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// DefaultConfigLocation mirrors the teacher's platform-default path
// helper, narrowed to the one file this proxy reads.
func DefaultConfigLocation() string {
	return "/etc/wakegate/config.yml"
}

func (e Edition) String() string { return string(e) }
