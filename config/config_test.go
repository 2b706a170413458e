package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return NewAtPath(path)
}

const sampleYAML = `
servers:
  - id: survival
    edition: JAVA
    container_name: mc-survival
    external_port: 25565
    internal_host: 127.0.0.1
    internal_port: 25566
    motd: "Welcome"
    fake_version: "1.20.4"
    fake_protocol: 765
  - id: bedrock-one
    edition: BEDROCK
    container_name: mc-bedrock
    external_port: 19132
    internal_host: 127.0.0.1
    internal_port: 19133
    motd: "Bedrock world"
    fake_version: "1.20.4"
    fake_protocol: 622
`

func TestLoadAndSnapshot(t *testing.T) {
	s := writeTempConfig(t, sampleYAML)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d servers", len(snap))
	}
	if snap[0].IdleTimeoutS != 300 {
		t.Fatalf("expected default idle timeout, got %d", snap[0].IdleTimeoutS)
	}
}

func TestLookupByExternalPort(t *testing.T) {
	s := writeTempConfig(t, sampleYAML)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	sc, ok := s.LookupByExternalPort(25565, TCP)
	if !ok || sc.ID != "survival" {
		t.Fatalf("expected survival, got %+v ok=%v", sc, ok)
	}
	sc, ok = s.LookupByExternalPort(19132, UDP)
	if !ok || sc.ID != "bedrock-one" {
		t.Fatalf("expected bedrock-one, got %+v ok=%v", sc, ok)
	}
	if _, ok := s.LookupByExternalPort(1, TCP); ok {
		t.Fatal("expected no match")
	}
}

func TestValidateDuplicatePort(t *testing.T) {
	cfg := Configuration{Servers: []ServerConfig{
		{ID: "a", Edition: Java, ExternalPort: 25565},
		{ID: "b", Edition: Java, ExternalPort: 25565},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate port validation error")
	}
}

func TestValidateBedrockCannotHaveCrossplay(t *testing.T) {
	cfg := Configuration{Servers: []ServerConfig{
		{ID: "a", Edition: Bedrock, ExternalPort: 19132, Crossplay: true},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected crossplay-on-bedrock validation error")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	s := writeTempConfig(t, sampleYAML)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	cfg := Configuration{Servers: s.Snapshot()}
	cfg.Servers[0].MOTD = "Updated"
	if err := s.Persist(cfg); err != nil {
		t.Fatal(err)
	}

	reloaded := NewAtPath(s.path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	snap := reloaded.Snapshot()
	if snap[0].MOTD != "Updated" {
		t.Fatalf("persisted change not observed: %+v", snap[0])
	}
}

func TestWatchReloadsPeriodically(t *testing.T) {
	s := writeTempConfig(t, sampleYAML)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	updated := `
servers:
  - id: survival
    edition: JAVA
    container_name: mc-survival
    external_port: 25565
    internal_host: 127.0.0.1
    internal_port: 25566
    motd: "Changed via watch"
    fake_version: "1.20.4"
    fake_protocol: 765
`
	if err := os.WriteFile(s.path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Snapshot(); len(snap) == 1 && snap[0].MOTD == "Changed via watch" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected Watch to pick up the on-disk change")
}

func TestReloadKeepsLastGoodOnFailure(t *testing.T) {
	s := writeTempConfig(t, sampleYAML)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.path, []byte("not: [valid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err == nil {
		t.Fatal("expected reload error on invalid yaml")
	}
	if len(s.Snapshot()) != 2 {
		t.Fatal("expected last-known-good snapshot retained")
	}
}
