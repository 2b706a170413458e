package bedrockproto

import (
	"encoding/binary"
	"testing"
)

func buildPing(ts, guid int64) []byte {
	out := make([]byte, 0, 33)
	out = append(out, IDUnconnectedPing)
	var tsb [8]byte
	binary.BigEndian.PutUint64(tsb[:], uint64(ts))
	out = append(out, tsb[:]...)
	out = append(out, Magic[:]...)
	var gb [8]byte
	binary.BigEndian.PutUint64(gb[:], uint64(guid))
	out = append(out, gb[:]...)
	return out
}

func TestParseUnconnectedPing(t *testing.T) {
	datagram := buildPing(1234, 5678)
	ts, guid, ok := ParseUnconnectedPing(datagram)
	if !ok {
		t.Fatal("expected ok")
	}
	if ts != 1234 || guid != 5678 {
		t.Fatalf("got ts=%d guid=%d", ts, guid)
	}
}

func TestParseUnconnectedPingBadMagic(t *testing.T) {
	datagram := buildPing(1, 2)
	datagram[9] ^= 0xFF
	if _, _, ok := ParseUnconnectedPing(datagram); ok {
		t.Fatal("expected failure on corrupted magic")
	}
}

func TestBuildUnconnectedPongRoundTripsTimestamp(t *testing.T) {
	pong := BuildUnconnectedPong(42, PongInfo{MOTD: "sleeping", Protocol: 600, GameVersion: "1.20", MaxPlayers: 20, ServerGUID: 99, Port: 19132})
	if pong[0] != IDUnconnectedPong {
		t.Fatalf("got id %x", pong[0])
	}
	ts := int64(binary.BigEndian.Uint64(pong[1:9]))
	if ts != 42 {
		t.Fatalf("got ts %d", ts)
	}
	if !HasMagic(pong, 17) {
		t.Fatal("expected magic at offset 17")
	}
}
