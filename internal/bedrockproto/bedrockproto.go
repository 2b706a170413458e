// Package bedrockproto classifies RakNet offline messages and builds the
// synthetic Unconnected Pong payload wakegate answers status pings with,
// grounded on the raw byte-level handling in the RakNet proxy examples
// rather than on a session-oriented RakNet library.
package bedrockproto

import (
	"encoding/binary"
	"fmt"
)

// Magic is the mandatory 16-byte RakNet offline-message magic.
var Magic = [16]byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

// Message IDs for the offline handshake set wakegate understands.
const (
	IDUnconnectedPing      = 0x01
	IDOpenConnectionReq1   = 0x05
	IDOpenConnectionReply1 = 0x06
	IDOpenConnectionReq2   = 0x07
	IDOpenConnectionReply2 = 0x08
	IDUnconnectedPong      = 0x1c
)

// HasMagic reports whether b contains the RakNet magic at offset off.
func HasMagic(b []byte, off int) bool {
	if len(b) < off+16 {
		return false
	}
	return [16]byte(b[off : off+16]) == Magic
}

// ParseUnconnectedPing extracts the ping timestamp and client GUID from an
// Unconnected Ping datagram: id(1) | timestamp(8) | magic(16) | guid(8).
func ParseUnconnectedPing(b []byte) (timestamp int64, guid int64, ok bool) {
	if len(b) < 1+8+16+8 || b[0] != IDUnconnectedPing {
		return 0, 0, false
	}
	if !HasMagic(b, 9) {
		return 0, 0, false
	}
	timestamp = int64(binary.BigEndian.Uint64(b[1:9]))
	guid = int64(binary.BigEndian.Uint64(b[25:33]))
	return timestamp, guid, true
}

// PongInfo is the status advertised in a synthetic Unconnected Pong.
type PongInfo struct {
	MOTD          string
	Protocol      int
	GameVersion   string
	OnlinePlayers int
	MaxPlayers    int
	ServerGUID    int64
	LevelName     string
	Gamemode      string
	Port          uint16
}

// BuildMOTDString renders the semicolon-delimited MCPE status string.
func BuildMOTDString(p PongInfo) string {
	return fmt.Sprintf("MCPE;%s;%d;%s;%d;%d;%d;%s;%s;1;%d;%d;",
		p.MOTD, p.Protocol, p.GameVersion, p.OnlinePlayers, p.MaxPlayers,
		p.ServerGUID, p.LevelName, p.Gamemode, p.Port, p.Port)
}

// BuildUnconnectedPong builds a full Unconnected Pong datagram:
// id(1) | pingTimestamp(8) | serverGUID(8) | magic(16) | u16 length | utf8.
func BuildUnconnectedPong(pingTimestamp int64, info PongInfo) []byte {
	motd := BuildMOTDString(info)
	out := make([]byte, 0, 1+8+8+16+2+len(motd))
	out = append(out, IDUnconnectedPong)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(pingTimestamp))
	out = append(out, ts[:]...)
	var guid [8]byte
	binary.BigEndian.PutUint64(guid[:], uint64(info.ServerGUID))
	out = append(out, guid[:]...)
	out = append(out, Magic[:]...)
	var ln [2]byte
	binary.BigEndian.PutUint16(ln[:], uint16(len(motd)))
	out = append(out, ln[:]...)
	out = append(out, motd...)
	return out
}

// MessageID returns the first byte of a datagram, the offline-message id.
func MessageID(b []byte) (byte, bool) {
	if len(b) == 0 {
		return 0, false
	}
	return b[0], true
}
