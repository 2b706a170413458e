package javaproto

import (
	"bufio"
	"bytes"
	"io"

	"emperror.dev/errors"
	"github.com/hollowreach/wakegate/internal/wakeerr"
)

// NextState enumerates what the client declared it wants to do next.
type NextState int32

const (
	StateStatus   NextState = 1
	StateLogin    NextState = 2
	StateTransfer NextState = 3
)

// Handshake is the parsed payload of the first client-to-server packet.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       NextState
}

// RawPacket is a framed packet with its id and payload still distinct,
// plus the exact bytes read off the wire (length prefix included) so
// they can be replayed verbatim to a backend.
type RawPacket struct {
	ID      int32
	Payload []byte
	Raw     []byte
}

// ReadPacket reads one length-prefixed packet: VarInt length | VarInt id | payload.
func ReadPacket(r *bufio.Reader) (*RawPacket, error) {
	var lenPrefix []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		lenPrefix = append(lenPrefix, b)
		if b&0x80 == 0 {
			break
		}
		if len(lenPrefix) >= MaxVarIntBytes {
			return nil, errors.Wrap(wakeerr.ErrProtocol, "varint too long")
		}
	}
	length, _, err := ReadVarInt(bufio.NewReader(bytes.NewReader(lenPrefix)))
	if err != nil {
		return nil, err
	}
	if length < 0 || length > 1<<21 {
		return nil, errors.Wrapf(wakeerr.ErrProtocol, "packet length %d out of range", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	br := bufio.NewReader(bytes.NewReader(body))
	id, idBytes, err := ReadVarInt(br)
	if err != nil {
		return nil, errors.Wrap(wakeerr.ErrProtocol, "reading packet id")
	}

	raw := make([]byte, 0, len(lenPrefix)+len(body))
	raw = append(raw, lenPrefix...)
	raw = append(raw, body...)

	return &RawPacket{
		ID:      id,
		Payload: body[idBytes:],
		Raw:     raw,
	}, nil
}

// ParseHandshake decodes the handshake payload per spec: VarInt protocol,
// String serverAddress, u16 port, VarInt nextState.
func ParseHandshake(payload []byte) (*Handshake, error) {
	r := bufio.NewReader(bytes.NewReader(payload))
	protocol, _, err := ReadVarInt(r)
	if err != nil {
		return nil, errors.Wrap(wakeerr.ErrProtocol, "reading handshake protocol")
	}
	addr, err := ReadString(r, MaxStringLen)
	if err != nil {
		return nil, errors.Wrap(wakeerr.ErrProtocol, "reading handshake address")
	}
	portHi, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(wakeerr.ErrProtocol, "reading handshake port")
	}
	portLo, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(wakeerr.ErrProtocol, "reading handshake port")
	}
	port := uint16(portHi)<<8 | uint16(portLo)
	next, _, err := ReadVarInt(r)
	if err != nil {
		return nil, errors.Wrap(wakeerr.ErrProtocol, "reading handshake next state")
	}
	if next < 1 || next > 3 {
		return nil, errors.Wrapf(wakeerr.ErrProtocol, "unknown next state %d", next)
	}
	return &Handshake{
		ProtocolVersion: protocol,
		ServerAddress:   addr,
		ServerPort:      port,
		NextState:       NextState(next),
	}, nil
}

// CreatePacket prepends the VarInt packet id then the VarInt length to data.
func CreatePacket(packetID int32, data []byte) []byte {
	body := WriteVarInt([]byte{}, packetID)
	body = append(body, data...)
	out := WriteVarInt([]byte{}, int32(len(body)))
	return append(out, body...)
}

// CreateDisconnectPacket builds a login-phase Disconnect (id 0x00) packet
// carrying a JSON chat component with the given plain-text message.
func CreateDisconnectPacket(message string) []byte {
	var data []byte
	json := `{"text":"` + escapeJSON(message) + `"}`
	data = WriteString(data, json)
	return CreatePacket(0x00, data)
}

func escapeJSON(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		switch c {
		case '"', '\\':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
