// Package javaproto implements the subset of the Minecraft Java Edition
// wire format wakegate needs: VarInt/string codecs, packet framing, and
// handshake/status/disconnect packet construction. Generalized from a
// MOTD-only responder into a full handshake-and-replay codec.
package javaproto

import (
	"bufio"

	"emperror.dev/errors"
	"github.com/hollowreach/wakegate/internal/wakeerr"
)

// MaxVarIntBytes is the longest a VarInt is allowed to be on the wire.
const MaxVarIntBytes = 5

// MaxStringLen bounds the server-address string in the handshake packet.
const MaxStringLen = 255

// WriteVarInt appends the VarInt encoding of v to buf and returns it.
func WriteVarInt(buf []byte, v int32) []byte {
	uv := uint32(v)
	for {
		b := byte(uv & 0x7F)
		uv >>= 7
		if uv != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if uv == 0 {
			break
		}
	}
	return buf
}

// ReadVarInt reads a VarInt from r, returning the value and the number of
// bytes consumed. It fails with ErrProtocol past MaxVarIntBytes.
func ReadVarInt(r *bufio.Reader) (int32, int, error) {
	var result int32
	var numRead int
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, numRead, err
		}
		numRead++
		result |= int32(b&0x7F) << (7 * (numRead - 1))
		if b&0x80 == 0 {
			break
		}
		if numRead >= MaxVarIntBytes {
			return 0, numRead, errors.Wrap(wakeerr.ErrProtocol, "varint too long")
		}
	}
	return result, numRead, nil
}

// WriteString appends a VarInt length followed by the UTF-8 bytes of s.
func WriteString(buf []byte, s string) []byte {
	buf = WriteVarInt(buf, int32(len(s)))
	return append(buf, s...)
}

// ReadString reads a VarInt-length-prefixed UTF-8 string, rejecting
// anything longer than maxLen.
func ReadString(r *bufio.Reader, maxLen int) (string, error) {
	n, _, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > maxLen {
		return "", errors.Wrapf(wakeerr.ErrProtocol, "string length %d exceeds max %d", n, maxLen)
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bufio.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
