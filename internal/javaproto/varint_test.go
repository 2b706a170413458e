package javaproto

import (
	"bufio"
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 127, 128, 255, 2097151, 2147483647, -1}
	for _, v := range cases {
		buf := WriteVarInt(nil, v)
		if len(buf) > MaxVarIntBytes {
			t.Fatalf("varint %d encoded to %d bytes", v, len(buf))
		}
		got, n, err := ReadVarInt(bufio.NewReader(bytes.NewReader(buf)))
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d got %d", v, got)
		}
		if n != len(buf) {
			t.Fatalf("consumed %d bytes, wrote %d", n, len(buf))
		}
	}
}

func TestVarIntTooLong(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err := ReadVarInt(bufio.NewReader(bytes.NewReader(buf)))
	if err == nil {
		t.Fatal("expected error for oversized varint")
	}
}

func TestStringRoundTrip(t *testing.T) {
	s := "play.example.com"
	buf := WriteString(nil, s)
	got, err := ReadString(bufio.NewReader(bytes.NewReader(buf)), MaxStringLen)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("got %q want %q", got, s)
	}
}

func TestStringTooLong(t *testing.T) {
	buf := WriteString(nil, string(make([]byte, 300)))
	_, err := ReadString(bufio.NewReader(bytes.NewReader(buf)), MaxStringLen)
	if err == nil {
		t.Fatal("expected error for oversized string")
	}
}

func TestParseHandshake(t *testing.T) {
	var payload []byte
	payload = WriteVarInt(payload, 765)
	payload = WriteString(payload, "play.example.com")
	payload = append(payload, 0x63, 0xDD) // 25565
	payload = WriteVarInt(payload, 2)

	hs, err := ParseHandshake(payload)
	if err != nil {
		t.Fatal(err)
	}
	if hs.ProtocolVersion != 765 || hs.ServerAddress != "play.example.com" || hs.ServerPort != 25565 || hs.NextState != StateLogin {
		t.Fatalf("unexpected handshake: %+v", hs)
	}
}

func TestReadPacketRoundTrip(t *testing.T) {
	payload := CreatePacket(0x00, []byte{0x01, 0x02, 0x03})
	r := bufio.NewReader(bytes.NewReader(payload))
	pkt, err := ReadPacket(r)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.ID != 0x00 {
		t.Fatalf("got id %d", pkt.ID)
	}
	if !bytes.Equal(pkt.Payload, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("got payload %v", pkt.Payload)
	}
	if !bytes.Equal(pkt.Raw, payload) {
		t.Fatalf("raw mismatch: got %v want %v", pkt.Raw, payload)
	}
}
