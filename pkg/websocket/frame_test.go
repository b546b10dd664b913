package websocket

import (
	"bytes"
	"testing"
)

func TestWriteDataFrame(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		fin     bool
		payload []byte
		want    []byte
	}{
		{
			name:    "small final text frame",
			op:      OpcodeText,
			fin:     true,
			payload: []byte("hi"),
			want:    []byte{0x80 | byte(OpcodeText), 0x80 | 2, 0, 0, 0, 0, 'h', 'i'},
		},
		{
			name:    "non-final binary frame",
			op:      OpcodeBinary,
			fin:     false,
			payload: []byte{0x01, 0x02},
			want:    []byte{byte(OpcodeBinary), 0x80 | 2, 0, 0, 0, 0, 0x01, 0x02},
		},
		{
			name:    "extended length frame",
			op:      OpcodeBinary,
			fin:     true,
			payload: bytes.Repeat([]byte{0xAB}, 200),
			want: append(
				[]byte{0x80 | byte(OpcodeBinary), extendedLenMarker, 0, 200, 0, 0, 0, 0},
				bytes.Repeat([]byte{0xAB}, 200)...,
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(tt.payload)+8)
			n := writeDataFrame(dst, tt.op, tt.fin, tt.payload)
			got := dst[:n]
			if !bytes.Equal(got, tt.want) {
				t.Errorf("writeDataFrame() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestWriteControlFrame(t *testing.T) {
	t.Run("ping with payload", func(t *testing.T) {
		dst := make([]byte, 16)
		n, err := writeControlFrame(dst, opcodePing, []byte("hi"))
		if err != nil {
			t.Fatalf("writeControlFrame() error = %v", err)
		}
		want := []byte{0x80 | byte(opcodePing), 0x80 | 2, 0, 0, 0, 0, 'h', 'i'}
		if !bytes.Equal(dst[:n], want) {
			t.Errorf("writeControlFrame() = %#v, want %#v", dst[:n], want)
		}
	})

	t.Run("rejects invalid opcode", func(t *testing.T) {
		dst := make([]byte, 16)
		if _, err := writeControlFrame(dst, OpcodeText, nil); err == nil {
			t.Error("writeControlFrame() with data opcode: want error, got nil")
		}
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		dst := make([]byte, 256)
		payload := bytes.Repeat([]byte{0x01}, maxControlPayload+1)
		if _, err := writeControlFrame(dst, opcodePing, payload); err == nil {
			t.Error("writeControlFrame() with oversized payload: want error, got nil")
		}
	})
}

func TestReadFrameHeader(t *testing.T) {
	t.Run("short payload", func(t *testing.T) {
		buf := []byte{0x80 | byte(OpcodeText), 5}
		h, err := readFrameHeader(buf)
		if err != nil {
			t.Fatalf("readFrameHeader() error = %v", err)
		}
		if !h.fin || h.opcode != OpcodeText || h.payloadLength != 5 {
			t.Errorf("readFrameHeader() = %+v, want fin=true opcode=text len=5", h)
		}
	})

	t.Run("extended length", func(t *testing.T) {
		buf := []byte{byte(OpcodeBinary), extendedLenMarker, 0x01, 0x00}
		h, err := readFrameHeader(buf)
		if err != nil {
			t.Fatalf("readFrameHeader() error = %v", err)
		}
		if h.fin || h.payloadLength != 256 {
			t.Errorf("readFrameHeader() = %+v, want fin=false len=256", h)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := readFrameHeader([]byte{0x80}); err == nil {
			t.Error("readFrameHeader() with 1 byte: want error, got nil")
		}
	})

	t.Run("64-bit length unsupported", func(t *testing.T) {
		buf := []byte{byte(OpcodeBinary), len64bits}
		if _, err := readFrameHeader(buf); err == nil {
			t.Error("readFrameHeader() with 64-bit length marker: want error, got nil")
		}
	})
}

func TestHeaderSize(t *testing.T) {
	if got := headerSize(10); got != 2 {
		t.Errorf("headerSize(10) = %d, want 2", got)
	}
	if got := headerSize(len16bits); got != 4 {
		t.Errorf("headerSize(len16bits) = %d, want 4", got)
	}
}

func TestCheckFrameHeader(t *testing.T) {
	tests := []struct {
		name    string
		h       frameHeader
		msgType Opcode
		wantErr bool
	}{
		{"final text, no message in progress", frameHeader{fin: true, opcode: OpcodeText}, opcodeContinuation, false},
		{"text while message in progress", frameHeader{fin: true, opcode: OpcodeText}, OpcodeText, true},
		{"continuation with nothing to continue", frameHeader{fin: true, opcode: opcodeContinuation}, opcodeContinuation, true},
		{"continuation continuing a message", frameHeader{fin: true, opcode: opcodeContinuation}, OpcodeBinary, false},
		{"fragmented control frame", frameHeader{fin: false, opcode: opcodePing}, opcodeContinuation, true},
		{"oversized control frame", frameHeader{fin: true, opcode: opcodePing, payloadLength: maxControlPayload + 1}, opcodeContinuation, true},
		{"unknown opcode", frameHeader{fin: true, opcode: Opcode(3)}, opcodeContinuation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFrameHeader(tt.h, tt.msgType)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkFrameHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
