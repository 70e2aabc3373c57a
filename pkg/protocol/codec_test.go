package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
)

func TestMessageRoundTrip(t *testing.T) {
	id := ID{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	tests := []struct {
		name string
		msg  *Message
		size int
	}{
		{"iam request", NewIAm(1000, 0, id), 22},
		{"iam confirm", NewIAm(1, 2, id), 22},
		{"bye", NewBye(42), 5},
		{"ping", NewPing(1000), 5},
		{"pong", NewPong(1010, 1000, 5), 13},
		{"state", NewState(77, []byte{1, 2, 3, 4}), 9},
		{"empty state", NewState(77, nil), 5},
		{"event", NewEvent(88, 200, false, []byte("hello")), 12},
		{"ordered event", NewEvent(88, 3, true, []byte{0xff}), 8},
		{"event ack", NewEventAck(99, 200, true), 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeMessage(tc.msg)
			if err != nil {
				t.Fatalf("EncodeMessage() error = %v", err)
			}
			if len(data) != tc.size || tc.msg.Size() != tc.size {
				t.Errorf("size = %d (Size() %d), want %d", len(data), tc.msg.Size(), tc.size)
			}

			got, err := DecodeMessage(data)
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			if got.Type != tc.msg.Type || got.Time != tc.msg.Time {
				t.Errorf("header = %s@%d, want %s@%d", got.Type, got.Time, tc.msg.Type, tc.msg.Time)
			}
			if got.IAm != tc.msg.IAm || got.Pong != tc.msg.Pong || got.EventAck != tc.msg.EventAck {
				t.Errorf("DecodeMessage() = %v, want %v", got, tc.msg)
			}
			if !bytes.Equal(got.State, tc.msg.State) {
				t.Errorf("State = %x, want %x", got.State, tc.msg.State)
			}
			if got.Event.Sequence != tc.msg.Event.Sequence || got.Event.Ordered != tc.msg.Event.Ordered ||
				!bytes.Equal(got.Event.Data, tc.msg.Event.Data) {
				t.Errorf("Event = %+v, want %+v", got.Event, tc.msg.Event)
			}
		})
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	data, _ := EncodeMessage(NewEvent(1, 1, false, []byte{9, 9}))
	m, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	data[len(data)-1] = 0
	if m.Event.Data[1] != 9 {
		t.Errorf("decoded payload aliases input buffer")
	}
}

func TestDecodeErrors(t *testing.T) {
	iam, _ := EncodeMessage(NewIAm(1, 0, ID{}))
	badSeq := append([]byte(nil), iam...)
	badSeq[HeaderSize] = 3

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, bitio.ErrOutOfSpace},
		{"short header", []byte{0x03, 0, 0}, bitio.ErrOutOfSpace},
		{"unknown type", []byte{0x7f, 0, 0, 0, 0}, ErrUnknownMessage},
		{"truncated iam", iam[:10], bitio.ErrOutOfSpace},
		{"truncated pong", []byte{0x04, 0, 0, 0, 1, 0, 0}, bitio.ErrOutOfSpace},
		{"bad handshake", badSeq, ErrInvalidHandshake},
		{"too large", make([]byte, MaxMessageSize+1), ErrMessageTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := DecodeMessage(tc.data)
			if !errors.Is(err, tc.want) {
				t.Errorf("DecodeMessage() error = %v, want %v", err, tc.want)
			}
			if m != nil {
				t.Errorf("DecodeMessage() = %v, want nil", m)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want error
	}{
		{"oversized event", NewEvent(0, 0, false, make([]byte, MaxEventSize+1)), ErrMessageTooLarge},
		{"oversized state", NewState(0, make([]byte, MaxStateSize+1)), ErrMessageTooLarge},
		{"bad handshake", NewIAm(0, 9, ID{}), ErrInvalidHandshake},
		{"unknown", &Message{Type: 0x40}, ErrUnknownMessage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeMessage(tc.msg); !errors.Is(err, tc.want) {
				t.Errorf("EncodeMessage() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLargestMessagesFit(t *testing.T) {
	for _, m := range []*Message{
		NewEvent(0, 0, true, make([]byte, MaxEventSize)),
		NewState(0, make([]byte, MaxStateSize)),
	} {
		data, err := EncodeMessage(m)
		if err != nil {
			t.Fatalf("EncodeMessage(%s) error = %v", m.Type, err)
		}
		if len(data) != MaxMessageSize {
			t.Errorf("%s size = %d, want %d", m.Type, len(data), MaxMessageSize)
		}
	}
}

func TestTimeConversion(t *testing.T) {
	tests := []struct {
		seconds float64
		want    uint32
	}{
		{0, 0},
		{-1, 0},
		{1.0, 1000},
		{1.0105, 1010},
	}
	for _, tc := range tests {
		if got := TimeToWire(tc.seconds); got != tc.want {
			t.Errorf("TimeToWire(%v) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
	if got := TimeFromWire(1500); got != 1.5 {
		t.Errorf("TimeFromWire(1500) = %v, want 1.5", got)
	}
}

func TestMessageTypeString(t *testing.T) {
	if MsgEventAck.String() != "EventAck" || MessageType(0).String() != "Unknown" {
		t.Errorf("MessageType.String() mismatch")
	}
}

func BenchmarkEncodeState(b *testing.B) {
	m := NewState(1000, make([]byte, 64))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = EncodeMessage(m)
	}
}

func BenchmarkDecodeState(b *testing.B) {
	data, _ := EncodeMessage(NewState(1000, make([]byte, 64)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DecodeMessage(data)
	}
}
