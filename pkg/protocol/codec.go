package protocol

import (
	"github.com/apistol78/traktor-sub009/pkg/bitio"
)

// EncodeMessage encodes m into a new byte slice.
func EncodeMessage(m *Message) ([]byte, error) {
	buf := make([]byte, m.Size())
	w := bitio.NewWriter(buf)
	if err := EncodeMessageTo(w, m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeMessageTo encodes m at the writer's position. The writer is left
// byte aligned.
func EncodeMessageTo(w *bitio.Writer, m *Message) error {
	if m.Size() > MaxMessageSize {
		return ErrMessageTooLarge
	}
	if err := w.WriteUnsigned(8, uint64(m.Type)); err != nil {
		return err
	}
	if err := w.WriteUnsigned(32, uint64(m.Time)); err != nil {
		return err
	}

	switch m.Type {
	case MsgIAm:
		if m.IAm.Sequence > 2 {
			return ErrInvalidHandshake
		}
		if err := w.WriteUnsigned(8, uint64(m.IAm.Sequence)); err != nil {
			return err
		}
		if err := w.WriteBytes(m.IAm.ID[:]); err != nil {
			return err
		}
	case MsgBye, MsgPing:
	case MsgPong:
		if err := w.WriteUnsigned(32, uint64(m.Pong.Time0)); err != nil {
			return err
		}
		if err := w.WriteUnsigned(32, uint64(m.Pong.Latency)); err != nil {
			return err
		}
	case MsgState:
		if err := w.WriteBytes(m.State); err != nil {
			return err
		}
	case MsgEvent:
		if len(m.Event.Data) > MaxEventSize {
			return ErrPayloadTooLarge
		}
		if err := encodeSequence(w, m.Event.Sequence, m.Event.Ordered); err != nil {
			return err
		}
		if err := w.WriteBytes(m.Event.Data); err != nil {
			return err
		}
	case MsgEventAck:
		if err := encodeSequence(w, m.EventAck.Sequence, m.EventAck.Ordered); err != nil {
			return err
		}
	default:
		return ErrUnknownMessage
	}

	w.Flush()
	return nil
}

func encodeSequence(w *bitio.Writer, seq uint8, ordered bool) error {
	if err := w.WriteUnsigned(8, uint64(seq)); err != nil {
		return err
	}
	if err := w.WriteBit(ordered); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// DecodeMessage decodes one datagram. Variable payloads are copied, so data
// may be reused by the caller afterwards.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return DecodeMessageFrom(bitio.NewReader(data))
}

// DecodeMessageFrom decodes a message that extends to the end of r.
func DecodeMessageFrom(r *bitio.Reader) (*Message, error) {
	t, err := r.ReadUnsigned(8)
	if err != nil {
		return nil, err
	}
	ts, err := r.ReadUnsigned(32)
	if err != nil {
		return nil, err
	}
	m := &Message{Type: MessageType(t), Time: uint32(ts)}

	switch m.Type {
	case MsgIAm:
		seq, err := r.ReadUnsigned(8)
		if err != nil {
			return nil, err
		}
		if seq > 2 {
			return nil, ErrInvalidHandshake
		}
		id, err := r.ReadBytes(IDSize)
		if err != nil {
			return nil, err
		}
		m.IAm.Sequence = uint8(seq)
		copy(m.IAm.ID[:], id)
	case MsgBye, MsgPing:
	case MsgPong:
		t0, err := r.ReadUnsigned(32)
		if err != nil {
			return nil, err
		}
		latency, err := r.ReadUnsigned(32)
		if err != nil {
			return nil, err
		}
		m.Pong = Pong{Time0: uint32(t0), Latency: uint32(latency)}
	case MsgState:
		m.State = append([]byte(nil), r.Rest()...)
	case MsgEvent:
		seq, ordered, err := decodeSequence(r)
		if err != nil {
			return nil, err
		}
		data := r.Rest()
		if len(data) > MaxEventSize {
			return nil, ErrPayloadTooLarge
		}
		m.Event = Event{Sequence: seq, Ordered: ordered, Data: append([]byte(nil), data...)}
	case MsgEventAck:
		seq, ordered, err := decodeSequence(r)
		if err != nil {
			return nil, err
		}
		m.EventAck = EventAck{Sequence: seq, Ordered: ordered}
	default:
		return nil, ErrUnknownMessage
	}
	return m, nil
}

func decodeSequence(r *bitio.Reader) (uint8, bool, error) {
	seq, err := r.ReadUnsigned(8)
	if err != nil {
		return 0, false, err
	}
	ordered, err := r.ReadBit()
	if err != nil {
		return 0, false, err
	}
	r.AlignByte()
	return uint8(seq), ordered, nil
}
