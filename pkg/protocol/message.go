package protocol

import (
	"errors"
	"fmt"
	"math"
)

// Message size limits.
const (
	// MaxMessageSize is the largest datagram the protocol produces.
	MaxMessageSize = 1200

	// HeaderSize is the size of the type and time header in bytes.
	HeaderSize = 5

	// MaxStateSize is the largest packed snapshot that fits one message.
	MaxStateSize = MaxMessageSize - HeaderSize

	// MaxEventSize is the largest event payload that fits one message.
	MaxEventSize = MaxMessageSize - HeaderSize - 2

	// IDSize is the size of a replicator id.
	IDSize = 16
)

// Decoding errors.
var (
	ErrUnknownMessage   = errors.New("protocol: unknown message type")
	ErrMessageTooLarge  = errors.New("protocol: message exceeds maximum size")
	ErrPayloadTooLarge  = errors.New("protocol: payload exceeds maximum size")
	ErrInvalidHandshake = errors.New("protocol: invalid handshake sequence")
)

// MessageType identifies the message variant.
type MessageType uint8

const (
	MsgIAm      MessageType = 0x01 // Handshake
	MsgBye      MessageType = 0x02 // Disconnect
	MsgPing     MessageType = 0x03 // Latency probe
	MsgPong     MessageType = 0x04 // Probe reply
	MsgState    MessageType = 0x05 // State snapshot
	MsgEvent    MessageType = 0x06 // Reliable event
	MsgEventAck MessageType = 0x07 // Event acknowledgment
)

// String returns the string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgIAm:
		return "IAm"
	case MsgBye:
		return "Bye"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgState:
		return "State"
	case MsgEvent:
		return "Event"
	case MsgEventAck:
		return "EventAck"
	default:
		return "Unknown"
	}
}

// ID identifies a replicator instance.
type ID [IDSize]byte

// IAm is one step of the three-way handshake.
type IAm struct {
	Sequence uint8 // 0 request, 1 reply, 2 confirm
	ID       ID    // Initiator's id, echoed by the reply
}

// Pong answers a Ping.
type Pong struct {
	Time0   uint32 // Time of the ping being answered, in the pinger's clock
	Latency uint32 // Responder's minimum one-way latency estimate, ms
}

// Event carries one reliable application event.
type Event struct {
	Sequence uint8
	Ordered  bool
	Data     []byte
}

// EventAck acknowledges an Event.
type EventAck struct {
	Sequence uint8
	Ordered  bool
}

// Message is a tagged union of all wire messages. Only the field matching
// Type is meaningful.
type Message struct {
	Type     MessageType
	Time     uint32 // Sender clock, ms
	IAm      IAm
	Pong     Pong
	State    []byte
	Event    Event
	EventAck EventAck
}

// Size returns the encoded size of m in bytes.
func (m *Message) Size() int {
	switch m.Type {
	case MsgIAm:
		return HeaderSize + 1 + IDSize
	case MsgPong:
		return HeaderSize + 8
	case MsgState:
		return HeaderSize + len(m.State)
	case MsgEvent:
		return HeaderSize + 2 + len(m.Event.Data)
	case MsgEventAck:
		return HeaderSize + 2
	default:
		return HeaderSize
	}
}

// String returns a one line description for logs.
func (m *Message) String() string {
	switch m.Type {
	case MsgIAm:
		return fmt.Sprintf("IAm{seq=%d t=%d}", m.IAm.Sequence, m.Time)
	case MsgPong:
		return fmt.Sprintf("Pong{t=%d t0=%d latency=%d}", m.Time, m.Pong.Time0, m.Pong.Latency)
	case MsgState:
		return fmt.Sprintf("State{t=%d size=%d}", m.Time, len(m.State))
	case MsgEvent:
		return fmt.Sprintf("Event{t=%d seq=%d ordered=%v size=%d}", m.Time, m.Event.Sequence, m.Event.Ordered, len(m.Event.Data))
	case MsgEventAck:
		return fmt.Sprintf("EventAck{t=%d seq=%d ordered=%v}", m.Time, m.EventAck.Sequence, m.EventAck.Ordered)
	default:
		return fmt.Sprintf("%s{t=%d}", m.Type, m.Time)
	}
}

// NewIAm builds a handshake message.
func NewIAm(time uint32, sequence uint8, id ID) *Message {
	return &Message{Type: MsgIAm, Time: time, IAm: IAm{Sequence: sequence, ID: id}}
}

// NewBye builds a disconnect message.
func NewBye(time uint32) *Message {
	return &Message{Type: MsgBye, Time: time}
}

// NewPing builds a latency probe.
func NewPing(time uint32) *Message {
	return &Message{Type: MsgPing, Time: time}
}

// NewPong builds a probe reply.
func NewPong(time, time0, latency uint32) *Message {
	return &Message{Type: MsgPong, Time: time, Pong: Pong{Time0: time0, Latency: latency}}
}

// NewState builds a snapshot message around an already packed state.
func NewState(time uint32, packed []byte) *Message {
	return &Message{Type: MsgState, Time: time, State: packed}
}

// NewEvent builds an event message.
func NewEvent(time uint32, sequence uint8, ordered bool, data []byte) *Message {
	return &Message{Type: MsgEvent, Time: time, Event: Event{Sequence: sequence, Ordered: ordered, Data: data}}
}

// NewEventAck builds an event acknowledgment.
func NewEventAck(time uint32, sequence uint8, ordered bool) *Message {
	return &Message{Type: MsgEventAck, Time: time, EventAck: EventAck{Sequence: sequence, Ordered: ordered}}
}

// TimeToWire converts seconds to the wire's millisecond clock. Negative
// times clamp to zero.
func TimeToWire(seconds float64) uint32 {
	if seconds <= 0 {
		return 0
	}
	ms := seconds * 1000
	if ms >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// TimeFromWire converts the wire's millisecond clock to seconds.
func TimeFromWire(ms uint32) float64 {
	return float64(ms) / 1000
}
