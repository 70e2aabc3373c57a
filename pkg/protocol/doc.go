// Package protocol implements the replication wire messages.
//
// Every datagram carries exactly one message. Messages are encoded through
// the bitio codec, never by copying structs, so the layout is independent of
// host endianness and padding.
//
// # Wire Format
//
// All messages start with a 5-byte header:
//
//	┌─────────────┬──────────────────────────────────────┐
//	│ Type        │ Time                                 │
//	│ (8 bits)    │ (32 bits, sender clock in ms)        │
//	└─────────────┴──────────────────────────────────────┘
//
// # Message Types
//
//   - MsgIAm (0x01): handshake step, sequence 0, 1 or 2 plus a 16-byte id
//   - MsgBye (0x02): orderly disconnect
//   - MsgPing (0x03): latency probe
//   - MsgPong (0x04): probe reply, echoes the ping time and reports latency
//   - MsgState (0x05): packed state snapshot filling the rest of the datagram
//   - MsgEvent (0x06): reliable application event
//   - MsgEventAck (0x07): acknowledges one event sequence
//
// # Handshake
//
//	A                              B
//	│ ── IAm(0, idA) ────────────▶ │
//	│ ◀──────────── IAm(1, idA) ── │
//	│ ── IAm(2, idA) ────────────▶ │   both established
//
// # Payloads
//
// State and event payloads are byte aligned. Their size is not sent; it is
// whatever remains of the datagram after the header. A State payload is
// decoded later by the receiving ghost's state template.
package protocol
