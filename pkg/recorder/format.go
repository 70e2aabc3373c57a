package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/apistol78/traktor-sub009/pkg/peers"
)

// Segment layout, all integers big endian:
//
//	header: magic "RPLR" | version u16 | session [16]byte | started unix ns i64
//	record: direction u8 | time f64 | peer u64 | length u16 | data
const (
	magic         = "RPLR"
	formatVersion = 1
	headerSize    = 4 + 2 + 16 + 8
	recordHeader  = 1 + 8 + 8 + 2
)

// Format errors.
var (
	ErrBadMagic    = errors.New("recorder: not a recording")
	ErrBadVersion  = errors.New("recorder: unsupported format version")
	ErrRecordSize  = errors.New("recorder: record too large")
	ErrBadRecord   = errors.New("recorder: malformed record")
	ErrNoSink      = errors.New("recorder: no sink configured")
)

// Direction tells whether a datagram was sent or received.
type Direction uint8

const (
	Sent     Direction = 1
	Received Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "tx"
	case Received:
		return "rx"
	default:
		return "??"
	}
}

// Header opens every segment.
type Header struct {
	Session uuid.UUID
	Started time.Time
}

// Record is one captured datagram.
type Record struct {
	Direction Direction
	Time      float64 // Replicator network time, seconds
	Peer      peers.Handle
	Data      []byte
}

func appendHeader(dst []byte, h Header) []byte {
	dst = append(dst, magic...)
	dst = binary.BigEndian.AppendUint16(dst, formatVersion)
	dst = append(dst, h.Session[:]...)
	return binary.BigEndian.AppendUint64(dst, uint64(h.Started.UnixNano()))
}

func appendRecord(dst []byte, r Record) ([]byte, error) {
	if len(r.Data) > math.MaxUint16 {
		return dst, ErrRecordSize
	}
	dst = append(dst, byte(r.Direction))
	dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(r.Time))
	dst = binary.BigEndian.AppendUint64(dst, uint64(r.Peer))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(r.Data)))
	return append(dst, r.Data...), nil
}

// Reader decodes a recorded segment.
type Reader struct {
	r      *bufio.Reader
	header Header
	buf    [recordHeader]byte
}

// NewReader reads the segment header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, err
	}
	if string(hdr[:4]) != magic {
		return nil, ErrBadMagic
	}
	if v := binary.BigEndian.Uint16(hdr[4:6]); v != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	rd := &Reader{r: br}
	copy(rd.header.Session[:], hdr[6:22])
	rd.header.Started = time.Unix(0, int64(binary.BigEndian.Uint64(hdr[22:30])))
	return rd, nil
}

// Header returns the segment header.
func (rd *Reader) Header() Header { return rd.header }

// Next returns the next record, or io.EOF at the end of the segment.
func (rd *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(rd.r, rd.buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrBadRecord
		}
		return Record{}, err
	}
	rec := Record{
		Direction: Direction(rd.buf[0]),
		Time:      math.Float64frombits(binary.BigEndian.Uint64(rd.buf[1:9])),
		Peer:      peers.Handle(binary.BigEndian.Uint64(rd.buf[9:17])),
	}
	if rec.Direction != Sent && rec.Direction != Received {
		return Record{}, ErrBadRecord
	}
	rec.Data = make([]byte, binary.BigEndian.Uint16(rd.buf[17:19]))
	if _, err := io.ReadFull(rd.r, rec.Data); err != nil {
		return Record{}, ErrBadRecord
	}
	return rec, nil
}

// ReadAll decodes every record of a segment.
func ReadAll(r io.Reader) (Header, []Record, error) {
	rd, err := NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}
	var recs []Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return rd.header, recs, nil
		}
		if err != nil {
			return rd.header, recs, err
		}
		recs = append(recs, rec)
	}
}
