package bitio

// Reader reads bits from a byte buffer.
type Reader struct {
	buf []byte
	pos uint64 // bit offset
}

// NewReader creates a reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Tell returns the current bit position.
func (r *Reader) Tell() uint64 {
	return r.pos
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() uint64 {
	return uint64(len(r.buf))*8 - r.pos
}

// AlignByte skips to the next byte boundary. It is the reader-side mirror of
// Writer.Flush.
func (r *Reader) AlignByte() {
	if rem := r.pos % 8; rem != 0 {
		r.pos += 8 - rem
		if r.pos > uint64(len(r.buf))*8 {
			r.pos = uint64(len(r.buf)) * 8
		}
	}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (bool, error) {
	v, err := r.ReadUnsigned(1)
	return v != 0, err
}

// ReadUnsigned reads an nbits wide unsigned value.
func (r *Reader) ReadUnsigned(nbits int) (uint64, error) {
	if err := checkWidth(nbits); err != nil {
		return 0, err
	}
	if uint64(nbits) > r.Remaining() {
		return 0, ErrOutOfSpace
	}
	return r.get(nbits), nil
}

// ReadSigned reads a sign-magnitude value written by Writer.WriteSigned.
func (r *Reader) ReadSigned(nbits int) (int64, error) {
	if err := checkWidth(nbits); err != nil {
		return 0, err
	}
	if nbits < 2 {
		return 0, ErrInvalidWidth
	}
	if uint64(nbits) > r.Remaining() {
		return 0, ErrOutOfSpace
	}
	sign := r.get(1)
	mag := r.get(nbits - 1)
	if sign != 0 {
		if mag == 0 {
			return 0, nil
		}
		return -int64(mag-1) - 1, nil
	}
	return int64(mag), nil
}

// ReadBytes reads n whole bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || uint64(n)*8 > r.Remaining() {
		return nil, ErrOutOfSpace
	}
	out := make([]byte, n)
	if r.pos%8 == 0 {
		copy(out, r.buf[r.pos/8:])
		r.pos += uint64(n) * 8
		return out, nil
	}
	for i := range out {
		out[i] = byte(r.get(8))
	}
	return out, nil
}

// Rest returns the unread bytes following the next byte boundary. The slice
// aliases the reader's buffer.
func (r *Reader) Rest() []byte {
	r.AlignByte()
	rest := r.buf[r.pos/8:]
	r.pos = uint64(len(r.buf)) * 8
	return rest
}

func (r *Reader) get(nbits int) uint64 {
	var v uint64
	for nbits > 0 {
		idx := r.pos / 8
		off := int(r.pos % 8)
		free := 8 - off
		n := free
		if nbits < n {
			n = nbits
		}
		chunk := uint64(r.buf[idx]>>uint(free-n)) & mask(n)
		v = (v << uint(n)) | chunk
		r.pos += uint64(n)
		nbits -= n
	}
	return v
}
