package bitio

// Writer writes bits into a caller-supplied buffer. The buffer is never grown.
type Writer struct {
	buf []byte
	pos uint64 // bit offset
}

// NewWriter creates a writer over buf. Capacity is len(buf) bytes.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Reset rewinds the writer to the start of its buffer.
func (w *Writer) Reset() {
	w.pos = 0
}

// Tell returns the current bit position.
func (w *Writer) Tell() uint64 {
	return w.pos
}

// Capacity returns the buffer capacity in bits.
func (w *Writer) Capacity() uint64 {
	return uint64(len(w.buf)) * 8
}

// Len returns the number of bytes touched so far, rounded up.
func (w *Writer) Len() int {
	return int((w.pos + 7) / 8)
}

// Bytes returns the written portion of the buffer, including a partially
// written trailing byte. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.Len()]
}

// Flush pads the stream with zero bits up to the next byte boundary.
func (w *Writer) Flush() {
	if rem := w.pos % 8; rem != 0 {
		// Trailing bits of the current byte are already cleared by put.
		w.pos += 8 - rem
	}
}

// WriteBit writes a single bit.
func (w *Writer) WriteBit(b bool) error {
	var v uint64
	if b {
		v = 1
	}
	return w.WriteUnsigned(1, v)
}

// WriteUnsigned writes the low nbits of v.
func (w *Writer) WriteUnsigned(nbits int, v uint64) error {
	if err := checkWidth(nbits); err != nil {
		return err
	}
	if nbits < 64 && v > mask(nbits) {
		return ErrOverflow
	}
	if w.pos+uint64(nbits) > w.Capacity() {
		return ErrOutOfSpace
	}
	w.put(nbits, v)
	return nil
}

// WriteSigned writes v as a sign bit followed by nbits-1 magnitude bits.
func (w *Writer) WriteSigned(nbits int, v int64) error {
	if err := checkWidth(nbits); err != nil {
		return err
	}
	if nbits < 2 {
		return ErrInvalidWidth
	}
	negative := v < 0
	var mag uint64
	if negative {
		mag = uint64(-(v + 1)) + 1
	} else {
		mag = uint64(v)
	}
	if mag > mask(nbits-1) {
		return ErrOverflow
	}
	if w.pos+uint64(nbits) > w.Capacity() {
		return ErrOutOfSpace
	}
	var sign uint64
	if negative {
		sign = 1
	}
	w.put(1, sign)
	w.put(nbits-1, mag)
	return nil
}

// WriteBytes writes whole bytes at the current bit position.
func (w *Writer) WriteBytes(p []byte) error {
	if w.pos+uint64(len(p))*8 > w.Capacity() {
		return ErrOutOfSpace
	}
	if w.pos%8 == 0 {
		copy(w.buf[w.pos/8:], p)
		w.pos += uint64(len(p)) * 8
		return nil
	}
	for _, b := range p {
		w.put(8, uint64(b))
	}
	return nil
}

// put writes nbits of v without bounds checks, most significant bit first.
func (w *Writer) put(nbits int, v uint64) {
	for nbits > 0 {
		idx := w.pos / 8
		off := int(w.pos % 8)
		free := 8 - off
		n := free
		if nbits < n {
			n = nbits
		}
		chunk := byte((v >> uint(nbits-n)) & mask(n))
		shift := free - n
		m := byte(mask(n)) << shift
		w.buf[idx] = (w.buf[idx] &^ m) | (chunk << shift)
		if off == 0 {
			// First write into this byte clears stale bits from a reused buffer.
			w.buf[idx] &= ^byte(0) << shift
		}
		w.pos += uint64(n)
		nbits -= n
	}
}
