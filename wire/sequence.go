package wire

const seq24Mod = 1 << 24

// Sequence24 is an unsigned 24-bit value with wrapping arithmetic modulo
// 2^24, used for datagram sequence numbers and every reliability/ordering
// index (spec.md §3). The zero value is a valid sequence number.
type Sequence24 uint32

// NewSequence24 masks v down into the 24-bit space.
func NewSequence24(v uint32) Sequence24 {
	return Sequence24(v % seq24Mod)
}

// Next returns the sequence following s, wrapping at 2^24.
func (s Sequence24) Next() Sequence24 {
	return Sequence24((uint32(s) + 1) % seq24Mod)
}

// Prev returns the sequence preceding s, wrapping at 2^24.
func (s Sequence24) Prev() Sequence24 {
	return Sequence24((uint32(s) + seq24Mod - 1) % seq24Mod)
}

// Add returns s advanced by n (n may be negative), wrapping at 2^24.
func (s Sequence24) Add(n int32) Sequence24 {
	v := int64(s) + int64(n)
	v %= seq24Mod
	if v < 0 {
		v += seq24Mod
	}
	return Sequence24(v)
}

// After reports whether s comes strictly after other in the wrapping
// half-space ordering: (s - other) mod 2^24 is in (0, 2^23).
func (s Sequence24) After(other Sequence24) bool {
	diff := (uint32(s) - uint32(other)) % seq24Mod
	return diff != 0 && diff < seq24Mod/2
}

// Before reports whether s comes strictly before other.
func (s Sequence24) Before(other Sequence24) bool {
	return other.After(s)
}

// Compare returns -1, 0 or 1 as s is before, equal to, or after other. It
// satisfies Compare(x,y) == -Compare(y,x) for all x, y (spec.md §8.4).
func (s Sequence24) Compare(other Sequence24) int {
	switch {
	case s == other:
		return 0
	case s.After(other):
		return 1
	default:
		return -1
	}
}

// Uint32 returns the underlying value.
func (s Sequence24) Uint32() uint32 {
	return uint32(s)
}

// Encode writes the 3-byte little-endian wire form.
func (s Sequence24) Encode(w *Writer) {
	w.U24LE(uint32(s))
}

// DecodeSequence24 reads the 3-byte little-endian wire form.
func DecodeSequence24(r *Reader) (Sequence24, error) {
	v, err := r.U24LE()
	if err != nil {
		return 0, err
	}
	return Sequence24(v), nil
}

// Distance returns the minimal forward step count from s to other in the
// wrapping space: 0 if equal, else the number of Next() calls needed,
// which is < 2^23 when other is After(s) and undefined (caller must check
// After first) otherwise. Nothing in the module calls it; ForEachSequence
// walks ACK/NACK ranges with Next.
func (s Sequence24) Distance(other Sequence24) uint32 {
	return (uint32(other) - uint32(s)) % seq24Mod
}
