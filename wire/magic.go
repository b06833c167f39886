package wire

import "bytes"

// Magic is the fixed 16-byte constant that opens every offline handshake
// packet, matching vanilla RakNet/Minecraft Bedrock (spec.md §3).
var Magic = [16]byte{
	0x00, 0xFF, 0xFF, 0x00, 0xFE, 0xFE, 0xFE, 0xFE,
	0xFD, 0xFD, 0xFD, 0xFD, 0x12, 0x34, 0x56, 0x78,
}

// WriteMagic appends the magic constant.
func WriteMagic(w *Writer) {
	w.Raw(Magic[:])
}

// ReadMagic reads 16 bytes and rejects them with ErrBadMagic if they do not
// match the constant.
func ReadMagic(r *Reader) error {
	b, err := r.Bytes(16)
	if err != nil {
		return err
	}
	if !bytes.Equal(b, Magic[:]) {
		return ErrBadMagic
	}
	return nil
}

// Advertisement is the optional length-prefixed (u16 BE) blob carried at
// the end of UnconnectedPong. Absence is encoded as zero further bytes,
// not a zero-length prefix (spec.md §4.1) — callers only call
// WriteAdvertisement when there is one to send.
type Advertisement []byte

// WriteAdvertisement appends the length-prefixed advertisement blob.
func WriteAdvertisement(w *Writer, a Advertisement) {
	w.LengthPrefixedBytes(a)
}

// ReadAdvertisement reads a length-prefixed advertisement if any bytes
// remain, returning nil if the buffer is already exhausted.
func ReadAdvertisement(r *Reader) (Advertisement, error) {
	if r.Remaining() == 0 {
		return nil, nil
	}
	b, err := r.LengthPrefixedBytes()
	if err != nil {
		return nil, err
	}
	return Advertisement(b), nil
}
