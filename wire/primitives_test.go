package wire

import (
	"net"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Bool(true)
	w.U8(0x42)
	w.I8(-5)
	w.U16(1234)
	w.U16LE(1234)
	w.U32(567890)
	w.U64(1 << 40)
	w.U24LE(0xABCDEF)
	w.VarUint64(300)
	w.VarInt64(-300)
	w.LengthPrefixedBytes([]byte("hello"))
	w.EoBPadding(4)

	r := NewReader(w.Bytes())

	if v, err := r.Bool(); err != nil || v != true {
		t.Fatalf("Bool: %v %v", v, err)
	}
	if v, err := r.U8(); err != nil || v != 0x42 {
		t.Fatalf("U8: %v %v", v, err)
	}
	if v, err := r.I8(); err != nil || v != -5 {
		t.Fatalf("I8: %v %v", v, err)
	}
	if v, err := r.U16(); err != nil || v != 1234 {
		t.Fatalf("U16: %v %v", v, err)
	}
	if v, err := r.U16LE(); err != nil || v != 1234 {
		t.Fatalf("U16LE: %v %v", v, err)
	}
	if v, err := r.U32(); err != nil || v != 567890 {
		t.Fatalf("U32: %v %v", v, err)
	}
	if v, err := r.U64(); err != nil || v != 1<<40 {
		t.Fatalf("U64: %v %v", v, err)
	}
	if v, err := r.U24LE(); err != nil || v != 0xABCDEF {
		t.Fatalf("U24LE: %v %v", v, err)
	}
	if v, err := r.VarUint64(); err != nil || v != 300 {
		t.Fatalf("VarUint64: %v %v", v, err)
	}
	if v, err := r.VarInt64(); err != nil || v != -300 {
		t.Fatalf("VarInt64: %v %v", v, err)
	}
	if v, err := r.LengthPrefixedBytes(); err != nil || string(v) != "hello" {
		t.Fatalf("LengthPrefixedBytes: %v %v", v, err)
	}
	if n := r.EoBPadding(); n != 4 {
		t.Fatalf("EoBPadding: %d", n)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer exhausted, %d bytes left", r.Remaining())
	}
}

func TestVarUintBoundary(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<64 - 1}
	for _, v := range cases {
		w := NewWriter()
		w.VarUint64(v)
		r := NewReader(w.Bytes())
		got, err := r.VarUint64()
		if err != nil {
			t.Fatalf("VarUint64(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("VarUint64(%d) round trip: got %d", v, got)
		}
	}
}

func TestVarUintExceedsLimit(t *testing.T) {
	// 11 continuation bytes, none terminating: must fail rather than loop.
	data := make([]byte, 11)
	for i := range data {
		data[i] = 0x80
	}
	r := NewReader(data)
	if _, err := r.VarUint64(); err != ErrVarIntExceedsLimit {
		t.Fatalf("expected ErrVarIntExceedsLimit, got %v", err)
	}
}

func TestUnexpectedEOF(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.U32(); err != ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestSocketAddrV4RoundTrip(t *testing.T) {
	addr := SocketAddr{IP: net.IPv4(192, 168, 1, 100), Port: 7777}
	w := NewWriter()
	addr.Encode(w)

	r := NewReader(w.Bytes())
	got, err := DecodeSocketAddr(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IP.Equal(addr.IP) || got.Port != addr.Port {
		t.Fatalf("expected %v:%d, got %v:%d", addr.IP, addr.Port, got.IP, got.Port)
	}
}

func TestSocketAddrV6RoundTrip(t *testing.T) {
	addr := SocketAddr{IP: net.ParseIP("2001:db8::1"), Port: 19132}
	w := NewWriter()
	addr.Encode(w)

	r := NewReader(w.Bytes())
	got, err := DecodeSocketAddr(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IP.Equal(addr.IP) || got.Port != addr.Port {
		t.Fatalf("expected %v:%d, got %v:%d", addr.IP, addr.Port, got.IP, got.Port)
	}
}

func TestSocketAddrInvalidVersion(t *testing.T) {
	r := NewReader([]byte{9, 0, 0, 0, 0})
	if _, err := DecodeSocketAddr(r); err != ErrInvalidAddrVersion {
		t.Fatalf("expected ErrInvalidAddrVersion, got %v", err)
	}
}

func TestMagicRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteMagic(w)
	r := NewReader(w.Bytes())
	if err := ReadMagic(r); err != nil {
		t.Fatalf("ReadMagic: %v", err)
	}
}

func TestMagicMismatch(t *testing.T) {
	bad := make([]byte, 16)
	copy(bad, Magic[:])
	bad[0] ^= 0xFF
	r := NewReader(bad)
	if err := ReadMagic(r); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestAdvertisementAbsentVsEmpty(t *testing.T) {
	r := NewReader(nil)
	adv, err := ReadAdvertisement(r)
	if err != nil || adv != nil {
		t.Fatalf("expected nil advertisement with no error, got %v %v", adv, err)
	}
}

func TestAdvertisementRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteAdvertisement(w, Advertisement("MCPE;Demo;19132"))
	r := NewReader(w.Bytes())
	got, err := ReadAdvertisement(r)
	if err != nil {
		t.Fatalf("ReadAdvertisement: %v", err)
	}
	if string(got) != "MCPE;Demo;19132" {
		t.Fatalf("expected advertisement text preserved, got %q", got)
	}
}
