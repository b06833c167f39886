package wire

import "testing"

func TestSequence24NextPrev(t *testing.T) {
	for _, x := range []Sequence24{0, 1, 100, seq24Mod - 1, seq24Mod - 2} {
		if got := x.Next().Prev(); got != x {
			t.Errorf("Next().Prev() of %d = %d", x, got)
		}
		if got := x.Prev().Next(); got != x {
			t.Errorf("Prev().Next() of %d = %d", x, got)
		}
	}
}

func TestSequence24WrapOrdering(t *testing.T) {
	max := Sequence24(seq24Mod - 1)
	if max.Next().After(Sequence24(0)) {
		t.Fatalf("expected max.Next() (wrapped to 0) to not be After(0)... ")
	}
}

func TestSequence24WrapAroundCompare(t *testing.T) {
	// max.Next() wraps to 0, which is not After 0.Next()==1 in the signed
	// half-space sense required by spec.md §8.4: for all x,y cmp(x,y)==-cmp(y,x).
	max := Sequence24(seq24Mod - 1)
	a := max.Next() // == 0
	b := Sequence24(0).Next()
	if a.Compare(b) != -b.Compare(a) {
		t.Fatalf("compare not antisymmetric: cmp(a,b)=%d cmp(b,a)=%d", a.Compare(b), b.Compare(a))
	}
}

func TestSequence24CompareAntisymmetric(t *testing.T) {
	pairs := [][2]Sequence24{
		{0, 1}, {100, 200}, {seq24Mod - 1, 0}, {seq24Mod - 1, 1}, {5, 5},
	}
	for _, p := range pairs {
		x, y := p[0], p[1]
		if x.Compare(y) != -y.Compare(x) {
			t.Errorf("cmp(%d,%d)=%d but cmp(%d,%d)=%d", x, y, x.Compare(y), y, x, y.Compare(x))
		}
	}
}

func TestSequence24EncodeDecode(t *testing.T) {
	for _, v := range []Sequence24{0, 1, 0xABCDEF, seq24Mod - 1} {
		w := NewWriter()
		v.Encode(w)
		r := NewReader(w.Bytes())
		got, err := DecodeSequence24(r)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != v {
			t.Errorf("expected %d, got %d", v, got)
		}
	}
}
