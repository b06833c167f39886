package frame

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/ventral/goraknet/wire"
)

// Datagram header flags (spec.md §3 Datagram).
const (
	FlagValid          byte = 0x80
	FlagAck            byte = 0x40
	FlagNack           byte = 0x20
	FlagPacketPair     byte = 0x10
	FlagContinuousSend byte = 0x08
	FlagNeedsBAndAS    byte = 0x04
)

// Datagram is one RakNet-framed UDP packet: a flags+sequence header over
// either a list of encapsulated packets, or an ACK/NACK range list
// (spec.md §3, §4.4.1). Exactly one of Frames or Ranges is populated,
// selected by Flags.
type Datagram struct {
	Flags    byte
	Sequence wire.Sequence24
	Frames   []*EncapsulatedPacket
	Ranges   []SequenceRange
}

// IsAck reports whether this datagram carries an ACK range list.
func (d *Datagram) IsAck() bool { return d.Flags&FlagAck != 0 }

// IsNack reports whether this datagram carries a NACK range list.
func (d *Datagram) IsNack() bool { return d.Flags&FlagNack != 0 }

// NewDataDatagram wraps frames in a VALID datagram under the given
// sequence number.
func NewDataDatagram(seq wire.Sequence24, frames []*EncapsulatedPacket) *Datagram {
	return &Datagram{Flags: FlagValid, Sequence: seq, Frames: frames}
}

// NewAckDatagram wraps ranges in a VALID|ACK datagram. ACK/NACK datagrams
// carry no sequence number on the wire (Sequence stays zero); only the
// range list matters.
func NewAckDatagram(ranges []SequenceRange) *Datagram {
	return &Datagram{Flags: FlagValid | FlagAck, Ranges: ranges}
}

// NewNackDatagram wraps ranges in a VALID|NACK datagram.
func NewNackDatagram(ranges []SequenceRange) *Datagram {
	return &Datagram{Flags: FlagValid | FlagNack, Ranges: ranges}
}

// Encode writes the full datagram: flags, then either the range list (for
// ACK/NACK) or the sequence number followed by each frame in turn.
func (d *Datagram) Encode(w *wire.Writer) {
	w.Byte(d.Flags)
	if d.IsAck() || d.IsNack() {
		EncodeRanges(w, d.Ranges)
		return
	}
	d.Sequence.Encode(w)
	for _, f := range d.Frames {
		f.Encode(w)
	}
}

// DecodeDatagram reads a datagram header and body. Callers must check the
// VALID bit themselves; a cleared VALID bit means the datagram should be
// silently dropped per spec.md §4.4.1 step 1, not treated as an error.
func DecodeDatagram(r *wire.Reader) (*Datagram, error) {
	flags, err := r.Byte()
	if err != nil {
		return nil, err
	}
	d := &Datagram{Flags: flags}

	if d.IsAck() || d.IsNack() {
		ranges, err := DecodeRanges(r)
		if err != nil {
			return nil, errors.Wrap(err, "ack/nack ranges")
		}
		d.Ranges = ranges
		return d, nil
	}

	seq, err := wire.DecodeSequence24(r)
	if err != nil {
		return nil, errors.Wrap(err, "sequence")
	}
	d.Sequence = seq
	for r.Remaining() > 0 {
		f, err := DecodeEncapsulatedPacket(r)
		if err != nil {
			return nil, errors.Wrap(err, "frame")
		}
		d.Frames = append(d.Frames, f)
	}
	return d, nil
}

// SequenceRange is an inclusive [Start, End] span over the 24-bit
// sequence space, the unit ACK/NACK payloads are built from (spec.md §3).
type SequenceRange struct {
	Start wire.Sequence24
	End   wire.Sequence24
}

// SingleRanges wraps each sequence number in a one-value range, the form
// CoalesceRanges and EncodeRanges accept.
func SingleRanges(seqs []wire.Sequence24) []SequenceRange {
	ranges := make([]SequenceRange, 0, len(seqs))
	for _, s := range seqs {
		ranges = append(ranges, SequenceRange{Start: s, End: s})
	}
	return ranges
}

const (
	recordRange  byte = 0
	recordSingle byte = 1
)

// EncodeRanges writes a length-prefixed list of coalesced ranges: adjacent
// sequences are merged into a single record, matching vanilla RakNet's
// ACK/NACK wire format.
func EncodeRanges(w *wire.Writer, ranges []SequenceRange) {
	coalesced := CoalesceRanges(ranges)

	w.U16(uint16(len(coalesced)))
	for _, rg := range coalesced {
		if rg.Start == rg.End {
			w.Byte(recordSingle)
			rg.Start.Encode(w)
			continue
		}
		w.Byte(recordRange)
		rg.Start.Encode(w)
		rg.End.Encode(w)
	}
}

// DecodeRanges reads a length-prefixed ACK/NACK range list.
func DecodeRanges(r *wire.Reader) ([]SequenceRange, error) {
	count, err := r.U16()
	if err != nil {
		return nil, err
	}
	ranges := make([]SequenceRange, 0, count)
	for i := uint16(0); i < count; i++ {
		kind, err := r.Byte()
		if err != nil {
			return nil, err
		}
		start, err := wire.DecodeSequence24(r)
		if err != nil {
			return nil, err
		}
		end := start
		if kind == recordRange {
			end, err = wire.DecodeSequence24(r)
			if err != nil {
				return nil, err
			}
		}
		ranges = append(ranges, SequenceRange{Start: start, End: end})
	}
	return ranges, nil
}

// CoalesceRanges sorts the given sequences (passed in as single-value
// ranges or already-merged spans) and merges any that are contiguous.
// Ranges spanning the 24-bit wrap are not merged with ranges on the other
// side of the wrap, since wire order is ascending by raw value.
func CoalesceRanges(ranges []SequenceRange) []SequenceRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]SequenceRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Uint32() < sorted[j].Start.Uint32()
	})

	merged := []SequenceRange{sorted[0]}
	for _, rg := range sorted[1:] {
		last := &merged[len(merged)-1]
		if rg.Start.Uint32() <= last.End.Next().Uint32() && rg.Start.Uint32() >= last.Start.Uint32() {
			if rg.End.After(last.End) {
				last.End = rg.End
			}
			continue
		}
		merged = append(merged, rg)
	}
	return merged
}

// ForEachSequence walks every sequence number in [r.Start, r.End]
// inclusive, calling fn for each. Used to expand an ACK/NACK range
// against the retransmit map (spec.md §4.4.4).
func ForEachSequence(r SequenceRange, fn func(wire.Sequence24)) {
	seq := r.Start
	for {
		fn(seq)
		if seq == r.End {
			return
		}
		seq = seq.Next()
	}
}
