package frame

import (
	"github.com/pkg/errors"
	"github.com/ventral/goraknet/wire"
)

// MaximumOrderingChannels bounds the ordering_channel field (spec.md §3, §6).
const MaximumOrderingChannels = 16

// SplitInfo describes the fragment placement of one piece of a split
// message (spec.md §3).
type SplitInfo struct {
	Count uint32
	ID    uint16
	Index uint32
}

// EncapsulatedPacket is one frame inside a datagram: flags, bit-length, the
// reliability metadata implied by Reliability, optional split header and
// payload (spec.md §3, §4.3).
type EncapsulatedPacket struct {
	Reliability     Reliability
	NeedsBAndAS     bool
	ReliableIndex   wire.Sequence24
	SequenceIndex   wire.Sequence24
	OrderingIndex   wire.Sequence24
	OrderingChannel uint8
	Split           *SplitInfo
	Payload         []byte
}

// HeaderSize returns the exact size in bytes this frame's metadata occupies
// on the wire, not counting the payload.
func (e *EncapsulatedPacket) HeaderSize() int {
	size := 1 + 2 // flags + bit_length
	if e.Reliability.IsReliable() {
		size += 3
	}
	if e.Reliability.IsSequenced() {
		size += 3
	}
	if e.Reliability.IsOrderedOrSequenced() {
		size += 4
	}
	if e.Split != nil {
		size += 10
	}
	return size
}

// Encode writes the frame in the order defined by spec.md §4.3.
func (e *EncapsulatedPacket) Encode(w *wire.Writer) {
	flags := byte(e.Reliability) << 5
	if e.Split != nil {
		flags |= 0x10
	}
	if e.NeedsBAndAS {
		flags |= 0x04
	}
	w.Byte(flags)
	w.U16(uint16(len(e.Payload)) * 8)

	if e.Reliability.IsReliable() {
		e.ReliableIndex.Encode(w)
	}
	if e.Reliability.IsSequenced() {
		e.SequenceIndex.Encode(w)
	}
	if e.Reliability.IsOrderedOrSequenced() {
		e.OrderingIndex.Encode(w)
		w.U8(e.OrderingChannel)
	}
	if e.Split != nil {
		w.U32(e.Split.Count)
		w.U16(e.Split.ID)
		w.U32(e.Split.Index)
	}
	w.Raw(e.Payload)
}

// DecodeEncapsulatedPacket reads one frame, stopping right after its
// payload so the caller can continue decoding the next frame in the same
// datagram.
func DecodeEncapsulatedPacket(r *wire.Reader) (*EncapsulatedPacket, error) {
	flags, err := r.Byte()
	if err != nil {
		return nil, err
	}
	rel, err := decodeReliability((flags >> 5) & 0x07)
	if err != nil {
		return nil, err
	}
	e := &EncapsulatedPacket{
		Reliability: rel,
		NeedsBAndAS: flags&0x04 != 0,
	}
	isSplit := flags&0x10 != 0

	bitLength, err := r.U16()
	if err != nil {
		return nil, err
	}
	payloadLen := int(bitLength+7) / 8

	if rel.IsReliable() {
		if e.ReliableIndex, err = wire.DecodeSequence24(r); err != nil {
			return nil, errors.Wrap(err, "reliable_index")
		}
	}
	if rel.IsSequenced() {
		if e.SequenceIndex, err = wire.DecodeSequence24(r); err != nil {
			return nil, errors.Wrap(err, "sequence_index")
		}
	}
	if rel.IsOrderedOrSequenced() {
		if e.OrderingIndex, err = wire.DecodeSequence24(r); err != nil {
			return nil, errors.Wrap(err, "ordering_index")
		}
		if e.OrderingChannel, err = r.U8(); err != nil {
			return nil, errors.Wrap(err, "ordering_channel")
		}
	}
	if isSplit {
		split := &SplitInfo{}
		if split.Count, err = r.U32(); err != nil {
			return nil, errors.Wrap(err, "split.count")
		}
		if split.ID, err = r.U16(); err != nil {
			return nil, errors.Wrap(err, "split.id")
		}
		if split.Index, err = r.U32(); err != nil {
			return nil, errors.Wrap(err, "split.index")
		}
		e.Split = split
	}

	payload, err := r.Bytes(payloadLen)
	if err != nil {
		return nil, errors.Wrap(err, "payload")
	}
	e.Payload = payload
	return e, nil
}
