package reliability

import (
	"github.com/ventral/goraknet/frame"
	"github.com/ventral/goraknet/wire"
)

// duplicateWindow tracks which reliable indices have already been seen,
// using a set of indices whose lowest tracked index (base) slides forward
// (spec.md §4.4.1 step 3: "decode payload... reliable duplicate check").
type duplicateWindow struct {
	base  wire.Sequence24
	seen  map[uint32]struct{}
	ready bool
}

func newDuplicateWindow() *duplicateWindow {
	return &duplicateWindow{seen: make(map[uint32]struct{})}
}

// Check reports whether idx is a duplicate of something already recorded.
// It returns false (not a duplicate) and records idx otherwise.
func (d *duplicateWindow) Check(idx wire.Sequence24) bool {
	if !d.ready {
		d.base = idx
		d.ready = true
	}
	key := idx.Uint32()
	if _, dup := d.seen[key]; dup {
		return true
	}
	d.seen[key] = struct{}{}

	// Advance base and drop entries that fall far enough behind that a
	// legitimate retransmit could no longer carry that index; this keeps
	// the map bounded across a long-lived session.
	for d.base.Before(idx) && idx.Uint32()-d.base.Uint32() > 1<<16 {
		delete(d.seen, d.base.Uint32())
		d.base = d.base.Next()
	}
	return false
}

// channelReorder buffers ReliableOrdered frames for one ordering channel
// until they can be delivered strictly in order (spec.md §4.4.1, §5
// "Ordering guarantees").
type channelReorder struct {
	expected wire.Sequence24
	pending  map[uint32]*frame.EncapsulatedPacket
}

func newChannelReorder() *channelReorder {
	return &channelReorder{pending: make(map[uint32]*frame.EncapsulatedPacket)}
}

// Push admits a frame and returns every frame now ready for in-order
// delivery, which may be more than one if buffered gaps were just filled.
func (c *channelReorder) Push(e *frame.EncapsulatedPacket) []*frame.EncapsulatedPacket {
	if e.OrderingIndex.Before(c.expected) {
		return nil // stale duplicate, already delivered
	}
	c.pending[e.OrderingIndex.Uint32()] = e

	var out []*frame.EncapsulatedPacket
	for {
		next, ok := c.pending[c.expected.Uint32()]
		if !ok {
			break
		}
		delete(c.pending, c.expected.Uint32())
		out = append(out, next)
		c.expected = c.expected.Next()
	}
	return out
}
