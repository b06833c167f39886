// Package reliability implements the per-session delivery guarantees
// RakNet layers over raw datagrams: split reassembly, reorder queues,
// duplicate suppression, ACK/NACK scheduling, retransmission and
// sliding-window congestion control (spec.md §4.4).
package reliability

import (
	"time"

	"github.com/ventral/goraknet/frame"
)

// splitStaleTimeout evicts a partially-assembled split message that has
// not received a new fragment in this long, preventing an abandoned
// split ID from pinning memory forever.
const splitStaleTimeout = 30 * time.Second

// maxSplitCount bounds the fragment count a single split header may
// claim, so a forged header cannot force an unbounded allocation.
const maxSplitCount = 2048

type splitEntry struct {
	total    uint32
	slots    [][]byte
	have     uint32
	first    *frame.EncapsulatedPacket
	lastSeen time.Time
}

// splitAssembler reassembles fragmented encapsulated packets, keyed by
// SplitInfo.ID (spec.md §4.4.2).
type splitAssembler struct {
	entries map[uint16]*splitEntry
}

func newSplitAssembler() *splitAssembler {
	return &splitAssembler{entries: make(map[uint16]*splitEntry)}
}

// Add installs one fragment. It returns the reassembled packet once every
// slot has arrived, or nil while fragments are still outstanding.
func (a *splitAssembler) Add(e *frame.EncapsulatedPacket, now time.Time) (*frame.EncapsulatedPacket, bool) {
	split := e.Split
	if split.Count == 0 || split.Count > maxSplitCount || split.Index >= split.Count {
		return nil, false
	}

	entry, ok := a.entries[split.ID]
	if !ok {
		entry = &splitEntry{
			total: split.Count,
			slots: make([][]byte, split.Count),
			first: e,
		}
		a.entries[split.ID] = entry
	}
	entry.lastSeen = now

	if entry.slots[split.Index] == nil {
		entry.slots[split.Index] = e.Payload
		entry.have++
	}

	if entry.have < entry.total {
		return nil, false
	}

	delete(a.entries, split.ID)
	total := 0
	for _, s := range entry.slots {
		total += len(s)
	}
	payload := make([]byte, 0, total)
	for _, s := range entry.slots {
		payload = append(payload, s...)
	}

	merged := *entry.first
	merged.Split = nil
	merged.Payload = payload
	return &merged, true
}

// EvictStale drops any in-progress reassembly that has not seen a new
// fragment within splitStaleTimeout, returning the count dropped.
func (a *splitAssembler) EvictStale(now time.Time) int {
	dropped := 0
	for id, entry := range a.entries {
		if now.Sub(entry.lastSeen) > splitStaleTimeout {
			delete(a.entries, id)
			dropped++
		}
	}
	return dropped
}

// splitPlanner hands out split IDs for outbound fragmentation.
type splitPlanner struct {
	next uint16
}

func (p *splitPlanner) nextID() uint16 {
	id := p.next
	p.next++
	return id
}

// SplitPayload breaks payload into maxChunk-sized pieces when it would not
// otherwise fit, returning nil if no split is needed (spec.md §4.4.3).
func SplitPayload(payload []byte, maxChunk int) [][]byte {
	if len(payload) <= maxChunk {
		return nil
	}
	var chunks [][]byte
	for off := 0; off < len(payload); off += maxChunk {
		end := off + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}
