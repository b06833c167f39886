package reliability

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ventral/goraknet/frame"
	"github.com/ventral/goraknet/internal/logging"
	"github.com/ventral/goraknet/protocol"
	"github.com/ventral/goraknet/wire"
)

// Wire-level size constants carried from vanilla RakNet (spec.md §6).
const (
	UDPHeaderSize               = 8
	DatagramHeaderSize          = 4
	MaximumEncapsulatedHeaderSize = 28
	DefaultPacketLimit          = 120
)

type outboundFrame struct {
	frame    *frame.EncapsulatedPacket
	priority Priority
}

type sentDatagram struct {
	frames   []*frame.EncapsulatedPacket
	sendTime time.Time
	nextSend time.Time
}

// Engine is the per-session reliability layer: it turns application
// payloads into framed, fragmented, acknowledged datagrams and turns
// inbound datagrams back into delivered application packets (spec.md
// §4.4). It is not safe for concurrent use; callers serialize access the
// way session.Session does, matching the single-threaded-per-session
// model in spec.md §5.
type Engine struct {
	mtu uint16
	log zerolog.Logger

	sendSeq      wire.Sequence24
	nextReliable wire.Sequence24
	orderWrite   [frame.MaximumOrderingChannels]wire.Sequence24
	splits       splitPlanner

	haveWatermark bool
	highWatermark wire.Sequence24
	dup           *duplicateWindow
	reorder       [frame.MaximumOrderingChannels]*channelReorder
	sequenced     [frame.MaximumOrderingChannels]sequencedFilter
	reassembler   *splitAssembler

	pendingAck  []frame.SequenceRange
	pendingNack []frame.SequenceRange

	sent map[uint32]*sentDatagram
	out  []outboundFrame

	cc *slidingWindow
}

// NewEngine constructs a reliability engine for a session with the given
// negotiated MTU.
func NewEngine(mtu uint16) *Engine {
	e := &Engine{
		mtu:         mtu,
		log:         logging.For("reliability"),
		dup:         newDuplicateWindow(),
		reassembler: newSplitAssembler(),
		sent:        make(map[uint32]*sentDatagram),
		cc:          newSlidingWindow(),
	}
	for i := range e.reorder {
		e.reorder[i] = newChannelReorder()
	}
	return e
}

// SetMTU updates the negotiated path MTU, used during the offline MTU
// stepdown ladder before a session is fully established.
func (e *Engine) SetMTU(mtu uint16) {
	e.mtu = mtu
}

func (e *Engine) maxFramePayload() int {
	return int(e.mtu) - DatagramHeaderSize - MaximumEncapsulatedHeaderSize
}

// QueueAppPacket serializes and frames payload for delivery under the
// given reliability, ordering channel and send priority, splitting it
// into multiple encapsulated packets if it does not fit in one datagram
// (spec.md §4.4.3).
func (e *Engine) QueueAppPacket(payload []byte, rel frame.Reliability, channel uint8, priority Priority) {
	maxChunk := e.maxFramePayload()
	chunks := SplitPayload(payload, maxChunk)

	var orderingIndex wire.Sequence24
	if rel.IsOrderedOrSequenced() {
		orderingIndex = e.orderWrite[channel]
		e.orderWrite[channel] = e.orderWrite[channel].Next()
	}

	if chunks == nil {
		e.out = append(e.out, outboundFrame{
			frame:    e.buildFrame(payload, rel, channel, orderingIndex, nil),
			priority: priority,
		})
		return
	}

	splitID := e.splits.nextID()
	count := uint32(len(chunks))
	for i, chunk := range chunks {
		split := &frame.SplitInfo{Count: count, ID: splitID, Index: uint32(i)}
		e.out = append(e.out, outboundFrame{
			frame:    e.buildFrame(chunk, rel, channel, orderingIndex, split),
			priority: priority,
		})
	}
}

func (e *Engine) buildFrame(payload []byte, rel frame.Reliability, channel uint8, orderingIndex wire.Sequence24, split *frame.SplitInfo) *frame.EncapsulatedPacket {
	f := &frame.EncapsulatedPacket{
		Reliability:     rel,
		OrderingChannel: channel,
		OrderingIndex:   orderingIndex,
		Split:           split,
		Payload:         payload,
	}
	if rel.IsReliable() {
		f.ReliableIndex = e.nextReliable
		e.nextReliable = e.nextReliable.Next()
	}
	if rel.IsSequenced() {
		f.SequenceIndex = orderingIndex
	}
	return f
}

// HandleDatagram decodes one inbound UDP payload and returns every
// application/control packet it yields, in arrival-and-reorder order
// (spec.md §4.4.1). A cleared VALID bit results in a nil, nil return (the
// datagram is simply dropped); a datagram that fails to decode returns the
// decode error.
func (e *Engine) HandleDatagram(data []byte, now time.Time) ([]protocol.RaknetPacket, error) {
	r := wire.NewReader(data)
	d, err := frame.DecodeDatagram(r)
	if err != nil {
		return nil, err
	}
	if d.Flags&frame.FlagValid == 0 {
		return nil, nil
	}

	if d.IsAck() {
		e.handleAck(d.Ranges, now)
		return nil, nil
	}
	if d.IsNack() {
		e.handleNack(d.Ranges, now)
		return nil, nil
	}

	e.recordReceived(d.Sequence)

	var out []protocol.RaknetPacket
	for _, f := range d.Frames {
		out = append(out, e.handleFrame(f, now)...)
	}
	return out, nil
}

func (e *Engine) recordReceived(seq wire.Sequence24) {
	e.pendingAck = append(e.pendingAck, frame.SequenceRange{Start: seq, End: seq})

	if !e.haveWatermark {
		e.haveWatermark = true
		e.highWatermark = seq
		return
	}
	if seq.After(e.highWatermark) {
		gapStart := e.highWatermark.Next()
		if gapStart != seq {
			e.pendingNack = append(e.pendingNack, frame.SequenceRange{Start: gapStart, End: seq.Prev()})
		}
		e.highWatermark = seq
	}
}

// sequencedFilter implements latest-wins delivery for UnreliableSequenced
// and ReliableSequenced frames: a frame older than the newest sequence
// index already seen on its channel is dropped rather than buffered
// (spec.md §3 Reliability, contrasted with ReliableOrdered's gap-filled
// queue).
type sequencedFilter struct {
	highest wire.Sequence24
	ready   bool
}

func (s *sequencedFilter) Admit(idx wire.Sequence24) bool {
	if !s.ready {
		s.ready = true
		s.highest = idx
		return true
	}
	if idx.Before(s.highest) || idx == s.highest {
		return false
	}
	s.highest = idx
	return true
}

func (e *Engine) handleFrame(f *frame.EncapsulatedPacket, now time.Time) []protocol.RaknetPacket {
	if f.Split != nil {
		merged, ok := e.reassembler.Add(f, now)
		if !ok {
			return nil
		}
		f = merged
	}

	if f.Reliability.IsReliable() {
		if e.dup.Check(f.ReliableIndex) {
			return nil
		}
	}

	if f.Reliability.IsSequenced() && !f.Reliability.IsOrdered() {
		if !e.sequenced[f.OrderingChannel].Admit(f.SequenceIndex) {
			return nil
		}
	}

	if f.Reliability.IsOrdered() {
		ready := e.reorder[f.OrderingChannel].Push(f)
		var out []protocol.RaknetPacket
		for _, rf := range ready {
			if p, ok := e.decodeFrame(rf); ok {
				out = append(out, p)
			}
		}
		return out
	}

	if p, ok := e.decodeFrame(f); ok {
		return []protocol.RaknetPacket{p}
	}
	return nil
}

func (e *Engine) decodeFrame(f *frame.EncapsulatedPacket) (protocol.RaknetPacket, bool) {
	p, err := protocol.Decode(f.Payload)
	if err != nil {
		e.log.Debug().Err(err).Msg("dropping frame with undecodable payload")
		return nil, false
	}
	return p, true
}

func (e *Engine) handleAck(ranges []frame.SequenceRange, now time.Time) {
	for _, rg := range ranges {
		frame.ForEachSequence(rg, func(seq wire.Sequence24) {
			entry, ok := e.sent[seq.Uint32()]
			if !ok {
				return
			}
			delete(e.sent, seq.Uint32())
			e.cc.OnAck(now, entry.sendTime)
		})
	}
}

func (e *Engine) handleNack(ranges []frame.SequenceRange, now time.Time) {
	for _, rg := range ranges {
		frame.ForEachSequence(rg, func(seq wire.Sequence24) {
			entry, ok := e.sent[seq.Uint32()]
			if !ok {
				return
			}
			entry.nextSend = now
			e.cc.OnNak()
		})
	}
}

// PendingRetransmitCount reports how many unacknowledged reliable
// datagrams are outstanding; the tests use it to check ACK coverage.
func (e *Engine) PendingRetransmitCount() int {
	return len(e.sent)
}

// Flush drains pending ACKs, NACKs, due retransmits and newly queued
// frames into datagrams, handing each encoded datagram to send, in the
// order spec.md §4.4.3's Flush algorithm describes. It never emits more
// than DefaultPacketLimit datagrams in one call, and further limits
// retransmitted and new datagrams (not ACK/NACK) to the congestion window.
// It also evicts stale partial split reassemblies.
func (e *Engine) Flush(now time.Time, send func([]byte) error) error {
	e.reassembler.EvictStale(now)
	e.cc.BeginTick()
	budget := DefaultPacketLimit

	if err := e.flushAcks(&budget, send); err != nil {
		return err
	}
	if err := e.flushNacks(&budget, send); err != nil {
		return err
	}
	if err := e.flushRetransmits(now, &budget, send); err != nil {
		return err
	}
	return e.flushNewFrames(now, &budget, send)
}

func (e *Engine) flushAcks(budget *int, send func([]byte) error) error {
	for len(e.pendingAck) > 0 && *budget > 0 {
		batch := e.pendingAck
		e.pendingAck = nil
		d := frame.NewAckDatagram(batch)
		w := wire.NewWriter()
		d.Encode(w)
		if err := send(w.Bytes()); err != nil {
			return err
		}
		*budget--
	}
	return nil
}

func (e *Engine) flushNacks(budget *int, send func([]byte) error) error {
	for len(e.pendingNack) > 0 && *budget > 0 {
		batch := e.pendingNack
		e.pendingNack = nil
		d := frame.NewNackDatagram(batch)
		w := wire.NewWriter()
		d.Encode(w)
		if err := send(w.Bytes()); err != nil {
			return err
		}
		*budget--
	}
	return nil
}

func (e *Engine) flushRetransmits(now time.Time, budget *int, send func([]byte) error) error {
	due := make([]uint32, 0)
	for seq, entry := range e.sent {
		if !entry.nextSend.After(now) {
			due = append(due, seq)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	for _, seq := range due {
		if *budget <= 0 || !e.cc.TryReserve() {
			break
		}
		entry := e.sent[seq]
		delete(e.sent, seq)

		newSeq := e.sendSeq
		e.sendSeq = e.sendSeq.Next()
		d := frame.NewDataDatagram(newSeq, entry.frames)
		w := wire.NewWriter()
		d.Encode(w)
		if err := send(w.Bytes()); err != nil {
			return err
		}
		e.sent[newSeq.Uint32()] = &sentDatagram{
			frames:   entry.frames,
			sendTime: now,
			nextSend: now.Add(e.cc.RTO()),
		}
		*budget--
	}
	return nil
}

func (e *Engine) flushNewFrames(now time.Time, budget *int, send func([]byte) error) error {
	if len(e.out) == 0 {
		return nil
	}
	sort.SliceStable(e.out, func(i, j int) bool { return e.out[i].priority < e.out[j].priority })

	datagramBudget := int(e.mtu) - UDPHeaderSize
	var batch []*frame.EncapsulatedPacket
	batchReliable := false
	batchSize := DatagramHeaderSize

	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		seq := e.sendSeq
		e.sendSeq = e.sendSeq.Next()
		d := frame.NewDataDatagram(seq, batch)
		w := wire.NewWriter()
		d.Encode(w)
		if err := send(w.Bytes()); err != nil {
			return err
		}
		if batchReliable {
			e.sent[seq.Uint32()] = &sentDatagram{
				frames:   batch,
				sendTime: now,
				nextSend: now.Add(e.cc.RTO()),
			}
		}
		batch = nil
		batchReliable = false
		batchSize = DatagramHeaderSize
		*budget--
		return nil
	}

	i := 0
	for i < len(e.out) {
		if *budget <= 0 {
			break
		}
		f := e.out[i].frame
		fsize := f.HeaderSize() + len(f.Payload)

		if len(batch) > 0 && batchSize+fsize > datagramBudget {
			if !e.cc.TryReserve() {
				break
			}
			if err := flushBatch(); err != nil {
				return err
			}
			continue
		}

		batch = append(batch, f)
		batchSize += fsize
		if f.Reliability.IsReliable() {
			batchReliable = true
		}
		i++
	}
	e.out = e.out[i:]

	if len(batch) > 0 && *budget > 0 && e.cc.TryReserve() {
		if err := flushBatch(); err != nil {
			return err
		}
	} else if len(batch) > 0 {
		// Ran out of budget mid-batch: put the frames back at the front
		// of the queue so the next Flush resumes where this left off.
		requeued := make([]outboundFrame, 0, len(batch))
		for _, f := range batch {
			requeued = append(requeued, outboundFrame{frame: f, priority: PriorityImmediate})
		}
		e.out = append(requeued, e.out...)
	}

	return nil
}
