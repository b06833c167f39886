package reliability

import "time"

// Congestion control constants carried over from vanilla RakNet
// (spec.md §3 SlidingWindow, §4.4.5).
const (
	ccMaximumThreshold  = 2000
	ccAdditionalVariance = 30 * time.Millisecond
	ccSyn               = 10 * time.Millisecond
	initialRTO          = 1000 * time.Millisecond
)

// slidingWindow estimates RTT and paces outgoing datagrams with a
// TCP-NewReno-flavored AIMD window (spec.md §4.4.5).
type slidingWindow struct {
	srtt    time.Duration
	rttvar  time.Duration
	rto     time.Duration
	hasRTT  bool

	cwnd        float64 // congestion window, in datagrams
	ssthresh    float64
	sentThisTick int
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{
		rto:      initialRTO,
		cwnd:     4,
		ssthresh: ccMaximumThreshold,
	}
}

// OnAck folds one RTT sample (now - sendTime) into the estimator and
// expands the window: slow-start doubling below ssthresh, additive
// increase above it.
func (w *slidingWindow) OnAck(now, sendTime time.Time) {
	sample := now.Sub(sendTime)
	if sample < 0 {
		sample = 0
	}
	w.updateRTO(sample)

	if w.cwnd < w.ssthresh {
		w.cwnd += 1
	} else {
		w.cwnd += 1 / w.cwnd
	}
	if w.cwnd > ccMaximumThreshold {
		w.cwnd = ccMaximumThreshold
	}
}

// OnNak halves the window (classic multiplicative decrease), sets the
// slow-start threshold to the reduced window, and applies a floor so the
// session always has room to retransmit at least one datagram.
func (w *slidingWindow) OnNak() {
	w.cwnd /= 2
	if w.cwnd < 1 {
		w.cwnd = 1
	}
	w.ssthresh = w.cwnd
}

func (w *slidingWindow) updateRTO(sample time.Duration) {
	if !w.hasRTT {
		w.srtt = sample
		w.rttvar = sample / 2
		w.hasRTT = true
	} else {
		delta := w.srtt - sample
		if delta < 0 {
			delta = -delta
		}
		w.rttvar = (3*w.rttvar + delta) / 4
		w.srtt = (7*w.srtt + sample) / 8
	}
	w.rto = w.srtt + 4*w.rttvar + ccAdditionalVariance
	if w.rto < ccSyn {
		w.rto = ccSyn
	}
}

// RTO returns the current retransmit timeout.
func (w *slidingWindow) RTO() time.Duration {
	return w.rto
}

// Window returns the current congestion window, in whole datagrams.
func (w *slidingWindow) Window() int {
	if w.cwnd < 1 {
		return 1
	}
	return int(w.cwnd)
}

// BeginTick resets the per-tick send counter; call once per Flush.
func (w *slidingWindow) BeginTick() {
	w.sentThisTick = 0
}

// TryReserve reports whether another datagram fits in this tick's budget,
// consuming one slot from the window if so.
func (w *slidingWindow) TryReserve() bool {
	if w.sentThisTick >= w.Window() {
		return false
	}
	w.sentThisTick++
	return true
}
