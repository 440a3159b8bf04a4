//go:build !tinygo

package hal

import "time"

type hostTime struct {
	ch      chan uint64
	seq     uint64
	tickDur time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(tickDur time.Duration) *hostTime {
	if tickDur <= 0 {
		tickDur = time.Millisecond
	}
	return &hostTime{
		ch:      make(chan uint64, 1024),
		tickDur: tickDur,
	}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// step converts the wall time elapsed since the previous step into ticks, so
// a late ticker does not slow the machine's clock. The first step emits n.
func (t *hostTime) step(n uint64) {
	t.stepAt(time.Now(), n)
}

func (t *hostTime) stepAt(now time.Time, n uint64) {
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(n)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.tickDur)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.tickDur
	t.stepN(ticks)
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
