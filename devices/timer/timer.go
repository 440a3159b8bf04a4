// Package timer is the system timer device. Each interrupt advances the
// kernel's tick count, charges the tick to the running thread and wakes
// sleepers that are due.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kestrel/hal"
	"kestrel/kernel"

	"github.com/joeycumines/logiface"
)

// Frequency bounds in timer interrupts per second.
const (
	MinFreq     = 19
	MaxFreq     = 1000
	DefaultFreq = 100
)

var ErrBadFrequency = errors.New("timer frequency out of range")

// Config controls the timer. The zero value selects DefaultFreq.
type Config struct {
	Freq int

	// Logger may be nil.
	Logger *logiface.Logger[logiface.Event]
}

// Timer drives kernel time from a tick source.
type Timer struct {
	k    *kernel.Kernel
	freq int
	log  *logiface.Logger[logiface.Event]
}

// New registers the timer's interrupt handler with k.
func New(k *kernel.Kernel, cfg Config) (*Timer, error) {
	if cfg.Freq == 0 {
		cfg.Freq = DefaultFreq
	}
	if cfg.Freq < MinFreq || cfg.Freq > MaxFreq {
		return nil, fmt.Errorf("timer: %d Hz not in [%d, %d]: %w", cfg.Freq, MinFreq, MaxFreq, ErrBadFrequency)
	}
	t := &Timer{k: k, freq: cfg.Freq, log: cfg.Logger}
	k.RegisterInterrupt(kernel.VecTimer, "8254 Timer", t.interrupt)
	return t, nil
}

func (t *Timer) interrupt() {
	t.k.Tick()
	t.k.WakeSleepers(t.k.Ticks())
}

// Freq returns the interrupt frequency in Hz.
func (t *Timer) Freq() int { return t.freq }

// Ticks returns the number of timer ticks since boot.
func (t *Timer) Ticks() int64 {
	old := t.k.IntrDisable()
	n := t.k.Ticks()
	t.k.IntrSetLevel(old)
	return n
}

// Elapsed returns the number of ticks since then, a value returned by Ticks.
func (t *Timer) Elapsed(then int64) int64 {
	return t.Ticks() - then
}

// Sleep suspends the running thread for about n ticks. Interrupts must be on.
func (t *Timer) Sleep(n int64) {
	start := t.Ticks()
	if t.k.IntrGetLevel() != kernel.IntrOn {
		t.k.Panicf("timer sleep: interrupts are off")
	}
	if t.Elapsed(start) < n {
		t.k.SleepUntil(start + n)
	}
}

// SleepUntil suspends the running thread until the tick count reaches
// deadline. Interrupts must be on.
func (t *Timer) SleepUntil(deadline int64) {
	if t.k.IntrGetLevel() != kernel.IntrOn {
		t.k.Panicf("timer sleep: interrupts are off")
	}
	old := t.k.IntrDisable()
	if t.k.Ticks() < deadline {
		t.k.SleepUntil(deadline)
	}
	t.k.IntrSetLevel(old)
}

// MSleep suspends the running thread for about ms milliseconds.
func (t *Timer) MSleep(ms int64) { t.realTimeSleep(ms, 1000) }

// USleep suspends the running thread for about us microseconds.
func (t *Timer) USleep(us int64) { t.realTimeSleep(us, 1000*1000) }

// NSleep suspends the running thread for about ns nanoseconds.
func (t *Timer) NSleep(ns int64) { t.realTimeSleep(ns, 1000*1000*1000) }

// realTimeSleep sleeps for num/denom seconds, rounding down to whole ticks.
// Less than one tick is spent busy, without giving up the CPU.
func (t *Timer) realTimeSleep(num, denom int64) {
	ticks := num * int64(t.freq) / denom
	if t.k.IntrGetLevel() != kernel.IntrOn {
		t.k.Panicf("timer sleep: interrupts are off")
	}
	if ticks > 0 {
		t.Sleep(ticks)
		return
	}
	if num <= 0 {
		return
	}
	// The thread keeps the CPU while its goroutine sleeps, which is what a
	// busy-wait amounts to on a single CPU.
	time.Sleep(time.Duration(num) * time.Second / time.Duration(denom))
	t.k.Checkpoint()
}

// Fire delivers one timer interrupt synchronously on the running thread.
func (t *Timer) Fire() {
	t.k.Interrupt(kernel.VecTimer)
}

// Attach raises a timer interrupt for every tick of src until ctx is done or
// the stream closes.
func (t *Timer) Attach(ctx context.Context, src hal.Time) error {
	if src == nil {
		return fmt.Errorf("timer attach: %w", hal.ErrNotImplemented)
	}
	ticks := src.Ticks()
	if ticks == nil {
		return fmt.Errorf("timer attach: %w", hal.ErrNotImplemented)
	}

	detach := t.k.AttachSource()
	go func() {
		defer detach()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				t.k.Raise(kernel.VecTimer)
			}
		}
	}()

	t.log.Info().Int("hz", t.freq).Log("timer attached")
	return nil
}

// PrintStats logs the tick count.
func (t *Timer) PrintStats() {
	n := t.Ticks()
	t.log.Info().Int("ticks", int(n)).Logf("Timer: %d ticks", n)
}
