package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kestrel/devices/timer"
	"kestrel/hal"
	"kestrel/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingHAL is a host machine whose clock is driven by a test ticker.
type tickingHAL struct {
	hal.HAL
	ticks chan uint64
}

func (h *tickingHAL) Time() hal.Time { return h }

func (h *tickingHAL) Ticks() <-chan uint64 { return h.ticks }

func newTickingHAL(t *testing.T, out *bytes.Buffer) *tickingHAL {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &tickingHAL{
		HAL:   hal.NewHost(hal.HostConfig{Output: out, Width: 160, Height: 120}),
		ticks: make(chan uint64),
	}
	go func() {
		tk := time.NewTicker(2 * time.Millisecond)
		defer tk.Stop()
		for seq := uint64(1); ; seq++ {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
			}
			select {
			case h.ticks <- seq:
			case <-ctx.Done():
				return
			}
		}
	}()
	return h
}

func TestScenariosPass(t *testing.T) {
	for _, name := range Scenarios() {
		for _, priority := range []bool{false, true} {
			name, priority := name, priority
			policy := "fifo"
			if priority {
				policy = "priority"
			}
			t.Run(name+"/"+policy, func(t *testing.T) {
				var out bytes.Buffer
				h := newTickingHAL(t, &out)
				err := Run(context.Background(), h, Config{Scenario: name, PriorityReady: priority})
				require.NoError(t, err, out.String())
				assert.Contains(t, out.String(), "scenario passed")
				assert.Contains(t, out.String(), "idle ticks")
			})
		}
	}
}

func TestScenariosSorted(t *testing.T) {
	names := Scenarios()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
}

func TestRunUnknownScenario(t *testing.T) {
	err := Run(context.Background(), hal.NewHost(hal.HostConfig{Output: &bytes.Buffer{}}), Config{Scenario: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownScenario))
}

func TestRunBadTimerFrequency(t *testing.T) {
	err := Run(context.Background(), hal.NewHost(hal.HostConfig{Output: &bytes.Buffer{}}), Config{
		Scenario:  "sema-selftest",
		TimerFreq: 5000,
	})
	assert.True(t, errors.Is(err, timer.ErrBadFrequency))
}

func TestRunReturnsKernelPanic(t *testing.T) {
	saved := scenarios
	t.Cleanup(func() { scenarios = saved })
	scenarios = append(append([]scenario(nil), saved...), scenario{
		name: "double-unblock",
		run: func(m *machine) error {
			m.k.Unblock(m.k.Current())
			return nil
		},
	})

	var out bytes.Buffer
	h := hal.NewHost(hal.HostConfig{Output: &out, Width: 160, Height: 120})
	err := Run(context.Background(), h, Config{Scenario: "double-unblock"})

	var info *kernel.PanicInfo
	require.True(t, errors.As(err, &info), "err = %v", err)
	assert.Equal(t, "main", info.Thread)
	assert.Contains(t, out.String(), "Kestrel Panic:")
	assert.Contains(t, out.String(), "kernel panic")

	assert.True(t, hasInk(h.Display().Framebuffer()), "panic text drawn")
}

func hasInk(fb hal.Framebuffer) bool {
	for y := 0; y < fb.Height(); y++ {
		for x := 0; x < fb.Width(); x++ {
			if p, _ := hal.PixelRGB565(fb, x, y); p == 0 {
				return true
			}
		}
	}
	return false
}

func TestPanicReport(t *testing.T) {
	lines := panicReport(kernel.PanicInfo{
		TID:     3,
		Thread:  "worker",
		Message: "lock release: worker(3) does not hold the lock",
		Dump:    "(kernel.ThreadInfo) {\n  Name: (string) \"worker\"\n}\n",
	})
	assert.Equal(t, "Kestrel Panic:", lines[0])
	assert.Equal(t, "thread: worker (3)", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "panic: lock release"))
	assert.Contains(t, lines, "descriptor:")
	assert.Equal(t, "stack: unavailable", lines[len(lines)-1])
}

func TestTakeRunes(t *testing.T) {
	prefix, rest := takeRunes("héllo", 2)
	assert.Equal(t, "hé", prefix)
	assert.Equal(t, "llo", rest)

	prefix, rest = takeRunes("ab", 5)
	assert.Equal(t, "ab", prefix)
	assert.Equal(t, "", rest)
}
