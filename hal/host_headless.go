//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTickLimit is returned by RunHeadless when the machine is still running
// after HeadlessConfig.Ticks ticks.
var ErrTickLimit = errors.New("tick limit reached")

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Host HostConfig

	// Ticks stops the machine after this many ticks. Zero means no limit.
	Ticks uint64
}

// RunHeadless boots a host machine: boot runs on its own goroutine while the
// caller drives the machine's clock. It returns boot's result, ctx's error,
// or ErrTickLimit, whichever comes first. A boot that never returns is left
// running.
func RunHeadless(ctx context.Context, boot func(context.Context, HAL) error, cfg HeadlessConfig) error {
	if cfg.Host.Hz <= 0 {
		cfg.Host.Hz = 100
	}
	d := time.Second / time.Duration(cfg.Host.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Host.Hz)
	}

	h := NewHost(cfg.Host).(*hostHAL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- boot(ctx, h) }()

	t := time.NewTicker(d)
	defer t.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case <-t.C:
			before := h.t.seq
			h.t.step(1)
			tick += h.t.seq - before
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return fmt.Errorf("after %d ticks: %w", tick, ErrTickLimit)
			}
		}
	}
}
