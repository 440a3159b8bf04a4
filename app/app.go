// Package app boots a kestrel machine and runs one scenario on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"kestrel/devices/timer"
	"kestrel/hal"
	"kestrel/internal/buildinfo"
	"kestrel/internal/klog"
	"kestrel/kernel"
	"kestrel/userprog"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrScenarioFailed  = errors.New("scenario failed")
)

// Config describes one boot.
type Config struct {
	Scenario string

	TimerFreq     int
	TimeSlice     int
	MaxThreads    int
	PriorityReady bool
	Verbose       bool
}

// machine is what a scenario runs against.
type machine struct {
	k     *kernel.Kernel
	timer *timer.Timer
	procs *userprog.Table
	log   *klog.Logger
}

// Run boots a kernel on the calling goroutine, which becomes its main
// thread, and runs cfg.Scenario there. A kernel panic on the main thread is
// returned as a *kernel.PanicInfo.
func Run(ctx context.Context, h hal.HAL, cfg Config) (err error) {
	sc, ok := lookupScenario(cfg.Scenario)
	if !ok {
		return fmt.Errorf("%q: %w", cfg.Scenario, ErrUnknownScenario)
	}

	log := klog.New(h.Logger(), klog.Level(cfg.Verbose)).
		Clone().
		Str("scenario", sc.name).
		Logger()

	policy := kernel.ReadyFIFO
	if cfg.PriorityReady {
		policy = kernel.ReadyPriority
	}
	k := kernel.New(kernel.Config{
		TimeSlice:   cfg.TimeSlice,
		MaxThreads:  cfg.MaxThreads,
		ReadyPolicy: policy,
		Logger:      log,
	})
	installPanicHandler(k, h, log)

	defer func() {
		if r := recover(); r != nil {
			info, ok := r.(*kernel.PanicInfo)
			if !ok {
				panic(r)
			}
			err = info
		}
	}()

	k.Init()
	tmr, err := timer.New(k, timer.Config{Freq: cfg.TimerFreq, Logger: log})
	if err != nil {
		return err
	}
	procs := userprog.Install(k, log)
	if err := tmr.Attach(ctx, h.Time()); err != nil {
		return err
	}
	k.Start()

	log.Info().
		Str("version", buildinfo.Short()).
		Int("hz", tmr.Freq()).
		Log("kestrel booting")

	m := &machine{k: k, timer: tmr, procs: procs, log: log}
	runErr := sc.run(m)

	k.PrintStats()
	tmr.PrintStats()

	if runErr != nil {
		log.Err().Err(runErr).Log("scenario failed")
		return fmt.Errorf("%s: %w", sc.name, runErr)
	}
	log.Info().Log("scenario passed")
	return nil
}
