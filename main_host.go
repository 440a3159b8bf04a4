//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"kestrel/app"
	"kestrel/hal"
	"kestrel/internal/buildinfo"

	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		cfg      app.Config
		headless hal.HeadlessConfig
		run      string
		parallel int
	)
	flag.IntVar(&cfg.TimerFreq, "hz", 100, "Timer interrupts per second (19..1000).")
	flag.Uint64Var(&headless.Ticks, "ticks", 0, "Stop each machine after N ticks (0 = no limit).")
	flag.IntVar(&cfg.TimeSlice, "slice", 4, "Ticks per time slice.")
	flag.IntVar(&cfg.MaxThreads, "threads", 64, "Thread descriptors per machine.")
	flag.BoolVar(&cfg.PriorityReady, "priority-ready", false, "Order the ready queue by priority.")
	flag.StringVar(&run, "run", "all", "Comma-separated scenarios to boot, or \"all\": "+strings.Join(app.Scenarios(), ", ")+".")
	flag.IntVar(&parallel, "parallel", 1, "Machines to run at once.")
	flag.BoolVar(&cfg.Verbose, "v", false, "Log scheduler events.")
	flag.Parse()

	names := app.Scenarios()
	if run != "all" {
		names = strings.Split(run, ",")
	}
	headless.Host.Hz = cfg.TimerFreq

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintln(os.Stderr, buildinfo.Banner())

	// Each scenario boots its own machine.
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, name := range names {
		mc := cfg
		mc.Scenario = strings.TrimSpace(name)
		g.Go(func() error {
			return hal.RunHeadless(ctx, func(ctx context.Context, h hal.HAL) error {
				return app.Run(ctx, h, mc)
			}, headless)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
