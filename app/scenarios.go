package app

import (
	"fmt"
	"sort"

	"kestrel/kernel"
	"kestrel/userprog"
)

type scenario struct {
	name string
	run  func(m *machine) error
}

var scenarios = []scenario{
	{"alarm-multiple", alarmMultiple},
	{"cond-buffer", condBuffer},
	{"preempt", preempt},
	{"priority-donate", priorityDonate},
	{"process-wait", processWait},
	{"sema-selftest", semaSelfTest},
}

// Scenarios returns the names of the built-in scenarios in sorted order.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		names = append(names, sc.name)
	}
	sort.Strings(names)
	return names
}

func lookupScenario(name string) (scenario, bool) {
	for _, sc := range scenarios {
		if sc.name == name {
			return sc, true
		}
	}
	return scenario{}, false
}

func failf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrScenarioFailed}, args...)...)
}

func semaSelfTest(m *machine) error {
	return kernel.SemaSelfTest(m.k)
}

// alarmMultiple has five threads sleep seven times each, thread i for i+1
// ticks per round, and checks that the wakeups come in deadline order.
func alarmMultiple(m *machine) error {
	const threads, iterations = 5, 7

	lock := kernel.NewLock(m.k)
	done := kernel.NewSemaphore(m.k, 0)
	var products []int64

	start := m.timer.Ticks() + 10
	for i := 0; i < threads; i++ {
		duration := int64(i + 1)
		_, err := m.k.Create(fmt.Sprintf("alarm %d", i), kernel.PriDefault, func(any) {
			for iter := int64(1); iter <= iterations; iter++ {
				m.timer.SleepUntil(start + iter*duration)
				lock.Acquire()
				products = append(products, iter*duration)
				lock.Release()
			}
			done.Up()
		}, nil)
		if err != nil {
			return err
		}
	}
	for i := 0; i < threads; i++ {
		done.Down()
	}

	if len(products) != threads*iterations {
		return failf("%d wakeups, want %d", len(products), threads*iterations)
	}
	for i := 1; i < len(products); i++ {
		if products[i] < products[i-1] {
			return failf("wakeup %d at product %d after %d", i, products[i], products[i-1])
		}
	}
	m.log.Info().Int("wakeups", len(products)).Log("alarm: wakeups in order")
	return nil
}

// condBuffer passes items through a bounded buffer guarded by a lock and two
// condition variables.
func condBuffer(m *machine) error {
	const items, capacity = 32, 4

	var (
		lock     = kernel.NewLock(m.k)
		notFull  = kernel.NewCond()
		notEmpty = kernel.NewCond()
		done     = kernel.NewSemaphore(m.k, 0)
		buf      []int
		got      []int
	)

	_, err := m.k.Create("producer", kernel.PriDefault, func(any) {
		for i := 0; i < items; i++ {
			lock.Acquire()
			for len(buf) == capacity {
				notFull.Wait(lock)
			}
			buf = append(buf, i)
			notEmpty.Signal(lock)
			lock.Release()
		}
		done.Up()
	}, nil)
	if err != nil {
		return err
	}
	_, err = m.k.Create("consumer", kernel.PriDefault, func(any) {
		for i := 0; i < items; i++ {
			lock.Acquire()
			for len(buf) == 0 {
				notEmpty.Wait(lock)
			}
			got = append(got, buf[0])
			buf = buf[1:]
			notFull.Signal(lock)
			lock.Release()
		}
		done.Up()
	}, nil)
	if err != nil {
		return err
	}
	done.Down()
	done.Down()

	if len(got) != items {
		return failf("consumed %d items, want %d", len(got), items)
	}
	for i, v := range got {
		if v != i {
			return failf("item %d is %d", i, v)
		}
	}
	m.log.Info().Int("items", items).Log("cond: buffer drained in order")
	return nil
}

// preempt runs two threads that never block and checks that the timer
// switched between them.
func preempt(m *machine) error {
	const spinTicks = 12

	done := kernel.NewSemaphore(m.k, 0)
	var last string
	switches := 0

	start := m.timer.Ticks()
	for _, name := range []string{"spin a", "spin b"} {
		_, err := m.k.Create(name, kernel.PriDefault, func(arg any) {
			me := arg.(string)
			for m.timer.Elapsed(start) < spinTicks {
				if last != me {
					if last != "" {
						switches++
					}
					last = me
				}
				m.k.Checkpoint()
			}
			done.Up()
		}, name)
		if err != nil {
			return err
		}
	}
	done.Down()
	done.Down()

	if switches < 2 {
		return failf("%d switches between spinning threads", switches)
	}
	m.log.Info().Int("switches", switches).Log("preempt: time slices expired")
	return nil
}

// priorityDonate has a high-priority thread block on a lock held by a
// low-priority one and checks the holder's priority along the way.
func priorityDonate(m *machine) error {
	k := m.k
	lock := kernel.NewLock(k)
	holding := kernel.NewSemaphore(k, 0)
	gate := kernel.NewSemaphore(k, 0)
	trying := kernel.NewSemaphore(k, 0)
	done := kernel.NewSemaphore(k, 0)

	var lowBefore, lowAfter int
	var highGotLock bool

	lowTID, err := k.Create("low", 5, func(any) {
		lock.Acquire()
		holding.Up()
		gate.Down()
		lowBefore = k.GetPriority()
		lock.Release()
		lowAfter = k.GetPriority()
		done.Up()
	}, nil)
	if err != nil {
		return err
	}
	holding.Down()
	low := k.Lookup(lowTID)

	_, err = k.Create("high", 10, func(any) {
		trying.Up()
		lock.Acquire()
		highGotLock = lock.HeldByCurrent()
		lock.Release()
		done.Up()
	}, nil)
	if err != nil {
		return err
	}
	// high donates and yields back to us before it blocks on the lock.
	trying.Down()

	if p := low.Priority(); p != 10 {
		return failf("holder priority %d after donation, want 10", p)
	}
	gate.Up()
	done.Down()
	done.Down()

	switch {
	case lowBefore != 10:
		return failf("holder ran at %d before release, want 10", lowBefore)
	case lowAfter != 5:
		return failf("holder ran at %d after release, want 5", lowAfter)
	case !highGotLock:
		return failf("donor never held the lock")
	}
	m.log.Info().Log("priority: donation granted and returned")
	return nil
}

// processWait spawns children that sleep for different times and exit with
// distinct statuses, then reaps them in spawn order.
func processWait(m *machine) error {
	const children = 3

	tids := make([]kernel.TID, 0, children)
	for i := 0; i < children; i++ {
		status := 10 * (i + 1)
		ms := int64(20 * (children - i))
		tid, err := m.procs.Spawn(fmt.Sprintf("child-%d", i), kernel.PriDefault, func(*userprog.Process) int {
			m.timer.MSleep(ms)
			return status
		})
		if err != nil {
			return err
		}
		tids = append(tids, tid)
	}

	for i, tid := range tids {
		status, err := m.procs.Wait(tid)
		if err != nil {
			return err
		}
		if want := 10 * (i + 1); status != want {
			return failf("child %d exited %d, want %d", tid, status, want)
		}
	}
	m.log.Info().Int("children", children).Log("process: all children reaped")
	return nil
}
