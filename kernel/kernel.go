// Package kernel is the thread scheduler and synchronization layer of a
// single-CPU teaching kernel.
//
// Every kernel thread is a goroutine, but exactly one of them holds the CPU at
// any instant. The CPU interrupt level is the only exclusion mechanism: kernel
// state is touched by the running thread alone, with interrupts disabled while
// it is inconsistent.
package kernel

import (
	"errors"
	"sort"

	"github.com/joeycumines/logiface"
)

// Thread priorities. Larger numbers run first.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

const (
	defaultTimeSlice  = 4
	defaultMaxThreads = 64
)

// ErrNoMemory is returned by Create when no descriptor storage is left.
var ErrNoMemory = errors.New("out of thread memory")

// ReadyPolicy selects the ordering of the ready queue.
type ReadyPolicy uint8

const (
	// ReadyFIFO runs threads in the order they became ready.
	ReadyFIFO ReadyPolicy = iota
	// ReadyPriority runs the highest effective priority first, FIFO among equals.
	ReadyPriority
)

func (p ReadyPolicy) String() string {
	switch p {
	case ReadyFIFO:
		return "fifo"
	case ReadyPriority:
		return "priority"
	default:
		return "unknown"
	}
}

// Config controls a Kernel. The zero value is usable.
type Config struct {
	// TimeSlice is the number of timer ticks a thread runs before it is
	// preempted. Defaults to 4.
	TimeSlice int

	// MaxThreads bounds the default descriptor pool. Ignored when Allocator
	// is set. Defaults to 64.
	MaxThreads int

	Allocator   Allocator
	ReadyPolicy ReadyPolicy

	// Logger may be nil.
	Logger *logiface.Logger[logiface.Event]
}

// Stats is a snapshot of the tick accounting.
type Stats struct {
	Ticks       int64
	IdleTicks   int64
	KernelTicks int64
	UserTicks   int64

	// DroppedInterrupts counts raised interrupts lost to a full backlog.
	DroppedInterrupts uint64
}

// Kernel owns every piece of scheduler state.
type Kernel struct {
	cfg   Config
	log   *logiface.Logger[logiface.Event]
	alloc Allocator
	cpu   cpu

	ready       threadQueue
	sleepers    threadQueue
	destruction threadQueue

	running *Thread
	initial *Thread
	idle    *Thread
	threads map[TID]*Thread

	tidLock Lock
	nextTID TID

	ticks       int64
	sliceTicks  int
	idleTicks   int64
	kernelTicks int64
	userTicks   int64

	hasAddressSpace func(*Thread) bool
	exitHook        func(*Thread)

	panic panicState
}

// New creates a kernel instance. Call Init from the goroutine that is to
// become the initial thread, then Start.
func New(cfg Config) *Kernel {
	if cfg.TimeSlice <= 0 {
		cfg.TimeSlice = defaultTimeSlice
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = defaultMaxThreads
	}
	k := &Kernel{
		cfg:   cfg,
		log:   cfg.Logger,
		alloc: cfg.Allocator,
	}
	if k.alloc == nil {
		k.alloc = NewPool(cfg.MaxThreads)
	}
	k.cpu.init()
	return k
}

// Init turns the calling goroutine into the running thread "main".
//
// Interrupts must be off, which they are until Start.
func (k *Kernel) Init() {
	if k.cpu.level != IntrOff {
		k.fatal("thread init: interrupts are on")
	}
	if k.initial != nil {
		k.fatal("thread init: already initialized")
	}

	k.ready.init("ready", nil)
	if k.cfg.ReadyPolicy == ReadyPriority {
		k.ready.init("ready", byPriority)
	}
	k.sleepers.init("sleep", byWakeTime)
	k.destruction.init("destruction", nil)
	k.threads = make(map[TID]*Thread)
	k.nextTID = 1

	// The bootstrap descriptor never comes from the allocator and is never
	// reclaimed.
	t := new(Thread)
	k.initThread(t, "main", PriDefault)
	t.status = StatusRunning
	k.initial = t
	k.running = t

	k.tidLock.Init(k)
	t.tid = k.allocateTID()
	k.threads[t.tid] = t
}

// Start creates the idle thread and enables interrupts. It returns once the
// idle thread has run.
func (k *Kernel) Start() {
	var started Semaphore
	started.Init(k, 0)
	if _, err := k.Create("idle", PriMin, k.idleLoop, &started); err != nil {
		k.fatal("thread start: %v", err)
	}

	k.IntrEnable()
	started.Down()

	k.log.Info().
		Str("ready_policy", k.cfg.ReadyPolicy.String()).
		Int("time_slice", k.cfg.TimeSlice).
		Log("scheduler started")
}

// SetAddressSpacePredicate installs the test Tick uses to charge a tick to
// user time instead of kernel time.
func (k *Kernel) SetAddressSpacePredicate(fn func(*Thread) bool) {
	k.hasAddressSpace = fn
}

// SetExitHook installs fn to run on every exiting thread before it dies, with
// interrupts still enabled.
func (k *Kernel) SetExitHook(fn func(*Thread)) {
	k.exitHook = fn
}

// Ticks returns the number of timer ticks since boot.
func (k *Kernel) Ticks() int64 {
	return k.ticks
}

// Stats returns the tick accounting.
func (k *Kernel) Stats() Stats {
	old := k.IntrDisable()
	s := Stats{
		Ticks:             k.ticks,
		IdleTicks:         k.idleTicks,
		KernelTicks:       k.kernelTicks,
		UserTicks:         k.userTicks,
		DroppedInterrupts: k.cpu.dropped.Load(),
	}
	k.IntrSetLevel(old)
	return s
}

// PrintStats logs the tick accounting.
func (k *Kernel) PrintStats() {
	s := k.Stats()
	k.log.Info().
		Int("idle_ticks", int(s.IdleTicks)).
		Int("kernel_ticks", int(s.KernelTicks)).
		Int("user_ticks", int(s.UserTicks)).
		Int("dropped_interrupts", int(s.DroppedInterrupts)).
		Logf("Thread: %d idle ticks, %d kernel ticks, %d user ticks", s.IdleTicks, s.KernelTicks, s.UserTicks)
}

// Lookup returns the live thread with the given id, or nil.
func (k *Kernel) Lookup(tid TID) *Thread {
	old := k.IntrDisable()
	t := k.threads[tid]
	k.IntrSetLevel(old)
	return t
}

// Threads returns a snapshot of every live thread, ordered by id.
func (k *Kernel) Threads() []ThreadInfo {
	old := k.IntrDisable()
	infos := make([]ThreadInfo, 0, len(k.threads))
	for _, t := range k.threads {
		infos = append(infos, t.Info())
	}
	k.IntrSetLevel(old)
	sort.Slice(infos, func(i, j int) bool { return infos[i].TID < infos[j].TID })
	return infos
}

// ForEach calls fn on every live thread in id order. Interrupts are off
// while fn runs, so fn must not block.
func (k *Kernel) ForEach(fn func(*Thread)) {
	old := k.IntrDisable()
	all := make([]*Thread, 0, len(k.threads))
	for _, t := range k.threads {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].tid < all[j].tid })
	for _, t := range all {
		fn(t)
	}
	k.IntrSetLevel(old)
}

// Idle returns the idle thread, or nil before Start.
func (k *Kernel) Idle() *Thread { return k.idle }

// Initial returns the thread created by Init.
func (k *Kernel) Initial() *Thread { return k.initial }

func (k *Kernel) allocateTID() TID {
	k.tidLock.Acquire()
	tid := k.nextTID
	k.nextTID++
	k.tidLock.Release()
	return tid
}

// idleLoop runs when nothing else is ready. It is never on the ready queue:
// nextThreadToRun falls back to it directly.
func (k *Kernel) idleLoop(arg any) {
	started := arg.(*Semaphore)
	k.idle = k.Current()
	started.Up()

	for {
		k.IntrDisable()
		k.Block()
		k.halt()
	}
}
