package kernel

import (
	"fmt"
	"runtime"
)

// TID identifies a thread. Ids are positive and never reused.
type TID int

// TIDError is returned alongside an error by Create.
const TIDError TID = -1

// Status is the lifecycle state of a thread.
type Status uint8

const (
	StatusRunning Status = iota
	StatusReady
	StatusBlocked
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// threadMagic guards descriptors against corruption and use after reclaim.
const threadMagic uint32 = 0xcd6abf4b

// Thread is a kernel thread descriptor.
//
// Fields are only read or written by the thread holding the CPU.
type Thread struct {
	tid          TID
	name         string
	status       Status
	basePriority int
	priority     int
	donated      bool
	donation     int
	wakeTime     int64
	queuedIn     *threadQueue

	ctx   context
	entry func(arg any)
	arg   any
	slot  int

	magic uint32

	// Aux belongs to subsystems layered on the scheduler, such as the
	// process table. The kernel clears it at creation and never reads it.
	Aux any
}

func (t *Thread) TID() TID { return t.tid }
func (t *Thread) Name() string { return t.name }
func (t *Thread) Status() Status { return t.status }
func (t *Thread) Priority() int { return t.priority }
func (t *Thread) BasePriority() int { return t.basePriority }
func (t *Thread) Donated() bool { return t.donated }
func (t *Thread) WakeTime() int64 { return t.wakeTime }
func (t *Thread) String() string { return fmt.Sprintf("%s(%d)", t.name, t.tid) }
func (t *Thread) valid() bool { return t != nil && t.magic == threadMagic }
func (t *Thread) queueName() string { return t.queuedIn.label() }

// ThreadInfo is a copy of a descriptor's scheduling state.
type ThreadInfo struct {
	TID          TID
	Name         string
	Status       Status
	Priority     int
	BasePriority int
	Donated      bool
	WakeTime     int64
	Queue        string
	Magic        uint32
}

// Info snapshots t.
func (t *Thread) Info() ThreadInfo {
	return ThreadInfo{
		TID:          t.tid,
		Name:         t.name,
		Status:       t.status,
		Priority:     t.priority,
		BasePriority: t.basePriority,
		Donated:      t.donated,
		WakeTime:     t.wakeTime,
		Queue:        t.queueName(),
		Magic:        t.magic,
	}
}

// Allocator hands out zeroed descriptor storage of bounded size.
type Allocator interface {
	// Alloc returns nil when no storage is left.
	Alloc() *Thread
	Free(t *Thread)
}

// Pool is a fixed-capacity Allocator.
type Pool struct {
	slots []Thread
	free  []int
}

// NewPool returns a pool of n descriptors.
func NewPool(n int) *Pool {
	p := &Pool{
		slots: make([]Thread, n),
		free:  make([]int, n),
	}
	for i := range p.free {
		p.free[i] = n - 1 - i
	}
	return p
}

func (p *Pool) Alloc() *Thread {
	if len(p.free) == 0 {
		return nil
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	t := &p.slots[i]
	*t = Thread{slot: i}
	return t
}

func (p *Pool) Free(t *Thread) {
	i := t.slot
	*t = Thread{slot: i}
	p.free = append(p.free, i)
}

// Available reports the number of free descriptors.
func (p *Pool) Available() int { return len(p.free) }

// Create starts a new thread running entry(arg) and places it on the ready
// queue. Create does not yield itself, but each time it restores the
// interrupt level pending interrupts are taken, and a tick that ends the time
// slice dispatches. A caller that must touch the new thread before it runs
// calls Create with interrupts off and restores them afterwards.
func (k *Kernel) Create(name string, priority int, entry func(arg any), arg any) (TID, error) {
	if entry == nil {
		k.fatal("thread create %q: nil entry", name)
	}
	if priority < PriMin || priority > PriMax {
		k.fatal("thread create %q: priority %d out of range [%d, %d]", name, priority, PriMin, PriMax)
	}
	old := k.IntrDisable()
	t := k.alloc.Alloc()
	k.IntrSetLevel(old)
	if t == nil {
		return TIDError, fmt.Errorf("thread create %q: %w", name, ErrNoMemory)
	}
	k.initThread(t, name, priority)
	t.entry = entry
	t.arg = arg
	t.tid = k.allocateTID()

	old = k.IntrDisable()
	k.threads[t.tid] = t
	k.IntrSetLevel(old)

	go k.kernelThread(t)

	k.log.Debug().
		Int("tid", int(t.tid)).
		Str("name", name).
		Int("priority", priority).
		Log("thread created")

	k.Unblock(t)
	return t.tid, nil
}

// Current returns the running thread.
func (k *Kernel) Current() *Thread {
	t := k.running
	if t == nil {
		k.fatal("thread current: threading is not initialized")
	}
	if t.magic != threadMagic {
		k.fatal("thread current: descriptor %q failed its magic check", t.name)
	}
	if t.status != StatusRunning {
		k.fatal("thread current: %s is %s", t, t.status)
	}
	return t
}

// CurrentTID returns the id of the running thread.
func (k *Kernel) CurrentTID() TID { return k.Current().tid }

// CurrentName returns the name of the running thread.
func (k *Kernel) CurrentName() string { return k.Current().name }

// Exit terminates the running thread. It never returns.
//
// The thread's deferred calls run before it gives up the CPU.
func (k *Kernel) Exit() {
	if k.Current() == k.initial {
		k.exitCurrent()
		select {}
	}
	runtime.Goexit()
}

func (k *Kernel) initThread(t *Thread, name string, priority int) {
	if priority < PriMin || priority > PriMax {
		k.fatal("thread %q: priority %d out of range [%d, %d]", name, priority, PriMin, PriMax)
	}
	t.tid = 0
	t.name = name
	t.status = StatusBlocked
	t.basePriority = priority
	t.priority = priority
	t.donated = false
	t.donation = 0
	t.wakeTime = 0
	t.queuedIn = nil
	t.ctx = newContext()
	t.entry = nil
	t.arg = nil
	t.Aux = nil
	t.magic = threadMagic
}

// kernelThread is the goroutine body of every created thread.
func (k *Kernel) kernelThread(t *Thread) {
	t.ctx.park()

	defer func() {
		if r := recover(); r != nil {
			k.threadPanicked(t, r)
		}
		// Reached on return from entry and on runtime.Goexit from Exit.
		k.exitCurrent()
	}()

	// The scheduler hands over the CPU with interrupts off.
	k.IntrEnable()
	t.entry(t.arg)
}

func (k *Kernel) exitCurrent() {
	if k.IntrContext() {
		k.fatal("thread exit: called from interrupt context")
	}
	t := k.Current()
	if k.exitHook != nil {
		k.exitHook(t)
	}
	k.log.Debug().
		Int("tid", int(t.tid)).
		Str("name", t.name).
		Log("thread exiting")

	k.IntrDisable()
	k.doSchedule(StatusDying)
	// A dying goroutine must not touch kernel state past this point.
}

// reclaim releases a dead thread's descriptor. The initial thread never
// gets here.
func (k *Kernel) reclaim(t *Thread) {
	delete(k.threads, t.tid)
	t.magic = 0
	k.alloc.Free(t)
}
