package kernel

import (
	"sync"
	"sync/atomic"
)

// IntrLevel is the CPU interrupt level.
type IntrLevel uint8

const (
	IntrOff IntrLevel = iota
	IntrOn
)

func (l IntrLevel) String() string {
	if l == IntrOn {
		return "on"
	}
	return "off"
}

// VecTimer is the interrupt vector of the system timer.
const VecTimer uint8 = 0x20

// irqBacklog bounds the number of raised but undelivered interrupts.
const irqBacklog = 64

type interruptHandler struct {
	name string
	fn   func()
}

// cpu is the interrupt controller of the single CPU. level, inExternal and
// yieldOnReturn belong to whichever thread holds the CPU; irqs is the only
// field other goroutines touch.
type cpu struct {
	level         IntrLevel
	inExternal    bool
	yieldOnReturn bool
	handlers      [256]interruptHandler

	irqs    chan uint8
	sources atomic.Int32
	dropped atomic.Uint64
}

func (c *cpu) init() {
	c.level = IntrOff
	c.irqs = make(chan uint8, irqBacklog)
}

// IntrGetLevel returns the current interrupt level.
func (k *Kernel) IntrGetLevel() IntrLevel {
	return k.cpu.level
}

// IntrSetLevel sets the interrupt level and returns the previous one.
func (k *Kernel) IntrSetLevel(level IntrLevel) IntrLevel {
	if level == IntrOn {
		return k.IntrEnable()
	}
	return k.IntrDisable()
}

// IntrDisable disables interrupts and returns the previous level.
func (k *Kernel) IntrDisable() IntrLevel {
	old := k.cpu.level
	k.cpu.level = IntrOff
	return old
}

// IntrEnable enables interrupts and returns the previous level. Interrupts
// raised while they were off are delivered before it returns.
func (k *Kernel) IntrEnable() IntrLevel {
	if k.cpu.inExternal {
		k.fatal("intr enable: called from interrupt context")
	}
	old := k.cpu.level
	k.cpu.level = IntrOn
	if old == IntrOff {
		k.deliverPending()
	}
	return old
}

// IntrContext reports whether an interrupt handler is running.
func (k *Kernel) IntrContext() bool {
	return k.cpu.inExternal
}

// YieldOnReturn asks for the interrupted thread to yield once the running
// handler returns. Interrupt context only.
func (k *Kernel) YieldOnReturn() {
	if !k.cpu.inExternal {
		k.fatal("intr yield on return: not in interrupt context")
	}
	k.cpu.yieldOnReturn = true
}

// RegisterInterrupt installs fn as the handler for vec. Handlers run with
// interrupts off and must not sleep.
func (k *Kernel) RegisterInterrupt(vec uint8, name string, fn func()) {
	if fn == nil {
		k.fatal("intr register %#02x: nil handler", vec)
	}
	if k.cpu.handlers[vec].fn != nil {
		k.fatal("intr register %#02x: already handled by %q", vec, k.cpu.handlers[vec].name)
	}
	k.cpu.handlers[vec] = interruptHandler{name: name, fn: fn}
}

// Raise signals vec from any goroutine. The interrupt is taken by the
// running thread at its next safe point. Raise never blocks; an interrupt
// raised into a full backlog is dropped and counted.
func (k *Kernel) Raise(vec uint8) {
	select {
	case k.cpu.irqs <- vec:
	default:
		k.cpu.dropped.Add(1)
	}
}

// AttachSource declares a goroutine that will Raise interrupts. While no
// source is attached, an idle CPU with every thread blocked is a deadlock.
// The returned func detaches the source; it is safe to call more than once.
func (k *Kernel) AttachSource() (detach func()) {
	k.cpu.sources.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { k.cpu.sources.Add(-1) })
	}
}

// Interrupt runs the handler for vec on the running thread as a software
// interrupt, regardless of the interrupt level, and restores the level
// afterwards.
func (k *Kernel) Interrupt(vec uint8) {
	if k.cpu.inExternal {
		k.fatal("intr %#02x: nested interrupt", vec)
	}
	old := k.cpu.level
	k.dispatchInterrupt(vec)
	k.IntrSetLevel(old)
}

// Checkpoint is a safe point: with interrupts on, pending interrupts are
// taken here.
func (k *Kernel) Checkpoint() {
	if k.cpu.level == IntrOn && !k.cpu.inExternal {
		k.deliverPending()
	}
}

func (k *Kernel) deliverPending() int {
	n := 0
	for {
		select {
		case vec := <-k.cpu.irqs:
			k.dispatchInterrupt(vec)
			k.cpu.level = IntrOn
			n++
		default:
			return n
		}
	}
}

func (k *Kernel) dispatchInterrupt(vec uint8) {
	h := k.cpu.handlers[vec]

	k.cpu.level = IntrOff
	k.cpu.inExternal = true
	k.cpu.yieldOnReturn = false

	if h.fn != nil {
		h.fn()
	} else {
		k.log.Warning().Int("vec", int(vec)).Log("unexpected interrupt")
	}

	k.cpu.inExternal = false
	if k.cpu.yieldOnReturn {
		k.cpu.yieldOnReturn = false
		k.Yield()
	}
}

// halt is the idle thread's sti; hlt. It enables interrupts and returns
// once at least one has been handled.
func (k *Kernel) halt() {
	k.cpu.level = IntrOn
	if k.deliverPending() > 0 {
		return
	}
	if k.cpu.sources.Load() == 0 {
		k.fatal("idle: every thread is blocked and no interrupt source is attached")
	}
	vec := <-k.cpu.irqs
	k.dispatchInterrupt(vec)
	k.cpu.level = IntrOn
	k.deliverPending()
}
