package kernel

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
)

// PanicInfo describes a kernel panic. Kernel panics are raised with a
// *PanicInfo value.
type PanicInfo struct {
	TID     TID
	Thread  string
	Message string

	// Value is the recovered value when a thread's entry function panicked.
	Value any

	Stack []byte

	// Dump is the running thread's descriptor at the time of the panic.
	Dump string
}

func (p *PanicInfo) Error() string {
	return "kernel panic: " + p.Message
}

type panicState struct {
	active  atomic.Bool
	once    sync.Once
	handler func(PanicInfo)
}

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// InPanicMode reports whether the kernel has panicked.
func (k *Kernel) InPanicMode() bool {
	return k.panic.active.Load()
}

// SetPanicHandler installs fn to run on the first kernel panic. It must not
// panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panic.handler = fn
}

// Panicf stops the kernel with a formatted message. It never returns.
func (k *Kernel) Panicf(format string, args ...any) {
	k.fatal(format, args...)
}

// fatal reports a broken kernel invariant.
func (k *Kernel) fatal(format string, args ...any) {
	info := k.newPanicInfo(fmt.Sprintf(format, args...))
	k.triggerPanic(info)
	panic(info)
}

func (k *Kernel) threadPanicked(t *Thread, r any) {
	if info, ok := r.(*PanicInfo); ok {
		panic(info)
	}
	info := k.newPanicInfo(fmt.Sprintf("thread %q panicked: %v", t.name, r))
	info.Value = r
	k.triggerPanic(info)
	panic(info)
}

func (k *Kernel) newPanicInfo(msg string) *PanicInfo {
	info := &PanicInfo{
		TID:     TIDError,
		Message: msg,
		Stack:   debug.Stack(),
	}
	if t := k.running; t != nil {
		info.TID = t.tid
		info.Thread = t.name
		info.Dump = dumpConfig.Sdump(t.Info())
	}
	return info
}

func (k *Kernel) triggerPanic(info *PanicInfo) {
	k.panic.once.Do(func() {
		k.panic.active.Store(true)
		k.log.Emerg().
			Int("tid", int(info.TID)).
			Str("thread", info.Thread).
			Str("panic", info.Message).
			Log("kernel panic")
		if fn := k.panic.handler; fn != nil {
			fn(*info)
		}
	})
}
