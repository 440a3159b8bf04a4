// Package userprog runs user programs on kernel threads. It tracks exit
// statuses for Wait and tells the scheduler which threads count as user time.
package userprog

import (
	"errors"
	"fmt"

	"kestrel/kernel"

	"github.com/joeycumines/logiface"
)

// ErrNoChild is returned by Wait for an unknown or already waited-for process.
var ErrNoChild = errors.New("no such child process")

// StatusKilled is the exit status of a process that never reached Exit.
const StatusKilled = -1

// Process is the user side of a kernel thread.
type Process struct {
	name   string
	tid    kernel.TID
	status int
	exited kernel.Semaphore
	waited bool
}

func (p *Process) Name() string { return p.name }
func (p *Process) TID() kernel.TID { return p.tid }

// Table is the process table of one kernel.
type Table struct {
	k     *kernel.Kernel
	log   *logiface.Logger[logiface.Event]
	procs map[kernel.TID]*Process
}

// Install hooks a process table into k. Call it once, before any process
// is spawned.
func Install(k *kernel.Kernel, log *logiface.Logger[logiface.Event]) *Table {
	tb := &Table{
		k:     k,
		log:   log,
		procs: make(map[kernel.TID]*Process),
	}
	k.SetAddressSpacePredicate(isProcess)
	k.SetExitHook(tb.exited)
	return tb
}

func isProcess(t *kernel.Thread) bool {
	_, ok := t.Aux.(*Process)
	return ok
}

// Spawn starts main as a process on a new thread. Its return value is the
// exit status.
func (tb *Table) Spawn(name string, priority int, main func(p *Process) int) (kernel.TID, error) {
	p := &Process{name: name, status: StatusKilled}
	p.exited.Init(tb.k, 0)

	// With interrupts off nothing can dispatch the child before it is
	// tagged and registered.
	old := tb.k.IntrDisable()
	tid, err := tb.k.Create(name, priority, func(arg any) {
		p := arg.(*Process)
		p.status = main(p)
	}, p)
	if err == nil {
		p.tid = tid
		tb.k.Lookup(tid).Aux = p
		tb.procs[tid] = p
	}
	tb.k.IntrSetLevel(old)
	if err != nil {
		return kernel.TIDError, fmt.Errorf("spawn: %w", err)
	}
	return tid, nil
}

// Exit ends the running process with status. It never returns.
func (tb *Table) Exit(status int) {
	p, ok := tb.k.Current().Aux.(*Process)
	if !ok {
		tb.k.Panicf("process exit: %s is not a process", tb.k.Current())
	}
	p.status = status
	tb.k.Exit()
}

// Wait blocks until the child tid exits and returns its status. A child can
// be waited for once.
func (tb *Table) Wait(tid kernel.TID) (int, error) {
	old := tb.k.IntrDisable()
	p := tb.procs[tid]
	ok := p != nil && !p.waited
	if ok {
		p.waited = true
	}
	tb.k.IntrSetLevel(old)
	if !ok {
		return StatusKilled, fmt.Errorf("wait %d: %w", tid, ErrNoChild)
	}

	p.exited.Down()

	old = tb.k.IntrDisable()
	delete(tb.procs, tid)
	tb.k.IntrSetLevel(old)
	return p.status, nil
}

func (tb *Table) exited(t *kernel.Thread) {
	p, ok := t.Aux.(*Process)
	if !ok {
		return
	}
	tb.log.Info().
		Str("name", p.name).
		Int("status", p.status).
		Logf("%s: exit(%d)", p.name, p.status)
	p.exited.Up()
}
