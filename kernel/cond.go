package kernel

// Cond is a Mesa-style condition variable: a signal is a hint, and a woken
// waiter rechecks its condition after reacquiring the lock.
//
// A Cond is used with one Lock at a time.
type Cond struct {
	waiters queue[*condWaiter]
}

// condWaiter is one thread's pending Wait.
type condWaiter struct {
	sema Semaphore
}

// NewCond returns a condition variable with no waiters.
func NewCond() *Cond {
	return new(Cond)
}

// Init removes all waiters.
func (c *Cond) Init() {
	c.waiters = queue[*condWaiter]{}
}

// Wait atomically releases l and waits for a signal, then reacquires l
// before returning. The caller must hold l.
func (c *Cond) Wait(l *Lock) {
	k := l.kernel()
	if k.cpu.inExternal {
		k.fatal("cond wait: called from interrupt context")
	}
	if !l.HeldByCurrent() {
		k.fatal("cond wait: lock not held by %s", k.Current())
	}

	w := &condWaiter{}
	w.sema.Init(k, 0)

	old := k.IntrDisable()
	c.waiters.pushBack(w)
	k.IntrSetLevel(old)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the longest waiter, if any. The caller must hold l.
func (c *Cond) Signal(l *Lock) {
	k := l.kernel()
	if k.cpu.inExternal {
		k.fatal("cond signal: called from interrupt context")
	}
	if !l.HeldByCurrent() {
		k.fatal("cond signal: lock not held by %s", k.Current())
	}

	old := k.IntrDisable()
	var w *condWaiter
	if !c.waiters.empty() {
		w = c.waiters.popFront()
	}
	k.IntrSetLevel(old)

	if w != nil {
		w.sema.Up()
	}
}

// Broadcast wakes every thread waiting at the time of the call. The caller
// must hold l.
func (c *Cond) Broadcast(l *Lock) {
	k := l.kernel()
	if !l.HeldByCurrent() {
		k.fatal("cond broadcast: lock not held by %s", k.Current())
	}
	for n := c.Waiters(l); n > 0; n-- {
		c.Signal(l)
	}
}

// Waiters returns the number of threads blocked in Wait on c with l.
func (c *Cond) Waiters(l *Lock) int {
	k := l.kernel()
	old := k.IntrDisable()
	n := c.waiters.len()
	k.IntrSetLevel(old)
	return n
}
