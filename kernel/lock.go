package kernel

// Lock is a binary semaphore with an owner. It is not recursive: acquiring a
// lock already held by the caller is fatal, as is releasing one held by
// another thread.
//
// A thread that blocks on a lock held by a lower-priority thread donates its
// priority to the holder until the holder releases any lock. Donation is
// single-level: a holder blocked on yet another lock does not pass the
// donation on.
type Lock struct {
	holder *Thread
	sema   Semaphore
}

// NewLock returns an unheld lock.
func NewLock(k *Kernel) *Lock {
	l := new(Lock)
	l.Init(k)
	return l
}

// Init resets the lock to unheld.
func (l *Lock) Init(k *Kernel) {
	l.holder = nil
	l.sema.Init(k, 1)
}

func (l *Lock) kernel() *Kernel { return l.sema.k }

// Acquire waits for the lock and takes it. Must not be called from an
// interrupt handler.
func (l *Lock) Acquire() {
	k := l.kernel()
	if k.cpu.inExternal {
		k.fatal("lock acquire: called from interrupt context")
	}
	cur := k.Current()
	if l.holder == cur {
		k.fatal("lock acquire: %s already holds the lock", cur)
	}

	old := k.IntrDisable()
	holder := l.holder
	donate := holder != nil && holder.priority < cur.priority
	if donate {
		k.donate(holder, cur.priority)
	}
	k.IntrSetLevel(old)

	if donate {
		k.Yield()
	}

	// The holder is recorded before interrupts can observe the taken lock.
	old = k.IntrDisable()
	l.sema.Down()
	l.holder = cur
	k.IntrSetLevel(old)
}

// TryAcquire takes the lock if it is free, without waiting.
func (l *Lock) TryAcquire() bool {
	k := l.kernel()
	cur := k.Current()
	if l.holder == cur {
		k.fatal("lock try acquire: %s already holds the lock", cur)
	}
	old := k.IntrDisable()
	ok := l.sema.TryDown()
	if ok {
		l.holder = cur
	}
	k.IntrSetLevel(old)
	return ok
}

// Release gives up the lock, ending any priority donation the caller holds.
func (l *Lock) Release() {
	k := l.kernel()
	cur := k.Current()
	if l.holder != cur {
		k.fatal("lock release: %s does not hold the lock", cur)
	}

	old := k.IntrDisable()
	k.restorePriority(cur)
	l.holder = nil
	l.sema.Up()
	k.IntrSetLevel(old)
}

// HeldByCurrent reports whether the running thread holds l.
func (l *Lock) HeldByCurrent() bool {
	return l.holder == l.kernel().Current()
}

// Holder returns the holding thread, or nil.
func (l *Lock) Holder() *Thread {
	return l.holder
}
