package kernel

// Block puts the running thread to sleep until Unblock. Interrupts must be
// off; the caller has already recorded where the thread waits.
func (k *Kernel) Block() {
	if k.cpu.inExternal {
		k.fatal("thread block: called from interrupt context")
	}
	if k.cpu.level != IntrOff {
		k.fatal("thread block: interrupts are on")
	}
	k.doSchedule(StatusBlocked)
}

// Unblock moves a blocked thread to the ready queue. It does not preempt the
// running thread.
func (k *Kernel) Unblock(t *Thread) {
	if !t.valid() {
		k.fatal("thread unblock: invalid thread descriptor")
	}
	old := k.IntrDisable()
	if t.status != StatusBlocked {
		k.fatal("thread unblock: %s is %s", t, t.status)
	}
	k.enqueue(&k.ready, t)
	t.status = StatusReady
	k.IntrSetLevel(old)
}

// Yield gives up the CPU. The running thread stays ready and may be chosen
// again immediately.
func (k *Kernel) Yield() {
	if k.cpu.inExternal {
		k.fatal("thread yield: called from interrupt context")
	}
	cur := k.Current()
	old := k.IntrDisable()
	if cur != k.idle {
		k.enqueue(&k.ready, cur)
	}
	k.doSchedule(StatusReady)
	k.IntrSetLevel(old)
}

// SleepUntil blocks the running thread until WakeSleepers is called with a
// time of at least wake.
func (k *Kernel) SleepUntil(wake int64) {
	if k.cpu.inExternal {
		k.fatal("thread sleep: called from interrupt context")
	}
	old := k.IntrDisable()
	cur := k.Current()
	if cur == k.idle {
		k.fatal("thread sleep: the idle thread cannot sleep")
	}
	cur.wakeTime = wake
	k.enqueue(&k.sleepers, cur)
	k.Block()
	k.IntrSetLevel(old)
}

// WakeSleepers readies every sleeping thread whose wake time is at or before
// now, earliest first, and returns how many woke.
func (k *Kernel) WakeSleepers(now int64) int {
	old := k.IntrDisable()
	n := 0
	for !k.sleepers.q.empty() && k.sleepers.q.front().wakeTime <= now {
		k.Unblock(k.dequeue(&k.sleepers))
		n++
	}
	k.IntrSetLevel(old)
	return n
}

// Tick charges one timer tick to the running thread and requests preemption
// once its time slice is used up. Interrupt context only.
func (k *Kernel) Tick() {
	if !k.cpu.inExternal {
		k.fatal("thread tick: not in interrupt context")
	}
	t := k.Current()
	k.ticks++
	switch {
	case t == k.idle:
		k.idleTicks++
	case k.hasAddressSpace != nil && k.hasAddressSpace(t):
		k.userTicks++
	default:
		k.kernelTicks++
	}

	k.sliceTicks++
	if k.sliceTicks >= k.cfg.TimeSlice {
		k.YieldOnReturn()
	}
}

// GetPriority returns the running thread's effective priority.
func (k *Kernel) GetPriority() int {
	old := k.IntrDisable()
	p := k.Current().priority
	k.IntrSetLevel(old)
	return p
}

// SetPriority sets the running thread's base priority. An active donation
// keeps the effective priority at the donated level if that is higher.
//
// With ReadyPriority, a thread that drops below the best ready thread yields.
func (k *Kernel) SetPriority(p int) {
	if p < PriMin || p > PriMax {
		k.fatal("thread set priority: %d out of range [%d, %d]", p, PriMin, PriMax)
	}
	old := k.IntrDisable()
	cur := k.Current()
	cur.basePriority = p
	cur.priority = p
	if cur.donated && cur.donation > p {
		cur.priority = cur.donation
	}
	preempt := k.cfg.ReadyPolicy == ReadyPriority &&
		!k.ready.q.empty() &&
		k.ready.q.front().priority > cur.priority
	k.IntrSetLevel(old)

	if preempt && !k.cpu.inExternal {
		k.Yield()
	}
}

// donate lends priority p to holder for as long as it holds the lock it was
// donated through. A later, higher donation replaces an earlier one.
func (k *Kernel) donate(holder *Thread, p int) {
	holder.donated = true
	holder.donation = p
	if p > holder.priority {
		holder.priority = p
	}
	k.reposition(holder)

	k.log.Debug().
		Int("tid", int(holder.tid)).
		Str("name", holder.name).
		Int("base", holder.basePriority).
		Int("priority", holder.priority).
		Log("priority donated")
}

// restorePriority ends any donation on t.
func (k *Kernel) restorePriority(t *Thread) {
	if !t.donated && t.priority == t.basePriority {
		return
	}
	t.donated = false
	t.donation = 0
	t.priority = t.basePriority
	k.reposition(t)
}

// reposition re-sorts t when it waits on a priority-ordered ready queue.
func (k *Kernel) reposition(t *Thread) {
	if t.queuedIn != &k.ready || k.ready.less == nil {
		return
	}
	k.unlink(t)
	k.enqueue(&k.ready, t)
}

func (k *Kernel) nextThreadToRun() *Thread {
	if k.ready.q.empty() {
		return k.idle
	}
	return k.dequeue(&k.ready)
}

// doSchedule reclaims dead threads, sets the running thread's new status and
// dispatches. Interrupts must be off.
func (k *Kernel) doSchedule(status Status) {
	if k.cpu.level != IntrOff {
		k.fatal("do schedule: interrupts are on")
	}
	cur := k.running
	if cur == nil || cur.status != StatusRunning {
		k.fatal("do schedule: running thread is not running")
	}
	for !k.destruction.q.empty() {
		k.reclaim(k.dequeue(&k.destruction))
	}
	cur.status = status
	k.schedule()
}

func (k *Kernel) schedule() {
	cur := k.running
	next := k.nextThreadToRun()

	if k.cpu.level != IntrOff {
		k.fatal("schedule: interrupts are on")
	}
	if cur.status == StatusRunning {
		k.fatal("schedule: %s is still running", cur)
	}
	if !next.valid() {
		k.fatal("schedule: no valid thread to run")
	}

	next.status = StatusRunning
	k.sliceTicks = 0

	if cur == next {
		return
	}
	// The dying thread is still executing on its own goroutine, so it is
	// reclaimed by a later doSchedule rather than here.
	if cur.status == StatusDying && cur != k.initial {
		k.enqueue(&k.destruction, cur)
	}
	k.switchTo(cur, next)
}
