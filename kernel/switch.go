package kernel

// context is the saved execution state of a thread: the channel its
// goroutine parks on while another thread holds the CPU.
type context struct {
	resume chan struct{}
}

func newContext() context {
	return context{resume: make(chan struct{}, 1)}
}

func (c context) park() { <-c.resume }
func (c context) wake() { c.resume <- struct{}{} }

// switchTo hands the CPU from cur to next, with interrupts off. It returns in
// cur's goroutine when cur is next dispatched, or at once if cur is dying.
func (k *Kernel) switchTo(cur, next *Thread) {
	dying := cur.status == StatusDying
	k.running = next
	next.ctx.wake()
	if dying {
		return
	}
	cur.ctx.park()
}
