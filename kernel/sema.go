package kernel

// Semaphore is a counting semaphore with a FIFO wait queue.
type Semaphore struct {
	k       *Kernel
	value   uint
	waiters threadQueue
}

// NewSemaphore returns a semaphore initialized to value.
func NewSemaphore(k *Kernel, value uint) *Semaphore {
	s := new(Semaphore)
	s.Init(k, value)
	return s
}

// Init sets the semaphore to value with no waiters.
func (s *Semaphore) Init(k *Kernel, value uint) {
	if k == nil {
		panic("kernel: semaphore init with nil kernel")
	}
	s.k = k
	s.value = value
	s.waiters.init("semaphore", nil)
}

// Down waits for the value to become positive, then decrements it.
//
// May sleep, so it must not be called from an interrupt handler. It may be
// called with interrupts off; if it sleeps, the next thread to run turns
// them back on.
func (s *Semaphore) Down() {
	k := s.k
	if k.cpu.inExternal {
		k.fatal("sema down: called from interrupt context")
	}
	old := k.IntrDisable()
	for s.value == 0 {
		k.enqueue(&s.waiters, k.Current())
		k.Block()
	}
	s.value--
	k.IntrSetLevel(old)
}

// TryDown decrements the value if it is positive, without waiting.
// Safe in interrupt context.
func (s *Semaphore) TryDown() bool {
	k := s.k
	old := k.IntrDisable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	k.IntrSetLevel(old)
	return ok
}

// Up increments the value and wakes the longest waiter, if any. Safe in
// interrupt context.
func (s *Semaphore) Up() {
	k := s.k
	old := k.IntrDisable()
	if !s.waiters.q.empty() {
		k.Unblock(k.dequeue(&s.waiters))
	}
	s.value++
	k.IntrSetLevel(old)
}

// Value returns the current value.
func (s *Semaphore) Value() uint {
	k := s.k
	old := k.IntrDisable()
	v := s.value
	k.IntrSetLevel(old)
	return v
}

// Waiters returns the number of threads blocked in Down.
func (s *Semaphore) Waiters() int {
	k := s.k
	old := k.IntrDisable()
	n := s.waiters.len()
	k.IntrSetLevel(old)
	return n
}

// SemaSelfTest bounces control between the calling thread and a helper ten
// times through a pair of semaphores.
func SemaSelfTest(k *Kernel) error {
	var sema [2]Semaphore
	sema[0].Init(k, 0)
	sema[1].Init(k, 0)

	k.log.Info().Log("Testing semaphores...")
	if _, err := k.Create("sema-test", PriDefault, semaTestHelper, &sema); err != nil {
		return err
	}
	for i := 0; i < 10; i++ {
		sema[0].Up()
		sema[1].Down()
	}
	k.log.Info().Log("Testing semaphores...done.")
	return nil
}

func semaTestHelper(arg any) {
	sema := arg.(*[2]Semaphore)
	for i := 0; i < 10; i++ {
		sema[0].Down()
		sema[1].Up()
	}
}
