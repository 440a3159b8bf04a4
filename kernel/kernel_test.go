package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boot brings up a kernel with the test goroutine as its main thread.
func boot(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	k := New(cfg)
	k.Init()
	k.Start()
	return k
}

// requireKernelPanic runs fn on the running thread and returns the kernel
// panic it raised.
func requireKernelPanic(t *testing.T, fn func()) (info *PanicInfo) {
	t.Helper()
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a kernel panic")
			var ok bool
			info, ok = r.(*PanicInfo)
			require.True(t, ok, "unexpected panic value %v", r)
		}()
		fn()
	}()
	return info
}

func TestInitAndStart(t *testing.T) {
	k := boot(t, Config{})

	cur := k.Current()
	assert.Equal(t, "main", cur.Name())
	assert.Equal(t, TID(1), cur.TID())
	assert.Equal(t, PriDefault, cur.Priority())
	assert.Equal(t, IntrOn, k.IntrGetLevel())
	assert.Equal(t, TID(1), k.CurrentTID())
	assert.Equal(t, "main", k.CurrentName())

	threads := k.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, "main", threads[0].Name)
	assert.Equal(t, StatusRunning, threads[0].Status)
	assert.Equal(t, "idle", threads[1].Name)
	assert.Equal(t, TID(2), threads[1].TID)
	assert.Equal(t, PriMin, threads[1].Priority)
	assert.Equal(t, StatusBlocked, threads[1].Status)
}

func TestForEachVisitsThreadsInIDOrder(t *testing.T) {
	k := boot(t, Config{})
	_, err := k.Create("worker", PriDefault, func(any) {}, nil)
	require.NoError(t, err)

	var names []string
	k.ForEach(func(th *Thread) {
		assert.Equal(t, IntrOff, k.IntrGetLevel())
		names = append(names, th.Name())
	})
	assert.Equal(t, []string{"main", "idle", "worker"}, names)
	assert.Equal(t, IntrOn, k.IntrGetLevel())

	assert.Same(t, k.Current(), k.Initial())
	assert.Equal(t, "idle", k.Idle().Name())
	k.Yield()
}

func TestInitTwiceIsFatal(t *testing.T) {
	k := New(Config{})
	k.Init()
	info := requireKernelPanic(t, k.Init)
	assert.Contains(t, info.Message, "already initialized")
}

func TestCurrentBeforeInitIsFatal(t *testing.T) {
	k := New(Config{})
	info := requireKernelPanic(t, func() { k.Current() })
	assert.Contains(t, info.Message, "not initialized")
	assert.Equal(t, TIDError, info.TID)
}

func TestCreatedThreadsRunInFIFOOrder(t *testing.T) {
	k := boot(t, Config{})

	var order []string
	record := func(arg any) { order = append(order, arg.(string)) }
	for _, name := range []string{"a", "b", "c"} {
		_, err := k.Create(name, PriDefault, record, name)
		require.NoError(t, err)
	}
	assert.Empty(t, order, "create must not preempt")

	k.Yield()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	k := boot(t, Config{})

	var last TID
	for i := 0; i < 5; i++ {
		tid, err := k.Create("t", PriDefault, func(any) {}, nil)
		require.NoError(t, err)
		assert.Greater(t, tid, last)
		last = tid
	}
}

func TestCreateOutOfMemory(t *testing.T) {
	pool := NewPool(2)
	k := boot(t, Config{Allocator: pool})
	require.Equal(t, 1, pool.Available(), "idle takes one descriptor")

	_, err := k.Create("fits", PriDefault, func(any) {}, nil)
	require.NoError(t, err)

	tid, err := k.Create("overflow", PriDefault, func(any) {}, nil)
	assert.Equal(t, TIDError, tid)
	assert.True(t, errors.Is(err, ErrNoMemory))
	assert.Contains(t, err.Error(), `"overflow"`)
	assert.Len(t, k.Threads(), 3)
}

func TestExitedThreadsAreReclaimed(t *testing.T) {
	pool := NewPool(4)
	k := boot(t, Config{Allocator: pool})

	ran := 0
	for i := 0; i < 3; i++ {
		_, err := k.Create("worker", PriDefault, func(any) { ran++ }, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 0, pool.Available())

	k.Yield()
	require.Equal(t, 3, ran)
	// The last thread to die is reclaimed at the next scheduling decision.
	k.Yield()

	assert.Equal(t, 3, pool.Available())
	assert.Len(t, k.Threads(), 2)

	_, err := k.Create("again", PriDefault, func(any) {}, nil)
	assert.NoError(t, err)
}

func TestExitRunsDeferredCallsAndLeavesCreatorIntact(t *testing.T) {
	k := boot(t, Config{})

	var deferred, pastExit bool
	_, err := k.Create("quitter", PriDefault, func(any) {
		defer func() { deferred = true }()
		k.Exit()
		pastExit = true
	}, nil)
	require.NoError(t, err)

	main := k.Current()
	k.Yield()

	assert.True(t, deferred)
	assert.False(t, pastExit)
	assert.Same(t, main, k.Current())
	assert.Equal(t, threadMagic, main.magic)
	assert.Equal(t, StatusRunning, main.Status())
}

func TestExitHookSeesExitingThread(t *testing.T) {
	k := boot(t, Config{})

	var seen []string
	k.SetExitHook(func(th *Thread) {
		seen = append(seen, th.Name())
		assert.Equal(t, StatusRunning, th.Status())
	})
	_, err := k.Create("hooked", PriDefault, func(any) {}, nil)
	require.NoError(t, err)

	k.Yield()
	assert.Equal(t, []string{"hooked"}, seen)
}

func TestCreateWithBadPriorityIsFatal(t *testing.T) {
	k := boot(t, Config{})
	info := requireKernelPanic(t, func() {
		_, _ = k.Create("bad", PriMax+1, func(any) {}, nil)
	})
	assert.Contains(t, info.Message, "out of range")
}

func TestPanicHandlerRunsOnce(t *testing.T) {
	k := boot(t, Config{})

	var calls []PanicInfo
	k.SetPanicHandler(func(info PanicInfo) { calls = append(calls, info) })

	requireKernelPanic(t, func() { k.Unblock(k.Current()) })
	requireKernelPanic(t, func() { k.Unblock(k.Current()) })

	require.Len(t, calls, 1)
	assert.True(t, k.InPanicMode())
	assert.Equal(t, "main", calls[0].Thread)
	assert.Contains(t, calls[0].Message, "is running")
	assert.Contains(t, calls[0].Dump, `"main"`)
	assert.NotEmpty(t, calls[0].Stack)
}

func TestStatsAccounting(t *testing.T) {
	k := boot(t, Config{TimeSlice: 100})
	k.RegisterInterrupt(VecTimer, "test timer", k.Tick)
	k.SetAddressSpacePredicate(func(th *Thread) bool { return th.Name() == "user" })

	_, err := k.Create("user", PriDefault, func(any) {
		k.Interrupt(VecTimer)
		k.Interrupt(VecTimer)
	}, nil)
	require.NoError(t, err)

	k.Interrupt(VecTimer)
	k.Yield()

	s := k.Stats()
	assert.Equal(t, int64(3), s.Ticks)
	assert.Equal(t, int64(1), s.KernelTicks)
	assert.Equal(t, int64(2), s.UserTicks)
	assert.Equal(t, int64(0), s.IdleTicks)
	assert.Equal(t, k.Ticks(), s.Ticks)
}
