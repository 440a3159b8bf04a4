package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyed struct {
	key  int
	name string
}

func TestQueueInsertOrderedIsStable(t *testing.T) {
	less := func(a, b *keyed) bool { return a.key < b.key }

	var q queue[*keyed]
	for _, v := range []*keyed{
		{5, "a"}, {2, "b"}, {8, "c"}, {5, "d"}, {2, "e"},
	} {
		q.insertOrdered(v, less)
	}

	var got []string
	for !q.empty() {
		got = append(got, q.popFront().name)
	}
	assert.Equal(t, []string{"b", "e", "a", "d", "c"}, got)
}

func TestQueueRemove(t *testing.T) {
	a, b, c := &keyed{name: "a"}, &keyed{name: "b"}, &keyed{name: "c"}

	var q queue[*keyed]
	q.pushBack(a)
	q.pushBack(b)
	q.pushBack(c)

	require.True(t, q.remove(b))
	require.False(t, q.remove(b))
	require.Equal(t, 2, q.len())
	assert.Same(t, a, q.popFront())
	assert.Same(t, c, q.popFront())
	assert.True(t, q.empty())
}

func TestThreadQueueRejectsDoubleQueueing(t *testing.T) {
	k := boot(t, Config{})

	tid, err := k.Create("waiter", PriDefault, func(any) {}, nil)
	require.NoError(t, err)
	th := k.Lookup(tid)
	require.Equal(t, "ready", th.Info().Queue)

	k.IntrDisable()
	info := requireKernelPanic(t, func() { k.enqueue(&k.sleepers, th) })
	assert.Contains(t, info.Message, "already on the ready queue")
}
