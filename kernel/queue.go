package kernel

import "slices"

// queue is an ordered sequence with FIFO and sorted insertion.
type queue[T comparable] struct {
	items []T
}

func (q *queue[T]) len() int { return len(q.items) }
func (q *queue[T]) empty() bool { return len(q.items) == 0 }

func (q *queue[T]) front() T {
	return q.items[0]
}

func (q *queue[T]) pushBack(v T) {
	q.items = append(q.items, v)
}

// insertOrdered places v before the first element it is less than, so v
// lands after every element with an equal key.
func (q *queue[T]) insertOrdered(v T, less func(a, b T) bool) {
	i := len(q.items)
	for j, it := range q.items {
		if less(v, it) {
			i = j
			break
		}
	}
	q.items = slices.Insert(q.items, i, v)
}

func (q *queue[T]) popFront() T {
	v := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v
}

func (q *queue[T]) remove(v T) bool {
	i := slices.Index(q.items, v)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// threadQueue is a queue of descriptors. A thread sits on at most one
// threadQueue at a time; queuedIn records which.
type threadQueue struct {
	name string
	less func(a, b *Thread) bool
	q    queue[*Thread]
}

func (tq *threadQueue) init(name string, less func(a, b *Thread) bool) {
	tq.name = name
	tq.less = less
	tq.q = queue[*Thread]{}
}

func (tq *threadQueue) label() string {
	if tq == nil {
		return ""
	}
	return tq.name
}

func (tq *threadQueue) len() int { return tq.q.len() }

func byWakeTime(a, b *Thread) bool { return a.wakeTime < b.wakeTime }
func byPriority(a, b *Thread) bool { return a.priority > b.priority }

func (k *Kernel) enqueue(tq *threadQueue, t *Thread) {
	if !t.valid() {
		k.fatal("%s queue: invalid thread descriptor", tq.label())
	}
	if t.queuedIn != nil {
		k.fatal("%s queue: %s is already on the %s queue", tq.label(), t, t.queuedIn.label())
	}
	if tq.less == nil {
		tq.q.pushBack(t)
	} else {
		tq.q.insertOrdered(t, tq.less)
	}
	t.queuedIn = tq
}

func (k *Kernel) dequeue(tq *threadQueue) *Thread {
	t := tq.q.popFront()
	t.queuedIn = nil
	return t
}

// unlink takes t off whatever queue holds it.
func (k *Kernel) unlink(t *Thread) {
	if t.queuedIn == nil {
		return
	}
	t.queuedIn.q.remove(t)
	t.queuedIn = nil
}
