package radio

import "container/heap"

type queuedFragment struct {
	fragment *Fragment
	priority int
	order    uint64
}

// priorityQueue orders fragments by priority, then by insertion order.
type priorityQueue struct {
	items []queuedFragment
	next  uint64
}

func (q *priorityQueue) Len() int { return len(q.items) }

func (q *priorityQueue) Less(i, j int) bool {
	if q.items[i].priority != q.items[j].priority {
		return q.items[i].priority < q.items[j].priority
	}
	return q.items[i].order < q.items[j].order
}

func (q *priorityQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *priorityQueue) Push(x any) { q.items = append(q.items, x.(queuedFragment)) }

func (q *priorityQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = queuedFragment{}
	q.items = old[:n-1]
	return item
}

func (q *priorityQueue) push(f *Fragment, priority int) {
	heap.Push(q, queuedFragment{fragment: f, priority: priority, order: q.next})
	q.next++
}

func (q *priorityQueue) pop() (*Fragment, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	return heap.Pop(q).(queuedFragment).fragment, true
}

func (q *priorityQueue) reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// fifo is a bounded first-in first-out queue of fragments.
type fifo struct {
	items    []*Fragment
	capacity int
}

func (q *fifo) full() bool { return len(q.items) >= q.capacity }

func (q *fifo) push(f *Fragment) bool {
	if q.full() {
		return false
	}
	q.items = append(q.items, f)
	return true
}

func (q *fifo) pop() (*Fragment, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return f, true
}

func (q *fifo) reset() {
	clear(q.items)
	q.items = nil
}
