package agent

// Queue is a FIFO of worry values. The zero value is an empty queue.
type Queue struct {
	items []uint64
	head  int
}

func NewQueue(values ...uint64) Queue {
	return Queue{items: append([]uint64(nil), values...)}
}

func (q *Queue) Len() int {
	return len(q.items) - q.head
}

func (q *Queue) Push(v uint64) {
	q.items = append(q.items, v)
}

// Pop removes the front value. ok is false when the queue is empty.
func (q *Queue) Pop() (v uint64, ok bool) {
	if q.head == len(q.items) {
		return 0, false
	}
	v = q.items[q.head]
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return v, true
}

// Values returns a copy of the queued values in front-to-back order.
func (q *Queue) Values() []uint64 {
	return append([]uint64{}, q.items[q.head:]...)
}

func (q *Queue) clone() Queue {
	return Queue{items: q.Values()}
}
