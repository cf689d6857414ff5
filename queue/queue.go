package queue

// Queue is a FIFO of pending items. It is not safe for concurrent use.
type Queue[T any] struct {
	items []T
}

func (q *Queue[T]) Len() int {
	return len(q.items)
}

func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *Queue[T]) Push(items ...T) {
	q.items = append(q.items, items...)
}

func (q *Queue[T]) Clear() {
	clear(q.items)
	q.items = q.items[:0]
}

func New[T any](maybeSize ...int) *Queue[T] {
	q := &Queue[T]{}
	if len(maybeSize) > 0 {
		q.items = make([]T, 0, maybeSize[0])
	}
	return q
}
