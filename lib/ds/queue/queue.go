package queue

import (
	"errors"
	"netpump/lib/ds/internal"
)

var ErrQueueEmpty = errors.New("queue is empty")

// Queue is a FIFO sequence. Implementations are not safe for concurrent use.
type Queue[T any] interface {
	// Enqueue appends v to the tail. Returns false if v was not stored.
	Enqueue(v T) (ok bool)
	Dequeue() (T, error)
	Peek() (T, error)
	Len() uint
	// Clear drops every element.
	Clear()
}

type NaiveQueue[T any] struct {
	queue []T
}

func NewNaive[T any](initialCap uint) *NaiveQueue[T] {
	return &NaiveQueue[T]{queue: make([]T, 0, initialCap)}
}

var _ Queue[int] = (*NaiveQueue[int])(nil)

// Enqueue always succeeds. The queue grows as needed.
func (q *NaiveQueue[T]) Enqueue(v T) bool {
	q.queue = append(q.queue, v)
	return true
}

func (q *NaiveQueue[T]) Dequeue() (T, error) {
	if q.Len() == 0 {
		return internal.Zero[T](), ErrQueueEmpty
	}

	v := q.queue[0]
	// Let the popped element be collected.
	q.queue[0] = internal.Zero[T]()
	q.queue = q.queue[1:]

	return v, nil
}

func (q *NaiveQueue[T]) Peek() (T, error) {
	if q.Len() == 0 {
		return internal.Zero[T](), ErrQueueEmpty
	}
	return q.queue[0], nil
}

func (q *NaiveQueue[T]) Len() uint {
	return uint(len(q.queue))
}

func (q *NaiveQueue[T]) Clear() {
	q.queue = nil
}

// Drain removes every element and returns them in FIFO order.
func (q *NaiveQueue[T]) Drain() []T {
	drained := q.queue
	q.queue = nil
	return drained
}
