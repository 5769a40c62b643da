// Package bus is the command bus: an unbounded multi-producer, single-consumer
// FIFO queue. Producers never block; the consumer sees ErrClosed once every
// producer handle is closed and the queue is drained.
package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("bus: all producers closed")

type state[T any] struct {
	mu        sync.Mutex
	items     []T
	head      int
	producers int
	notify    chan struct{}
}

// Queue is the consumer half. Only one goroutine may call Recv.
type Queue[T any] struct {
	s *state[T]
}

// Producer is a sending handle. Clone it for every independent sender and
// Close each handle exactly once.
type Producer[T any] struct {
	s      *state[T]
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func New[T any]() (*Queue[T], *Producer[T]) {
	s := &state[T]{producers: 1, notify: make(chan struct{}, 1)}
	return &Queue[T]{s: s}, &Producer[T]{s: s}
}

// Clone returns a new handle on the same queue. Cloning a closed handle
// returns nil.
func (p *Producer[T]) Clone() *Producer[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.s.mu.Lock()
	p.s.producers++
	p.s.mu.Unlock()
	return &Producer[T]{s: p.s}
}

// Send enqueues v. It reports false if this handle was already closed.
func (p *Producer[T]) Send(v T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.s.mu.Lock()
	p.s.items = append(p.s.items, v)
	p.s.mu.Unlock()
	p.s.wake()
	return true
}

func (p *Producer[T]) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.s.mu.Lock()
		p.s.producers--
		p.s.mu.Unlock()
		p.s.wake()
	})
}

func (s *state[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv blocks until a value is available, the context is done, or all
// producers are closed and nothing is left to deliver.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		q.s.mu.Lock()
		if q.s.head < len(q.s.items) {
			v := q.s.items[q.s.head]
			q.s.items[q.s.head] = zero
			q.s.head++
			if q.s.head == len(q.s.items) {
				q.s.items = q.s.items[:0]
				q.s.head = 0
			}
			q.s.mu.Unlock()
			return v, nil
		}
		if q.s.producers == 0 {
			q.s.mu.Unlock()
			return zero, ErrClosed
		}
		q.s.mu.Unlock()

		select {
		case <-q.s.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len is the number of queued values.
func (q *Queue[T]) Len() int {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	return len(q.s.items) - q.s.head
}
