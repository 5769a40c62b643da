package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q, p := New[int]()
	for i := 0; i < 100; i++ {
		p.Send(i)
	}
	if q.Len() != 100 {
		t.Fatalf("Len: got %d", q.Len())
	}
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		v, err := q.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if v != i {
			t.Fatalf("order: got %d want %d", v, i)
		}
	}
}

func TestQueue_ClosedAfterDrain(t *testing.T) {
	q, p := New[string]()
	c := p.Clone()
	p.Send("a")
	p.Close()
	c.Send("b")
	c.Close()
	c.Close() // idempotent

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		v, err := q.Recv(ctx)
		if err != nil || v != want {
			t.Fatalf("Recv: v=%q err=%v want %q", v, err, want)
		}
	}
	if _, err := q.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestProducer_SendAfterClose(t *testing.T) {
	q, p := New[int]()
	keep := p.Clone()
	defer keep.Close()
	p.Close()
	if p.Send(1) {
		t.Fatalf("Send on closed handle should report false")
	}
	if p.Clone() != nil {
		t.Fatalf("Clone on closed handle should return nil")
	}
	if q.Len() != 0 {
		t.Fatalf("Len: got %d", q.Len())
	}
}

func TestQueue_RecvBlocksUntilSend(t *testing.T) {
	q, p := New[int]()
	defer p.Close()
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Send(42)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := q.Recv(ctx)
	if err != nil || v != 42 {
		t.Fatalf("Recv: v=%d err=%v", v, err)
	}
}

func TestQueue_RecvContextCancel(t *testing.T) {
	q, p := New[int]()
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestQueue_PerProducerOrder(t *testing.T) {
	q, root := New[[2]int]()
	const producers, per = 8, 500

	var wg sync.WaitGroup
	for id := 0; id < producers; id++ {
		p := root.Clone()
		wg.Add(1)
		go func(id int, p *Producer[[2]int]) {
			defer wg.Done()
			defer p.Close()
			for i := 0; i < per; i++ {
				p.Send([2]int{id, i})
			}
		}(id, p)
	}
	root.Close()

	next := make([]int, producers)
	ctx := context.Background()
	n := 0
	for {
		v, err := q.Recv(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if v[1] != next[v[0]] {
			t.Fatalf("producer %d: got seq %d want %d", v[0], v[1], next[v[0]])
		}
		next[v[0]]++
		n++
	}
	wg.Wait()
	if n != producers*per {
		t.Fatalf("received %d want %d", n, producers*per)
	}
}
