package taskpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreio/sockengine/internal/ioengine"
)

func TestPoolRunsEveryEvent(t *testing.T) {
	p := New(2, 8)
	defer p.Close()

	const n = 50

	var wg sync.WaitGroup

	wg.Add(n)

	task := &struct{}{}

	for i := 0; i < n; i++ {
		p.Send(task, &ioengine.Event{Action: func(ev *ioengine.Event) {
			wg.Done()
		}})
	}

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for every event to run")
	}
}

func TestPoolSendAndDetachReleasesAttachment(t *testing.T) {
	p := New(1, 4)
	defer p.Close()

	task := &struct{}{}

	p.Attach(task)

	p.mu.Lock()
	if p.attached[task].refs != 1 {
		p.mu.Unlock()
		t.Fatalf("refs after Attach = %d, want 1", p.attached[task].refs)
	}
	p.mu.Unlock()

	done := make(chan struct{})

	p.SendAndDetach(task, &ioengine.Event{Action: func(ev *ioengine.Event) {
		close(done)
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendAndDetach's event")
	}

	// Detach runs after Action in the worker goroutine; poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		_, stillAttached := p.attached[task]
		p.mu.Unlock()

		if !stillAttached {
			return
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal("task remained attached after SendAndDetach")
}

func TestChannelCloseStopsRecv(t *testing.T) {
	ch := NewChannel[int](1)
	ch.Close()

	_, ok, err := ch.Recv(context.TODO())
	if ok {
		t.Fatal("Recv on a closed, empty channel should report ok=false")
	}

	if err != nil {
		t.Fatalf("Recv on a closed channel returned err = %v, want nil (closed, not canceled)", err)
	}
}
