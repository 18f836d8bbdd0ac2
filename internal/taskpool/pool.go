// Package taskpool provides the default ioengine.TaskDispatcher: a fixed
// worker pool that runs completion events off the watcher thread, so the
// engine's dedicated poller goroutine is never blocked executing client
// callbacks.
package taskpool

import (
	"context"
	"sync"

	"github.com/coreio/sockengine/internal/ioengine"
)

// refTask tracks how many outstanding Attach calls a task has, so Detach
// only forgets the task once every attachment has been released.
type refTask struct {
	refs int
}

type workItem struct {
	task   ioengine.Task
	ev     *ioengine.Event
	detach bool
}

// Pool is a minimal task dispatcher: N workers draining one shared
// queue. Events are taken off the queue in the order they were sent, but
// with more than one worker, events addressed to the same task can run
// concurrently and finish out of order; only New(1, ...) runs them one at
// a time.
type Pool struct {
	queue *Channel[workItem]

	mu       sync.Mutex
	attached map[ioengine.Task]*refTask

	wg sync.WaitGroup
}

// New starts a Pool with the given worker count and queue capacity.
func New(workers, queueCapacity int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		queue:    NewChannel[workItem](queueCapacity),
		attached: make(map[ioengine.Task]*refTask),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)

		go p.run()
	}

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()

	ctx := context.Background()

	for {
		item, ok, err := p.queue.Recv(ctx)
		if err != nil || !ok {
			return
		}

		if item.ev.Action != nil {
			item.ev.Action(item.ev)
		}

		if item.detach {
			p.Detach(item.task)
		}
	}
}

// Attach implements ioengine.TaskDispatcher.
func (p *Pool) Attach(task ioengine.Task) ioengine.Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	rt, ok := p.attached[task]
	if !ok {
		rt = &refTask{}
		p.attached[task] = rt
	}

	rt.refs++

	return task
}

// Detach implements ioengine.TaskDispatcher.
func (p *Pool) Detach(task ioengine.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rt, ok := p.attached[task]
	if !ok {
		return
	}

	rt.refs--
	if rt.refs <= 0 {
		delete(p.attached, task)
	}
}

// Send implements ioengine.TaskDispatcher.
func (p *Pool) Send(task ioengine.Task, ev *ioengine.Event) {
	_ = p.queue.Send(context.Background(), workItem{task: task, ev: ev})
}

// SendAndDetach implements ioengine.TaskDispatcher.
func (p *Pool) SendAndDetach(task ioengine.Task, ev *ioengine.Event) {
	_ = p.queue.Send(context.Background(), workItem{task: task, ev: ev, detach: true})
}

// Close stops accepting new work and waits for every queued event to
// finish running before returning.
func (p *Pool) Close() {
	p.queue.Close()
	p.wg.Wait()
}
