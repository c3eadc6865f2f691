package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
)

// Task is one unit of work. It runs on a worker goroutine.
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	mu     sync.Mutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

type job struct {
	ctx  context.Context
	task Task
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				if err := j.ctx.Err(); err != nil {
					log.Printf("Worker: skipping task, context done: %v", err)
					continue
				}
				run(j)
			}
		}()
	}
}

func run(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker: task panicked: %v", r)
		}
	}()
	j.task(j.ctx)
}

// Submit enqueues a task if the single-slot queue is free. Returns false if dropped
// or if the pool is closed.
func (p *Pool) Submit(ctx context.Context, task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job{ctx: ctx, task: task}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work. Safe to call repeatedly.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
