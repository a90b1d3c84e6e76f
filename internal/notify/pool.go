package notify

import (
	"sync"
)

type Task interface {
	Execute()
}

// Pool runs tasks on a fixed set of workers fed by a bounded queue
type Pool struct {
	mu     sync.Mutex
	closed bool
	tasks  chan Task
	wg     sync.WaitGroup
}

func NewPool(workers int, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	pool := &Pool{tasks: make(chan Task, queue)}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task.Execute()
	}
}

// TryExec queues task without blocking. It reports false when the queue is
// full or the pool is closed.
func (p *Pool) TryExec(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks. Queued tasks still run; use Wait to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}
