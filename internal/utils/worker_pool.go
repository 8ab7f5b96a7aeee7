package utils

import (
	"sync"

	"github.com/rs/zerolog"
)

// WorkerPool manages a pool of workers to execute tasks.
type WorkerPool struct {
	jobQueue  chan func()
	waitGroup sync.WaitGroup
	logger    zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines reading from a queue of backlog tasks.
func NewWorkerPool(workers, backlog int, logger zerolog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if backlog < workers {
		backlog = workers
	}
	pool := &WorkerPool{
		jobQueue: make(chan func(), backlog),
		logger:   logger,
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes tasks from the jobQueue. A panicking task does not take
// the worker down.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for task := range wp.jobQueue {
		wp.run(task)
	}
}

func (wp *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().Interface("panic", r).Msg("Worker task panicked")
		}
	}()
	task()
}

// Submit queues task, blocking while the backlog is full. It returns false
// once the pool is shut down.
func (wp *WorkerPool) Submit(task func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}
	wp.jobQueue <- task
	return true
}

// Shutdown stops accepting tasks, runs the queued ones and waits for the workers.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.waitGroup.Wait()
}
