package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job is one unit of per-user work.
type Job func(ctx context.Context)

type queue struct {
	pending []Job
}

// Dispatcher runs jobs in arrival order per key and concurrently across
// keys. Each key gets a goroutine only while it has pending work.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[string]*queue
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queues: make(map[string]*queue),
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Submit appends job to the queue of key.
func (d *Dispatcher) Submit(ctx context.Context, key string, job Job) {
	d.mu.Lock()
	q, running := d.queues[key]
	if !running {
		q = &queue{}
		d.queues[key] = q
	}
	q.pending = append(q.pending, job)
	d.mu.Unlock()

	if !running {
		d.wg.Add(1)
		go d.drain(ctx, key, q)
	}
}

// Active returns the number of keys with a running worker.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every queue is drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(ctx context.Context, key string, q *queue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.run(ctx, key, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("key", key).Msg("Update handler panicked")
		}
	}()
	job(ctx)
}
