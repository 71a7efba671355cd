package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Job is one pending fire-and-forget network task.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Run performs the network call.
	Run func(ctx context.Context) error
}

// Outbox serializes the engine's fire-and-forget network work: owner
// propagation, leave requests, and anything else that must not block a
// mutation. Failures are logged in one place and dropped; there is no
// retry queue, since the next save or reconciliation pass re-converges
// the full state anyway.
type Outbox struct {
	jobs    chan Job
	timeout time.Duration
	logger  *log.Logger

	closeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// NewOutbox starts an outbox worker. A nil logger gets a stderr default.
func NewOutbox(logger *log.Logger) *Outbox {
	if logger == nil {
		logger = log.New(os.Stderr, "[outbox] ", log.LstdFlags)
	}
	o := &Outbox{
		jobs:    make(chan Job, 128),
		timeout: 30 * time.Second,
		logger:  logger,
	}
	o.wg.Add(1)
	go o.worker()
	return o
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for job := range o.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		if err := job.Run(ctx); err != nil {
			o.logger.Printf("%s failed: %v", job.Name, err)
		}
		cancel()
	}
}

// Submit queues a job. Submissions after Close, or while the queue is
// saturated, are dropped with a log line.
func (o *Outbox) Submit(job Job) {
	o.closeMu.Lock()
	defer o.closeMu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.jobs <- job:
	default:
		o.logger.Printf("Warning: outbox full, dropping %s", job.Name)
	}
}

// Close drains queued jobs and stops the worker.
func (o *Outbox) Close() {
	o.closeMu.Lock()
	if o.closed {
		o.closeMu.Unlock()
		return
	}
	o.closed = true
	close(o.jobs)
	o.closeMu.Unlock()
	o.wg.Wait()
}

// Flush blocks until every job submitted before the call has run.
func (o *Outbox) Flush() {
	done := make(chan struct{})
	o.Submit(Job{Name: "flush", Run: func(context.Context) error {
		close(done)
		return nil
	}})
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}
