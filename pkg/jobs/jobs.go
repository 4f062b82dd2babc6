// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jobs runs deferred work off the request path: index rebuilds
// and download-count increments. Delivery is at-least-once into a worker
// pool; handlers must be idempotent. A failing job is retried in place
// with exponential backoff before being dropped with a log line.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/cenk/backoff"
	"golang.org/x/sync/errgroup"
)

// Job is one unit of deferred work.
type Job interface {
	// Name identifies the job in logs.
	Name() string
	// Perform runs the job. A non-nil error triggers a retry.
	Perform(ctx context.Context) error
}

// NewJob wraps a function as a Job.
func NewJob(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                      { return j.name }
func (j funcJob) Perform(ctx context.Context) error { return j.fn(ctx) }

// Queue feeds jobs to a pool of workers.
type Queue struct {
	// MaxRetries bounds how often a failing job is re-run before it is
	// dropped.
	MaxRetries uint64
	// RetryInterval is the initial backoff interval between retries.
	RetryInterval time.Duration

	ch   chan Job
	done chan struct{}
}

// NewQueue creates a queue holding up to size pending jobs.
func NewQueue(size int) *Queue {
	return &Queue{
		MaxRetries:    5,
		RetryInterval: time.Second,
		ch:            make(chan Job, size),
		done:          make(chan struct{}),
	}
}

// Enqueue hands a job to the pool, blocking while the queue is full. It
// reports false once the queue has shut down.
func (q *Queue) Enqueue(j Job) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- j:
		return true
	case <-q.done:
		return false
	}
}

// Run consumes jobs with the given number of workers until ctx is
// canceled, then drains nothing further and returns.
func (q *Queue) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case j := <-q.ch:
					q.perform(ctx, j)
				}
			}
		})
	}
	err := g.Wait()
	close(q.done)
	return err
}

func (q *Queue) perform(ctx context.Context, j Job) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = q.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, q.MaxRetries), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return j.Perform(ctx)
	}, b)
	if err != nil {
		log.Printf("job %s dropped after %d attempts: %v", j.Name(), attempts, err)
	}
}
