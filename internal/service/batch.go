package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/timmy/outreach/internal/domain"
)

type batchJob struct {
	index   int
	contact domain.Contact
}

// runBatch executes one page of contacts on a bounded worker pool.
// results[i] is the outcome of contacts[i], so callers fold results in
// page order regardless of completion order.
func (o *Orchestrator) runBatch(ctx context.Context, executor StageExecutor, contacts []domain.Contact, params domain.StageParams) []error {
	results := make([]error, len(contacts))

	workers := o.workers
	if workers > len(contacts) {
		workers = len(contacts)
	}

	jobs := make(chan batchJob, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results[job.index] = o.execute(ctx, executor, job.contact, params)
			}
		}()
	}

feed:
	for i, contact := range contacts {
		select {
		case <-ctx.Done():
			for j := i; j < len(contacts); j++ {
				results[j] = ctx.Err()
			}
			break feed
		case jobs <- batchJob{index: i, contact: contact}:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

// execute runs a single executor call, turning a panic into an item error.
func (o *Orchestrator) execute(ctx context.Context, executor StageExecutor, contact domain.Contact, params domain.StageParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log(ctx).WithField("contact_id", contact.ID).Errorf("Stage executor panicked: %v", r)
			err = &ExecutionError{Kind: ExecKindUnknown, Message: fmt.Sprintf("executor panic: %v", r)}
		}
	}()
	return executor.Execute(ctx, contact, params)
}
