package worker

import (
	"context"
	"fmt"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// execute runs one handler invocation inside its own goroutine with panic
// containment and a hard timeout. A crash or timeout surfaces as an ordinary
// error so the slot nacks instead of dying: one bad job must never take down
// the pool or other jobs.
//
// On timeout the handler goroutine may still be running; it holds the
// cancelled context and is expected to unwind. The slot moves on regardless —
// the claim is already settled, and a truly wedged handler is eventually
// covered by the reaper's stale-claim sweep.
func (p *Pool) execute(def queue.Definition, job *domain.Job) (any, error) {
	runCtx, cancel := context.WithTimeout(context.Background(), p.handlerTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()

		report := func(percent int) {
			p.manager.ReportProgress(runCtx, job.ID, percent)
		}
		result, err := def.Handle(runCtx, job, report)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("handler timeout after %s: %w", p.handlerTimeout, runCtx.Err())
	}
}
