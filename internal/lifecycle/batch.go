package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/experience-mcp/pkg/types"
)

// maxBatchErrors bounds the error messages kept in a BatchResult
const maxBatchErrors = 20

// BatchResult summarizes a batch run. Failures are counted, never raised.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int      // Already embedded by the time the item ran
	Cancelled bool     // Stopped before every candidate was processed
	Errors    []string // First failures, bounded
	Duration  time.Duration
}

// BatchEnsureEmbeddings embeds eligible records that have no embedding.
//
// Consecutive provider calls start at least BatchDelay apart. Cancellation is
// cooperative: an item that already started finishes on a context detached
// from ctx, then no further items start. On cancellation the partial result
// is returned together with ctx.Err(). Only the candidate listing can fail
// the whole batch.
func (m *Manager) BatchEnsureEmbeddings(ctx context.Context, limit, offset int) (BatchResult, error) {
	start := time.Now()

	candidates, err := m.store.ListMissingEmbeddings(ctx, limit, offset)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		processed atomic.Int32
		succeeded atomic.Int32
		failed    atomic.Int32
		skipped   atomic.Int32
		mu        sync.Mutex // Protect errs
		errs      []string
	)

	gate := newDelayGate(m.delay)
	g := new(errgroup.Group)
	g.SetLimit(m.workers)

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gate.wait(ctx); err != nil {
				return nil
			}
			m.processItem(context.WithoutCancel(ctx), c, &processed, &succeeded, &failed, &skipped, &mu, &errs)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{
		Processed: int(processed.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    errs,
		Duration:  time.Since(start),
	}
	res.Cancelled = res.Processed < len(candidates)

	m.logger.Info().
		Int("candidates", len(candidates)).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Bool("cancelled", res.Cancelled).
		Dur("duration", res.Duration).
		Msg("batch embedding finished")

	if res.Cancelled {
		return res, ctx.Err()
	}
	return res, nil
}

func (m *Manager) processItem(ctx context.Context, exp *types.Experience,
	processed, succeeded, failed, skipped *atomic.Int32, mu *sync.Mutex, errs *[]string) {
	processed.Add(1)

	outcome, err := m.EnsureEmbedding(ctx, exp.ID)
	if err != nil {
		failed.Add(1)
		m.logger.Warn().Err(err).Str("id", exp.ID).Msg("batch item failed")
		mu.Lock()
		if len(*errs) < maxBatchErrors {
			*errs = append(*errs, exp.ID+": "+err.Error())
		}
		mu.Unlock()
		return
	}

	if outcome == OutcomeAlreadyEmbedded {
		skipped.Add(1)
		return
	}
	succeeded.Add(1)
}

// delayGate spaces the start of consecutive calls by a fixed delay
type delayGate struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

func newDelayGate(delay time.Duration) *delayGate {
	return &delayGate{delay: delay}
}

// wait blocks until the next call may start. Waiters are served one at a time.
func (d *delayGate) wait(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if wait := time.Until(d.next); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	d.next = time.Now().Add(d.delay)
	return nil
}
