package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// pipeline loads not-yet-indexed videos of one scope with bounded
// concurrency, feeds them to the index in commit-sized batches, and emits
// search results for each batch right after its commit — while later
// downloads are still in flight.
//
// Downloads are admitted through a counting permit and hand their videos
// to a single consumer over a bounded queue; only that consumer touches
// the open index batch, so batch state needs no lock of its own.
type pipeline struct {
	cache    *Cache
	provider Provider
	idx      *Index

	query *ParsedQuery
	order OrderBy
	pad   int
	scope string

	out chan<- SearchResult

	// onCommitted is invoked after each batch commit with the videos it
	// contained, concurrently with the post-commit query. The
	// orchestrator uses it to reconcile the playlist's upload-timestamp
	// and caption-status snapshots. May be nil.
	onCommitted func(ctx context.Context, vids []*Video) error

	progress Reporter
	runID    string

	total     int
	running   atomic.Int64
	completed atomic.Int64
}

func (p *pipeline) lookup(ctx context.Context, id string) (*Video, error) {
	return loadVideo(ctx, p.cache, p.provider, id)
}

func (p *pipeline) reportJobs() {
	running := int(p.running.Load())
	completed := int(p.completed.Load())
	p.progress.Jobs(p.runID, p.scope, p.total-running-completed, running, completed)
}

// run processes ids to completion. Per-video load failures are isolated
// and aggregated; they are returned together after all in-flight loads
// settle. Cancellation stops admitting work and surfaces ctx.Err once the
// current commit (if any) has finished.
func (p *pipeline) run(ctx context.Context, ids []string) error {
	p.total = len(ids)
	permits := make(chan struct{}, cfg.MaxConcurrentDownloads)
	loaded := make(chan *Video, cfg.HandoffCapacity)

	var loadMu sync.Mutex
	var loadErrs []error

	// Admission: one goroutine per video, gated by the permit channel so
	// at most MaxConcurrentDownloads videos are in memory before the
	// consumer accepts them.
	var wg sync.WaitGroup
	go func() {
		defer close(loaded)
	admit:
		for _, id := range ids {
			select {
			case permits <- struct{}{}:
			case <-ctx.Done():
				break admit
			}
			wg.Add(1)
			p.running.Add(1)
			p.reportJobs()
			go func(id string) {
				defer wg.Done()
				defer func() {
					<-permits
					p.running.Add(-1)
					p.completed.Add(1)
					p.reportJobs()
				}()
				v, err := p.lookup(ctx, id)
				if err != nil {
					loadMu.Lock()
					loadErrs = append(loadErrs, err)
					loadMu.Unlock()
					return
				}
				select {
				case loaded <- v:
				case <-ctx.Done():
				}
			}(id)
		}
		wg.Wait()
	}()

	consumeErr := p.consume(ctx, loaded)
	if consumeErr != nil {
		// Unblock producers still waiting to hand off.
		go func() {
			for range loaded { //nolint:revive
			}
		}()
	}

	// Loads have settled by the time loaded closes; under cancellation
	// the producers exit through their ctx branches.
	wg.Wait()
	loadMu.Lock()
	defer loadMu.Unlock()
	if consumeErr != nil {
		return errors.Join(append(loadErrs, consumeErr)...)
	}
	if len(loadErrs) > 0 {
		return errors.Join(loadErrs...)
	}
	return nil
}

// consume is the single batch-building consumer. It commits when the
// batch is full, when the queue is momentarily empty (use the index
// while we have nothing else to do), and at stream end.
func (p *pipeline) consume(ctx context.Context, loaded <-chan *Video) error {
	var batch []*Video
	batchOpen := false

	abandon := func() error {
		if !batchOpen {
			return ctx.Err()
		}
		// Rolls back: the batch was never in flight.
		_, err := p.idx.CommitBatch(ctx)
		return err
	}

	for {
		var v *Video
		var ok bool
		select {
		case <-ctx.Done():
			return abandon()
		case v, ok = <-loaded:
		}
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return abandon()
		}

		if !batchOpen {
			if err := p.idx.BeginBatch(ctx); err != nil {
				return err
			}
			batchOpen = true
		}
		if err := p.idx.Add(ctx, v); err != nil {
			return err
		}
		batch = append(batch, v)

		if len(batch) >= cfg.BatchSize || len(loaded) == 0 {
			if err := p.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			batchOpen = false
		}
	}

	if batchOpen {
		return p.flush(ctx, batch)
	}
	return nil
}

// flush commits the open batch, reconciles playlist snapshots and queries
// the just-committed videos concurrently, then emits their results.
func (p *pipeline) flush(ctx context.Context, batch []*Video) error {
	committed, err := p.idx.CommitBatch(ctx)
	if err != nil {
		return err
	}

	applied := make(chan error, 1)
	if p.onCommitted != nil {
		vids := append([]*Video(nil), batch...)
		go func() { applied <- p.onCommitted(ctx, vids) }()
	} else {
		applied <- nil
	}

	ids := make([]string, len(committed))
	for i, c := range committed {
		ids[i] = c.ID
	}
	results, queryErr := p.idx.Query(ctx, QueryOptions{
		Query:    p.query,
		VideoIDs: ids,
		Order:    p.order,
		Pad:      p.pad,
		Scope:    p.scope,
		Lookup:   p.lookup,
	})
	if applyErr := <-applied; applyErr != nil {
		return applyErr
	}
	if queryErr != nil {
		return queryErr
	}

	for _, r := range results {
		select {
		case p.out <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
