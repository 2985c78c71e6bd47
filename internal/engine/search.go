package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SearchCommand is one search across any number of scopes.
type SearchCommand struct {
	Query  string
	Scopes []*Scope
	Order  OrderBy
	Pad    int // highlight padding; 0 uses the configured default

	// Progress receives status and job-count events; nil disables.
	Progress Reporter
}

// Searcher wires the cache and remote provider into the search and
// keyword-report entry points.
type Searcher struct {
	cache    *Cache
	provider Provider
}

// NewSearcher builds a Searcher over the given collaborators.
func NewSearcher(cache *Cache, provider Provider) *Searcher {
	return &Searcher{cache: cache, provider: provider}
}

// Search streams matching videos across all scopes of the command.
//
// The result channel is lazy: consuming one result does not block
// production of others beyond the channel's hand-off. The error channel
// delivers at most one error after the result channel closes — input
// errors, aggregated per-video load errors, or the cancellation
// indication when ctx is cancelled mid-stream. Results emitted before
// cancellation are not revoked.
func (s *Searcher) Search(ctx context.Context, cmd *SearchCommand) (<-chan SearchResult, <-chan error) {
	out := make(chan SearchResult)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		if err := s.search(ctx, cmd, out); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

func (s *Searcher) search(ctx context.Context, cmd *SearchCommand, out chan<- SearchResult) error {
	IncrSearchRequest()
	if len(cmd.Scopes) == 0 {
		return Inputf("no search scopes given")
	}
	query, err := ParseQuery(cmd.Query)
	if err != nil {
		return err
	}
	rep := cmd.Progress
	if rep == nil {
		rep = nopReporter{}
	}
	runID := uuid.NewString()

	// Every scope must be fully validated before any of them searches;
	// a bad identifier is an input error, never a silent skip.
	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range cmd.Scopes {
		g.Go(func() error {
			if err := scope.Prevalidate(); err != nil {
				return err
			}
			rep.ScopeStatus(runID, scope.Describe(), StatusPreValidated)
			if err := scope.Validate(gctx, s.cache, s.provider); err != nil {
				return err
			}
			rep.ScopeStatus(runID, scope.Describe(), StatusValidated)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Fan out one stream per scope; scope failures are collected, not
	// fail-fast, so healthy scopes keep streaming.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var scopeErrs []error
	for _, scope := range cmd.Scopes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.searchScope(ctx, cmd, scope, query, out, rep, runID); err != nil {
				mu.Lock()
				scopeErrs = append(scopeErrs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		// Not an error in disguise: a distinct terminal signal.
		return errors.Join(ErrCancelled, ctx.Err())
	}
	return errors.Join(scopeErrs...)
}

// searchScope produces one scope's result stream: already-indexed videos
// are queried directly while the unindexed remainder flows through the
// loading pipeline; both sub-streams feed out concurrently. Ordering is
// applied by the query step within the scope; across scopes there is no
// ordering guarantee.
func (s *Searcher) searchScope(ctx context.Context, cmd *SearchCommand, scope *Scope, query *ParsedQuery, out chan<- SearchResult, rep Reporter, runID string) error {
	label := scope.Describe()

	var pl *Playlist
	var ids []string
	switch scope.Kind {
	case ScopeChannel, ScopePlaylist:
		rep.ScopeStatus(runID, label, StatusRefreshing)
		err := TrackOperation(ctx, "refresh "+label, func(ctx context.Context) error {
			var err error
			pl, err = RefreshPlaylist(ctx, s.cache, s.provider, scope)
			return err
		})
		if err != nil {
			return err
		}
		err = pl.Update(ctx, func(ps *PlaylistSession) error {
			ids = ps.OrderedIDs(scope.Top())
			return nil
		})
		if err != nil {
			return err
		}
		if len(ids) > scope.Skip {
			ids = ids[scope.Skip:]
		} else {
			ids = nil
		}
	case ScopeVideos:
		ids = scope.VideoIDs
	default:
		panic(fmt.Sprintf("unsupported scope kind %d", int(scope.Kind)))
	}
	if len(ids) == 0 {
		rep.ScopeStatus(runID, label, StatusSearched)
		return nil
	}

	idx, err := OpenIndex(scope.StorageKey())
	if err != nil {
		return err
	}
	defer idx.Close() //nolint:errcheck

	indexed, err := idx.GetIndexed(ctx, ids)
	if err != nil {
		return err
	}
	var indexedIDs, unindexedIDs []string
	for _, id := range ids {
		if indexed[id] {
			indexedIDs = append(indexedIDs, id)
		} else {
			unindexedIDs = append(unindexedIDs, id)
		}
	}

	switch {
	case len(unindexedIDs) == 0:
		rep.ScopeStatus(runID, label, StatusSearching)
	case len(indexedIDs) == 0:
		rep.ScopeStatus(runID, label, StatusIndexing)
	default:
		rep.ScopeStatus(runID, label, StatusIndexingAndSearching)
	}

	lookup := func(ctx context.Context, id string) (*Video, error) {
		return loadVideo(ctx, s.cache, s.provider, id)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	if len(indexedIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := idx.Query(ctx, QueryOptions{
				Query:    query,
				VideoIDs: indexedIDs,
				Order:    cmd.Order,
				Pad:      cmd.Pad,
				Scope:    label,
				Lookup:   lookup,
			})
			if err != nil {
				fail(err)
				return
			}
			for _, r := range results {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if len(unindexedIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &pipeline{
				cache:       s.cache,
				provider:    s.provider,
				idx:         idx,
				query:       query,
				order:       cmd.Order,
				pad:         cmd.Pad,
				scope:       label,
				out:         out,
				onCommitted: s.commitApplier(scope, pl),
				progress:    rep,
				runID:       runID,
			}
			if err := p.run(ctx, unindexedIDs); err != nil {
				fail(err)
			}
		}()
	}

	wg.Wait()
	rep.ScopeStatus(runID, label, StatusSearched)
	return errors.Join(errs...)
}

// commitApplier reconciles the owning playlist's cached snapshot
// (upload timestamps, caption status, keywords) with each committed
// batch. Explicit-video scopes have no playlist to reconcile.
func (s *Searcher) commitApplier(scope *Scope, pl *Playlist) func(context.Context, []*Video) error {
	if pl == nil {
		return nil
	}
	key := scope.StorageKey()
	return func(ctx context.Context, vids []*Video) error {
		changed := false
		err := pl.Update(ctx, func(ps *PlaylistSession) error {
			for _, v := range vids {
				e := ps.Entry(v.ID)
				if e == nil {
					continue
				}
				uploadedChanged := v.Uploaded != nil &&
					(e.Uploaded == nil || !e.Uploaded.Equal(*v.Uploaded))
				if uploadedChanged || e.CaptionStatus == nil || len(e.Keywords) == 0 {
					ps.SetVideoDetails(v)
					changed = true
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.cache.SavePlaylist(ctx, key, pl)
	}
}
