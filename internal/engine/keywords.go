package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ListKeywords streams (keyword, videoID, scope) triples for a
// keyword-frequency report. It reuses the scope-resolution, refresh and
// caching machinery of Search but never touches the index.
func (s *Searcher) ListKeywords(ctx context.Context, cmd *SearchCommand) (<-chan Keyword, <-chan error) {
	out := make(chan Keyword)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		if err := s.listKeywords(ctx, cmd, out); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

func (s *Searcher) listKeywords(ctx context.Context, cmd *SearchCommand, out chan<- Keyword) error {
	IncrKeywordRequest()
	if len(cmd.Scopes) == 0 {
		return Inputf("no scopes given")
	}
	rep := cmd.Progress
	if rep == nil {
		rep = nopReporter{}
	}
	runID := uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range cmd.Scopes {
		g.Go(func() error {
			if err := scope.Prevalidate(); err != nil {
				return err
			}
			return scope.Validate(gctx, s.cache, s.provider)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scopeErrs []error
	for _, scope := range cmd.Scopes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.scopeKeywords(ctx, scope, out, rep, runID); err != nil {
				mu.Lock()
				scopeErrs = append(scopeErrs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return errors.Join(ErrCancelled, ctx.Err())
	}
	return errors.Join(scopeErrs...)
}

// scopeKeywords loads every video of the scope (cache-first, bounded
// concurrency) and emits its keywords.
func (s *Searcher) scopeKeywords(ctx context.Context, scope *Scope, out chan<- Keyword, rep Reporter, runID string) error {
	label := scope.Describe()

	var ids []string
	switch scope.Kind {
	case ScopeChannel, ScopePlaylist:
		rep.ScopeStatus(runID, label, StatusRefreshing)
		var pl *Playlist
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

	rep.ScopeStatus(runID, label, StatusDownloading)
	permits := make(chan struct{}, cfg.MaxConcurrentDownloads)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var loadErrs []error

admit:
	for _, id := range ids {
		select {
		case permits <- struct{}{}:
		case <-ctx.Done():
			break admit
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-permits }()
			v, err := loadVideo(ctx, s.cache, s.provider, id)
			if err != nil {
				mu.Lock()
				loadErrs = append(loadErrs, err)
				mu.Unlock()
				return
			}
			for _, kw := range v.Keywords {
				select {
				case out <- Keyword{Keyword: kw, VideoID: v.ID, Scope: label}:
				case <-ctx.Done():
					return
				}
			}
		}(id)
	}
	wg.Wait()
	rep.ScopeStatus(runID, label, StatusSearched)

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(loadErrs...)
}
