package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RefreshPlaylist reconciles the cached playlist for a channel or playlist
// scope against a fresh fetch. If the cached copy was loaded within the
// scope's staleness window and already covers the requested window, it is
// returned unchanged without a network call.
//
// Videos that disappeared from the fresh fetch keep their entry with a
// nil position so caches of prior searches stay referenceable.
func RefreshPlaylist(ctx context.Context, cache *Cache, provider Provider, scope *Scope) (*Playlist, error) {
	if scope.Kind != ScopeChannel && scope.Kind != ScopePlaylist {
		panic(fmt.Sprintf("refresh: unsupported scope kind %d", int(scope.Kind)))
	}
	key := scope.StorageKey()

	pl, err := cache.LoadPlaylist(ctx, key)
	if err != nil {
		return nil, err
	}
	if pl != nil {
		fresh := false
		window := time.Duration(math.Abs(scope.CacheHours) * float64(time.Hour))
		if time.Since(pl.Loaded) < window {
			err := pl.Update(ctx, func(s *PlaylistSession) error {
				fresh = s.Count() >= scope.Top()
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		if fresh {
			return pl, nil
		}
	}
	if pl == nil {
		pl = NewPlaylist()
	}

	IncrPlaylistRefresh()
	stubs, err := provider.PlaylistVideos(ctx, scope.playlistID, scope.Top())
	if errors.Is(err, ErrNotFound) {
		if scope.Kind == ScopePlaylist {
			// The user gave us a bad or deleted playlist reference.
			return nil, InputWrap(err, "playlist %q not found", scope.Alias)
		}
		// Channels always have an uploads playlist by construction.
		return nil, fmt.Errorf("uploads playlist of channel %q unavailable: %w", scope.Alias, err)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", scope.Describe(), err)
	}

	pl.Title = scope.Title
	pl.Thumbnail = scope.Thumbnail
	pl.Channel = scope.channelTitle()

	err = pl.Update(ctx, func(s *PlaylistSession) error {
		current := make(map[string]bool, len(stubs))
		for i, stub := range stubs {
			current[stub.ID] = true
			if s.Entry(stub.ID) == nil {
				s.Add(&VideoEntry{ID: stub.ID})
			}
			pos := i
			s.SetPosition(stub.ID, &pos)
			if stub.Uploaded != nil {
				s.SetUploaded(stub.ID, *stub.Uploaded)
			}
		}
		// Previously known, absent from the fresh fetch: dropped, not deleted.
		for _, id := range s.OrderedIDs(0) {
			if !current[id] {
				s.SetPosition(id, nil)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pl.Loaded = time.Now().UTC()
	if err := cache.SavePlaylist(ctx, key, pl); err != nil {
		return nil, err
	}
	return pl, nil
}

// channelTitle names the owning channel for the playlist record.
func (s *Scope) channelTitle() string {
	if s.Kind == ScopeChannel {
		return s.Title
	}
	return ""
}
