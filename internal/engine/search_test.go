package engine

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestSearcher(t *testing.T) (*Searcher, *fakeProvider) {
	t.Helper()
	cache := openTestCache(t)
	provider := newFakeProvider()
	return NewSearcher(cache, provider), provider
}

// videoID builds a valid 11-char video ID from a small integer.
func videoID(n int) string {
	return fmt.Sprintf("vid%08d", n)
}

func drainSearch(t *testing.T, results <-chan SearchResult, errc <-chan error) ([]SearchResult, error) {
	t.Helper()
	var got []SearchResult
	for r := range results {
		got = append(got, r)
	}
	return got, <-errc
}

func TestSearchVideosScope(t *testing.T) {
	s, provider := newTestSearcher(t)

	var ids []string
	for i := range 8 {
		id := videoID(i)
		ids = append(ids, id)
		line := "nothing to see here"
		if i%3 == 0 {
			line = "discussing the borrow checker at length"
		}
		provider.addVideo(id, fmt.Sprintf("video %d", i), line, nil)
	}

	results, errc := s.Search(context.Background(), &SearchCommand{
		Query:  "borrow",
		Scopes: []*Scope{NewVideosScope(ids)},
	})
	got, err := drainSearch(t, results, errc)
	if err != nil {
		t.Fatal(err)
	}

	matched := make(map[string]bool)
	for _, r := range got {
		matched[r.Video.ID] = true
		if len(r.CaptionMatches) != 1 || r.CaptionMatches[0].At != 100 {
			t.Errorf("caption matches for %s = %+v", r.Video.ID, r.CaptionMatches)
		}
		if r.Scope != "8 videos" {
			t.Errorf("scope label = %q", r.Scope)
		}
	}
	want := map[string]bool{videoID(0): true, videoID(3): true, videoID(6): true}
	if len(matched) != len(want) {
		t.Fatalf("matched = %v, want %v", matched, want)
	}
	for id := range want {
		if !matched[id] {
			t.Errorf("missing match %s", id)
		}
	}
}

func TestSearchSecondRunUsesIndex(t *testing.T) {
	s, provider := newTestSearcher(t)

	var ids []string
	for i := range 4 {
		id := videoID(i)
		ids = append(ids, id)
		provider.addVideo(id, "title", "some caption words", nil)
	}
	cmd := &SearchCommand{Query: "caption", Scopes: []*Scope{NewVideosScope(ids)}}

	resc, errc := chanPair(s.Search(context.Background(), cmd))
	if _, err := drainSearch(t, resc, errc); err != nil {
		t.Fatal(err)
	}
	calls := provider.videoCalls

	resc, errc = chanPair(s.Search(context.Background(), &SearchCommand{
		Query:  "caption",
		Scopes: []*Scope{NewVideosScope(ids)},
	}))
	got, err := drainSearch(t, resc, errc)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("got %d results on indexed run, want 4", len(got))
	}
	if provider.videoCalls != calls {
		t.Errorf("videoCalls grew from %d to %d; indexed run should stay on cache", calls, provider.videoCalls)
	}
}

// chanPair forwards Search's pair return through drainSearch's two params.
func chanPair(results <-chan SearchResult, errc <-chan error) (<-chan SearchResult, <-chan error) {
	return results, errc
}

func TestSearchInputErrors(t *testing.T) {
	s, _ := newTestSearcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  *SearchCommand
	}{
		{
			name: "no scopes",
			cmd:  &SearchCommand{Query: "q"},
		},
		{
			name: "empty query",
			cmd:  &SearchCommand{Query: "  ", Scopes: []*Scope{NewVideosScope([]string{videoID(1)})}},
		},
		{
			name: "malformed video ID",
			cmd:  &SearchCommand{Query: "q", Scopes: []*Scope{NewVideosScope([]string{"nope"})}},
		},
		{
			name: "malformed playlist",
			cmd:  &SearchCommand{Query: "q", Scopes: []*Scope{NewPlaylistScope("!!!")}},
		},
		{
			name: "unknown channel",
			cmd:  &SearchCommand{Query: "q", Scopes: []*Scope{NewChannelScope("@missing")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resc, errc := chanPair(s.Search(ctx, tt.cmd))
			_, err := drainSearch(t, resc, errc)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsInput(err) {
				t.Errorf("expected input error, got %v", err)
			}
		})
	}
}

func TestSearchPlaylistScopeReconcilesSnapshot(t *testing.T) {
	cache := openTestCache(t)
	provider := newFakeProvider()
	s := NewSearcher(cache, provider)
	ctx := context.Background()

	uploaded := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		id := videoID(i)
		ids = append(ids, id)
		provider.addVideo(id, "episode", "the usual topic", &uploaded)
	}
	provider.playlists["PLabcdefghijklmnop"] = &PlaylistInfo{ID: "PLabcdefghijklmnop", Title: "Episodes"}
	provider.listings["PLabcdefghijklmnop"] = stubIDs(ids...)

	scope := NewPlaylistScope("PLabcdefghijklmnop")
	resc, errc := chanPair(s.Search(ctx, &SearchCommand{
		Query:  "topic",
		Scopes: []*Scope{scope},
	}))
	got, err := drainSearch(t, resc, errc)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	if got[0].Scope != "playlist Episodes" {
		t.Errorf("scope label = %q", got[0].Scope)
	}

	// The committed batches must have flowed back into the cached
	// playlist snapshot: upload timestamps and keywords per entry.
	pl, err := cache.LoadPlaylist(ctx, scope.StorageKey())
	if err != nil {
		t.Fatal(err)
	}
	if pl == nil {
		t.Fatal("playlist snapshot not cached")
	}
	err = pl.Update(ctx, func(ps *PlaylistSession) error {
		for _, id := range ids {
			e := ps.Entry(id)
			if e == nil {
				t.Fatalf("entry %s missing", id)
			}
			if e.Uploaded == nil || !e.Uploaded.Equal(uploaded) {
				t.Errorf("entry %s uploaded = %v", id, e.Uploaded)
			}
			if len(e.Keywords) == 0 {
				t.Errorf("entry %s keywords not snapshotted", id)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListKeywords(t *testing.T) {
	s, provider := newTestSearcher(t)

	ids := []string{videoID(0), videoID(1)}
	for _, id := range ids {
		provider.addVideo(id, "title", "", nil)
	}

	kws, errc := s.ListKeywords(context.Background(), &SearchCommand{
		Scopes: []*Scope{NewVideosScope(ids)},
	})
	byVideo := make(map[string][]string)
	for kw := range kws {
		byVideo[kw.VideoID] = append(byVideo[kw.VideoID], kw.Keyword)
		if kw.Scope != "2 videos" {
			t.Errorf("scope label = %q", kw.Scope)
		}
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if len(byVideo[id]) != 1 || byVideo[id][0] != "kw-"+id {
			t.Errorf("keywords for %s = %v", id, byVideo[id])
		}
	}
}
