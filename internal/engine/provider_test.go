package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeProvider is an in-memory Provider with call counters and an
// optional per-call hook for concurrency and failure injection.
type fakeProvider struct {
	mu        sync.Mutex
	channels  map[string]*ChannelInfo
	playlists map[string]*PlaylistInfo
	listings  map[string][]VideoStub
	videos    map[string]*Video
	tracks    map[string][]TrackRef
	captions  map[string][]Caption
	failVideo map[string]error

	listCalls  int
	videoCalls int

	// onVideo, if set, runs at the start of every Video call.
	onVideo func(ctx context.Context, id string)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		channels:  make(map[string]*ChannelInfo),
		playlists: make(map[string]*PlaylistInfo),
		listings:  make(map[string][]VideoStub),
		videos:    make(map[string]*Video),
		tracks:    make(map[string][]TrackRef),
		captions:  make(map[string][]Caption),
		failVideo: make(map[string]error),
	}
}

// addVideo registers a video with a single caption track of one line.
func (f *fakeProvider) addVideo(id, title, captionLine string, uploaded *time.Time) {
	f.videos[id] = &Video{ID: id, Title: title, Keywords: []string{"kw-" + id}, Uploaded: uploaded}
	if captionLine != "" {
		url := "track://" + id
		f.tracks[id] = []TrackRef{{LanguageName: "English", URL: url}}
		f.captions[url] = []Caption{{At: 100, Text: captionLine}}
	}
}

func (f *fakeProvider) ResolveChannel(_ context.Context, alias string) (*ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.channels[alias]; ok {
		return info, nil
	}
	return nil, ErrNotFound
}

func (f *fakeProvider) PlaylistInfo(_ context.Context, playlistID string) (*PlaylistInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.playlists[playlistID]; ok {
		return info, nil
	}
	return nil, ErrNotFound
}

func (f *fakeProvider) PlaylistVideos(_ context.Context, playlistID string, limit int) ([]VideoStub, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	stubs, ok := f.listings[playlistID]
	if !ok {
		return nil, ErrNotFound
	}
	if limit > 0 && len(stubs) > limit {
		stubs = stubs[:limit]
	}
	return stubs, nil
}

func (f *fakeProvider) Video(ctx context.Context, videoID string) (*Video, error) {
	f.mu.Lock()
	f.videoCalls++
	hook := f.onVideo
	err := f.failVideo[videoID]
	v := f.videos[videoID]
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, videoID)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeProvider) CaptionTracks(_ context.Context, videoID string) ([]TrackRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracks[videoID], nil
}

func (f *fakeProvider) CaptionTrack(_ context.Context, ref TrackRef) ([]Caption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if captions, ok := f.captions[ref.URL]; ok {
		return captions, nil
	}
	return nil, fmt.Errorf("no such track %s", ref.URL)
}
