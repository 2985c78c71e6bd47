package engine

import (
	"context"
	"errors"
	"fmt"
)

// loadVideo returns the full video record with captions, from cache when
// fully captioned there, otherwise from the provider — downloading every
// caption track and persisting the result.
//
// A track that fails to download is captured as an error state on the
// track itself; the video still loads and gets indexed without it.
func loadVideo(ctx context.Context, cache *Cache, provider Provider, id string) (*Video, error) {
	v, err := cache.LoadVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if v != nil && v.CaptionsLoaded {
		return v, nil
	}

	IncrVideoLoad()
	v, err = provider.Video(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, InputWrap(err, "video %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", id, err)
	}

	refs, err := provider.CaptionTracks(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("caption tracks of %s: %w", id, err)
	}
	for _, ref := range refs {
		track := CaptionTrack{LanguageName: ref.LanguageName, URL: ref.URL}
		IncrCaptionDownload()
		captions, err := provider.CaptionTrack(ctx, ref)
		if err != nil {
			IncrCaptionError()
			track.Error = fmt.Sprintf("downloading %q caption track failed", ref.LanguageName)
			track.ErrorDetail = err.Error()
		} else {
			track.Captions = normalizeCaptions(captions)
		}
		v.Tracks = append(v.Tracks, track)
	}

	v.CaptionsLoaded = true
	if err := cache.SaveVideo(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
