package engine

import (
	"context"
	"time"
)

// VideoStub is the lightweight listing entry returned by playlist and
// channel-uploads fetches. Uploaded is nil until full metadata is fetched.
type VideoStub struct {
	ID       string
	Title    string
	Uploaded *time.Time
}

// TrackRef points at one downloadable caption track of a video.
type TrackRef struct {
	LanguageName string
	URL          string
}

// ChannelInfo is a remotely resolved channel.
type ChannelInfo struct {
	ID        string // "UC..."
	Title     string
	Thumbnail string
}

// UploadsPlaylistID derives the channel's uploads playlist from its ID.
// Every channel has one by construction.
func (c *ChannelInfo) UploadsPlaylistID() string {
	if len(c.ID) > 2 {
		return "UU" + c.ID[2:]
	}
	return ""
}

// PlaylistInfo is a remotely resolved playlist header.
type PlaylistInfo struct {
	ID        string
	Title     string
	Thumbnail string
	Channel   string
}

// Provider is the remote video/metadata/caption collaborator.
// Implementations must return ErrNotFound (possibly wrapped) when an
// entity does not exist, so callers can distinguish bad input from
// transient failures.
type Provider interface {
	// ResolveChannel resolves a channel ID, handle or alias.
	ResolveChannel(ctx context.Context, alias string) (*ChannelInfo, error)
	// PlaylistInfo fetches a playlist's title/thumbnail/channel.
	PlaylistInfo(ctx context.Context, playlistID string) (*PlaylistInfo, error)
	// PlaylistVideos fetches up to limit video stubs in playlist order.
	// Channel uploads are fetched through the channel's uploads playlist.
	PlaylistVideos(ctx context.Context, playlistID string, limit int) ([]VideoStub, error)
	// Video fetches full metadata for one video, without caption tracks.
	Video(ctx context.Context, videoID string) (*Video, error)
	// CaptionTracks lists the caption tracks available for a video.
	CaptionTracks(ctx context.Context, videoID string) ([]TrackRef, error)
	// CaptionTrack downloads one track as time-ordered captions.
	CaptionTrack(ctx context.Context, ref TrackRef) ([]Caption, error)
}
