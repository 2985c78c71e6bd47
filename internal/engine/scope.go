package engine

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ScopeKind enumerates the closed set of search target variants.
type ScopeKind int

const (
	ScopeChannel ScopeKind = iota // a channel's uploads playlist
	ScopePlaylist
	ScopeVideos // an explicit set of video IDs
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeChannel:
		return "channel"
	case ScopePlaylist:
		return "playlist"
	case ScopeVideos:
		return "videos"
	}
	panic(fmt.Sprintf("unsupported scope kind %d", int(k)))
}

// validationStage tracks how far a scope has been validated.
type validationStage int

const (
	stageUnvalidated validationStage = iota
	stagePrevalidated
	stageValidated
)

var (
	videoIDRe    = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	playlistIDRe = regexp.MustCompile(`^(PL|UU|OL|RD|FL)[a-zA-Z0-9_-]{10,60}$`)
	channelIDRe  = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)
	playlistURLre = regexp.MustCompile(`[?&]list=([a-zA-Z0-9_-]{12,62})`)
)

// Scope is one search target: a channel's uploads, a playlist, or an
// explicit video list. A scope must be fully validated before it
// participates in a search; validation failures are input errors,
// never silent skips.
type Scope struct {
	Kind     ScopeKind
	Alias    string   // channel/playlist reference as given by the caller
	VideoIDs []string // explicit-videos scope only

	// Window parameters for playlist-like scopes.
	Skip       int
	Take       int
	CacheHours float64 // staleness window for the cached playlist

	stage      validationStage
	channelID  string
	playlistID string
	Title      string
	Thumbnail  string
	playlist   *Playlist
}

// NewChannelScope targets a channel's uploads by ID, handle or alias.
func NewChannelScope(alias string) *Scope {
	return &Scope{Kind: ScopeChannel, Alias: alias}
}

// NewPlaylistScope targets a playlist by ID or URL.
func NewPlaylistScope(ref string) *Scope {
	return &Scope{Kind: ScopePlaylist, Alias: ref}
}

// NewVideosScope targets an explicit set of video IDs.
func NewVideosScope(ids []string) *Scope {
	return &Scope{Kind: ScopeVideos, VideoIDs: ids}
}

// Top is the upper bound of the Skip+Take window.
func (s *Scope) Top() int { return s.Skip + s.Take }

// Prevalidate checks the scope for local well-formedness.
func (s *Scope) Prevalidate() error {
	if s.Take <= 0 {
		s.Take = 50
	}
	if s.CacheHours == 0 {
		s.CacheHours = 24
	}
	switch s.Kind {
	case ScopeChannel:
		if strings.TrimSpace(s.Alias) == "" {
			return Inputf("channel: empty alias")
		}
	case ScopePlaylist:
		id := s.Alias
		if m := playlistURLre.FindStringSubmatch(s.Alias); m != nil {
			id = m[1]
		}
		if !playlistIDRe.MatchString(id) {
			return Inputf("playlist: %q is not a recognizable playlist ID or URL", s.Alias)
		}
		s.playlistID = id
	case ScopeVideos:
		if len(s.VideoIDs) == 0 {
			return Inputf("videos: no video IDs given")
		}
		for _, id := range s.VideoIDs {
			if !videoIDRe.MatchString(id) {
				return Inputf("videos: %q is not a valid video ID", id)
			}
		}
	default:
		panic(fmt.Sprintf("unsupported scope kind %d", int(s.Kind)))
	}
	s.stage = stagePrevalidated
	return nil
}

// Validate resolves the scope remotely: channel aliases to channel IDs
// (cached), playlist headers to titles. Explicit video IDs are validated
// when loaded. Prevalidate must have run first.
func (s *Scope) Validate(ctx context.Context, cache *Cache, provider Provider) error {
	if s.stage < stagePrevalidated {
		if err := s.Prevalidate(); err != nil {
			return err
		}
	}
	switch s.Kind {
	case ScopeChannel:
		info, err := resolveChannel(ctx, cache, provider, s.Alias)
		if errors.Is(err, ErrNotFound) {
			return InputWrap(err, "channel %q not found", s.Alias)
		}
		if err != nil {
			return fmt.Errorf("resolve channel %q: %w", s.Alias, err)
		}
		s.channelID = info.ID
		s.playlistID = info.UploadsPlaylistID()
		s.Title = info.Title
		s.Thumbnail = info.Thumbnail
	case ScopePlaylist:
		info, err := provider.PlaylistInfo(ctx, s.playlistID)
		if errors.Is(err, ErrNotFound) {
			return InputWrap(err, "playlist %q not found", s.Alias)
		}
		if err != nil {
			return fmt.Errorf("resolve playlist %q: %w", s.Alias, err)
		}
		s.Title = info.Title
		s.Thumbnail = info.Thumbnail
	case ScopeVideos:
		// Nothing to resolve up front; a bad ID surfaces as an input
		// error from the loader.
	default:
		panic(fmt.Sprintf("unsupported scope kind %d", int(s.Kind)))
	}
	s.stage = stageValidated
	return nil
}

// StorageKey derives the deterministic cache/index key for this scope.
// Explicit video lists get one key per distinct ID set.
func (s *Scope) StorageKey() string {
	switch s.Kind {
	case ScopeChannel:
		return "channel:" + s.channelID
	case ScopePlaylist:
		return "playlist:" + s.playlistID
	case ScopeVideos:
		ids := append([]string(nil), s.VideoIDs...)
		sort.Strings(ids)
		sum := sha256.Sum256([]byte(strings.Join(ids, "|")))
		return fmt.Sprintf("videos:%x", sum[:12])
	}
	panic(fmt.Sprintf("unsupported scope kind %d", int(s.Kind)))
}

// Describe names the scope for results and progress events.
func (s *Scope) Describe() string {
	switch s.Kind {
	case ScopeChannel, ScopePlaylist:
		if s.Title != "" {
			return s.Kind.String() + " " + s.Title
		}
		return s.Kind.String() + " " + s.Alias
	case ScopeVideos:
		return fmt.Sprintf("%d videos", len(s.VideoIDs))
	}
	panic(fmt.Sprintf("unsupported scope kind %d", int(s.Kind)))
}

// channelAliasRecord is the cached alias → channel mapping.
type channelAliasRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// resolveChannel maps a user-supplied channel reference to a ChannelInfo,
// consulting the cached alias map before going remote. Raw "UC..." IDs
// are still resolved once to pick up the channel title.
func resolveChannel(ctx context.Context, cache *Cache, provider Provider, alias string) (*ChannelInfo, error) {
	key := "channel-alias:" + strings.ToLower(strings.TrimSpace(alias))
	var rec channelAliasRecord
	found, err := cache.GetJSON(ctx, key, &rec)
	if err != nil {
		return nil, err
	}
	if found {
		return &ChannelInfo{ID: rec.ID, Title: rec.Title, Thumbnail: rec.Thumbnail}, nil
	}

	info, err := provider.ResolveChannel(ctx, alias)
	if err != nil {
		return nil, err
	}
	if !channelIDRe.MatchString(info.ID) {
		return nil, fmt.Errorf("provider returned malformed channel ID %q for %q", info.ID, alias)
	}
	err = cache.SetJSON(ctx, key, channelAliasRecord{
		ID: info.ID, Title: info.Title, Thumbnail: info.Thumbnail,
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
