package engine

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// shardSize groups playlist entries into storage-locality shards.
// The shard number is a hint only; search correctness never depends on it.
const shardSize = 200

// Playlist is the cached record for a channel's uploads or a genuine
// playlist. Its entry collection is only reachable through Update, which
// holds the playlist's single change token for the duration of the
// session — the token is released on every exit path.
type Playlist struct {
	Title     string
	Thumbnail string
	Channel   string
	Loaded    time.Time

	token   chan struct{}
	entries []*VideoEntry
	byID    map[string]*VideoEntry
}

// NewPlaylist returns an empty playlist ready for updates.
func NewPlaylist() *Playlist {
	return &Playlist{
		token: make(chan struct{}, 1),
		byID:  make(map[string]*VideoEntry),
	}
}

// PlaylistSession is the narrow command interface over a playlist's entry
// collection, valid only inside the Update callback that produced it.
type PlaylistSession struct {
	p *Playlist
}

// Update runs fn while exclusively holding the playlist's change token.
func (p *Playlist) Update(ctx context.Context, fn func(s *PlaylistSession) error) error {
	select {
	case p.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.token }()
	return fn(&PlaylistSession{p: p})
}

// Count returns the number of known entries, dropped ones included.
func (s *PlaylistSession) Count() int { return len(s.p.entries) }

// Entry returns the entry for id, or nil.
func (s *PlaylistSession) Entry(id string) *VideoEntry { return s.p.byID[id] }

// Add appends a new entry. Entries are globally unique by ID; adding an
// existing ID returns the existing entry unchanged.
func (s *PlaylistSession) Add(e *VideoEntry) *VideoEntry {
	if existing, ok := s.p.byID[e.ID]; ok {
		return existing
	}
	s.p.entries = append(s.p.entries, e)
	s.p.byID[e.ID] = e
	return e
}

// SetPosition moves an entry to pos (nil = dropped) and refreshes its
// shard hint from the new position.
func (s *PlaylistSession) SetPosition(id string, pos *int) {
	e := s.p.byID[id]
	if e == nil {
		return
	}
	e.Position = pos
	if pos == nil {
		return
	}
	shard := *pos / shardSize
	e.Shard = &shard
}

// SetUploaded records a freshly observed upload timestamp.
func (s *PlaylistSession) SetUploaded(id string, uploaded time.Time) {
	if e := s.p.byID[id]; e != nil {
		u := uploaded
		e.Uploaded = &u
	}
}

// SetVideoDetails snapshots caption status and keywords from a loaded video.
func (s *PlaylistSession) SetVideoDetails(v *Video) {
	e := s.p.byID[v.ID]
	if e == nil {
		return
	}
	if v.Uploaded != nil {
		u := *v.Uploaded
		e.Uploaded = &u
	}
	e.CaptionStatus = captionStatusOf(v)
	if len(v.Keywords) > 0 {
		e.Keywords = v.Keywords
	}
}

// OrderedIDs returns the IDs of non-dropped entries in position order,
// at most max of them (max <= 0 means all).
func (s *PlaylistSession) OrderedIDs(max int) []string {
	type positioned struct {
		id  string
		pos int
	}
	ordered := make([]positioned, 0, len(s.p.entries))
	for _, e := range s.p.entries {
		if e.Position != nil {
			ordered = append(ordered, positioned{e.ID, *e.Position})
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })
	if max > 0 && len(ordered) > max {
		ordered = ordered[:max]
	}
	ids := make([]string, len(ordered))
	for i, o := range ordered {
		ids[i] = o.id
	}
	return ids
}

// playlistJSON is the persisted shape of a Playlist.
type playlistJSON struct {
	Title     string        `json:"title"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Channel   string        `json:"channel,omitempty"`
	Loaded    time.Time     `json:"loaded"`
	Entries   []*VideoEntry `json:"entries,omitempty"`
}

// MarshalJSON round-trips the data model losslessly, nullable fields included.
func (p *Playlist) MarshalJSON() ([]byte, error) {
	return json.Marshal(playlistJSON{
		Title:     p.Title,
		Thumbnail: p.Thumbnail,
		Channel:   p.Channel,
		Loaded:    p.Loaded,
		Entries:   p.entries,
	})
}

func (p *Playlist) UnmarshalJSON(data []byte) error {
	var pj playlistJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.Title = pj.Title
	p.Thumbnail = pj.Thumbnail
	p.Channel = pj.Channel
	p.Loaded = pj.Loaded
	p.token = make(chan struct{}, 1)
	p.entries = pj.Entries
	p.byID = make(map[string]*VideoEntry, len(pj.Entries))
	for _, e := range pj.Entries {
		p.byID[e.ID] = e
	}
	return nil
}
