package engine

import (
	"strings"
	"time"
)

// Caption is a single timed line of a caption track.
type Caption struct {
	At   int    `json:"at"` // seconds from video start
	Text string `json:"text"`
}

// CaptionTrack is one language track of a video's captions.
// A track that failed to download keeps its Error/ErrorDetail instead of
// captions; the video is still indexed without it.
type CaptionTrack struct {
	LanguageName string    `json:"language_name"`
	URL          string    `json:"url"`
	Captions     []Caption `json:"captions,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
}

// FullText joins the track's caption lines into one searchable string.
func (t *CaptionTrack) FullText() string {
	if len(t.Captions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(t.Captions))
	for _, c := range t.Captions {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// Video is the cached per-video record. Once CaptionsLoaded is set the
// record is treated as cold data and never re-fetched.
type Video struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Keywords       []string       `json:"keywords,omitempty"`
	Uploaded       *time.Time     `json:"uploaded,omitempty"`
	Tracks         []CaptionTrack `json:"tracks,omitempty"`
	CaptionsLoaded bool           `json:"captions_loaded"`
}

// CaptionStatus summarises caption availability for a playlist entry.
type CaptionStatus string

const (
	CaptionsNone  CaptionStatus = "none"
	CaptionsError CaptionStatus = "error"
)

// captionStatusOf derives the entry-level caption status from a loaded video.
// nil means tracks downloaded cleanly, or the video hasn't been checked yet.
func captionStatusOf(v *Video) *CaptionStatus {
	if !v.CaptionsLoaded {
		return nil
	}
	for _, t := range v.Tracks {
		if t.Error != "" {
			s := CaptionsError
			return &s
		}
	}
	if len(v.Tracks) == 0 {
		s := CaptionsNone
		return &s
	}
	return nil
}

// VideoEntry is a playlist's knowledge about one video. Position nil means
// the video was seen before but is currently dropped from the playlist;
// the entry is kept so earlier search caches stay referenceable.
type VideoEntry struct {
	ID            string         `json:"id"`
	Uploaded      *time.Time     `json:"uploaded,omitempty"`
	Position      *int           `json:"position,omitempty"`
	Shard         *int           `json:"shard,omitempty"`
	CaptionStatus *CaptionStatus `json:"caption_status,omitempty"`
	Keywords      []string       `json:"keywords,omitempty"`
}

// MatchSpan is a padded, merged highlight within one text field.
// Start is a rune offset into the original field text.
type MatchSpan struct {
	Start int    `json:"start"`
	Text  string `json:"text"`
}

// CaptionMatch locates matches inside one caption line of a track.
type CaptionMatch struct {
	Track string      `json:"track"`
	At    int         `json:"at"` // seconds from video start
	Spans []MatchSpan `json:"spans"`
}

// SearchResult is one matching video, with per-field highlight spans.
type SearchResult struct {
	Video              *Video         `json:"video"`
	Scope              string         `json:"scope"`
	Score              float64        `json:"score"`
	TitleMatches       []MatchSpan    `json:"title_matches,omitempty"`
	DescriptionMatches []MatchSpan    `json:"description_matches,omitempty"`
	KeywordMatches     []string       `json:"keyword_matches,omitempty"`
	CaptionMatches     []CaptionMatch `json:"caption_matches,omitempty"`
}

// Keyword is one row of the keyword-frequency report.
type Keyword struct {
	Keyword string `json:"keyword"`
	VideoID string `json:"video_id"`
	Scope   string `json:"scope"`
}

// normalizeCaptions sorts captions by time offset and drops duplicates
// (same offset and text), which YouTube timedtext occasionally emits.
func normalizeCaptions(captions []Caption) []Caption {
	if len(captions) == 0 {
		return captions
	}
	out := append(make([]Caption, 0, len(captions)), captions...)
	// Insertion sort keeps already-ordered tracks cheap.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].At < out[j-1].At; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	dedup := out[:0]
	for i, c := range out {
		if i > 0 && c.At == dedup[len(dedup)-1].At && c.Text == dedup[len(dedup)-1].Text {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}
