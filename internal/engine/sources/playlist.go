package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/anatolykoptev/go_subsearch/internal/engine"
)

// Playlist contents come from the playlist web page's embedded
// ytInitialData blob; pages beyond the first hundred entries are pulled
// through Innertube /browse continuations.

var ytInitialDataMarker = []byte("var ytInitialData = ")

// PlaylistVideos fetches up to limit stubs in playlist order.
func (c *Client) PlaylistVideos(ctx context.Context, playlistID string, limit int) ([]engine.VideoStub, error) {
	body, err := c.fetchPage(ctx, ytWebBase+"/playlist?list="+playlistID)
	if err != nil {
		return nil, err
	}
	if isDeadPlaylistPage(body) {
		return nil, engine.ErrNotFound
	}

	data, err := extractInitialData(body)
	if err != nil {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, err)
	}

	var stubs []engine.VideoStub
	token := collectPlaylistPage(data, &stubs)

	for token != "" && (limit <= 0 || len(stubs) < limit) {
		raw, err := c.postInnerTubeWEB(ctx, ytBrowseURL, innertubeReq{Continuation: token})
		if err != nil {
			return nil, fmt.Errorf("playlist %s continuation: %w", playlistID, err)
		}
		var page any
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("playlist %s continuation: %w", playlistID, err)
		}
		before := len(stubs)
		token = collectPlaylistPage(page, &stubs)
		if len(stubs) == before {
			break // no progress, stop rather than loop
		}
	}

	if limit > 0 && len(stubs) > limit {
		stubs = stubs[:limit]
	}
	return stubs, nil
}

// extractInitialData locates and parses the ytInitialData JSON embedded
// in a YouTube page.
func extractInitialData(body []byte) (any, error) {
	i := bytes.Index(body, ytInitialDataMarker)
	if i < 0 {
		return nil, fmt.Errorf("ytInitialData not found")
	}
	raw := extractJSON(body[i+len(ytInitialDataMarker):])
	if raw == nil {
		return nil, fmt.Errorf("ytInitialData not terminated")
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("ytInitialData: %w", err)
	}
	return data, nil
}

// collectPlaylistPage walks one response tree, appending every
// playlistVideoRenderer in document order and returning the next
// continuation token, if any.
func collectPlaylistPage(data any, out *[]engine.VideoStub) (token string) {
	walkJSON(data, func(obj map[string]any) {
		if r, ok := obj["playlistVideoRenderer"].(map[string]any); ok {
			if stub, ok := stubFromRenderer(r); ok {
				*out = append(*out, stub)
			}
			return
		}
		if cmd, ok := obj["continuationCommand"].(map[string]any); ok && token == "" {
			token, _ = cmd["token"].(string)
		}
	})
	return token
}

func stubFromRenderer(r map[string]any) (engine.VideoStub, bool) {
	id, _ := r["videoId"].(string)
	if id == "" {
		return engine.VideoStub{}, false
	}
	return engine.VideoStub{ID: id, Title: runsText(r["title"])}, true
}

// runsText extracts the text of a {"runs":[{"text":...}...]} or
// {"simpleText":...} node.
func runsText(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := obj["simpleText"].(string); ok {
		return s
	}
	runs, _ := obj["runs"].([]any)
	var text string
	for _, run := range runs {
		if m, ok := run.(map[string]any); ok {
			if s, ok := m["text"].(string); ok {
				text += s
			}
		}
	}
	return text
}

// walkJSON visits every JSON object in the tree depth-first.
func walkJSON(v any, visit func(map[string]any)) {
	switch node := v.(type) {
	case map[string]any:
		visit(node)
		for _, child := range node {
			walkJSON(child, visit)
		}
	case []any:
		for _, child := range node {
			walkJSON(child, visit)
		}
	}
}
