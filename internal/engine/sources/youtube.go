package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_subsearch/internal/engine"
)

// Client talks to YouTube through the public web pages and the Innertube
// API, implementing engine.Provider. All outbound requests share one rate
// limiter and the retry policy of engine.RetryHTTP.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter

	// A video's metadata and its caption-track manifest come from the
	// same /player response; memoize it so the Video + CaptionTracks
	// pair costs one network call.
	mu      sync.Mutex
	players map[string]*playerResp
}

const playerMemoCap = 64

// NewClient builds a Client from the engine configuration.
func NewClient() *Client {
	rps := engine.Cfg.RequestsPerSecond
	return &Client{
		http:    engine.Cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		players: make(map[string]*playerResp),
	}
}

var _ engine.Provider = (*Client)(nil)

// doRetry rate-limits and retries one HTTP call.
func (c *Client) doRetry(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return engine.RetryHTTP(ctx, engine.DefaultRetryConfig, fn)
}

// fetchPage GETs a www.youtube.com page with browser headers and a
// consent cookie, returning the body. 404 maps to engine.ErrNotFound.
func (c *Client) fetchPage(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.doRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Cookie", "CONSENT=YES+cb; SOCS=CAI")
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusNotFound {
		return nil, engine.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
}

var (
	channelIDPageRe = regexp.MustCompile(`"channelId":"(UC[0-9A-Za-z_-]{22})"`)
	ogTitleRe       = regexp.MustCompile(`<meta property="og:title" content="([^"]*)"`)
	ogImageRe       = regexp.MustCompile(`<meta property="og:image" content="([^"]*)"`)
	ownerTextRe     = regexp.MustCompile(`"ownerText":\{"runs":\[\{"text":"((?:[^"\\]|\\.)*)"`)
	fullChannelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
)

// ResolveChannel resolves "UC..." IDs, "@handles" and bare handle
// aliases by scraping the channel page header.
func (c *Client) ResolveChannel(ctx context.Context, alias string) (*engine.ChannelInfo, error) {
	var url string
	switch {
	case fullChannelIDRe.MatchString(alias):
		url = ytWebBase + "/channel/" + alias
	case strings.HasPrefix(alias, "@"):
		url = ytWebBase + "/" + alias
	default:
		url = ytWebBase + "/@" + alias
	}

	body, err := c.fetchPage(ctx, url)
	if err != nil {
		return nil, err
	}
	m := channelIDPageRe.FindSubmatch(body)
	if m == nil {
		return nil, engine.ErrNotFound
	}
	info := &engine.ChannelInfo{ID: string(m[1])}
	if t := ogTitleRe.FindSubmatch(body); t != nil {
		info.Title = htmlAttr(string(t[1]))
	}
	if t := ogImageRe.FindSubmatch(body); t != nil {
		info.Thumbnail = htmlAttr(string(t[1]))
	}
	return info, nil
}

// PlaylistInfo scrapes the playlist page header. YouTube serves a 200
// with an alert body for dead playlists, so the alert text is the
// not-found signal, not the status code.
func (c *Client) PlaylistInfo(ctx context.Context, playlistID string) (*engine.PlaylistInfo, error) {
	body, err := c.fetchPage(ctx, ytWebBase+"/playlist?list="+playlistID)
	if err != nil {
		return nil, err
	}
	if isDeadPlaylistPage(body) {
		return nil, engine.ErrNotFound
	}
	info := &engine.PlaylistInfo{ID: playlistID}
	if t := ogTitleRe.FindSubmatch(body); t != nil {
		info.Title = htmlAttr(string(t[1]))
	}
	if t := ogImageRe.FindSubmatch(body); t != nil {
		info.Thumbnail = htmlAttr(string(t[1]))
	}
	if t := ownerTextRe.FindSubmatch(body); t != nil {
		info.Channel = unescapeJSONString(string(t[1]))
	}
	return info, nil
}

func isDeadPlaylistPage(body []byte) bool {
	return strings.Contains(string(body), "The playlist does not exist") ||
		strings.Contains(string(body), `"alertRenderer":{"type":"ERROR"`)
}

// Video fetches full metadata through the /player endpoint.
func (c *Client) Video(ctx context.Context, videoID string) (*engine.Video, error) {
	pr, err := c.player(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if pr.VideoDetails == nil {
		return nil, engine.ErrNotFound
	}
	v := &engine.Video{
		ID:          videoID,
		Title:       pr.VideoDetails.Title,
		Description: pr.VideoDetails.ShortDescription,
		Keywords:    pr.VideoDetails.Keywords,
	}
	if pr.Microformat != nil {
		if t := parseUploadDate(pr.Microformat.PlayerMicroformatRenderer.PublishDate); t != nil {
			v.Uploaded = t
		} else if t := parseUploadDate(pr.Microformat.PlayerMicroformatRenderer.UploadDate); t != nil {
			v.Uploaded = t
		}
	}
	return v, nil
}

// CaptionTracks lists the downloadable tracks from the /player manifest.
// Videos without captions return an empty list, not ErrNotFound.
func (c *Client) CaptionTracks(ctx context.Context, videoID string) ([]engine.TrackRef, error) {
	pr, err := c.player(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if pr.Captions == nil {
		return nil, nil
	}
	tracks := pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	refs := make([]engine.TrackRef, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		if t.BaseURL == "" {
			continue
		}
		refs = append(refs, engine.TrackRef{
			LanguageName: t.displayName(),
			URL:          t.BaseURL,
		})
	}
	return refs, nil
}

// player returns the memoized /player response for videoID, fetching and
// validating it on first use.
func (c *Client) player(ctx context.Context, videoID string) (*playerResp, error) {
	c.mu.Lock()
	pr, ok := c.players[videoID]
	c.mu.Unlock()
	if ok {
		return pr, nil
	}

	pr, err := c.postPlayerANDROID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if ps := pr.PlayabilityStatus; ps != nil && ps.Status == "ERROR" {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, ps.Reason)
	}

	c.mu.Lock()
	if len(c.players) >= playerMemoCap {
		for k := range c.players {
			delete(c.players, k)
			break
		}
	}
	c.players[videoID] = pr
	c.mu.Unlock()
	return pr, nil
}

// parseUploadDate handles both the bare-date and the timezone-qualified
// forms microformat has used over time.
func parseUploadDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func htmlAttr(s string) string {
	return engine.CleanHTML(s)
}

// unescapeJSONString decodes backslash escapes from a regex-captured
// JSON string body.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
