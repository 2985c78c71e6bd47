package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/anatolykoptev/go_subsearch/internal/engine"
)

// timedtext is YouTube's caption XML: <transcript><text start="1.28"
// dur="3.84">line</text>...</transcript>. Lines carry HTML markup and
// entity escapes.

type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Body  string `xml:",chardata"`
}

// CaptionTrack downloads and parses one timedtext track.
func (c *Client) CaptionTrack(ctx context.Context, ref engine.TrackRef) ([]engine.Caption, error) {
	resp, err := c.doRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("timedtext %q: %w", ref.LanguageName, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timedtext %q: HTTP %d", ref.LanguageName, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, err
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]engine.Caption, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("timedtext parse: %w", err)
	}
	captions := make([]engine.Caption, 0, len(doc.Texts))
	for _, cue := range doc.Texts {
		text := engine.CleanHTML(cue.Body)
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(cue.Start, 64)
		if err != nil {
			continue
		}
		captions = append(captions, engine.Caption{At: int(start), Text: text})
	}
	return captions, nil
}
