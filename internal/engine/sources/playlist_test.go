package sources

import (
	"testing"

	"github.com/anatolykoptev/go_subsearch/internal/engine"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "simple object",
			in:   `{"a":1};rest`,
			want: `{"a":1}`,
		},
		{
			name: "nested braces",
			in:   `{"a":{"b":{"c":[]}}} trailing`,
			want: `{"a":{"b":{"c":[]}}}`,
		},
		{
			name: "braces inside strings ignored",
			in:   `{"a":"}{","b":"\"}"}tail`,
			want: `{"a":"}{","b":"\"}"}`,
		},
		{
			name: "unterminated",
			in:   `{"a":1`,
			want: "",
		},
		{
			name: "not an object",
			in:   `[1,2]`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(extractJSON([]byte(tt.in)))
			if got != tt.want {
				t.Errorf("extractJSON = %q, want %q", got, tt.want)
			}
		})
	}
}

const playlistPageFixture = `<!DOCTYPE html><html><head></head><body>
<script>var ytInitialData = {"contents":{"tabs":[{"content":{"sectionList":{
"items":[
  {"playlistVideoRenderer":{"videoId":"aaaaaaaaaaa","title":{"runs":[{"text":"First "},{"text":"Video"}]},"index":{"simpleText":"1"}}},
  {"playlistVideoRenderer":{"videoId":"bbbbbbbbbbb","title":{"simpleText":"Second Video"}}},
  {"playlistVideoRenderer":{"title":{"simpleText":"no id, skipped"}}},
  {"continuationItemRenderer":{"continuationEndpoint":{"continuationCommand":{"token":"NEXT_PAGE_TOKEN"}}}}
]}}}]}};</script>
</body></html>`

func TestCollectPlaylistPage(t *testing.T) {
	data, err := extractInitialData([]byte(playlistPageFixture))
	if err != nil {
		t.Fatal(err)
	}

	var out []engine.VideoStub
	token := collectPlaylistPage(data, &out)
	if token != "NEXT_PAGE_TOKEN" {
		t.Errorf("token = %q", token)
	}
	if len(out) != 2 {
		t.Fatalf("got %d stubs, want 2: %+v", len(out), out)
	}
	if out[0].ID != "aaaaaaaaaaa" || out[0].Title != "First Video" {
		t.Errorf("stub 0 = %+v", out[0])
	}
	if out[1].ID != "bbbbbbbbbbb" || out[1].Title != "Second Video" {
		t.Errorf("stub 1 = %+v", out[1])
	}
}

func TestExtractInitialDataMissing(t *testing.T) {
	if _, err := extractInitialData([]byte("<html>nothing embedded</html>")); err == nil {
		t.Error("expected error for page without ytInitialData")
	}
}

func TestRunsText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{
			name: "runs concatenated",
			in:   map[string]any{"runs": []any{map[string]any{"text": "a"}, map[string]any{"text": "b"}}},
			want: "ab",
		},
		{
			name: "simpleText",
			in:   map[string]any{"simpleText": "plain"},
			want: "plain",
		},
		{
			name: "not an object",
			in:   "junk",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runsText(tt.in); got != tt.want {
				t.Errorf("runsText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnescapeJSONString(t *testing.T) {
	if got := unescapeJSONString(`a \"quoted\" channel — ok`); got != "a \"quoted\" channel — ok" {
		t.Errorf("got %q", got)
	}
	if got := unescapeJSONString("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}
