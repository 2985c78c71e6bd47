package engine

import (
	"strings"
	"testing"
)

func TestScopePrevalidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   *Scope
		wantErr bool
	}{
		{name: "channel handle", scope: NewChannelScope("@somecreator")},
		{name: "channel empty alias", scope: NewChannelScope("  "), wantErr: true},
		{name: "playlist ID", scope: NewPlaylistScope("PLabcdefghijklmnop")},
		{name: "uploads playlist ID", scope: NewPlaylistScope("UUabcdefghij1234567890ab")},
		{name: "playlist URL", scope: NewPlaylistScope("https://www.youtube.com/playlist?list=PLabcdefghijklmnop")},
		{name: "watch URL with list param", scope: NewPlaylistScope("https://www.youtube.com/watch?v=aaaaaaaaaaa&list=PLabcdefghijklmnop")},
		{name: "garbage playlist", scope: NewPlaylistScope("not-a-playlist!"), wantErr: true},
		{name: "videos", scope: NewVideosScope([]string{"dQw4w9WgXcQ"})},
		{name: "videos empty", scope: NewVideosScope(nil), wantErr: true},
		{name: "videos bad ID", scope: NewVideosScope([]string{"tooshort"}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Prevalidate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !IsInput(err) {
					t.Errorf("expected input error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestScopePrevalidateDefaults(t *testing.T) {
	s := NewVideosScope([]string{"dQw4w9WgXcQ"})
	if err := s.Prevalidate(); err != nil {
		t.Fatal(err)
	}
	if s.Take != 50 {
		t.Errorf("Take default = %d, want 50", s.Take)
	}
	if s.CacheHours != 24 {
		t.Errorf("CacheHours default = %v, want 24", s.CacheHours)
	}
}

func TestScopeStorageKey(t *testing.T) {
	a := NewVideosScope([]string{"aaaaaaaaaaa", "bbbbbbbbbbb"})
	b := NewVideosScope([]string{"bbbbbbbbbbb", "aaaaaaaaaaa"})
	if a.StorageKey() != b.StorageKey() {
		t.Error("videos storage key must be order-independent")
	}
	if !strings.HasPrefix(a.StorageKey(), "videos:") {
		t.Errorf("key = %s", a.StorageKey())
	}

	c := NewVideosScope([]string{"aaaaaaaaaaa"})
	if c.StorageKey() == a.StorageKey() {
		t.Error("distinct ID sets must get distinct keys")
	}

	p := NewPlaylistScope("PLabcdefghijklmnop")
	if err := p.Prevalidate(); err != nil {
		t.Fatal(err)
	}
	if p.StorageKey() != "playlist:PLabcdefghijklmnop" {
		t.Errorf("key = %s", p.StorageKey())
	}
}

func TestScopePlaylistURLExtraction(t *testing.T) {
	s := NewPlaylistScope("https://www.youtube.com/watch?v=aaaaaaaaaaa&list=PLabcdefghijklmnop&index=3")
	if err := s.Prevalidate(); err != nil {
		t.Fatal(err)
	}
	if s.playlistID != "PLabcdefghijklmnop" {
		t.Errorf("playlistID = %s", s.playlistID)
	}
}
