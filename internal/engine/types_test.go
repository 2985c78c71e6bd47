package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeCaptions(t *testing.T) {
	in := []Caption{
		{At: 30, Text: "c"},
		{At: 10, Text: "a"},
		{At: 10, Text: "a"}, // duplicate
		{At: 20, Text: "b"},
		{At: 10, Text: "other text same offset"},
	}
	got := normalizeCaptions(in)
	if len(got) != 4 {
		t.Fatalf("got %d captions, want 4: %+v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].At < got[i-1].At {
			t.Errorf("not sorted: %+v", got)
		}
	}
}

func TestCaptionStatusOf(t *testing.T) {
	tests := []struct {
		name  string
		video *Video
		want  *CaptionStatus
	}{
		{
			name:  "not loaded yet",
			video: &Video{},
			want:  nil,
		},
		{
			name:  "no tracks",
			video: &Video{CaptionsLoaded: true},
			want:  ptr(CaptionsNone),
		},
		{
			name: "track with error",
			video: &Video{CaptionsLoaded: true, Tracks: []CaptionTrack{
				{LanguageName: "English"},
				{LanguageName: "German", Error: "failed"},
			}},
			want: ptr(CaptionsError),
		},
		{
			name: "clean tracks",
			video: &Video{CaptionsLoaded: true, Tracks: []CaptionTrack{
				{LanguageName: "English", Captions: []Caption{{At: 0, Text: "hi"}}},
			}},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := captionStatusOf(tt.video)
			switch {
			case got == nil && tt.want == nil:
			case got == nil || tt.want == nil || *got != *tt.want:
				t.Errorf("captionStatusOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestCaptionTrackFullText(t *testing.T) {
	track := CaptionTrack{Captions: []Caption{{At: 0, Text: "one"}, {At: 5, Text: "two"}}}
	if got := track.FullText(); got != "one\ntwo" {
		t.Errorf("FullText = %q", got)
	}
	empty := CaptionTrack{}
	if got := empty.FullText(); got != "" {
		t.Errorf("FullText of empty track = %q", got)
	}
}

func TestInputErrors(t *testing.T) {
	plain := errors.New("plain")
	wrapped := InputWrap(ErrNotFound, "channel %q not found", "@x")

	if !IsInput(Inputf("bad %s", "thing")) {
		t.Error("Inputf should be an input error")
	}
	if !IsInput(wrapped) {
		t.Error("InputWrap should be an input error")
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("InputWrap must preserve the wrapped chain")
	}
	if IsInput(plain) {
		t.Error("plain error misreported as input error")
	}
	if !IsInput(fmt.Errorf("outer: %w", Inputf("inner"))) {
		t.Error("input errors must survive wrapping")
	}
}
