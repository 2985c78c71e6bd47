package engine

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPadAndMerge(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		matches []rawMatch
		pad     int
		want    []MatchSpan
	}{
		{
			name:    "no padding returns match text as-is",
			text:    "hello world",
			matches: []rawMatch{{start: 6, length: 5}},
			pad:     0,
			want:    []MatchSpan{{Start: 6, Text: "world"}},
		},
		{
			name:    "padding clamps to field bounds",
			text:    "0123456789",
			matches: []rawMatch{{start: 0, length: 3}},
			pad:     23,
			want:    []MatchSpan{{Start: 0, Text: "0123456789"}},
		},
		{
			name:    "overlapping spans merge",
			text:    "0123456789",
			matches: []rawMatch{{start: 0, length: 6}, {start: 4, length: 6}},
			pad:     0,
			want:    []MatchSpan{{Start: 0, Text: "0123456789"}},
		},
		{
			name:    "touching spans merge",
			text:    "0123456789",
			matches: []rawMatch{{start: 0, length: 6}, {start: 6, length: 4}},
			pad:     0,
			want:    []MatchSpan{{Start: 0, Text: "0123456789"}},
		},
		{
			name:    "disjoint spans stay separate",
			text:    "0123456789",
			matches: []rawMatch{{start: 0, length: 2}, {start: 8, length: 2}},
			pad:     0,
			want:    []MatchSpan{{Start: 0, Text: "01"}, {Start: 8, Text: "89"}},
		},
		{
			name:    "padding joins nearby matches",
			text:    "foo xx bar",
			matches: []rawMatch{{start: 0, length: 3}, {start: 7, length: 3}},
			pad:     2,
			want:    []MatchSpan{{Start: 0, Text: "foo xx bar"}},
		},
		{
			name:    "unsorted input is sorted before merging",
			text:    "0123456789",
			matches: []rawMatch{{start: 8, length: 2}, {start: 0, length: 2}},
			pad:     0,
			want:    []MatchSpan{{Start: 0, Text: "01"}, {Start: 8, Text: "89"}},
		},
		{
			name:    "multibyte runes offset correctly",
			text:    "мир и май",
			matches: []rawMatch{{start: 6, length: 3}},
			pad:     1,
			want:    []MatchSpan{{Start: 5, Text: " май"}},
		},
		{
			name:    "no matches no spans",
			text:    "hello",
			matches: nil,
			pad:     5,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := padAndMerge(tt.text, tt.matches, tt.pad)
			if len(got) != len(tt.want) {
				t.Fatalf("padAndMerge() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPadAndMergeProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	genMatches := func(textLen int) gopter.Gen {
		return gen.SliceOf(gen.IntRange(0, textLen-1).FlatMap(func(v any) gopter.Gen {
			start := v.(int)
			return gen.IntRange(1, textLen-start).Map(func(length int) rawMatch {
				return rawMatch{start: start, length: length}
			})
		}, reflect.TypeOf(rawMatch{})))
	}

	properties.Property("spans are sorted, in bounds and non-adjacent", prop.ForAll(
		func(matches []rawMatch, pad int) bool {
			text := strings.Repeat("x", 40)
			spans := padAndMerge(text, matches, pad)
			prevEnd := -2
			for _, s := range spans {
				if s.Start < 0 || s.Start+len(s.Text) > len(text) || len(s.Text) == 0 {
					return false
				}
				// A span adjacent to the previous one should have merged.
				if s.Start <= prevEnd+1 {
					return false
				}
				prevEnd = s.Start + len(s.Text) - 1
			}
			return true
		},
		genMatches(40),
		gen.IntRange(0, 50),
	))

	properties.Property("every match is covered by some span", prop.ForAll(
		func(matches []rawMatch, pad int) bool {
			text := strings.Repeat("x", 40)
			spans := padAndMerge(text, matches, pad)
			for _, m := range matches {
				covered := false
				for _, s := range spans {
					if s.Start <= m.start && m.start+m.length <= s.Start+len(s.Text) {
						covered = true
						break
					}
				}
				if !covered {
					return false
				}
			}
			return true
		},
		genMatches(40),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestFindTermMatches(t *testing.T) {
	mustParse := func(t *testing.T, q string) []queryTerm {
		t.Helper()
		pq, err := ParseQuery(q)
		if err != nil {
			t.Fatalf("ParseQuery(%q): %v", q, err)
		}
		return pq.terms
	}

	tests := []struct {
		name  string
		text  string
		query string
		field termField
		want  []rawMatch
	}{
		{
			name:  "case-insensitive single word",
			text:  "Go Rocks, go figure",
			query: "go",
			field: fieldTitle,
			want:  []rawMatch{{start: 0, length: 2}, {start: 10, length: 2}},
		},
		{
			name:  "phrase matches consecutive words across punctuation",
			text:  "deep learning, deep-learning again",
			query: `"deep learning"`,
			field: fieldCaptions,
			want:  []rawMatch{{start: 0, length: 13}, {start: 15, length: 13}},
		},
		{
			name:  "prefix term",
			text:  "program programming programs",
			query: "program*",
			field: fieldTitle,
			want:  []rawMatch{{start: 0, length: 7}, {start: 8, length: 11}, {start: 20, length: 8}},
		},
		{
			name:  "field-scoped term skips other fields",
			text:  "rust everywhere",
			query: "captions:rust",
			field: fieldTitle,
			want:  nil,
		},
		{
			name:  "field-scoped term hits its field",
			text:  "rust everywhere",
			query: "captions:rust",
			field: fieldCaptions,
			want:  []rawMatch{{start: 0, length: 4}},
		},
		{
			name:  "no partial match without prefix flag",
			text:  "programming",
			query: "program",
			field: fieldTitle,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findTermMatches(tt.text, mustParse(t, tt.query), tt.field)
			if len(got) != len(tt.want) {
				t.Fatalf("findTermMatches() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("match %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTokenizeField(t *testing.T) {
	tokens := tokenizeField("Héllo, wörld 42!")
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	if tokens[0].folded != "héllo" || tokens[0].start != 0 {
		t.Errorf("token 0 = %+v", tokens[0])
	}
	if tokens[2].folded != "42" || tokens[2].start != 13 {
		t.Errorf("token 2 = %+v", tokens[2])
	}
}
