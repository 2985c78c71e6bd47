package engine

import (
	"sort"
	"unicode"
)

// rawMatch is an unpadded match: rune offset and rune length within a field.
type rawMatch struct {
	start  int
	length int
}

// padAndMerge pads each match by pad runes of surrounding original text on
// both sides, clamps to the field bounds, and merges padded spans that
// overlap or touch. For a match at start with length len in a text of N
// runes: padded start = max(0, start-pad), padded end =
// min(N-1, start+len-1+pad). Two spans merge when one's end >= the
// other's start-1; the merged span is [min(starts), max(ends)].
func padAndMerge(text string, matches []rawMatch, pad int) []MatchSpan {
	if len(matches) == 0 {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	type span struct{ start, end int }
	padded := make([]span, 0, len(matches))
	for _, m := range matches {
		start := m.start - pad
		if start < 0 {
			start = 0
		}
		end := m.start + m.length - 1 + pad
		if end > n-1 {
			end = n - 1
		}
		padded = append(padded, span{start, end})
	}
	sort.Slice(padded, func(i, j int) bool { return padded[i].start < padded[j].start })

	merged := padded[:1]
	for _, s := range padded[1:] {
		last := &merged[len(merged)-1]
		if last.end >= s.start-1 {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	out := make([]MatchSpan, len(merged))
	for i, s := range merged {
		out[i] = MatchSpan{Start: s.start, Text: string(runes[s.start : s.end+1])}
	}
	return out
}

// fieldToken is one word of a field, with its rune offset and case-folded
// text. Folding is per-rune so offsets stay aligned with the original.
type fieldToken struct {
	start  int
	length int
	folded string
}

func foldRunes(rs []rune) string {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return string(out)
}

// tokenizeField splits text into letter/digit runs, mirroring how the
// index tokenizer sees it.
func tokenizeField(text string) []fieldToken {
	runes := []rune(text)
	var tokens []fieldToken
	i := 0
	for i < len(runes) {
		if !unicode.IsLetter(runes[i]) && !unicode.IsDigit(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
			i++
		}
		tokens = append(tokens, fieldToken{
			start:  start,
			length: i - start,
			folded: foldRunes(runes[start:i]),
		})
	}
	return tokens
}

// findTermMatches locates every occurrence of the query terms that apply
// to field, as rune-offset matches against the original text.
func findTermMatches(text string, terms []queryTerm, field termField) []rawMatch {
	tokens := tokenizeField(text)
	if len(tokens) == 0 {
		return nil
	}
	var matches []rawMatch
	for _, term := range terms {
		if term.field != fieldAny && term.field != field {
			continue
		}
		for i := 0; i+len(term.words) <= len(tokens); i++ {
			if !termMatchesAt(tokens, i, term) {
				continue
			}
			first, last := tokens[i], tokens[i+len(term.words)-1]
			matches = append(matches, rawMatch{
				start:  first.start,
				length: last.start + last.length - first.start,
			})
		}
	}
	return matches
}

func termMatchesAt(tokens []fieldToken, i int, term queryTerm) bool {
	for k, w := range term.words {
		tok := tokens[i+k]
		if term.prefix && k == len(term.words)-1 {
			if len(tok.folded) < len(w) || tok.folded[:len(w)] != w {
				return false
			}
			continue
		}
		if tok.folded != w {
			return false
		}
	}
	return true
}
