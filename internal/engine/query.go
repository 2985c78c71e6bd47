package engine

import (
	"strings"
)

// termField scopes a query term to one searchable field.
type termField int

const (
	fieldAny termField = iota
	fieldTitle
	fieldDescription
	fieldKeywords
	fieldCaptions
)

var fieldNames = map[string]termField{
	"title":       fieldTitle,
	"description": fieldDescription,
	"keywords":    fieldKeywords,
	"captions":    fieldCaptions,
}

func (f termField) column() string {
	switch f {
	case fieldTitle:
		return "title"
	case fieldDescription:
		return "description"
	case fieldKeywords:
		return "keywords"
	case fieldCaptions:
		return "captions"
	}
	return ""
}

// queryTerm is one unit of a parsed query: a word or quoted phrase,
// optionally field-scoped and optionally a prefix ("foo*") term.
// Terms combine implicitly as AND.
type queryTerm struct {
	field  termField
	words  []string // case-folded
	prefix bool
}

// ParsedQuery is a validated full-text query.
type ParsedQuery struct {
	terms []queryTerm
}

// ParseQuery parses the token query syntax: bare terms, "quoted phrases",
// trailing-* prefix terms, and title:/description:/keywords:/captions:
// field scoping. An empty query is an input error.
func ParseQuery(q string) (*ParsedQuery, error) {
	var terms []queryTerm
	runes := []rune(q)
	i := 0
	for i < len(runes) {
		if runes[i] == ' ' || runes[i] == '\t' {
			i++
			continue
		}

		field := fieldAny
		// Field prefix: identifier followed by ':'.
		if colon := indexRune(runes[i:], ':'); colon > 0 {
			name := strings.ToLower(string(runes[i : i+colon]))
			if f, ok := fieldNames[name]; ok {
				field = f
				i += colon + 1
			}
		}

		var raw string
		if i < len(runes) && runes[i] == '"' {
			end := indexRune(runes[i+1:], '"')
			if end < 0 {
				raw = string(runes[i+1:])
				i = len(runes)
			} else {
				raw = string(runes[i+1 : i+1+end])
				i += end + 2
			}
		} else {
			start := i
			for i < len(runes) && runes[i] != ' ' && runes[i] != '\t' {
				i++
			}
			raw = string(runes[start:i])
		}

		prefix := strings.HasSuffix(raw, "*")
		raw = strings.TrimSuffix(raw, "*")

		var words []string
		for _, tok := range tokenizeField(raw) {
			words = append(words, tok.folded)
		}
		if len(words) == 0 {
			continue
		}
		terms = append(terms, queryTerm{field: field, words: words, prefix: prefix})
	}

	if len(terms) == 0 {
		return nil, Inputf("empty query")
	}
	return &ParsedQuery{terms: terms}, nil
}

// ftsExpr renders the query as an FTS5 MATCH expression. Every term
// becomes a quoted phrase (single words included), so no user input can
// inject FTS5 syntax.
func (q *ParsedQuery) ftsExpr() string {
	var sb strings.Builder
	for i, t := range q.terms {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if col := t.field.column(); col != "" {
			sb.WriteString(col)
			sb.WriteByte(':')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.Join(t.words, " "))
		sb.WriteByte('"')
		if t.prefix {
			sb.WriteByte('*')
		}
	}
	return sb.String()
}

func indexRune(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
		// A field prefix cannot span whitespace.
		if r == ':' && (c == ' ' || c == '\t' || c == '"') {
			return -1
		}
	}
	return -1
}
