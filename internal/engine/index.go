package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Index is the per-scope full-text index: one SQLite file per StorageKey
// with an FTS5 table over title/description/keywords/captions. Writes
// accumulate in a single open batch (a transaction); queries only ever
// observe committed documents because they run on separate connections.
type Index struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	tx      *sql.Tx
	pending []CommittedVideo
}

// CommittedVideo is one document of a committed batch, with the upload
// timestamp that was just written. The orchestrator compares these
// against the playlist's snapshot instead of threading a callback
// through the pipeline.
type CommittedVideo struct {
	ID       string
	Uploaded *time.Time
}

// OrderBy selects result ordering for queries.
type OrderBy int

const (
	OrderByScore OrderBy = iota // bm25, best first
	OrderByUploadedDesc
	OrderByUploadedAsc
)

// OpenIndex opens (or creates) the index for a scope's storage key.
func OpenIndex(storageKey string) (*Index, error) {
	dir := filepath.Join(cfg.DataDir, "index")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("index: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, strings.ReplaceAll(storageKey, ":", "_")+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`, // readers stay live during the open batch
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("index: %s: %w", pragma, err)
		}
	}
	if err := initIndexSchema(db); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("index: init schema: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

func initIndexSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS videos (
		video_id TEXT PRIMARY KEY,
		uploaded INTEGER
	)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS docs USING fts5(
		video_id UNINDEXED,
		title,
		description,
		keywords,
		captions,
		tokenize = 'unicode61 remove_diacritics 2'
	)`)
	return err
}

// Close rolls back any open batch and closes the database.
func (x *Index) Close() error {
	x.mu.Lock()
	if x.tx != nil {
		x.tx.Rollback() //nolint:errcheck
		x.tx = nil
		x.pending = nil
	}
	x.mu.Unlock()
	return x.db.Close()
}

// BeginBatch opens the index's single uncommitted write batch.
func (x *Index) BeginBatch(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.tx != nil {
		return errors.New("index: batch already open")
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin batch: %w", err)
	}
	x.tx = tx
	return nil
}

// Add queues a video's searchable fields as a document in the open batch.
// Indexing failure is fatal for the video and propagated.
func (x *Index) Add(ctx context.Context, v *Video) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.tx == nil {
		return errors.New("index: no open batch")
	}

	var captions []string
	for _, t := range v.Tracks {
		if text := t.FullText(); text != "" {
			captions = append(captions, text)
		}
	}
	var uploaded any
	if v.Uploaded != nil {
		uploaded = v.Uploaded.Unix()
	}

	if _, err := x.tx.ExecContext(ctx, `DELETE FROM docs WHERE video_id = ?`, v.ID); err != nil {
		return fmt.Errorf("index: replace %s: %w", v.ID, err)
	}
	_, err := x.tx.ExecContext(ctx,
		`INSERT INTO docs (video_id, title, description, keywords, captions) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.Title, v.Description, strings.Join(v.Keywords, "\n"), strings.Join(captions, "\n"))
	if err != nil {
		return fmt.Errorf("index: add %s: %w", v.ID, err)
	}
	_, err = x.tx.ExecContext(ctx,
		`INSERT INTO videos (video_id, uploaded) VALUES (?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET uploaded = excluded.uploaded`,
		v.ID, uploaded)
	if err != nil {
		return fmt.Errorf("index: add %s: %w", v.ID, err)
	}

	x.pending = append(x.pending, CommittedVideo{ID: v.ID, Uploaded: v.Uploaded})
	return nil
}

// CommitBatch flushes the open batch durably and returns the documents it
// contained. After it returns, those documents are queryable.
func (x *Index) CommitBatch(ctx context.Context) ([]CommittedVideo, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.tx == nil {
		return nil, errors.New("index: no open batch")
	}
	if err := ctx.Err(); err != nil {
		// An in-flight commit still completes; only a not-yet-started
		// one is abandoned.
		x.tx.Rollback() //nolint:errcheck
		x.tx = nil
		x.pending = nil
		return nil, err
	}
	if err := x.tx.Commit(); err != nil {
		x.tx = nil
		x.pending = nil
		return nil, fmt.Errorf("index: commit batch: %w", err)
	}
	committed := x.pending
	x.tx = nil
	x.pending = nil
	IncrIndexCommit()
	return committed, nil
}

// GetIndexed returns which of the given video IDs have committed
// documents. Pure lookup, no side effect.
func (x *Index) GetIndexed(ctx context.Context, videoIDs []string) (map[string]bool, error) {
	indexed := make(map[string]bool)
	for chunk := range chunked(videoIDs, 500) {
		rows, err := x.db.QueryContext(ctx,
			`SELECT video_id FROM videos WHERE video_id IN (`+placeholders(len(chunk))+`)`,
			toAnySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("index: get indexed: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close() //nolint:errcheck
				return nil, fmt.Errorf("index: get indexed: %w", err)
			}
			indexed[id] = true
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("index: get indexed: %w", err)
		}
	}
	return indexed, nil
}

// QueryOptions restricts and shapes a full-text query.
type QueryOptions struct {
	Query    *ParsedQuery
	VideoIDs []string // restrict to these; empty means no candidates
	Order    OrderBy
	Pad      int    // highlight padding; <= 0 uses the configured default
	Scope    string // label attached to results
	// Lookup resolves a video ID to its full record, invoked lazily per
	// matching video. Required.
	Lookup func(ctx context.Context, id string) (*Video, error)
}

// Query runs a full-text search over committed documents restricted to
// the given video IDs, returning ranked results with padded, merged
// highlight spans per field.
func (x *Index) Query(ctx context.Context, opts QueryOptions) ([]SearchResult, error) {
	if len(opts.VideoIDs) == 0 {
		return nil, nil
	}
	pad := opts.Pad
	if pad <= 0 {
		pad = cfg.PadContext
	}

	order := `rank`
	switch opts.Order {
	case OrderByScore:
	case OrderByUploadedDesc:
		order = `videos.uploaded DESC NULLS LAST`
	case OrderByUploadedAsc:
		order = `videos.uploaded ASC NULLS LAST`
	default:
		panic(fmt.Sprintf("unsupported ordering %d", int(opts.Order)))
	}

	var results []SearchResult
	for chunk := range chunked(opts.VideoIDs, 500) {
		args := append([]any{opts.Query.ftsExpr()}, toAnySlice(chunk)...)
		rows, err := x.db.QueryContext(ctx,
			`SELECT docs.video_id, bm25(docs) AS rank
			 FROM docs JOIN videos ON videos.video_id = docs.video_id
			 WHERE docs MATCH ? AND docs.video_id IN (`+placeholders(len(chunk))+`)
			 ORDER BY `+order,
			args...)
		if err != nil {
			return nil, fmt.Errorf("index: query: %w", err)
		}
		chunkResults, err := x.collectResults(ctx, rows, opts, pad)
		if err != nil {
			return nil, err
		}
		results = append(results, chunkResults...)
	}
	return results, nil
}

func (x *Index) collectResults(ctx context.Context, rows *sql.Rows, opts QueryOptions, pad int) ([]SearchResult, error) {
	defer rows.Close() //nolint:errcheck

	type hit struct {
		id   string
		rank float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.rank); err != nil {
			return nil, fmt.Errorf("index: query scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		video, err := opts.Lookup(ctx, h.id)
		if err != nil {
			return nil, fmt.Errorf("index: resolve matched video %s: %w", h.id, err)
		}
		r := highlightResult(video, opts.Query.terms, pad)
		r.Scope = opts.Scope
		r.Score = -h.rank // bm25 is lower-is-better
		results = append(results, r)
	}
	return results, nil
}

// highlightResult computes padded, merged match spans for every field of
// a matched video.
func highlightResult(v *Video, terms []queryTerm, pad int) SearchResult {
	r := SearchResult{Video: v}
	r.TitleMatches = padAndMerge(v.Title, findTermMatches(v.Title, terms, fieldTitle), pad)
	r.DescriptionMatches = padAndMerge(v.Description, findTermMatches(v.Description, terms, fieldDescription), pad)
	for _, kw := range v.Keywords {
		if len(findTermMatches(kw, terms, fieldKeywords)) > 0 {
			r.KeywordMatches = append(r.KeywordMatches, kw)
		}
	}
	for _, track := range v.Tracks {
		for _, c := range track.Captions {
			spans := padAndMerge(c.Text, findTermMatches(c.Text, terms, fieldCaptions), pad)
			if len(spans) == 0 {
				continue
			}
			r.CaptionMatches = append(r.CaptionMatches, CaptionMatch{
				Track: track.LanguageName,
				At:    c.At,
				Spans: spans,
			})
		}
	}
	return r
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// chunked yields ids in groups of at most size.
func chunked(ids []string, size int) func(func([]string) bool) {
	return func(yield func([]string) bool) {
		for start := 0; start < len(ids); start += size {
			end := start + size
			if end > len(ids) {
				end = len(ids)
			}
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}
