// go_subsearch — full-text search over YouTube captions and metadata.
//
// Indexes the videos of channels, playlists or explicit video lists into
// per-scope FTS indexes (captions, titles, descriptions, keywords) and
// streams matches as soon as their batch is committed, while later
// downloads are still in flight.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go_subsearch/internal/engine"
	"github.com/anatolykoptev/go_subsearch/internal/engine/sources"
)

var version = "dev"

func main() {
	var (
		channels   = flag.String("channels", "", "comma-separated channel IDs, @handles or aliases")
		playlists  = flag.String("playlists", "", "comma-separated playlist IDs or URLs")
		videos     = flag.String("videos", "", "comma-separated video IDs to search as one scope")
		order      = flag.String("order", "relevance", "result order: relevance | newest | oldest")
		pad        = flag.Int("pad", 0, "highlight context padding in characters (0 = default)")
		skip       = flag.Int("skip", 0, "skip the newest N videos of each channel/playlist scope")
		take       = flag.Int("take", 0, "consider at most N videos per scope (0 = default)")
		cacheHours = flag.Float64("cache-hours", 0, "playlist snapshot freshness window (0 = default)")
		keywords   = flag.Bool("keywords", false, "list video keywords instead of searching")
		asJSON     = flag.Bool("json", false, "emit results as JSON lines")
		verbose    = flag.Bool("v", false, "debug logging")
		showStats  = flag.Bool("stats", false, "print engine metrics on exit")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	engine.Init(engine.Config{
		DataDir:                env.Str("SUBSEARCH_DATA_DIR", ""),
		RedisURL:               env.Str("REDIS_URL", ""),
		DatabaseURL:            env.Str("DATABASE_URL", ""),
		CacheTTL:               env.Duration("CACHE_TTL", 15*time.Minute),
		MaxConcurrentDownloads: env.Int("MAX_CONCURRENT_DOWNLOADS", 5),
		HandoffCapacity:        env.Int("HANDOFF_CAPACITY", 5),
		BatchSize:              env.Int("BATCH_SIZE", 5),
		PadContext:             env.Int("PAD_CONTEXT", 23),
		RequestsPerSecond:      env.Float("REQUESTS_PER_SECOND", 4),
	})

	scopes, err := buildScopes(*channels, *playlists, *videos, *skip, *take, *cacheHours)
	if err != nil {
		fatal(err)
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" && !*keywords {
		fmt.Fprintln(os.Stderr, "usage: go_subsearch [flags] QUERY")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting go_subsearch",
		slog.String("version", version),
		slog.Int("scopes", len(scopes)),
	)

	cache, err := engine.OpenCache(ctx)
	if err != nil {
		fatal(err)
	}
	defer cache.Close() //nolint:errcheck

	searcher := engine.NewSearcher(cache, sources.NewClient())

	var runErr error
	if *keywords {
		runErr = runKeywords(ctx, searcher, scopes, *asJSON)
	} else {
		runErr = runSearch(ctx, searcher, &engine.SearchCommand{
			Query:    query,
			Scopes:   scopes,
			Order:    parseOrder(*order),
			Pad:      *pad,
			Progress: progressLogger{},
		}, *asJSON)
	}

	if *showStats {
		fmt.Fprintln(os.Stderr, engine.FormatMetrics())
	}
	if runErr != nil {
		if errors.Is(runErr, engine.ErrCancelled) {
			slog.Warn("cancelled, partial results above")
			os.Exit(130)
		}
		fatal(runErr)
	}
}

func fatal(err error) {
	if engine.IsInput(err) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	slog.Error("failed", slog.Any("error", err))
	os.Exit(1)
}

func buildScopes(channels, playlists, videos string, skip, take int, cacheHours float64) ([]*engine.Scope, error) {
	var scopes []*engine.Scope
	common := func(s *engine.Scope) *engine.Scope {
		s.Skip = skip
		s.Take = take
		s.CacheHours = cacheHours
		return s
	}
	for _, c := range splitList(channels) {
		scopes = append(scopes, common(engine.NewChannelScope(c)))
	}
	for _, p := range splitList(playlists) {
		scopes = append(scopes, common(engine.NewPlaylistScope(p)))
	}
	if ids := splitList(videos); len(ids) > 0 {
		scopes = append(scopes, common(engine.NewVideosScope(ids)))
	}
	if len(scopes) == 0 {
		return nil, engine.Inputf("no scopes: pass -channels, -playlists or -videos")
	}
	return scopes, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOrder(s string) engine.OrderBy {
	switch s {
	case "newest", "uploaded":
		return engine.OrderByUploadedDesc
	case "oldest":
		return engine.OrderByUploadedAsc
	default:
		return engine.OrderByScore
	}
}

func runSearch(ctx context.Context, s *engine.Searcher, cmd *engine.SearchCommand, asJSON bool) error {
	results, errc := s.Search(ctx, cmd)
	enc := json.NewEncoder(os.Stdout)
	for r := range results {
		if asJSON {
			if err := enc.Encode(r); err != nil {
				return err
			}
			continue
		}
		printResult(&r)
	}
	return <-errc
}

func printResult(r *engine.SearchResult) {
	fmt.Printf("%s  %s  [%s]\n", r.Video.ID, engine.TruncateRunes(r.Video.Title, 80, "…"), r.Scope)
	for _, span := range r.TitleMatches {
		fmt.Printf("  title: …%s…\n", span.Text)
	}
	for _, span := range r.DescriptionMatches {
		fmt.Printf("  description: …%s…\n", span.Text)
	}
	if len(r.KeywordMatches) > 0 {
		fmt.Printf("  keywords: %s\n", strings.Join(r.KeywordMatches, ", "))
	}
	for _, cm := range r.CaptionMatches {
		for _, span := range cm.Spans {
			fmt.Printf("  %s @%s: …%s…\n", cm.Track, formatOffset(cm.At), span.Text)
		}
	}
}

func formatOffset(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func runKeywords(ctx context.Context, s *engine.Searcher, scopes []*engine.Scope, asJSON bool) error {
	kws, errc := s.ListKeywords(ctx, &engine.SearchCommand{Scopes: scopes})
	enc := json.NewEncoder(os.Stdout)
	for kw := range kws {
		if asJSON {
			if err := enc.Encode(kw); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", kw.Keyword, kw.VideoID, kw.Scope)
	}
	return <-errc
}

// progressLogger surfaces scope status transitions at debug level.
type progressLogger struct{}

func (progressLogger) ScopeStatus(runID, scope string, status engine.ScopeStatus) {
	slog.Debug("scope status",
		slog.String("run", runID),
		slog.String("scope", scope),
		slog.String("status", status.String()),
	)
}

func (progressLogger) Jobs(runID, scope string, queued, running, completed int) {
	slog.Debug("scope jobs",
		slog.String("run", runID),
		slog.String("scope", scope),
		slog.Int("queued", queued),
		slog.Int("running", running),
		slog.Int("completed", completed),
	)
}
