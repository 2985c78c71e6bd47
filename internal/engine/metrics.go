package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	SearchRequests    atomic.Int64
	KeywordRequests   atomic.Int64
	VideoLoads        atomic.Int64
	CaptionDownloads  atomic.Int64
	CaptionErrors     atomic.Int64
	PlaylistRefreshes atomic.Int64
	IndexCommits      atomic.Int64
	CacheHits         atomic.Int64
	CacheMisses       atomic.Int64
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"search_requests":    metrics.SearchRequests.Load(),
		"keyword_requests":   metrics.KeywordRequests.Load(),
		"video_loads":        metrics.VideoLoads.Load(),
		"caption_downloads":  metrics.CaptionDownloads.Load(),
		"caption_errors":     metrics.CaptionErrors.Load(),
		"playlist_refreshes": metrics.PlaylistRefreshes.Load(),
		"index_commits":      metrics.IndexCommits.Load(),
		"cache_hits":         metrics.CacheHits.Load(),
		"cache_misses":       metrics.CacheMisses.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format.
func FormatMetrics() string {
	m := GetMetrics()
	keys := []string{
		"search_requests", "keyword_requests",
		"video_loads", "caption_downloads", "caption_errors",
		"playlist_refreshes", "index_commits",
		"cache_hits", "cache_misses",
	}
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrSearchRequest()    { metrics.SearchRequests.Add(1) }
func IncrKeywordRequest()   { metrics.KeywordRequests.Add(1) }
func IncrVideoLoad()        { metrics.VideoLoads.Add(1) }
func IncrCaptionDownload()  { metrics.CaptionDownloads.Add(1) }
func IncrCaptionError()     { metrics.CaptionErrors.Add(1) }
func IncrPlaylistRefresh()  { metrics.PlaylistRefreshes.Add(1) }
func IncrIndexCommit()      { metrics.IndexCommits.Add(1) }
func IncrCacheHit()         { metrics.CacheHits.Add(1) }
func IncrCacheMiss()        { metrics.CacheMisses.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
