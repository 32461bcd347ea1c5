// Package scanner implements the rate-limit-governed concurrent file
// pipeline: tree enumeration, batched blob fetching with cache and retry,
// streaming for large files, and detector aggregation.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codepulse/codepulse/internal/config"
	"github.com/codepulse/codepulse/internal/detector"
	scanerrors "github.com/codepulse/codepulse/internal/errors"
	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/pkg/github"
)

// Forge is the remote code-forge surface the pipeline depends on.
type Forge interface {
	GetTree(ctx context.Context, owner, repo, ref string) ([]github.TreeEntry, error)
	GetBlob(ctx context.Context, owner, repo, ref, path string) (string, error)
	GetBlobStream(ctx context.Context, owner, repo, ref, path string) (io.ReadCloser, error)
	Authenticated() bool
}

// defaultExcludes drop vendored and generated trees from scanning.
var defaultExcludes = []string{"*node_modules*", "*dist*", "*build*"}

// errPipelinePanic marks an unexpected failure in the optimized path; Scan
// reacts by falling back to the sequential path.
var errPipelinePanic = errors.New("optimized pipeline panic")

// FileScanner runs the per-repository file pipeline. Workers share one
// governor and one cache; both are passed in explicitly so tests can
// substitute them.
type FileScanner struct {
	forge    Forge
	governor *Governor
	cache    *FileCache
	det      *detector.Detector
	cfg      config.Config
	apiSem   chan struct{}
	excludes []string
}

// New creates a FileScanner. The config should already be normalized.
func New(forge Forge, governor *Governor, cfg config.Config) *FileScanner {
	cfg.Normalize()
	var cache *FileCache
	if cfg.CacheEnabled {
		cache = NewFileCache(cfg.CacheMaxEntries, cfg.CacheTTL)
	}
	return &FileScanner{
		forge:    forge,
		governor: governor,
		cache:    cache,
		det:      detector.New(),
		cfg:      cfg,
		apiSem:   make(chan struct{}, cfg.MaxConcurrentAPI),
		excludes: defaultExcludes,
	}
}

// Cache exposes the shared file cache (nil when caching is disabled).
func (s *FileScanner) Cache() *FileCache {
	return s.cache
}

// Scan runs the full pipeline for one repository. A per-file error skips
// the file; a tree-fetch error fails the scan. An unexpected failure in the
// optimized path falls back to the sequential-equivalent path.
func (s *FileScanner) Scan(ctx context.Context, repo *models.Repository) models.ScanResult {
	start := time.Now()

	result, err := s.scanOptimized(ctx, repo)
	if errors.Is(err, errPipelinePanic) && ctx.Err() == nil {
		log.Warn().Str("repo", repo.FullName).Err(err).Msg("Optimized pipeline failed, using sequential fallback")
		Metrics().FallbackTotal.Inc()
		result, err = s.scanSequential(ctx, repo)
		if err == nil {
			result.Metrics.Fallback = true
		}
	}

	if err != nil {
		Metrics().ScansTotal.WithLabelValues("failed").Inc()
		log.Error().Str("repo", repo.FullName).Err(err).Msg("Repository scan failed")
		return models.ScanResult{
			Patterns:     []models.Pattern{},
			Security:     []models.SecurityFinding{},
			TypeSafety:   []models.TypeSafetyFinding{},
			Performance:  []models.PerformanceFinding{},
			Successful:   false,
			ErrorMessage: scanerrors.ShortCode(err),
			Metrics:      models.ScanMetrics{Duration: time.Since(start)},
		}
	}

	result.Metrics.Duration = time.Since(start)
	Metrics().ScansTotal.WithLabelValues("success").Inc()
	Metrics().ScanDuration.Observe(time.Since(start).Seconds())
	return result
}

func (s *FileScanner) scanOptimized(ctx context.Context, repo *models.Repository) (result models.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPipelinePanic, r)
		}
	}()

	ref := repo.DefaultBranch
	if ref == "" {
		ref = "main"
	}

	entries, err := s.listFiles(ctx, repo, ref)
	if err != nil {
		return models.ScanResult{}, err
	}

	result = emptyScanResult()
	result.Metrics.FilesListed = len(entries)

	divisor := 1
	for offset := 0; offset < len(entries); {
		if ctx.Err() != nil {
			return models.ScanResult{}, ctx.Err()
		}

		if overMemoryThreshold(s.cfg.MemoryThreshold) {
			divisor *= 2
			log.Warn().
				Str("repo", repo.FullName).
				Int("divisor", divisor).
				Msg("Memory threshold exceeded, halving batch size")
		}

		size := s.batchSize() / divisor
		if size < 1 {
			size = 1
		}
		end := offset + size
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[offset:end]

		if err := s.processBatch(ctx, repo, ref, batch, &result); err != nil {
			return models.ScanResult{}, err
		}
		offset = end

		if offset < len(entries) {
			if err := sleepCtx(ctx, s.governor.BatchDelay()); err != nil {
				return models.ScanResult{}, err
			}
		}
	}

	s.finalize(repo, &result)
	return result, nil
}

// scanSequential is the fallback path: same filters and detectors, one file
// at a time, no batching.
func (s *FileScanner) scanSequential(ctx context.Context, repo *models.Repository) (models.ScanResult, error) {
	ref := repo.DefaultBranch
	if ref == "" {
		ref = "main"
	}

	entries, err := s.listFiles(ctx, repo, ref)
	if err != nil {
		return models.ScanResult{}, err
	}

	result := emptyScanResult()
	result.Metrics.FilesListed = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return models.ScanResult{}, ctx.Err()
		}
		fr, cached, ferr := s.processFile(ctx, repo, ref, entry)
		if ferr != nil {
			if errors.Is(ferr, context.Canceled) || errors.Is(ferr, context.DeadlineExceeded) {
				return models.ScanResult{}, ferr
			}
			log.Warn().Str("repo", repo.FullName).Str("path", entry.Path).Err(ferr).Msg("Skipping file")
			result.Metrics.FilesSkipped++
			Metrics().FilesProcessed.WithLabelValues("skipped").Inc()
			continue
		}
		appendResult(&result, fr, cached)
	}

	s.finalize(repo, &result)
	return result, nil
}

// listFiles fetches the tree and applies the extension filter, path
// excludes, stable ordering, and the governor file cap.
func (s *FileScanner) listFiles(ctx context.Context, repo *models.Repository, ref string) ([]github.TreeEntry, error) {
	if err := s.governor.CheckAndWait(ctx); err != nil {
		return nil, err
	}

	entries, err := s.forge.GetTree(ctx, repo.Owner(), repo.RepoName(), ref)
	if err != nil {
		return nil, err
	}
	s.governor.Consume()

	filtered := make([]github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		if !detector.IsCodeFile(e.Path) || s.excluded(e.Path) {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Path < filtered[j].Path })

	limit := s.governor.FileLimit(s.forge.Authenticated(), s.cfg.FileLimitOverride)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (s *FileScanner) excluded(path string) bool {
	for _, pattern := range s.excludes {
		if wildcard.Match(pattern, path) {
			return true
		}
	}
	return false
}

func (s *FileScanner) batchSize() int {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	return s.governor.OptimalBatchSize()
}

type fileResult struct {
	res    detector.Result
	cached bool
	ok     bool
}

// processBatch fans the batch out over a bounded pool and aggregates results
// in input order.
func (s *FileScanner) processBatch(ctx context.Context, repo *models.Repository, ref string, batch []github.TreeEntry, result *models.ScanResult) error {
	results := make([]fileResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	limit := len(batch)
	if s.cfg.MaxConcurrentFiles > 0 && s.cfg.MaxConcurrentFiles < limit {
		limit = s.cfg.MaxConcurrentFiles
	}
	g.SetLimit(limit)

	for i, entry := range batch {
		g.Go(func() error {
			fr, cached, err := s.processFile(gctx, repo, ref, entry)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Warn().Str("repo", repo.FullName).Str("path", entry.Path).Err(err).Msg("Skipping file")
				Metrics().FilesProcessed.WithLabelValues("skipped").Inc()
				return nil
			}
			results[i] = fileResult{res: fr, cached: cached, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, fr := range results {
		if !fr.ok {
			result.Metrics.FilesSkipped++
			continue
		}
		appendResult(result, fr.res, fr.cached)
	}
	return nil
}

// processFile fetches (or reads from cache) one file and runs the detectors.
func (s *FileScanner) processFile(ctx context.Context, repo *models.Repository, ref string, entry github.TreeEntry) (detector.Result, bool, error) {
	if err := s.governor.CheckAndWait(ctx); err != nil {
		return detector.Result{}, false, err
	}

	if s.cache != nil && entry.SHA != "" {
		if text, ok := s.cache.Get(repo.FullName, entry.Path, entry.SHA); ok {
			return s.det.Analyze(text, entry.Path), true, nil
		}
	}

	if s.cfg.StreamingEnabled && entry.Size >= s.cfg.StreamingThreshold {
		return s.processFileStreaming(ctx, repo, ref, entry)
	}

	text, err := Retry(ctx, s.governor, "get_blob", func(ctx context.Context) (string, error) {
		if err := s.acquireAPI(ctx); err != nil {
			return "", err
		}
		defer s.releaseAPI()
		return s.forge.GetBlob(ctx, repo.Owner(), repo.RepoName(), ref, entry.Path)
	})
	if err != nil {
		return detector.Result{}, false, err
	}
	s.governor.Consume()

	if s.cache != nil && entry.SHA != "" {
		s.cache.Put(repo.FullName, entry.Path, entry.SHA, text)
	}
	return s.det.Analyze(text, entry.Path), false, nil
}

// processFileStreaming reads a large file chunk-by-chunk. Streamed files are
// not cached: holding them would defeat the memory discipline.
func (s *FileScanner) processFileStreaming(ctx context.Context, repo *models.Repository, ref string, entry github.TreeEntry) (detector.Result, bool, error) {
	body, err := Retry(ctx, s.governor, "get_blob_stream", func(ctx context.Context) (io.ReadCloser, error) {
		if err := s.acquireAPI(ctx); err != nil {
			return nil, err
		}
		defer s.releaseAPI()
		return s.forge.GetBlobStream(ctx, repo.Owner(), repo.RepoName(), ref, entry.Path)
	})
	if err != nil {
		return detector.Result{}, false, err
	}
	defer body.Close()
	s.governor.Consume()

	res, err := analyzeStream(body, s.det, entry.Path)
	if err != nil {
		return detector.Result{}, false, scanerrors.New(scanerrors.ErrorTypeTransient, "stream_read", repo.FullName, err).WithPath(entry.Path)
	}
	return res, false, nil
}

func (s *FileScanner) acquireAPI(ctx context.Context) error {
	select {
	case s.apiSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *FileScanner) releaseAPI() {
	<-s.apiSem
}

func appendResult(result *models.ScanResult, fr detector.Result, cached bool) {
	result.Patterns = append(result.Patterns, fr.Patterns...)
	result.Security = append(result.Security, fr.Security...)
	result.TypeSafety = append(result.TypeSafety, fr.TypeSafety...)
	result.Performance = append(result.Performance, fr.Performance...)
	result.Metrics.FilesProcessed++
	if cached {
		result.Metrics.CacheHits++
	}
	Metrics().FilesProcessed.WithLabelValues("processed").Inc()
}

// finalize stamps identity on the aggregated patterns and marks success.
func (s *FileScanner) finalize(repo *models.Repository, result *models.ScanResult) {
	for i := range result.Patterns {
		result.Patterns[i].ID = models.NewPatternID()
		result.Patterns[i].RepositoryID = repo.ID
		result.Patterns[i].Framework = repo.Framework
	}
	result.Successful = true
}

func emptyScanResult() models.ScanResult {
	return models.ScanResult{
		Patterns:    []models.Pattern{},
		Security:    []models.SecurityFinding{},
		TypeSafety:  []models.TypeSafetyFinding{},
		Performance: []models.PerformanceFinding{},
	}
}
