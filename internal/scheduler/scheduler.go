// Package scheduler drives periodic repository analysis with per-repository
// priority intervals.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/internal/engine"
	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/internal/store"
)

// Rescan intervals by repository priority.
const (
	intervalHigh   = 4 * time.Hour
	intervalMedium = 12 * time.Hour
	intervalLow    = 24 * time.Hour

	highPatternCount = 100
	lowPatternCount  = 20

	recommendationMaxAge = 30 * 24 * time.Hour
)

// interRepoDelay paces sequential repository scans. Variable so tests can
// shorten it.
var interRepoDelay = 2 * time.Second

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running        bool          `json:"running"`
	Interval       time.Duration `json:"interval"`
	LastPassAt     time.Time     `json:"lastPassAt"`
	LastPassScans  int           `json:"lastPassScans"`
	LastPassErrors int           `json:"lastPassErrors"`
	TotalPasses    int           `json:"totalPasses"`
}

// Scheduler owns the periodic pass loop. Repositories are scanned
// sequentially within a pass to bound API pressure.
type Scheduler struct {
	engine *engine.Engine
	store  *store.Store

	mu       sync.Mutex
	running  bool
	status   Status
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	nowFn func() time.Time
}

func New(eng *engine.Engine, st *store.Store) *Scheduler {
	return &Scheduler{engine: eng, store: st, nowFn: time.Now}
}

// Start runs one pass immediately, then one per interval until Stop.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.status.Running = true
	s.status.Interval = interval
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.stopOnce = sync.Once{}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		s.runPass(ctx, stopCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runPass(ctx, stopCh)
			}
		}
	}()
	log.Info().Dur("interval", interval).Msg("Scheduler started")
}

// Stop cancels the timer and waits for the in-flight pass to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.status.Running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	stopOnce := &s.stopOnce
	s.mu.Unlock()

	stopOnce.Do(func() { close(stopCh) })
	<-doneCh
	log.Info().Msg("Scheduler stopped")
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ScanRepositoryManually bypasses the due-list and runs the pipeline for
// one repository now.
func (s *Scheduler) ScanRepositoryManually(ctx context.Context, repositoryID string) (engine.Report, error) {
	repo, err := s.store.GetRepository(repositoryID)
	if err != nil {
		return engine.Report{}, err
	}
	return s.engine.AnalyzeRepository(ctx, &repo)
}

// runPass scans every due repository sequentially, then ages and dedups the
// recommendation set.
func (s *Scheduler) runPass(ctx context.Context, stopCh <-chan struct{}) {
	now := s.nowFn()
	repos, err := s.store.ListRepositories()
	if err != nil {
		log.Error().Err(err).Msg("Scheduler pass aborted: listing repositories failed")
		return
	}

	due := dueRepositories(repos, now)
	log.Info().Int("total", len(repos)).Int("due", len(due)).Msg("Scheduler pass starting")

	scans, errors := 0, 0
	for i := range due {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-stopCh:
			return
		default:
		}

		if _, err := s.engine.AnalyzeRepository(ctx, &due[i]); err != nil {
			errors++
			log.Warn().Str("repo", due[i].FullName).Err(err).Msg("Scheduled scan failed")
		} else {
			scans++
		}

		if i < len(due)-1 {
			select {
			case <-time.After(interRepoDelay):
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}

	if _, err := s.store.AgeStaleRecommendations(now.Add(-recommendationMaxAge)); err != nil {
		log.Warn().Err(err).Msg("Aging recommendations failed")
	}
	if _, err := s.store.CleanupDuplicateRecommendations(); err != nil {
		log.Warn().Err(err).Msg("Cleaning duplicate recommendations failed")
	}
	if err := s.store.Maintain(); err != nil {
		log.Warn().Err(err).Msg("Store maintenance failed")
	}

	s.mu.Lock()
	s.status.LastPassAt = now
	s.status.LastPassScans = scans
	s.status.LastPassErrors = errors
	s.status.TotalPasses++
	s.mu.Unlock()
}

// dueRepositories filters to repositories whose priority interval has
// elapsed. Never-analyzed repositories are always due; input order (oldest
// last_analyzed first) is preserved.
func dueRepositories(repos []models.Repository, now time.Time) []models.Repository {
	var due []models.Repository
	for _, repo := range repos {
		// Failed repositories stay in rotation so a transient failure
		// recovers on the next due pass.
		if repo.LastAnalyzed == nil {
			due = append(due, repo)
			continue
		}
		if now.Sub(*repo.LastAnalyzed) >= rescanInterval(&repo) {
			due = append(due, repo)
		}
	}
	return due
}

// rescanInterval maps a repository to its priority interval.
func rescanInterval(repo *models.Repository) time.Duration {
	if repo.PatternsCount > highPatternCount || hasReactCategory(repo) {
		return intervalHigh
	}
	if repo.PatternsCount < lowPatternCount {
		return intervalLow
	}
	return intervalMedium
}

func hasReactCategory(repo *models.Repository) bool {
	for _, c := range repo.Categories {
		if strings.Contains(strings.ToLower(c), "react") {
			return true
		}
	}
	return false
}
