package scheduler

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/config"
	"github.com/codepulse/codepulse/internal/engine"
	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/internal/scanner"
	"github.com/codepulse/codepulse/internal/store"
	"github.com/codepulse/codepulse/internal/training"
	"github.com/codepulse/codepulse/internal/validation"
	"github.com/codepulse/codepulse/pkg/github"
)

func analyzedRepo(id string, age time.Duration, patterns int, categories ...string) models.Repository {
	last := time.Now().Add(-age)
	return models.Repository{
		ID:             id,
		FullName:       "octocat/" + id,
		Categories:     categories,
		PatternsCount:  patterns,
		AnalysisStatus: models.AnalysisAnalyzed,
		LastAnalyzed:   &last,
	}
}

func TestRescanInterval(t *testing.T) {
	tests := []struct {
		name string
		repo models.Repository
		want time.Duration
	}{
		{"many patterns", analyzedRepo("a", 0, 150), intervalHigh},
		{"react category", analyzedRepo("b", 0, 50, "react-frontend"), intervalHigh},
		{"react case insensitive", analyzedRepo("c", 0, 50, "React"), intervalHigh},
		{"few patterns", analyzedRepo("d", 0, 5), intervalLow},
		{"boundary high", analyzedRepo("e", 0, 100), intervalMedium},
		{"boundary low", analyzedRepo("f", 0, 20), intervalMedium},
		{"middle", analyzedRepo("g", 0, 60), intervalMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rescanInterval(&tt.repo))
		})
	}
}

func TestDueRepositories(t *testing.T) {
	now := time.Now()
	never := models.Repository{ID: "never", AnalysisStatus: models.AnalysisPending}
	failed := analyzedRepo("failed", 13*time.Hour, 60)
	failed.AnalysisStatus = models.AnalysisFailed
	repos := []models.Repository{
		never,
		analyzedRepo("due-high", 5*time.Hour, 150),
		analyzedRepo("fresh-high", 1*time.Hour, 150),
		analyzedRepo("due-low", 25*time.Hour, 5),
		analyzedRepo("fresh-low", 13*time.Hour, 5),
		analyzedRepo("due-medium", 13*time.Hour, 60),
		failed,
	}

	due := dueRepositories(repos, now)
	ids := make([]string, len(due))
	for i, r := range due {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"never", "due-high", "due-low", "due-medium", "failed"}, ids)
}

func TestHasReactCategory(t *testing.T) {
	assert.True(t, hasReactCategory(&models.Repository{Categories: []string{"backend", "React Frontend"}}))
	assert.False(t, hasReactCategory(&models.Repository{Categories: []string{"backend"}}))
	assert.False(t, hasReactCategory(&models.Repository{}))
}

// emptyForge serves an empty tree so pipeline runs complete instantly.
type emptyForge struct{}

func (emptyForge) GetTree(ctx context.Context, owner, repo, ref string) ([]github.TreeEntry, error) {
	return nil, nil
}

func (emptyForge) GetBlob(ctx context.Context, owner, repo, ref, path string) (string, error) {
	return "", nil
}

func (emptyForge) GetBlobStream(ctx context.Context, owner, repo, ref, path string) (io.ReadCloser, error) {
	return nil, nil
}

func (emptyForge) Authenticated() bool { return true }

func (emptyForge) GetRateLimit(ctx context.Context) (github.RateLimit, error) {
	return github.RateLimit{Remaining: 5000, ResetAt: time.Now().Add(time.Hour)}, nil
}

type noRules struct{}

func (noRules) Rules() []training.PreventionRule { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.RemoteToken = "test-token"
	cfg.CheckoutDir = filepath.Join(dir, "checkouts")
	cfg.Normalize()

	forge := emptyForge{}
	sc := scanner.New(forge, scanner.NewGovernor(forge), cfg)
	eng := engine.New(sc, st, validation.New(noRules{}), nil, cfg)
	return New(eng, st), st
}

func TestStartRunsImmediatePass(t *testing.T) {
	orig := interRepoDelay
	interRepoDelay = time.Millisecond
	defer func() { interRepoDelay = orig }()

	s, st := newTestScheduler(t)
	require.NoError(t, st.UpsertRepository(models.Repository{
		ID:             "r1",
		FullName:       "octocat/widgets",
		DefaultBranch:  "main",
		AnalysisStatus: models.AnalysisPending,
	}))

	s.Start(context.Background(), time.Hour)
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.Status().TotalPasses >= 1
	}, 5*time.Second, 10*time.Millisecond)

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.LastPassScans)
	assert.Zero(t, status.LastPassErrors)

	repo, err := st.GetRepository("r1")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisAnalyzed, repo.AnalysisStatus)
	assert.NotNil(t, repo.LastAnalyzed)
}

func TestStartIsIdempotentAndStopWaits(t *testing.T) {
	s, _ := newTestScheduler(t)

	s.Start(context.Background(), time.Hour)
	s.Start(context.Background(), time.Hour) // no-op on a running scheduler

	require.Eventually(t, func() bool {
		return s.Status().TotalPasses >= 1
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.Status().Running)
	s.Stop() // idempotent
}

func TestScanRepositoryManuallyUnknownRepository(t *testing.T) {
	s, _ := newTestScheduler(t)
	_, err := s.ScanRepositoryManually(context.Background(), "missing")
	assert.Error(t, err)
}

func TestScanRepositoryManually(t *testing.T) {
	s, st := newTestScheduler(t)
	require.NoError(t, st.UpsertRepository(models.Repository{
		ID:             "r1",
		FullName:       "octocat/widgets",
		DefaultBranch:  "main",
		AnalysisStatus: models.AnalysisPending,
	}))

	report, err := s.ScanRepositoryManually(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "octocat/widgets", report.Repository)
}
