package scanner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/config"
	scanerrors "github.com/codepulse/codepulse/internal/errors"
	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/pkg/github"
)

type fakeForge struct {
	mu         sync.Mutex
	tree       []github.TreeEntry
	blobs      map[string]string
	treeErr    error
	blobErrs   map[string]error
	panicBlobs map[string]bool // paths whose next fetch panics once
	auth       bool
	blobCalls  map[string]int
	streamed   []string
}

func (f *fakeForge) GetTree(ctx context.Context, owner, repo, ref string) ([]github.TreeEntry, error) {
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	return f.tree, nil
}

func (f *fakeForge) GetBlob(ctx context.Context, owner, repo, ref, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobCalls == nil {
		f.blobCalls = map[string]int{}
	}
	f.blobCalls[path]++
	if f.panicBlobs[path] {
		delete(f.panicBlobs, path)
		panic("blob decode failure: " + path)
	}
	if err, ok := f.blobErrs[path]; ok {
		return "", err
	}
	return f.blobs[path], nil
}

func (f *fakeForge) GetBlobStream(ctx context.Context, owner, repo, ref, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.streamed = append(f.streamed, path)
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader(f.blobs[path])), nil
}

func (f *fakeForge) Authenticated() bool { return f.auth }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RemoteToken = "test-token"
	cfg.Normalize()
	return cfg
}

func testRepo() *models.Repository {
	return &models.Repository{
		ID:            "repo-1",
		FullName:      "octocat/widgets",
		DefaultBranch: "main",
		Framework:     "Express",
	}
}

func blobEntry(path string, size int64) github.TreeEntry {
	return github.TreeEntry{Path: path, Type: "blob", SHA: "sha-" + path, Size: size}
}

func TestScanEmptyTree(t *testing.T) {
	forge := &fakeForge{auth: true}
	s := New(forge, testGovernor(), testConfig())

	res := s.Scan(context.Background(), testRepo())
	assert.True(t, res.Successful)
	assert.Empty(t, res.Patterns)
	assert.NotNil(t, res.Patterns)
	assert.Equal(t, 0, res.Metrics.FilesListed)
}

func TestScanAnalyzesCodeFiles(t *testing.T) {
	forge := &fakeForge{
		auth: true,
		tree: []github.TreeEntry{
			blobEntry("src/b.ts", 100),
			blobEntry("src/a.ts", 100),
			blobEntry("README.md", 100),
			blobEntry("node_modules/x/index.js", 100),
		},
		blobs: map[string]string{
			"src/a.ts": "function alpha(x: number) { return x; }\n",
			"src/b.ts": "function beta(y: number) { return y; }\n",
		},
	}
	s := New(forge, testGovernor(), testConfig())

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful)

	// Non-code and excluded paths never reach the forge.
	assert.Equal(t, 2, res.Metrics.FilesListed)
	assert.Equal(t, 2, res.Metrics.FilesProcessed)
	assert.Zero(t, forge.blobCalls["README.md"])
	assert.Zero(t, forge.blobCalls["node_modules/x/index.js"])

	require.Len(t, res.Patterns, 2)
	for _, p := range res.Patterns {
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "repo-1", p.RepositoryID)
		assert.Equal(t, "Express", p.Framework)
	}
}

func TestScanUsesCacheOnSecondPass(t *testing.T) {
	forge := &fakeForge{
		auth:  true,
		tree:  []github.TreeEntry{blobEntry("src/a.ts", 100)},
		blobs: map[string]string{"src/a.ts": "function alpha() {}\n"},
	}
	s := New(forge, testGovernor(), testConfig())

	first := s.Scan(context.Background(), testRepo())
	require.True(t, first.Successful)
	assert.Equal(t, 0, first.Metrics.CacheHits)

	second := s.Scan(context.Background(), testRepo())
	require.True(t, second.Successful)
	assert.Equal(t, 1, second.Metrics.CacheHits)
	assert.Equal(t, 1, forge.blobCalls["src/a.ts"], "cached content must not be re-fetched")
	assert.Len(t, second.Patterns, 1)
}

func TestScanFileLimitOverride(t *testing.T) {
	forge := &fakeForge{
		auth: true,
		tree: []github.TreeEntry{
			blobEntry("src/c.ts", 1), blobEntry("src/a.ts", 1), blobEntry("src/b.ts", 1),
		},
		blobs: map[string]string{
			"src/a.ts": "function a() {}", "src/b.ts": "function b() {}", "src/c.ts": "function c() {}",
		},
	}
	cfg := testConfig()
	cfg.FileLimitOverride = 2
	s := New(forge, testGovernor(), cfg)

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful)
	// Paths are sorted before the cap, so the retained set is deterministic.
	assert.Equal(t, 2, res.Metrics.FilesListed)
	assert.Equal(t, 1, forge.blobCalls["src/a.ts"])
	assert.Equal(t, 1, forge.blobCalls["src/b.ts"])
	assert.Zero(t, forge.blobCalls["src/c.ts"])
}

func TestScanTreeErrorFailsScan(t *testing.T) {
	forge := &fakeForge{
		auth:    true,
		treeErr: scanerrors.New(scanerrors.ErrorTypeNotFound, "get_tree", "octocat/widgets", errors.New("404")),
	}
	s := New(forge, testGovernor(), testConfig())

	res := s.Scan(context.Background(), testRepo())
	assert.False(t, res.Successful)
	assert.Equal(t, "not_found", res.ErrorMessage)
	assert.Empty(t, res.Patterns)
}

func TestScanSkipsFailingFile(t *testing.T) {
	forge := &fakeForge{
		auth: true,
		tree: []github.TreeEntry{blobEntry("src/a.ts", 1), blobEntry("src/b.ts", 1)},
		blobs: map[string]string{
			"src/b.ts": "function b() {}",
		},
		blobErrs: map[string]error{
			"src/a.ts": scanerrors.New(scanerrors.ErrorTypeAccess, "get_blob", "octocat/widgets", errors.New("403")),
		},
	}
	s := New(forge, testGovernor(), testConfig())

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful, "a per-file error skips the file, not the scan")
	assert.Equal(t, 1, res.Metrics.FilesProcessed)
	assert.Equal(t, 1, res.Metrics.FilesSkipped)
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, "src/b.ts", res.Patterns[0].FilePath)
}

func TestScanStreamsLargeFiles(t *testing.T) {
	big := strings.Repeat("function pad() {}\n", 10)
	forge := &fakeForge{
		auth:  true,
		tree:  []github.TreeEntry{blobEntry("src/huge.ts", 2<<20), blobEntry("src/small.ts", 10)},
		blobs: map[string]string{"src/huge.ts": big, "src/small.ts": "function s() {}"},
	}
	cfg := testConfig()
	s := New(forge, testGovernor(), cfg)

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful)
	assert.Equal(t, []string{"src/huge.ts"}, forge.streamed)
	assert.Equal(t, 1, forge.blobCalls["src/small.ts"])
	assert.Zero(t, forge.blobCalls["src/huge.ts"], "large files bypass the contents API")
}

func TestScanCancelledContext(t *testing.T) {
	forge := &fakeForge{
		auth:  true,
		tree:  []github.TreeEntry{blobEntry("src/a.ts", 1)},
		blobs: map[string]string{"src/a.ts": "function a() {}"},
	}
	s := New(forge, testGovernor(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Scan(ctx, testRepo())
	assert.False(t, res.Successful)
}

func TestScanFallsBackToSequentialOnPipelinePanic(t *testing.T) {
	forge := &fakeForge{
		auth: true,
		tree: []github.TreeEntry{blobEntry("src/a.ts", 1), blobEntry("src/b.ts", 1)},
		blobs: map[string]string{
			"src/a.ts": "function a() {}",
			"src/b.ts": "function b() {}",
		},
		panicBlobs: map[string]bool{"src/b.ts": true},
	}
	s := New(forge, testGovernor(), testConfig())

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful, "the sequential path must rescue the scan")
	assert.True(t, res.Metrics.Fallback)
	assert.Equal(t, 2, res.Metrics.FilesProcessed)
	require.Len(t, res.Patterns, 2)
	// The file whose fetch panicked is retried by the fallback pass.
	assert.Equal(t, 2, forge.blobCalls["src/b.ts"])
}

func TestOverMemoryThreshold(t *testing.T) {
	orig := processRSS
	defer func() { processRSS = orig }()

	processRSS = func() (uint64, error) { return 300 << 20, nil }
	assert.True(t, overMemoryThreshold(200<<20))
	assert.False(t, overMemoryThreshold(0), "zero threshold disables the guard")

	processRSS = func() (uint64, error) { return 0, errors.New("procfs unavailable") }
	assert.False(t, overMemoryThreshold(200<<20), "measurement failure reads as not over")
}

func TestScanHalvesBatchesUnderMemoryPressure(t *testing.T) {
	orig := processRSS
	processRSS = func() (uint64, error) { return 300 << 20, nil }
	defer func() { processRSS = orig }()

	forge := &fakeForge{
		auth: true,
		tree: []github.TreeEntry{
			blobEntry("src/a.ts", 1), blobEntry("src/b.ts", 1),
			blobEntry("src/c.ts", 1), blobEntry("src/d.ts", 1),
		},
		blobs: map[string]string{
			"src/a.ts": "function a() {}", "src/b.ts": "function b() {}",
			"src/c.ts": "function c() {}", "src/d.ts": "function d() {}",
		},
	}
	cfg := testConfig()
	cfg.BatchSize = 2
	s := New(forge, testGovernor(), cfg)

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful)
	assert.Equal(t, 4, res.Metrics.FilesProcessed)
	// Shrinking batches reorders nothing and refetches nothing.
	for path := range forge.blobs {
		assert.Equal(t, 1, forge.blobCalls[path], path)
	}
}

func TestScanBlocksOnQuotaMidBatchWithoutRefetch(t *testing.T) {
	forge := &fakeForge{
		auth: true,
		tree: []github.TreeEntry{
			blobEntry("src/a.ts", 1), blobEntry("src/b.ts", 1), blobEntry("src/c.ts", 1),
		},
		blobs: map[string]string{
			"src/a.ts": "function a() {}",
			"src/b.ts": "function b() {}",
			"src/c.ts": "function c() {}",
		},
	}

	// Quota collapses on the refresh before the second file and recovers
	// after the block; the governor refreshes once per file check.
	reset := time.Now().Add(30 * time.Second)
	src := &fakeRateSource{limits: []github.RateLimit{
		{Remaining: 5000, ResetAt: time.Now().Add(time.Hour)}, // tree listing
		{Remaining: 5000, ResetAt: time.Now().Add(time.Hour)}, // first file
		{Remaining: 5, ResetAt: reset},                        // second file: below threshold
		{Remaining: 5000, ResetAt: time.Now().Add(time.Hour)}, // post-block refresh
	}}
	g := NewGovernor(src)
	var waits []time.Duration
	g.sleepFn = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	cfg := testConfig()
	cfg.MaxConcurrentFiles = 1 // deterministic per-file refresh order
	s := New(forge, g, cfg)

	res := s.Scan(context.Background(), testRepo())
	require.True(t, res.Successful)
	assert.Equal(t, 3, res.Metrics.FilesProcessed)

	require.Len(t, waits, 1, "exactly one block until the quota reset")
	assert.InDelta(t, (30 * time.Second).Seconds(), waits[0].Seconds(), 2)

	// Resuming after the block continues the batch; no file is fetched twice.
	for path := range forge.blobs {
		assert.Equal(t, 1, forge.blobCalls[path], path)
	}
}

func TestScanRespectsScanTimeout(t *testing.T) {
	forge := &fakeForge{
		auth:  true,
		tree:  []github.TreeEntry{blobEntry("src/a.ts", 1)},
		blobs: map[string]string{"src/a.ts": "function a() {}"},
	}
	s := New(forge, testGovernor(), testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	res := s.Scan(ctx, testRepo())
	assert.True(t, res.Successful)
}
