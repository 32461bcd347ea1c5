// Package store provides durable storage for repositories, detected
// patterns, and recommendations using SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/codepulse/codepulse/internal/models"
)

// Store wraps the SQLite database. SQLite works best with a single writer,
// so the connection pool is capped at one.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and initializes the
// schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Store initialized")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Maintain checkpoints the WAL and refreshes the query planner statistics.
// Called periodically by the scheduler.
func (s *Store) Maintain() error {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE); PRAGMA optimize;`); err != nil {
		return fmt.Errorf("store maintenance: %w", err)
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS repositories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			full_name TEXT NOT NULL UNIQUE,
			organization TEXT,
			description TEXT,
			tech_stack TEXT,
			primary_language TEXT,
			framework TEXT,
			default_branch TEXT,
			patterns_count INTEGER NOT NULL DEFAULT 0,
			categories TEXT,
			branches TEXT,
			analysis_status TEXT NOT NULL DEFAULT 'pending',
			last_analyzed INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			metadata TEXT
		);

		CREATE TABLE IF NOT EXISTS repository_patterns (
			id TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL REFERENCES repositories(id),
			pattern_type TEXT NOT NULL,
			pattern_content TEXT,
			pattern_hash TEXT,
			description TEXT,
			category TEXT,
			subcategory TEXT,
			tags TEXT,
			file_path TEXT,
			line_start INTEGER,
			line_end INTEGER,
			language TEXT,
			framework TEXT,
			confidence_score REAL,
			context_before TEXT,
			context_after TEXT,
			metadata TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_patterns_repo
		ON repository_patterns(repository_id);

		CREATE INDEX IF NOT EXISTS idx_patterns_repo_type
		ON repository_patterns(repository_id, pattern_type);

		CREATE TABLE IF NOT EXISTS repository_recommendations (
			id TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL REFERENCES repositories(id),
			title TEXT NOT NULL,
			description TEXT,
			category TEXT,
			priority TEXT,
			impact TEXT,
			time_estimate TEXT,
			time_saved TEXT,
			bugs_prevented TEXT,
			performance_gain TEXT,
			before_code TEXT,
			after_code TEXT,
			implementation_steps TEXT,
			tags TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			difficulty TEXT,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recs_repo_status
		ON repository_recommendations(repository_id, status);

		CREATE INDEX IF NOT EXISTS idx_recs_status_created
		ON repository_recommendations(status, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// encodeJSON renders v as an opaque blob for a JSON column. nil and empty
// values are stored as NULL.
func encodeJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeJSON decodes a JSON column into out. Returns false when the blob is
// present but undecodable; callers invalidate the row instead of failing.
func decodeJSON(blob sql.NullString, out any) bool {
	if !blob.Valid || blob.String == "" {
		return true
	}
	if err := json.Unmarshal([]byte(blob.String), out); err != nil {
		return false
	}
	return true
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// UpsertRepository inserts or replaces a repository row by id, refreshing
// patterns_count, last_analyzed, status, and metadata.
func (s *Store) UpsertRepository(repo models.Repository) error {
	categories, err := encodeJSON(repo.Categories)
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}
	branches, err := encodeJSON(repo.Branches)
	if err != nil {
		return fmt.Errorf("encoding branches: %w", err)
	}
	metadata, err := encodeJSON(repo.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	now := time.Now()
	createdAt := repo.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.Exec(`
		INSERT INTO repositories (
			id, name, full_name, organization, description, tech_stack,
			primary_language, framework, default_branch, patterns_count,
			categories, branches, analysis_status, last_analyzed,
			created_at, updated_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			full_name = excluded.full_name,
			organization = excluded.organization,
			description = excluded.description,
			tech_stack = excluded.tech_stack,
			primary_language = excluded.primary_language,
			framework = excluded.framework,
			default_branch = excluded.default_branch,
			patterns_count = excluded.patterns_count,
			categories = excluded.categories,
			branches = excluded.branches,
			analysis_status = excluded.analysis_status,
			last_analyzed = excluded.last_analyzed,
			updated_at = excluded.updated_at,
			metadata = excluded.metadata
	`, repo.ID, repo.Name, repo.FullName, repo.Organization, repo.Description,
		repo.TechStack, repo.PrimaryLanguage, repo.Framework, repo.DefaultBranch,
		repo.PatternsCount, categories, branches, string(repo.AnalysisStatus),
		nullTime(repo.LastAnalyzed), createdAt.Unix(), now.Unix(), metadata)
	if err != nil {
		return fmt.Errorf("upserting repository %s: %w", repo.FullName, err)
	}
	return nil
}

// GetRepository loads one repository by id.
func (s *Store) GetRepository(id string) (models.Repository, error) {
	row := s.db.QueryRow(`
		SELECT id, name, full_name, organization, description, tech_stack,
			primary_language, framework, default_branch, patterns_count,
			categories, branches, analysis_status, last_analyzed,
			created_at, updated_at, metadata
		FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return models.Repository{}, fmt.Errorf("repository %s not found", id)
	}
	return repo, err
}

// ListRepositories returns all repositories ordered by last_analyzed
// ascending with never-analyzed rows first.
func (s *Store) ListRepositories() ([]models.Repository, error) {
	rows, err := s.db.Query(`
		SELECT id, name, full_name, organization, description, tech_stack,
			primary_language, framework, default_branch, patterns_count,
			categories, branches, analysis_status, last_analyzed,
			created_at, updated_at, metadata
		FROM repositories
		ORDER BY last_analyzed IS NOT NULL, last_analyzed ASC, full_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []models.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (models.Repository, error) {
	var repo models.Repository
	var organization, description, techStack, primaryLanguage sql.NullString
	var framework, defaultBranch sql.NullString
	var categories, branches, metadata sql.NullString
	var status string
	var lastAnalyzed sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&repo.ID, &repo.Name, &repo.FullName, &organization,
		&description, &techStack, &primaryLanguage, &framework, &defaultBranch,
		&repo.PatternsCount, &categories, &branches, &status, &lastAnalyzed,
		&createdAt, &updatedAt, &metadata)
	if err != nil {
		return models.Repository{}, err
	}

	repo.Organization = organization.String
	repo.Description = description.String
	repo.TechStack = techStack.String
	repo.PrimaryLanguage = primaryLanguage.String
	repo.Framework = framework.String
	repo.DefaultBranch = defaultBranch.String
	repo.AnalysisStatus = models.AnalysisStatus(status)
	repo.CreatedAt = time.Unix(createdAt, 0)
	repo.UpdatedAt = time.Unix(updatedAt, 0)
	if lastAnalyzed.Valid {
		t := time.Unix(lastAnalyzed.Int64, 0)
		repo.LastAnalyzed = &t
	}

	// Undecodable JSON invalidates the field, not the row set.
	if !decodeJSON(categories, &repo.Categories) {
		log.Warn().Str("repository", repo.ID).Msg("Invalid categories JSON, dropping field")
		repo.Categories = nil
	}
	if !decodeJSON(branches, &repo.Branches) {
		log.Warn().Str("repository", repo.ID).Msg("Invalid branches JSON, dropping field")
		repo.Branches = nil
	}
	if !decodeJSON(metadata, &repo.Metadata) {
		log.Warn().Str("repository", repo.ID).Msg("Invalid metadata JSON, dropping field")
		repo.Metadata = nil
	}
	return repo, nil
}
