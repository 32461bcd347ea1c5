package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/internal/models"
)

// InsertRecommendationsUnique inserts the batch, skipping any item for
// which an active row with the same (repository_id, title) already exists,
// and skipping intra-batch duplicates on the same key. An item whose insert
// fails is logged and skipped without aborting the rest of the batch.
// Returns the number actually inserted.
func (s *Store) InsertRecommendationsUnique(recs []models.Recommendation) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning recommendation insert: %w", err)
	}
	defer tx.Rollback()

	type key struct{ repo, title string }
	seen := make(map[key]bool, len(recs))
	inserted := 0

	for _, rec := range recs {
		k := key{rec.RepositoryID, rec.Title}
		if seen[k] {
			continue
		}
		seen[k] = true

		var exists int
		err := tx.QueryRow(`
			SELECT COUNT(1) FROM repository_recommendations
			WHERE repository_id = ? AND title = ? AND status = 'active'`,
			rec.RepositoryID, rec.Title).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("checking existing recommendation: %w", err)
		}
		if exists > 0 {
			continue
		}

		if err := insertRecommendation(tx, rec); err != nil {
			// A failed statement rolls back only itself; the rest of the
			// batch still gets its chance.
			log.Warn().
				Str("repository", rec.RepositoryID).
				Str("title", rec.Title).
				Err(err).
				Msg("Skipping recommendation insert")
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing recommendation insert: %w", err)
	}
	return inserted, nil
}

func insertRecommendation(tx *sql.Tx, rec models.Recommendation) error {
	steps, err := encodeJSON(rec.ImplementationSteps)
	if err != nil {
		return fmt.Errorf("encoding steps for %q: %w", rec.Title, err)
	}
	tags, err := encodeJSON(rec.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for %q: %w", rec.Title, err)
	}
	metadata, err := encodeJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata for %q: %w", rec.Title, err)
	}

	var beforeCode, afterCode string
	if len(rec.CodeExamples) > 0 {
		beforeCode = rec.CodeExamples[0].Before
		afterCode = rec.CodeExamples[0].After
	}

	now := time.Now()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := rec.Status
	if status == "" {
		status = models.RecStatusActive
	}

	_, err = tx.Exec(`
		INSERT INTO repository_recommendations (
			id, repository_id, title, description, category, priority,
			impact, time_estimate, time_saved, bugs_prevented,
			performance_gain, before_code, after_code,
			implementation_steps, tags, status, difficulty, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RepositoryID, rec.Title, rec.Description,
		string(rec.Type), string(rec.Priority), rec.Metadata["impact"],
		rec.EstimatedEffort, rec.Metrics.TimeSaved, rec.Metrics.BugsPrevented,
		rec.Metrics.PerformanceGain, beforeCode, afterCode, steps, tags,
		string(status), rec.Difficulty, metadata,
		createdAt.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("inserting recommendation %q: %w", rec.Title, err)
	}
	return nil
}

// AgeStaleRecommendations marks active recommendations created before the
// cutoff as outdated. Returns the number aged.
func (s *Store) AgeStaleRecommendations(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE repository_recommendations
		SET status = 'outdated', updated_at = ?
		WHERE status = 'active' AND created_at < ?`,
		time.Now().Unix(), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("aging recommendations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("aged", n).Time("cutoff", cutoff).Msg("Stale recommendations aged out")
	}
	return int(n), nil
}

// CleanupDuplicateRecommendations keeps, for each (repository_id, title)
// with multiple active rows, the most recently created one and deletes the
// rest. A created_at tie keeps the lexically greatest id, which for
// ULID-derived ids is the newest. Returns the number deleted.
func (s *Store) CleanupDuplicateRecommendations() (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM repository_recommendations
		WHERE status = 'active' AND id NOT IN (
			SELECT id FROM (
				SELECT id,
					ROW_NUMBER() OVER (
						PARTITION BY repository_id, title
						ORDER BY created_at DESC, id DESC
					) AS rn
				FROM repository_recommendations
				WHERE status = 'active'
			) WHERE rn = 1
		)`)
	if err != nil {
		return 0, fmt.Errorf("cleaning duplicate recommendations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Duplicate recommendations removed")
	}
	return int(n), nil
}

// ClearRepositoryRecommendations deletes a repository's active rows ahead
// of a fresh scan.
func (s *Store) ClearRepositoryRecommendations(repositoryID string) error {
	_, err := s.db.Exec(`
		DELETE FROM repository_recommendations
		WHERE repository_id = ? AND status = 'active'`, repositoryID)
	if err != nil {
		return fmt.Errorf("clearing recommendations for %s: %w", repositoryID, err)
	}
	return nil
}

// RecommendationsForRepository loads a repository's recommendations,
// optionally filtered to one status ("" loads all), newest first.
func (s *Store) RecommendationsForRepository(repositoryID string, status models.RecommendationStatus) ([]models.Recommendation, error) {
	query := `
		SELECT id, repository_id, title, description, category, priority,
			time_estimate, time_saved, bugs_prevented, performance_gain,
			before_code, after_code, implementation_steps, tags, status,
			difficulty, metadata, created_at, updated_at
		FROM repository_recommendations
		WHERE repository_id = ?`
	args := []any{repositoryID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var description, category, priority sql.NullString
		var timeEstimate, timeSaved, bugsPrevented, performanceGain sql.NullString
		var beforeCode, afterCode, steps, tags, recStatus, difficulty, metadata sql.NullString
		var createdAt, updatedAt int64

		err := rows.Scan(&rec.ID, &rec.RepositoryID, &rec.Title, &description,
			&category, &priority, &timeEstimate, &timeSaved, &bugsPrevented,
			&performanceGain, &beforeCode, &afterCode, &steps, &tags,
			&recStatus, &difficulty, &metadata, &createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}

		rec.Description = description.String
		rec.Type = models.RecommendationType(category.String)
		rec.Priority = models.Priority(priority.String)
		rec.EstimatedEffort = timeEstimate.String
		rec.Metrics = models.ImpactMetrics{
			TimeSaved:       timeSaved.String,
			BugsPrevented:   bugsPrevented.String,
			PerformanceGain: performanceGain.String,
		}
		rec.Status = models.RecommendationStatus(recStatus.String)
		rec.Difficulty = difficulty.String
		rec.CreatedAt = time.Unix(createdAt, 0)
		rec.UpdatedAt = time.Unix(updatedAt, 0)
		if beforeCode.String != "" || afterCode.String != "" {
			rec.CodeExamples = []models.CodeExample{{
				Before: beforeCode.String,
				After:  afterCode.String,
			}}
		}

		if !decodeJSON(steps, &rec.ImplementationSteps) ||
			!decodeJSON(tags, &rec.Tags) ||
			!decodeJSON(metadata, &rec.Metadata) {
			log.Warn().Str("recommendation", rec.ID).Msg("Invalid JSON in recommendation row, skipping")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountActiveRecommendations returns the number of active rows across all
// repositories.
func (s *Store) CountActiveRecommendations() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM repository_recommendations WHERE status = 'active'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recommendations: %w", err)
	}
	return n, nil
}
