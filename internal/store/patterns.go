package store

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/internal/models"
)

// ReplacePatterns transactionally swaps a repository's pattern set: all
// existing rows are deleted, then the new set is inserted. A reader never
// sees a half-replaced set.
func (s *Store) ReplacePatterns(repositoryID string, patterns []models.Pattern) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning pattern replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM repository_patterns WHERE repository_id = ?`, repositoryID); err != nil {
		return fmt.Errorf("deleting old patterns: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO repository_patterns (
			id, repository_id, pattern_type, pattern_content, pattern_hash,
			description, category, subcategory, tags, file_path,
			line_start, line_end, language, framework, confidence_score,
			context_before, context_after, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing pattern insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range patterns {
		tags, err := encodeJSON(p.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for pattern %s: %w", p.ID, err)
		}
		metadata, err := encodeJSON(p.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for pattern %s: %w", p.ID, err)
		}
		_, err = stmt.Exec(p.ID, repositoryID, p.PatternType, p.Content,
			p.ContentHash, p.Description, p.Category, p.Subcategory, tags,
			p.FilePath, p.LineStart, p.LineEnd, p.Language, p.Framework,
			p.Confidence, p.ContextBefore, p.ContextAfter, metadata)
		if err != nil {
			return fmt.Errorf("inserting pattern %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing pattern replace: %w", err)
	}

	log.Debug().Str("repository", repositoryID).Int("patterns", len(patterns)).
		Msg("Pattern set replaced")
	return nil
}

// PatternsForRepository loads a repository's stored patterns ordered by
// file path then line.
func (s *Store) PatternsForRepository(repositoryID string) ([]models.Pattern, error) {
	rows, err := s.db.Query(`
		SELECT id, repository_id, pattern_type, pattern_content, pattern_hash,
			description, category, subcategory, tags, file_path,
			line_start, line_end, language, framework, confidence_score,
			context_before, context_after, metadata
		FROM repository_patterns
		WHERE repository_id = ?
		ORDER BY file_path, line_start`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.Pattern
	for rows.Next() {
		var p models.Pattern
		var content, hash, description, category, subcategory sql.NullString
		var tags, filePath, language, framework sql.NullString
		var contextBefore, contextAfter, metadata sql.NullString

		err := rows.Scan(&p.ID, &p.RepositoryID, &p.PatternType, &content,
			&hash, &description, &category, &subcategory, &tags, &filePath,
			&p.LineStart, &p.LineEnd, &language, &framework, &p.Confidence,
			&contextBefore, &contextAfter, &metadata)
		if err != nil {
			return nil, err
		}

		p.Content = content.String
		p.ContentHash = hash.String
		p.Description = description.String
		p.Category = category.String
		p.Subcategory = subcategory.String
		p.FilePath = filePath.String
		p.Language = language.String
		p.Framework = framework.String
		p.ContextBefore = contextBefore.String
		p.ContextAfter = contextAfter.String

		if !decodeJSON(tags, &p.Tags) || !decodeJSON(metadata, &p.Metadata) {
			// Invalidate the row rather than failing the query.
			log.Warn().Str("pattern", p.ID).Msg("Invalid JSON in pattern row, skipping")
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
