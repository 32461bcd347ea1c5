// Package engine orchestrates the per-repository analysis pipeline: scan,
// classify, generate, validate, persist.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/internal/classifier"
	"github.com/codepulse/codepulse/internal/config"
	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/internal/recommend"
	"github.com/codepulse/codepulse/internal/scanner"
	"github.com/codepulse/codepulse/internal/store"
	"github.com/codepulse/codepulse/internal/training"
	"github.com/codepulse/codepulse/internal/validation"
)

// Report summarizes one repository analysis.
type Report struct {
	Repository string
	Profile    models.TechStackProfile
	Scan       models.ScanMetrics
	Patterns   int
	Generated  int
	Inserted   int
	Rejected   int
	Duration   time.Duration
}

// Engine wires the pipeline stages together.
type Engine struct {
	scanner   *scanner.FileScanner
	store     *store.Store
	validator *validation.Validator
	training  *training.Store
	cfg       config.Config
}

// New creates an Engine. The training store may be nil; rejections are then
// not recorded as cases.
func New(sc *scanner.FileScanner, st *store.Store, val *validation.Validator, tr *training.Store, cfg config.Config) *Engine {
	cfg.Normalize()
	return &Engine{scanner: sc, store: st, validator: val, training: tr, cfg: cfg}
}

// AnalyzeRepository runs the full pipeline for one repository and persists
// the outcome. The repository row is updated even on failure, so status
// transitions are always durable. Cancellation of the caller's context is
// the exception: the partial scan is discarded and the stored row is left
// exactly as it was.
func (e *Engine) AnalyzeRepository(ctx context.Context, repo *models.Repository) (Report, error) {
	start := time.Now()
	scanCtx, cancel := context.WithTimeout(ctx, e.cfg.ScanTimeout)
	defer cancel()

	result := e.scanner.Scan(scanCtx, repo)
	if !result.Successful {
		if ctx.Err() != nil {
			return Report{Repository: repo.FullName, Duration: time.Since(start)},
				fmt.Errorf("scanning %s: %w", repo.FullName, ctx.Err())
		}
		repo.AnalysisStatus = models.AnalysisFailed
		if repo.Metadata == nil {
			repo.Metadata = map[string]string{}
		}
		repo.Metadata["last_error"] = result.ErrorMessage
		if err := e.store.UpsertRepository(*repo); err != nil {
			log.Error().Str("repo", repo.FullName).Err(err).Msg("Persisting failed status")
		}
		return Report{Repository: repo.FullName, Duration: time.Since(start)},
			fmt.Errorf("scanning %s: %s", repo.FullName, result.ErrorMessage)
	}

	profile := classifier.Classify(repo)
	repo.TechStack = profile.Profile
	if repo.Framework == "" {
		repo.Framework = profile.Framework
	}

	recs := e.generate(repo, profile, &result)
	kept, rejected := e.validate(repo, recs)

	if err := e.persist(repo, &result, kept); err != nil {
		repo.AnalysisStatus = models.AnalysisFailed
		if uerr := e.store.UpsertRepository(*repo); uerr != nil {
			log.Error().Str("repo", repo.FullName).Err(uerr).Msg("Persisting failed status")
		}
		return Report{Repository: repo.FullName, Duration: time.Since(start)}, err
	}

	report := Report{
		Repository: repo.FullName,
		Profile:    profile,
		Scan:       result.Metrics,
		Patterns:   len(result.Patterns),
		Generated:  len(recs),
		Inserted:   len(kept),
		Rejected:   rejected,
		Duration:   time.Since(start),
	}
	log.Info().
		Str("repo", repo.FullName).
		Str("profile", profile.Profile).
		Int("patterns", report.Patterns).
		Int("recommendations", report.Inserted).
		Int("rejected", report.Rejected).
		Dur("duration", report.Duration).
		Msg("Repository analyzed")
	return report, nil
}

func (e *Engine) generate(repo *models.Repository, profile models.TechStackProfile, result *models.ScanResult) []models.Recommendation {
	gen := recommend.ForProfile(profile.Profile)
	rctx := recommend.Context{Repository: repo, Profile: profile, Patterns: result.Patterns}

	recs := gen.Generate(rctx)
	recs = append(recs, gen.GenerateFromScan(rctx, recommend.Summarize(result))...)
	recommend.Sort(recs)
	return recs
}

// validate filters the candidate set through the quality validator.
// Rejections become false-positive training cases; a validation error keeps
// the recommendation tagged unvalidated.
func (e *Engine) validate(repo *models.Repository, recs []models.Recommendation) (kept []models.Recommendation, rejected int) {
	root := filepath.Join(e.cfg.CheckoutDir, filepath.FromSlash(repo.FullName))

	for _, rec := range recs {
		res, err := e.validator.Validate(&rec, root)
		if err != nil {
			if rec.Metadata == nil {
				rec.Metadata = map[string]string{}
			}
			rec.Metadata["validation_status"] = "unvalidated"
			rec.Metadata["validation_error"] = err.Error()
			kept = append(kept, rec)
			continue
		}

		switch res.Action {
		case validation.ActionReject:
			rejected++
			log.Info().
				Str("repo", repo.FullName).
				Str("recommendation", rec.Title).
				Strs("conflicting", res.ConflictingEvidence).
				Msg("Recommendation rejected by validator")
			if e.training != nil {
				if _, terr := e.training.Append(validation.FalsePositiveCase(rec, res)); terr != nil {
					log.Warn().Err(terr).Msg("Recording training case failed")
				}
			}
		case validation.ActionModify:
			if rec.Metadata == nil {
				rec.Metadata = map[string]string{}
			}
			rec.Metadata["validation_status"] = "modify"
			rec.Metadata["modification_suggestions"] = strings.Join(res.ModificationSuggestions, "; ")
			kept = append(kept, rec)
		default:
			kept = append(kept, rec)
		}
	}
	return kept, rejected
}

// persist clears the previous active set, inserts the validated
// recommendations, swaps the pattern set, and refreshes the repository row.
func (e *Engine) persist(repo *models.Repository, result *models.ScanResult, recs []models.Recommendation) error {
	if err := e.store.ClearRepositoryRecommendations(repo.ID); err != nil {
		return err
	}
	if _, err := e.store.InsertRecommendationsUnique(recs); err != nil {
		return err
	}
	if err := e.store.ReplacePatterns(repo.ID, result.Patterns); err != nil {
		return err
	}

	now := time.Now()
	repo.PatternsCount = len(result.Patterns)
	repo.LastAnalyzed = &now
	repo.AnalysisStatus = models.AnalysisAnalyzed
	return e.store.UpsertRepository(*repo)
}
