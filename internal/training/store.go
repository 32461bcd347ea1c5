// Package training persists validation outcomes as append-only training
// cases and maintains the active prevention-rule set derived from them.
package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/internal/models"
)

// CaseType classifies a training case.
type CaseType string

const (
	CaseFalsePositive CaseType = "false_positive"
	CaseFalseNegative CaseType = "false_negative"
	CaseAccurate      CaseType = "accurate"
	CaseImprovement   CaseType = "improvement"
)

// RuleAction is what a matched prevention rule forces.
type RuleAction string

const (
	ActionReject        RuleAction = "reject"
	ActionModify        RuleAction = "modify"
	ActionFlagForReview RuleAction = "flag_for_review"
)

// PreventionRule is a named predicate over (recommendation, analysis).
// On name collision the higher-confidence rule wins.
type PreventionRule struct {
	Name        string     `json:"name"`
	Condition   string     `json:"condition"`
	Action      RuleAction `json:"action"`
	Confidence  float64    `json:"confidence"`
	Description string     `json:"description,omitempty"`
}

// AnalysisSnapshot is the codebase-analysis view rules are evaluated
// against. Built by the quality validator.
type AnalysisSnapshot struct {
	ErrorHandlingCoverage float64  `json:"errorHandlingCoverage"`
	FunctionCount         int      `json:"functionCount"`
	SophisticatedPatterns []string `json:"sophisticatedPatterns,omitempty"`
	HasErrorMiddleware    bool     `json:"hasErrorMiddleware"`
	HasCustomErrorClasses bool     `json:"hasCustomErrorClasses"`
	HasAsyncErrorHandling bool     `json:"hasAsyncErrorHandling"`
	Evidence              []string `json:"evidence,omitempty"`
}

// Outcome is the validation verdict snapshot stored with a case.
type Outcome struct {
	Valid               bool     `json:"valid"`
	Confidence          float64  `json:"confidence"`
	Action              string   `json:"action"`
	ConflictingEvidence []string `json:"conflictingEvidence,omitempty"`
	SupportingEvidence  []string `json:"supportingEvidence,omitempty"`
}

// Case is one append-only training record.
type Case struct {
	ID              string                `json:"id"`
	Timestamp       time.Time             `json:"timestamp"`
	CaseType        CaseType              `json:"caseType"`
	Recommendation  models.Recommendation `json:"recommendation"`
	Analysis        AnalysisSnapshot      `json:"analysis"`
	Validation      Outcome               `json:"validation"`
	Lessons         []string              `json:"lessons,omitempty"`
	PreventionRules []PreventionRule      `json:"preventionRules,omitempty"`
}

const rulesFileName = "prevention-rules.json"

// Store is the on-disk training store: one JSON file per case plus one file
// for the active prevention-rule set. Writes are serialized by a mutex.
type Store struct {
	mu       sync.Mutex
	dir      string
	rules    map[string]PreventionRule
	maxCases int

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore opens (creating if needed) the training directory and loads the
// persisted prevention rules. maxCases <= 0 disables pruning.
func NewStore(dir string, maxCases int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating training directory: %w", err)
	}
	s := &Store{
		dir:      dir,
		rules:    make(map[string]PreventionRule),
		maxCases: maxCases,
		stopCh:   make(chan struct{}),
	}
	if err := s.loadRules(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch reloads the prevention-rule set when the rules file changes on
// disk, so externally edited rules take effect without a restart.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != rulesFileName {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.mu.Lock()
				if err := s.loadRules(); err != nil {
					log.Warn().Err(err).Msg("Reloading prevention rules failed")
				} else {
					log.Info().Int("rules", len(s.rules)).Msg("Prevention rules reloaded")
				}
				s.mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Training store watcher error")
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

// Rules returns the active prevention rules sorted by name.
func (s *Store) Rules() []PreventionRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PreventionRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MergeRules folds new rules into the active set; on a name collision the
// higher-confidence rule is kept. The merged set is persisted.
func (s *Store) MergeRules(rules []PreventionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rules {
		if r.Name == "" {
			continue
		}
		existing, ok := s.rules[r.Name]
		if !ok || r.Confidence > existing.Confidence {
			s.rules[r.Name] = r
		}
	}
	return s.persistRulesLocked()
}

// Append writes one training case. The case ID is derived from the kind and
// the millisecond timestamp; associated prevention rules are merged into
// the active set.
func (s *Store) Append(c Case) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	if c.ID == "" {
		kind := strings.ReplaceAll(string(c.CaseType), "_", "-")
		c.ID = fmt.Sprintf("%s-%d", kind, c.Timestamp.UnixMilli())
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return Case{}, fmt.Errorf("encoding training case: %w", err)
	}
	path := filepath.Join(s.dir, "training-case-"+c.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Case{}, fmt.Errorf("writing training case: %w", err)
	}

	for _, r := range c.PreventionRules {
		if r.Name == "" {
			continue
		}
		existing, ok := s.rules[r.Name]
		if !ok || r.Confidence > existing.Confidence {
			s.rules[r.Name] = r
		}
	}
	if len(c.PreventionRules) > 0 {
		if err := s.persistRulesLocked(); err != nil {
			return Case{}, err
		}
	}

	s.pruneLocked()

	log.Info().Str("id", c.ID).Str("type", string(c.CaseType)).Msg("Training case recorded")
	return c, nil
}

// Cases lists all persisted cases, oldest first.
func (s *Store) Cases() ([]Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.caseFilesLocked()
	if err != nil {
		return nil, err
	}
	cases := make([]Case, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		var c Case
		if err := json.Unmarshal(data, &c); err != nil {
			log.Warn().Str("file", name).Err(err).Msg("Skipping unreadable training case")
			continue
		}
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Timestamp.Before(cases[j].Timestamp) })
	return cases, nil
}

func (s *Store) caseFilesLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "training-case-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// pruneLocked removes the oldest case files past the configured cap.
func (s *Store) pruneLocked() {
	if s.maxCases <= 0 {
		return
	}
	names, err := s.caseFilesLocked()
	if err != nil || len(names) <= s.maxCases {
		return
	}
	// File names embed millisecond timestamps, so lexical order is age order.
	for _, name := range names[:len(names)-s.maxCases] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			log.Warn().Str("file", name).Err(err).Msg("Pruning training case failed")
		}
	}
}

func (s *Store) loadRules() error {
	data, err := os.ReadFile(filepath.Join(s.dir, rulesFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading prevention rules: %w", err)
	}
	var rules []PreventionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("decoding prevention rules: %w", err)
	}
	for _, r := range rules {
		if r.Name == "" {
			continue
		}
		existing, ok := s.rules[r.Name]
		if !ok || r.Confidence > existing.Confidence {
			s.rules[r.Name] = r
		}
	}
	return nil
}

func (s *Store) persistRulesLocked() error {
	rules := make([]PreventionRule, 0, len(s.rules))
	for _, r := range s.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding prevention rules: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, rulesFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing prevention rules: %w", err)
	}
	return nil
}
