// Package classifier maps repository category tags to a tech-stack profile.
// The mapping is a deterministic waterfall: the first matching rule wins and
// classification never fails.
package classifier

import (
	"strings"

	"github.com/codepulse/codepulse/internal/models"
)

// Profile identifiers, in waterfall order.
const (
	ProfileAzureFunctions       = "azure-functions"
	ProfileDevopsMonitoring     = "devops-monitoring"
	ProfileHealthcareEnterprise = "healthcare-enterprise"
	ProfileReactFrontend        = "react-frontend"
	ProfileMiddlewareAPI        = "middleware-api"
	ProfileLegacyMigration      = "legacy-migration"
	ProfileFullstackTypescript  = "fullstack-typescript"
	ProfileGeneralTypescript    = "general-typescript"
)

// Profiles lists every profile the classifier can produce.
func Profiles() []string {
	return []string{
		ProfileAzureFunctions,
		ProfileDevopsMonitoring,
		ProfileHealthcareEnterprise,
		ProfileReactFrontend,
		ProfileMiddlewareAPI,
		ProfileLegacyMigration,
		ProfileFullstackTypescript,
		ProfileGeneralTypescript,
	}
}

type rule struct {
	profile    string
	confidence float64
	framework  string
	// all must every tag be present; any matches when at least one is.
	all []string
	any []string
}

var waterfall = []rule{
	{profile: ProfileAzureFunctions, confidence: 0.95, framework: "Azure Functions", all: []string{"azure", "functions"}},
	{profile: ProfileDevopsMonitoring, confidence: 0.90, any: []string{"devops", "monitoring"}},
	{profile: ProfileHealthcareEnterprise, confidence: 0.85, any: []string{"healthcare", "dental"}},
	{profile: ProfileReactFrontend, confidence: 0.90, framework: "React", any: []string{"frontend", "react"}},
	{profile: ProfileMiddlewareAPI, confidence: 0.80, any: []string{"middleware"}},
	{profile: ProfileLegacyMigration, confidence: 0.85, any: []string{"migration", "legacy"}},
	{profile: ProfileFullstackTypescript, confidence: 0.90, all: []string{"backend", "fullstack"}},
}

// Classify returns the profile for a repository's category tags. Tags are
// matched case-insensitively. Falls through to general-typescript.
func Classify(repo *models.Repository) models.TechStackProfile {
	tags := make(map[string]struct{}, len(repo.Categories))
	for _, c := range repo.Categories {
		tags[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	for _, r := range waterfall {
		indicators := r.match(tags)
		if indicators == nil {
			continue
		}
		return models.TechStackProfile{
			Profile:         r.profile,
			Confidence:      r.confidence,
			Indicators:      indicators,
			PrimaryLanguage: repo.PrimaryLanguage,
			Framework:       r.framework,
		}
	}

	return models.TechStackProfile{
		Profile:         ProfileGeneralTypescript,
		Confidence:      0.70,
		PrimaryLanguage: repo.PrimaryLanguage,
	}
}

// match returns the matched tags, or nil when the rule does not apply.
func (r *rule) match(tags map[string]struct{}) []string {
	if len(r.all) > 0 {
		for _, want := range r.all {
			if _, ok := tags[want]; !ok {
				return nil
			}
		}
		return append([]string(nil), r.all...)
	}
	var hits []string
	for _, want := range r.any {
		if _, ok := tags[want]; ok {
			hits = append(hits, want)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return hits
}
