// Package selector ranks catalog models for a classified request under a
// credit budget. Ranking is fully deterministic: identical inputs produce
// identical candidate order regardless of call order or wall clock.
package selector

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/router-for-me/CreditRouter/internal/analyzer"
	"github.com/router-for-me/CreditRouter/internal/catalog"
)

// Preference weights the quality/cost tradeoff when ranking.
type Preference string

// Ranking preferences.
const (
	PreferenceBalanced Preference = "balanced"
	PreferenceCheap    Preference = "prefer_cheap"
	PreferenceQuality  Preference = "prefer_quality"
)

// ParsePreference normalizes a preference string, defaulting to balanced.
func ParsePreference(raw string) Preference {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PreferenceCheap), "cheap":
		return PreferenceCheap
	case string(PreferenceQuality), "quality":
		return PreferenceQuality
	default:
		return PreferenceBalanced
	}
}

// BudgetTier caps how much a single request may spend, independent of the
// account balance.
type BudgetTier string

// Budget tiers, resolved to a numeric ceiling at request entry.
const (
	TierFree      BudgetTier = "free"
	TierCheap     BudgetTier = "cheap"
	TierMedium    BudgetTier = "medium"
	TierExpensive BudgetTier = "expensive"
)

// ParseBudgetTier normalizes a tier string, defaulting to medium.
func ParseBudgetTier(raw string) BudgetTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(TierFree):
		return TierFree
	case string(TierCheap):
		return TierCheap
	case string(TierExpensive):
		return TierExpensive
	default:
		return TierMedium
	}
}

// CeilingMicros resolves the tier to a per-request spend ceiling.
func (t BudgetTier) CeilingMicros() int64 {
	switch t {
	case TierFree:
		return 0
	case TierCheap:
		return 1_000_000 // 1 credit
	case TierMedium:
		return 25_000_000 // 25 credits
	default:
		return math.MaxInt64
	}
}

// Candidate is one ranked model with its projected cost.
type Candidate struct {
	Model               *catalog.ModelDescriptor
	EstimatedCostMicros int64
	Score               float64
}

// Result is the ranked candidate list, or an empty list with the minimum
// shortfall when nothing is affordable.
type Result struct {
	Candidates      []Candidate
	ShortfallMicros int64
	Reasoning       string
}

// tagFor maps task types to catalog capability tags.
func tagFor(taskType analyzer.TaskType) string {
	switch taskType {
	case analyzer.TaskCoding:
		return "code"
	case analyzer.TaskWriting:
		return "writing"
	case analyzer.TaskAnalysis:
		return "analysis"
	case analyzer.TaskReasoning:
		return "reasoning"
	case analyzer.TaskCreative:
		return "creative"
	default:
		return catalog.TagGeneral
	}
}

// Select ranks affordable, capable candidates. excluded holds model ids
// already tried during fallback iteration.
func Select(cat *catalog.Catalog, analysis analyzer.Analysis, availableMicros int64, pref Preference, excluded map[string]struct{}) Result {
	tag := tagFor(analysis.TaskType)
	pool := cat.ByTag(tag)
	if len(pool) == 0 {
		tag = catalog.TagGeneral
		pool = cat.ByTag(tag)
	}

	var affordable []Candidate
	minShortfall := int64(-1)
	for _, model := range pool {
		if _, skip := excluded[model.ID]; skip {
			continue
		}
		cost := EstimateCostMicros(analysis.EstimatedTokens, model)
		if cost > availableMicros {
			shortfall := cost - availableMicros
			if minShortfall < 0 || shortfall < minShortfall {
				minShortfall = shortfall
			}
			continue
		}
		affordable = append(affordable, Candidate{Model: model, EstimatedCostMicros: cost})
	}

	if len(affordable) == 0 {
		if minShortfall < 0 {
			minShortfall = 0
		}
		return Result{
			ShortfallMicros: minShortfall,
			Reasoning: fmt.Sprintf("task=%s tag=%s: no affordable candidates (short %d micros)",
				analysis.TaskType, tag, minShortfall),
		}
	}

	score(affordable, pref)
	sort.SliceStable(affordable, func(i, j int) bool {
		if affordable[i].Score != affordable[j].Score {
			return affordable[i].Score > affordable[j].Score
		}
		if affordable[i].Model.PriorityRank != affordable[j].Model.PriorityRank {
			return affordable[i].Model.PriorityRank < affordable[j].Model.PriorityRank
		}
		return affordable[i].Model.ID < affordable[j].Model.ID
	})

	return Result{
		Candidates: affordable,
		Reasoning: fmt.Sprintf("task=%s complexity=%s est_tokens=%d tag=%s preference=%s: %d candidates, top=%s",
			analysis.TaskType, analysis.Complexity, analysis.EstimatedTokens, tag, pref,
			len(affordable), affordable[0].Model.ID),
	}
}

// EstimateCostMicros projects the cost of running estimatedTokens through
// a model.
func EstimateCostMicros(estimatedTokens int64, model *catalog.ModelDescriptor) int64 {
	return estimatedTokens * model.CostPer1KMicros / 1000
}

// score assigns the composite quality/cost score per preference. Cost is
// normalized against the most expensive affordable candidate so the cost
// term stays in [0, 1].
func score(candidates []Candidate, pref Preference) {
	var maxCost int64
	for _, c := range candidates {
		if c.EstimatedCostMicros > maxCost {
			maxCost = c.EstimatedCostMicros
		}
	}

	var qualityWeight, costWeight float64
	switch pref {
	case PreferenceCheap:
		qualityWeight, costWeight = 0.3, 0.7
	case PreferenceQuality:
		qualityWeight, costWeight = 0.8, 0.2
	default:
		qualityWeight, costWeight = 0.5, 0.5
	}

	for i := range candidates {
		costNorm := 0.0
		if maxCost > 0 {
			costNorm = float64(candidates[i].EstimatedCostMicros) / float64(maxCost)
		}
		candidates[i].Score = qualityWeight*candidates[i].Model.QualityScore + costWeight*(1-costNorm)
	}
}
