// Package analyzer classifies prompts before routing. Classification is
// advisory: a prompt the heuristics cannot place degrades to a general,
// medium-complexity task instead of blocking the request.
package analyzer

import (
	"strings"
)

// TaskType labels what kind of work a prompt asks for.
type TaskType string

// Task types recognized by the analyzer.
const (
	TaskCoding    TaskType = "coding"
	TaskWriting   TaskType = "writing"
	TaskAnalysis  TaskType = "analysis"
	TaskReasoning TaskType = "reasoning"
	TaskCreative  TaskType = "creative"
	TaskGeneral   TaskType = "general"
)

// Complexity buckets a prompt by expected effort.
type Complexity string

// Complexity levels.
const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Analysis is the classification result for one prompt.
type Analysis struct {
	TaskType        TaskType
	Complexity      Complexity
	EstimatedTokens int64
	Confidence      float64
}

// Config holds the tunable classification thresholds. The exact numbers are
// heuristic and safe to adjust; correctness does not depend on them.
type Config struct {
	TokenMultiplier float64 `yaml:"token-multiplier"`
	MinTokens       int64   `yaml:"min-tokens"`
	MaxTokens       int64   `yaml:"max-tokens"`
	SimpleMaxWords  int     `yaml:"simple-max-words"`
	ComplexMinWords int     `yaml:"complex-min-words"`
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{
		TokenMultiplier: 1.35,
		MinTokens:       64,
		MaxTokens:       32768,
		SimpleMaxWords:  50,
		ComplexMinWords: 300,
	}
}

// Keyword sets per task type. Matching is case-insensitive on word
// boundaries established by Fields, so substrings inside longer words
// do not fire.
var taskKeywords = map[TaskType][]string{
	TaskCoding:    {"function", "bug", "compile", "refactor", "implement", "code", "api", "debug", "regex", "sql", "class", "struct", "error", "stack"},
	TaskWriting:   {"write", "essay", "email", "blog", "article", "summarize", "rewrite", "draft", "letter", "document"},
	TaskAnalysis:  {"analyze", "analyse", "compare", "evaluate", "assess", "breakdown", "pros", "cons", "tradeoff", "review"},
	TaskReasoning: {"why", "prove", "derive", "logic", "reason", "deduce", "calculate", "solve", "puzzle"},
	TaskCreative:  {"story", "poem", "imagine", "fiction", "song", "character", "creative", "plot", "lyrics"},
}

// Reference-style prompts get the longest cache TTL; the cache package
// consults this list through LooksLikeReference.
var referenceKeywords = []string{"what is", "define", "definition", "explain", "meaning of", "who is", "when was"}

// Analyzer classifies prompts. The zero value is not usable; construct
// with New.
type Analyzer struct {
	cfg Config
}

// New constructs an analyzer, filling unset thresholds with defaults.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.TokenMultiplier <= 0 {
		cfg.TokenMultiplier = def.TokenMultiplier
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = def.MinTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.SimpleMaxWords <= 0 {
		cfg.SimpleMaxWords = def.SimpleMaxWords
	}
	if cfg.ComplexMinWords <= 0 {
		cfg.ComplexMinWords = def.ComplexMinWords
	}
	return &Analyzer{cfg: cfg}
}

// Analyze classifies a prompt. The function is pure: identical prompts
// always produce identical results, which the cache fingerprint and the
// selector both rely on.
func (a *Analyzer) Analyze(prompt string) Analysis {
	words := strings.Fields(prompt)
	wordCount := len(words)
	lower := strings.ToLower(prompt)

	hasCodeFence := strings.Contains(prompt, "```")
	questionCount := strings.Count(prompt, "?")

	taskType, matched := a.classifyTask(lower, words, hasCodeFence)
	confidence := confidenceFor(matched, wordCount)

	// Low-signal prompts degrade to the safe default instead of gambling
	// on a weak keyword hit.
	if confidence < 0.3 {
		return Analysis{
			TaskType:        TaskGeneral,
			Complexity:      ComplexityMedium,
			EstimatedTokens: a.estimateTokens(wordCount, ComplexityMedium),
			Confidence:      confidence,
		}
	}

	complexity := a.classifyComplexity(wordCount, hasCodeFence, questionCount)

	return Analysis{
		TaskType:        taskType,
		Complexity:      complexity,
		EstimatedTokens: a.estimateTokens(wordCount, complexity),
		Confidence:      confidence,
	}
}

// classifyTask scores each task type by keyword hits and returns the winner
// plus its hit count. Ties resolve in a fixed type order for determinism.
func (a *Analyzer) classifyTask(lower string, words []string, hasCodeFence bool) (TaskType, int) {
	if hasCodeFence {
		return TaskCoding, 3
	}

	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[strings.Trim(strings.ToLower(w), ".,:;!?()\"'`")] = struct{}{}
	}

	order := []TaskType{TaskCoding, TaskAnalysis, TaskReasoning, TaskWriting, TaskCreative}
	bestType := TaskGeneral
	bestHits := 0
	for _, tt := range order {
		hits := 0
		for _, kw := range taskKeywords[tt] {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					hits++
				}
				continue
			}
			if _, ok := wordSet[kw]; ok {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			bestType = tt
		}
	}
	return bestType, bestHits
}

// classifyComplexity buckets by length with structural bumps.
func (a *Analyzer) classifyComplexity(wordCount int, hasCodeFence bool, questionCount int) Complexity {
	switch {
	case wordCount >= a.cfg.ComplexMinWords:
		return ComplexityComplex
	case wordCount <= a.cfg.SimpleMaxWords:
		if hasCodeFence || questionCount > 2 {
			return ComplexityMedium
		}
		return ComplexitySimple
	default:
		if hasCodeFence && questionCount > 2 {
			return ComplexityComplex
		}
		return ComplexityMedium
	}
}

// estimateTokens projects total token usage from word count, with an output
// allowance scaled by complexity, clamped to configured bounds.
func (a *Analyzer) estimateTokens(wordCount int, complexity Complexity) int64 {
	input := int64(float64(wordCount) * a.cfg.TokenMultiplier)

	var outputFactor float64
	switch complexity {
	case ComplexitySimple:
		outputFactor = 0.5
	case ComplexityComplex:
		outputFactor = 2.0
	default:
		outputFactor = 1.0
	}
	total := input + int64(float64(input)*outputFactor)

	if total < a.cfg.MinTokens {
		total = a.cfg.MinTokens
	}
	if total > a.cfg.MaxTokens {
		total = a.cfg.MaxTokens
	}
	return total
}

// confidenceFor maps keyword hits to a confidence score.
func confidenceFor(matched, wordCount int) float64 {
	if wordCount == 0 {
		return 0
	}
	switch {
	case matched >= 3:
		return 0.9
	case matched == 2:
		return 0.7
	case matched == 1:
		return 0.5
	default:
		return 0.2
	}
}

// LooksLikeReference reports whether a prompt reads like a reference or
// lookup question, which the cache keeps for a week.
func LooksLikeReference(prompt string) bool {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	for _, kw := range referenceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
