package rubric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
)

const (
	MinWeightSum = 99.0
	MaxWeightSum = 101.0

	weightEpsilon = 1e-9

	// DefaultRejectionReason is used when the model says "not a rubric" without saying why.
	DefaultRejectionReason = "Document does not appear to be a rubric"
)

// Result summarizes a validated structure. When IsRubric is false only
// Confidence and Reason are meaningful.
type Result struct {
	IsRubric    bool
	Confidence  float64
	Reason      string
	Dimensions  int
	Levels      int
	TotalWeight float64
}

// Validate applies the rubric rules in order and stops at the first violation.
// A "not a rubric" answer is a successful negative result, not an error.
func Validate(raw llm.RawRubricStructure) (Result, error) {
	if !raw.IsRubric {
		reason := strings.TrimSpace(raw.Reason)
		if reason == "" {
			reason = DefaultRejectionReason
		}
		return Result{IsRubric: false, Confidence: raw.Confidence, Reason: reason}, nil
	}

	if strings.TrimSpace(raw.RubricName) == "" {
		return Result{}, common.ValidationFailed("Missing rubric name")
	}
	if len(raw.Dimensions) == 0 {
		return Result{}, common.ValidationFailed("Rubric must have at least one dimension")
	}

	res := Result{IsRubric: true, Confidence: raw.Confidence, Dimensions: len(raw.Dimensions)}
	for idx, dim := range raw.Dimensions {
		name := strings.TrimSpace(dim.Name)
		if name == "" {
			return Result{}, common.ValidationFailed(fmt.Sprintf("Dimension %d missing name", idx))
		}
		if dim.Weight == nil {
			return Result{}, common.ValidationFailed(fmt.Sprintf("Dimension '%s' missing weight", name))
		}
		w := *dim.Weight
		if math.IsNaN(w) || w <= 0 {
			return Result{}, common.ValidationFailed(fmt.Sprintf("Dimension '%s' has non-positive weight: %s", name, formatFloat(w)))
		}
		if RoundWeight(w) == 0 {
			return Result{}, common.ValidationFailed(fmt.Sprintf(
				"Dimension '%s' weight %s rounds to 0.0; weights are stored with one decimal place", name, formatFloat(w)))
		}
		res.TotalWeight += w

		if len(dim.Levels) == 0 {
			return Result{}, common.ValidationFailed(fmt.Sprintf("Dimension '%s' has no levels", name))
		}
		for li, lvl := range dim.Levels {
			if err := validateLevel(name, li, lvl); err != nil {
				return Result{}, err
			}
		}
		res.Levels += len(dim.Levels)
	}

	if res.TotalWeight < MinWeightSum-weightEpsilon || res.TotalWeight > MaxWeightSum+weightEpsilon {
		return Result{}, common.ValidationFailed(fmt.Sprintf(
			"Rubric weights must sum to ~100, got %s (allowed range: 99-101 for rounding tolerance)",
			formatFloat(res.TotalWeight))).
			WithDetail("total_weight", res.TotalWeight)
	}
	return res, nil
}

func validateLevel(dimension string, idx int, lvl llm.RawLevel) error {
	name := strings.TrimSpace(lvl.Name)
	if name == "" {
		return common.ValidationFailed(fmt.Sprintf("Level %d in dimension '%s' missing name", idx, dimension))
	}
	if lvl.ScoreMin == nil || lvl.ScoreMax == nil {
		return common.ValidationFailed(fmt.Sprintf("Level '%s' in dimension '%s' missing score range", name, dimension))
	}
	lo, hi := *lvl.ScoreMin, *lvl.ScoreMax
	if !isInteger(lo) || !isInteger(hi) {
		return common.ValidationFailed(fmt.Sprintf("Level '%s' in dimension '%s' has non-integer score range: %s-%s",
			name, dimension, formatFloat(lo), formatFloat(hi)))
	}
	if lo > hi || (lo == hi && !IsAbsentLevel(lvl)) {
		return common.ValidationFailed(fmt.Sprintf("Level '%s' has invalid score range: %d-%d", name, int(lo), int(hi)))
	}
	return nil
}

// IsAbsentLevel reports whether a level denotes "no submission". The explicit
// flag wins; otherwise the name "0" or a description mentioning
// "no submission" or "absent" qualifies.
func IsAbsentLevel(lvl llm.RawLevel) bool {
	if lvl.IsAbsent {
		return true
	}
	if strings.TrimSpace(lvl.Name) == "0" {
		return true
	}
	desc := strings.ToLower(lvl.Description)
	return strings.Contains(desc, "no submission") || strings.Contains(desc, "absent")
}

// RoundWeight keeps one decimal place, matching the NUMERIC(4,1) column.
func RoundWeight(w float64) float64 {
	return math.Round(w*10) / 10
}

func isInteger(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
