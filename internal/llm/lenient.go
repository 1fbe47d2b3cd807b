package llm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// keyAlias maps an alternative key onto its canonical name. Lists are
// ordered: when several aliases of one key are present, the first wins.
type keyAlias struct{ alias, canonical string }

var (
	topLevelAliases = []keyAlias{
		{"isRubric", "is_rubric"},
		{"rubricName", "rubric_name"},
		{"name", "rubric_name"},
		{"rejection_reason", "reason"},
		{"rejectionReason", "reason"},
	}
	levelAliases = []keyAlias{
		{"min_score", "score_min"},
		{"scoreMin", "score_min"},
		{"minScore", "score_min"},
		{"max_score", "score_max"},
		{"scoreMax", "score_max"},
		{"maxScore", "score_max"},
		{"isAbsent", "is_absent"},
	}
)

// StripCodeFence removes a surrounding ```json ... ``` fence if present.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the info string ("json")
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// NormalizeRubricJSON renames known key aliases, turns numeric strings
// ("40", "40%") into numbers and clamps confidence into [0, 1] so the
// document can be shape-checked.
// It returns the normalized document and the paths it changed.
// Syntax errors, including truncation, are returned unchanged.
func NormalizeRubricJSON(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var changed []string
	renameKeys(m, topLevelAliases, "", &changed)

	if v, ok := m["is_rubric"].(string); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			m["is_rubric"] = b
			changed = append(changed, "is_rubric")
		}
	}
	coerceNumber(m, "confidence", "", &changed)
	clampConfidence(m, &changed)

	if dims, ok := m["dimensions"].([]any); ok {
		for i, d := range dims {
			dm, ok := d.(map[string]any)
			if !ok {
				continue
			}
			dp := "dimensions[" + strconv.Itoa(i) + "]."
			coerceNumber(dm, "weight", dp, &changed)
			levels, ok := dm["levels"].([]any)
			if !ok {
				continue
			}
			for j, l := range levels {
				lm, ok := l.(map[string]any)
				if !ok {
					continue
				}
				lp := dp + "levels[" + strconv.Itoa(j) + "]."
				renameKeys(lm, levelAliases, lp, &changed)
				coerceNumber(lm, "score_min", lp, &changed)
				coerceNumber(lm, "score_max", lp, &changed)
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, changed, nil
}

// renameKeys moves alias keys onto their canonical name unless the canonical key is already set.
func renameKeys(m map[string]any, aliases []keyAlias, prefix string, changed *[]string) {
	for _, a := range aliases {
		v, ok := m[a.alias]
		if !ok {
			continue
		}
		if _, exists := m[a.canonical]; !exists {
			m[a.canonical] = v
			*changed = append(*changed, prefix+a.canonical)
		}
		delete(m, a.alias)
	}
}

// clampConfidence maps a percentage (95 -> 0.95) into [0, 1].
func clampConfidence(m map[string]any, changed *[]string) {
	f, ok := m["confidence"].(float64)
	if !ok || (f >= 0 && f <= 1) {
		return
	}
	switch {
	case f < 0:
		f = 0
	case f <= 100:
		f /= 100
	default:
		f = 1
	}
	m["confidence"] = f
	*changed = append(*changed, "confidence")
}

func coerceNumber(m map[string]any, key, prefix string, changed *[]string) {
	s, ok := m[key].(string)
	if !ok {
		return
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		m[key] = f
		*changed = append(*changed, prefix+key)
	}
}
