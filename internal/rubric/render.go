package rubric

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joseph-ayodele/essaycoach/internal/entity"
)

// Render formats a stored rubric as the plain-text document handed to essay agents.
// Levels are listed from the highest band down.
func Render(r *entity.Rubric) string {
	title := strings.TrimSpace(r.Description)
	if title == "" {
		title = "Untitled Rubric"
	}
	lines := []string{
		"Rubric: " + title,
		"",
		"Evaluation Criteria:",
		"",
	}

	for _, d := range r.Dimensions {
		lines = append(lines, fmt.Sprintf("%s (Weight: %.1f%%)", d.Name, d.Weight))

		levels := append([]entity.ScoreLevel(nil), d.Levels...)
		sort.SliceStable(levels, func(i, j int) bool {
			return levels[i].MaxScore > levels[j].MaxScore
		})
		for _, l := range levels {
			lines = append(lines, fmt.Sprintf("  - %d-%d pts: %s", l.MinScore, l.MaxScore, l.Description))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// LevelDescription is the stored text of a level: its name, then its description if any.
func LevelDescription(name, description string) string {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if description == "" {
		return name
	}
	return name + ": " + description
}
