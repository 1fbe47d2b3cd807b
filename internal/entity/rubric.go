package entity

import (
	"time"

	"github.com/google/uuid"
)

// Rubric is the persisted grading scheme with its dimensions in display order.
type Rubric struct {
	ID          uuid.UUID         `json:"id"`
	OwnerID     string            `json:"owner_id"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	Dimensions  []RubricDimension `json:"dimensions"`
}

// RubricDimension is one weighted criterion.
type RubricDimension struct {
	ID       uuid.UUID    `json:"id"`
	RubricID uuid.UUID    `json:"rubric_id"`
	Position int          `json:"position"`
	Name     string       `json:"name"`
	Weight   float64      `json:"weight"`
	Levels   []ScoreLevel `json:"levels"`
}

// ScoreLevel is one scored band of a dimension.
type ScoreLevel struct {
	ID          uuid.UUID `json:"id"`
	DimensionID uuid.UUID `json:"dimension_id"`
	Position    int       `json:"position"`
	MinScore    int       `json:"min_score"`
	MaxScore    int       `json:"max_score"`
	Description string    `json:"description"`
}

// LevelCount returns the number of levels across all dimensions.
func (r *Rubric) LevelCount() int {
	n := 0
	for _, d := range r.Dimensions {
		n += len(d.Levels)
	}
	return n
}
