package llm

import "context"

// RawLevel is one scored band as the model emitted it.
type RawLevel struct {
	Name        string   `json:"name"`
	ScoreMin    *float64 `json:"score_min"`
	ScoreMax    *float64 `json:"score_max"`
	Description string   `json:"description,omitempty"`
	// IsAbsent marks the "no submission" band, the only one allowed to have min == max.
	IsAbsent bool `json:"is_absent,omitempty"`
}

// RawDimension is one weighted criterion; Weight is in percentage points.
type RawDimension struct {
	Name   string     `json:"name"`
	Weight *float64   `json:"weight"`
	Levels []RawLevel `json:"levels"`
}

// RawRubricStructure is the model's answer. Reason is set only when IsRubric is false.
type RawRubricStructure struct {
	IsRubric   bool           `json:"is_rubric"`
	Confidence float64        `json:"confidence"`
	RubricName string         `json:"rubric_name,omitempty"`
	Dimensions []RawDimension `json:"dimensions,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// StructureParser is the interface our pipeline depends on.
type StructureParser interface {
	ParseRubric(ctx context.Context, text string) (RawRubricStructure, []byte /*rawContent*/, error)
	Model() string
}
