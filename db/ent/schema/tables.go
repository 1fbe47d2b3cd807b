package schema

import "github.com/google/uuid"

// Table and column names shared with the repository's SQL builder.
const (
	RubricsTable          = "rubrics"
	RubricDimensionsTable = "rubric_dimensions"
	ScoreLevelsTable      = "score_levels"

	ColumnID          = "id"
	ColumnOwnerID     = "owner_id"
	ColumnDescription = "description"
	ColumnCreatedAt   = "created_at"
	ColumnRubricID    = "rubric_id"
	ColumnPosition    = "position"
	ColumnName        = "name"
	ColumnWeight      = "weight"
	ColumnDimensionID = "dimension_id"
	ColumnMinScore    = "min_score"
	ColumnMaxScore    = "max_score"
)

// NewID returns a time-ordered UUID so ids sort with insertion.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
