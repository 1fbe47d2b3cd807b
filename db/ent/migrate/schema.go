package migrate

import (
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	names "github.com/joseph-ayodele/essaycoach/db/ent/schema"
)

var (
	// RubricsColumns holds the columns for the "rubrics" table.
	RubricsColumns = []*schema.Column{
		{Name: names.ColumnID, Type: field.TypeUUID},
		{Name: names.ColumnOwnerID, Type: field.TypeString, Size: 128},
		{Name: names.ColumnDescription, Type: field.TypeString, Size: 2147483647},
		{Name: names.ColumnCreatedAt, Type: field.TypeTime},
	}
	// RubricsTable holds the schema information for the "rubrics" table.
	RubricsTable = &schema.Table{
		Name:       names.RubricsTable,
		Columns:    RubricsColumns,
		PrimaryKey: []*schema.Column{RubricsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "rubric_owner_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{RubricsColumns[1], RubricsColumns[3]},
			},
		},
	}
	// RubricDimensionsColumns holds the columns for the "rubric_dimensions" table.
	RubricDimensionsColumns = []*schema.Column{
		{Name: names.ColumnID, Type: field.TypeUUID},
		{Name: names.ColumnPosition, Type: field.TypeInt},
		{Name: names.ColumnName, Type: field.TypeString, Size: 2147483647},
		// one decimal place; 100.0 must fit
		{Name: names.ColumnWeight, Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(4,1)"}},
		{Name: names.ColumnRubricID, Type: field.TypeUUID},
	}
	// RubricDimensionsTable holds the schema information for the "rubric_dimensions" table.
	RubricDimensionsTable = &schema.Table{
		Name:       names.RubricDimensionsTable,
		Columns:    RubricDimensionsColumns,
		PrimaryKey: []*schema.Column{RubricDimensionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "rubric_dimensions_rubrics_dimensions",
				Columns:    []*schema.Column{RubricDimensionsColumns[4]},
				RefColumns: []*schema.Column{RubricsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "rubricdimension_rubric_id_position",
				Unique:  true,
				Columns: []*schema.Column{RubricDimensionsColumns[4], RubricDimensionsColumns[1]},
			},
		},
	}
	// ScoreLevelsColumns holds the columns for the "score_levels" table.
	ScoreLevelsColumns = []*schema.Column{
		{Name: names.ColumnID, Type: field.TypeUUID},
		{Name: names.ColumnPosition, Type: field.TypeInt},
		{Name: names.ColumnMinScore, Type: field.TypeInt},
		{Name: names.ColumnMaxScore, Type: field.TypeInt},
		// "{level name}: {level description}"
		{Name: names.ColumnDescription, Type: field.TypeString, Size: 2147483647},
		{Name: names.ColumnDimensionID, Type: field.TypeUUID},
	}
	// ScoreLevelsTable holds the schema information for the "score_levels" table.
	ScoreLevelsTable = &schema.Table{
		Name:       names.ScoreLevelsTable,
		Columns:    ScoreLevelsColumns,
		PrimaryKey: []*schema.Column{ScoreLevelsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "score_levels_rubric_dimensions_levels",
				Columns:    []*schema.Column{ScoreLevelsColumns[5]},
				RefColumns: []*schema.Column{RubricDimensionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "scorelevel_dimension_id_position",
				Unique:  true,
				Columns: []*schema.Column{ScoreLevelsColumns[5], ScoreLevelsColumns[1]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		RubricsTable,
		RubricDimensionsTable,
		ScoreLevelsTable,
	}
)

func init() {
	RubricDimensionsTable.ForeignKeys[0].RefTable = RubricsTable
	RubricDimensionsTable.Annotation = &entsql.Annotation{
		Table: names.RubricDimensionsTable,
		Checks: map[string]string{
			"rubric_dimensions_weight_check": "weight > 0",
		},
	}
	ScoreLevelsTable.ForeignKeys[0].RefTable = RubricDimensionsTable
	ScoreLevelsTable.Annotation = &entsql.Annotation{
		Table: names.ScoreLevelsTable,
		Checks: map[string]string{
			"score_levels_range_check": "min_score >= 0 AND max_score >= min_score",
		},
	}
}
