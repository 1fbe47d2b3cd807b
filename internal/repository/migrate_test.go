package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/essaycoach/db/ent/migrate"
	"github.com/joseph-ayodele/essaycoach/db/ent/schema"
)

// The tables carry every column the repository's queries name.
func TestTablesDeclareQueriedColumns(t *testing.T) {
	want := map[string][]string{
		schema.RubricsTable: {schema.ColumnID, schema.ColumnOwnerID, schema.ColumnDescription, schema.ColumnCreatedAt},
		schema.RubricDimensionsTable: {schema.ColumnID, schema.ColumnRubricID, schema.ColumnPosition,
			schema.ColumnName, schema.ColumnWeight},
		schema.ScoreLevelsTable: {schema.ColumnID, schema.ColumnDimensionID, schema.ColumnPosition,
			schema.ColumnMinScore, schema.ColumnMaxScore, schema.ColumnDescription},
	}
	require.Len(t, migrate.Tables, len(want))
	for _, tbl := range migrate.Tables {
		cols, ok := want[tbl.Name]
		require.True(t, ok, tbl.Name)
		for _, c := range cols {
			_, found := tbl.Column(c)
			assert.True(t, found, "%s.%s", tbl.Name, c)
		}
	}
	assert.Same(t, migrate.RubricsTable, migrate.RubricDimensionsTable.ForeignKeys[0].RefTable)
	assert.Same(t, migrate.RubricDimensionsTable, migrate.ScoreLevelsTable.ForeignKeys[0].RefTable)
}

func TestWeightCheckConstraint(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	insert := func(table string, cols []string, vals ...any) error {
		q := "INSERT INTO " + table + " (" + cols[0]
		ph := "?"
		for _, c := range cols[1:] {
			q += ", " + c
			ph += ", ?"
		}
		q += ") VALUES (" + ph + ")"
		return db.Driver.Exec(ctx, q, vals, nil)
	}
	rid := schema.NewID()
	require.NoError(t, insert(schema.RubricsTable,
		[]string{schema.ColumnID, schema.ColumnOwnerID, schema.ColumnDescription, schema.ColumnCreatedAt},
		rid, "owner-1", "r", "2026-01-01 00:00:00"))

	dimCols := []string{schema.ColumnID, schema.ColumnRubricID, schema.ColumnPosition, schema.ColumnName, schema.ColumnWeight}
	assert.Error(t, insert(schema.RubricDimensionsTable, dimCols, schema.NewID(), rid, 0, "Zero", 0.0))
	assert.NoError(t, insert(schema.RubricDimensionsTable, dimCols, schema.NewID(), rid, 0, "Content", 100.0))
}
