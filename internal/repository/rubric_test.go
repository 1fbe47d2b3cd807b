package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: "sqlite://" + filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))
	return db
}

func fp(v float64) *float64 { return &v }

func sampleRequest(owner string) *CreateRubricRequest {
	return &CreateRubricRequest{
		OwnerID:     owner,
		Description: "Essay Writing Rubric",
		Dimensions: []llm.RawDimension{
			{Name: "Content", Weight: fp(60), Levels: []llm.RawLevel{
				{Name: "Excellent", ScoreMin: fp(50), ScoreMax: fp(60), Description: "Deep analysis"},
				{Name: "0", ScoreMin: fp(0), ScoreMax: fp(0)},
			}},
			{Name: "Organization", Weight: fp(40.04), Levels: []llm.RawLevel{
				{Name: "Good", ScoreMin: fp(0), ScoreMax: fp(40), Description: "Clear structure"},
			}},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestCreateAndGetRubric(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRubricRepository(db, nil)

	created, err := repo.CreateRubric(ctx, sampleRequest("owner-1"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, 3, created.LevelCount())

	got, err := repo.GetRubric(ctx, created.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, "Essay Writing Rubric", got.Description)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)

	require.Len(t, got.Dimensions, 2)
	assert.Equal(t, "Content", got.Dimensions[0].Name)
	assert.InDelta(t, 60.0, got.Dimensions[0].Weight, 1e-9)
	assert.Equal(t, "Organization", got.Dimensions[1].Name)
	assert.InDelta(t, 40.0, got.Dimensions[1].Weight, 1e-9, "weight rounded to one decimal")

	levels := got.Dimensions[0].Levels
	require.Len(t, levels, 2)
	assert.Equal(t, "Excellent: Deep analysis", levels[0].Description)
	assert.Equal(t, 50, levels[0].MinScore)
	assert.Equal(t, 60, levels[0].MaxScore)
	assert.Equal(t, "0", levels[1].Description)
}

func TestGetRubricNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRubricRepository(db, nil)

	created, err := repo.CreateRubric(ctx, sampleRequest("owner-1"))
	require.NoError(t, err)

	_, err = repo.GetRubric(ctx, created.ID, "someone-else")
	assert.ErrorIs(t, err, common.ErrRubricNotFound)

	missing := uuid.New()
	_, err = repo.GetRubric(ctx, missing, "")
	require.ErrorIs(t, err, common.ErrRubricNotFound)
	var ae *common.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Rubric with ID "+missing.String()+" not found in your library.", ae.Message)
}

func TestLatestRubric(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRubricRepository(db, nil)

	_, err := repo.LatestRubric(ctx, "owner-1")
	require.ErrorIs(t, err, common.ErrRubricNotFound)
	var ae *common.AppError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Message, "No rubrics found in your library")

	_, err = repo.CreateRubric(ctx, sampleRequest("owner-1"))
	require.NoError(t, err)
	second := sampleRequest("owner-1")
	second.Description = "Newer Rubric"
	newer, err := repo.CreateRubric(ctx, second)
	require.NoError(t, err)
	_, err = repo.CreateRubric(ctx, sampleRequest("owner-2"))
	require.NoError(t, err)

	got, err := repo.LatestRubric(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, "Newer Rubric", got.Description)
	assert.Len(t, got.Dimensions, 2)
}

func TestCreateRubricIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRubricRepository(db, nil)

	_, err := repo.CreateRubric(ctx, sampleRequest("owner-1"))
	require.NoError(t, err)
	before, err := repo.CountRubrics(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, 1, before)

	bad := sampleRequest("owner-1")
	// violates the min_score >= 0 check while writing the second dimension's levels
	bad.Dimensions[1].Levels = append(bad.Dimensions[1].Levels,
		llm.RawLevel{Name: "Broken", ScoreMin: fp(-5), ScoreMax: fp(3)})

	_, err = repo.CreateRubric(ctx, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPersistence)

	after, err := repo.CountRubrics(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	var dims int
	q := "SELECT COUNT(*) FROM rubric_dimensions"
	require.NoError(t, db.Driver.DB().QueryRowContext(ctx, q).Scan(&dims))
	assert.Equal(t, 2, dims, "only the first rubric's dimensions remain")
}

func TestCreateRubricSmallestWeight(t *testing.T) {
	ctx := context.Background()
	repo := NewRubricRepository(openTestDB(t), nil)

	req := sampleRequest("owner-1")
	req.Dimensions[0].Weight = fp(0.05)
	req.Dimensions[1].Weight = fp(99.95)
	created, err := repo.CreateRubric(ctx, req)
	require.NoError(t, err)

	got, err := repo.GetRubric(ctx, created.ID, "owner-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, got.Dimensions[0].Weight, 1e-9)
}
