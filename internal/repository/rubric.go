package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/essaycoach/db/ent/schema"
	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/entity"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
	"github.com/joseph-ayodele/essaycoach/internal/rubric"
)

const noRubricsMessage = "No rubrics found in your library. Please upload a rubric first before submitting essays for analysis."

// CreateRubricRequest wraps parameters for persisting a validated rubric.
type CreateRubricRequest struct {
	OwnerID     string
	Description string
	Dimensions  []llm.RawDimension
}

type RubricRepository interface {
	CreateRubric(ctx context.Context, req *CreateRubricRequest) (*entity.Rubric, error)
	// GetRubric loads one rubric; a non-empty ownerID restricts the lookup to that owner.
	GetRubric(ctx context.Context, id uuid.UUID, ownerID string) (*entity.Rubric, error)
	LatestRubric(ctx context.Context, ownerID string) (*entity.Rubric, error)
	CountRubrics(ctx context.Context, ownerID string) (int, error)
}

type rubricRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRubricRepository(db *DB, logger *slog.Logger) RubricRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &rubricRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRubric writes the rubric, its dimensions and their levels in one transaction.
// Any failure rolls back the whole aggregate.
func (r *rubricRepository) CreateRubric(ctx context.Context, req *CreateRubricRequest) (*entity.Rubric, error) {
	start := time.Now()
	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		r.logger.Error("rubric.create.begin_error", "owner_id", req.OwnerID, "error", err)
		return nil, common.PersistenceFailed("Failed to save rubric to database", err)
	}

	out, err := r.insertAggregate(ctx, tx, req)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rubric.create.rollback_error", "owner_id", req.OwnerID, "error", rbErr)
		}
		r.logger.Error("rubric.create.error",
			"owner_id", req.OwnerID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, common.PersistenceFailed("Failed to save rubric to database", err)
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("rubric.create.commit_error", "owner_id", req.OwnerID, "error", err)
		return nil, common.PersistenceFailed("Failed to save rubric to database", err)
	}

	r.logger.Info("rubric.create.ok",
		"rubric_id", out.ID,
		"owner_id", out.OwnerID,
		"dimensions", len(out.Dimensions),
		"levels", out.LevelCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (r *rubricRepository) insertAggregate(ctx context.Context, tx dialect.ExecQuerier, req *CreateRubricRequest) (*entity.Rubric, error) {
	d := r.db.Dialect()
	out := &entity.Rubric{
		ID:          schema.NewID(),
		OwnerID:     req.OwnerID,
		Description: req.Description,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	q, args := entsql.Dialect(d).
		Insert(schema.RubricsTable).
		Columns(schema.ColumnID, schema.ColumnOwnerID, schema.ColumnDescription, schema.ColumnCreatedAt).
		Values(out.ID, out.OwnerID, out.Description, out.CreatedAt).
		Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return nil, fmt.Errorf("insert rubric: %w", err)
	}

	for i, rd := range req.Dimensions {
		if rd.Weight == nil {
			return nil, fmt.Errorf("dimension %q has no weight", rd.Name)
		}
		dim := entity.RubricDimension{
			ID:       schema.NewID(),
			RubricID: out.ID,
			Position: i,
			Name:     rd.Name,
			Weight:   rubric.RoundWeight(*rd.Weight),
		}
		q, args := entsql.Dialect(d).
			Insert(schema.RubricDimensionsTable).
			Columns(schema.ColumnID, schema.ColumnRubricID, schema.ColumnPosition, schema.ColumnName, schema.ColumnWeight).
			Values(dim.ID, dim.RubricID, dim.Position, dim.Name, dim.Weight).
			Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			return nil, fmt.Errorf("insert dimension %q: %w", rd.Name, err)
		}

		for j, rl := range rd.Levels {
			if rl.ScoreMin == nil || rl.ScoreMax == nil {
				return nil, fmt.Errorf("level %q in dimension %q has no score range", rl.Name, rd.Name)
			}
			lvl := entity.ScoreLevel{
				ID:          schema.NewID(),
				DimensionID: dim.ID,
				Position:    j,
				MinScore:    int(*rl.ScoreMin),
				MaxScore:    int(*rl.ScoreMax),
				Description: rubric.LevelDescription(rl.Name, rl.Description),
			}
			q, args := entsql.Dialect(d).
				Insert(schema.ScoreLevelsTable).
				Columns(schema.ColumnID, schema.ColumnDimensionID, schema.ColumnPosition,
					schema.ColumnMinScore, schema.ColumnMaxScore, schema.ColumnDescription).
				Values(lvl.ID, lvl.DimensionID, lvl.Position, lvl.MinScore, lvl.MaxScore, lvl.Description).
				Query()
			if err := tx.Exec(ctx, q, args, nil); err != nil {
				return nil, fmt.Errorf("insert level %q in dimension %q: %w", rl.Name, rd.Name, err)
			}
			dim.Levels = append(dim.Levels, lvl)
		}
		out.Dimensions = append(out.Dimensions, dim)
	}
	return out, nil
}

func (r *rubricRepository) GetRubric(ctx context.Context, id uuid.UUID, ownerID string) (*entity.Rubric, error) {
	preds := []*entsql.Predicate{entsql.EQ(schema.ColumnID, id)}
	if ownerID != "" {
		preds = append(preds, entsql.EQ(schema.ColumnOwnerID, ownerID))
	}
	sel := r.rubricSelector().Where(entsql.And(preds...))
	out, err := r.loadOne(ctx, sel)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, common.RubricError(common.CodeRubricNotFound,
			fmt.Sprintf("Rubric with ID %s not found in your library.", id), id.String(), nil)
	}
	return out, nil
}

func (r *rubricRepository) LatestRubric(ctx context.Context, ownerID string) (*entity.Rubric, error) {
	sel := r.rubricSelector().
		Where(entsql.EQ(schema.ColumnOwnerID, ownerID)).
		OrderBy(entsql.Desc(schema.ColumnCreatedAt), entsql.Desc(schema.ColumnID)).
		Limit(1)
	out, err := r.loadOne(ctx, sel)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, common.RubricError(common.CodeRubricNotFound, noRubricsMessage, "", nil).
			WithDetail("owner_id", ownerID)
	}
	return out, nil
}

func (r *rubricRepository) CountRubrics(ctx context.Context, ownerID string) (int, error) {
	q, args := entsql.Dialect(r.db.Dialect()).
		Select(entsql.Count("*")).
		From(entsql.Table(schema.RubricsTable)).
		Where(entsql.EQ(schema.ColumnOwnerID, ownerID)).
		Query()
	var n int
	err := r.query(ctx, q, args, func(rows *entsql.Rows) error {
		return rows.Scan(&n)
	})
	if err != nil {
		r.logger.Error("rubric.count.error", "owner_id", ownerID, "error", err)
		return 0, common.PersistenceFailed("count rubrics", err)
	}
	return n, nil
}

func (r *rubricRepository) rubricSelector() *entsql.Selector {
	return entsql.Dialect(r.db.Dialect()).
		Select(schema.ColumnID, schema.ColumnOwnerID, schema.ColumnDescription, schema.ColumnCreatedAt).
		From(entsql.Table(schema.RubricsTable))
}

// loadOne returns nil, nil when the selector matches no rubric.
func (r *rubricRepository) loadOne(ctx context.Context, sel *entsql.Selector) (*entity.Rubric, error) {
	q, args := sel.Query()
	var out *entity.Rubric
	err := r.query(ctx, q, args, func(rows *entsql.Rows) error {
		var rb entity.Rubric
		if err := rows.Scan(&rb.ID, &rb.OwnerID, &rb.Description, timeScanner{&rb.CreatedAt}); err != nil {
			return err
		}
		out = &rb
		return nil
	})
	if err != nil {
		r.logger.Error("rubric.load.error", "error", err)
		return nil, common.PersistenceFailed("load rubric", err)
	}
	if out == nil {
		return nil, nil
	}
	if err := r.loadDimensions(ctx, out); err != nil {
		r.logger.Error("rubric.load.dimensions_error", "rubric_id", out.ID, "error", err)
		return nil, common.PersistenceFailed("load rubric dimensions", err)
	}
	return out, nil
}

func (r *rubricRepository) loadDimensions(ctx context.Context, rb *entity.Rubric) error {
	d := r.db.Dialect()
	q, args := entsql.Dialect(d).
		Select(schema.ColumnID, schema.ColumnRubricID, schema.ColumnPosition, schema.ColumnName, schema.ColumnWeight).
		From(entsql.Table(schema.RubricDimensionsTable)).
		Where(entsql.EQ(schema.ColumnRubricID, rb.ID)).
		OrderBy(schema.ColumnPosition).
		Query()
	err := r.query(ctx, q, args, func(rows *entsql.Rows) error {
		var dim entity.RubricDimension
		if err := rows.Scan(&dim.ID, &dim.RubricID, &dim.Position, &dim.Name, &dim.Weight); err != nil {
			return err
		}
		rb.Dimensions = append(rb.Dimensions, dim)
		return nil
	})
	if err != nil || len(rb.Dimensions) == 0 {
		return err
	}

	index := make(map[uuid.UUID]int, len(rb.Dimensions))
	ids := make([]any, len(rb.Dimensions))
	for i, dim := range rb.Dimensions {
		index[dim.ID] = i
		ids[i] = dim.ID
	}
	q, args = entsql.Dialect(d).
		Select(schema.ColumnID, schema.ColumnDimensionID, schema.ColumnPosition,
			schema.ColumnMinScore, schema.ColumnMaxScore, schema.ColumnDescription).
		From(entsql.Table(schema.ScoreLevelsTable)).
		Where(entsql.In(schema.ColumnDimensionID, ids...)).
		OrderBy(schema.ColumnDimensionID, schema.ColumnPosition).
		Query()
	return r.query(ctx, q, args, func(rows *entsql.Rows) error {
		var lvl entity.ScoreLevel
		if err := rows.Scan(&lvl.ID, &lvl.DimensionID, &lvl.Position, &lvl.MinScore, &lvl.MaxScore, &lvl.Description); err != nil {
			return err
		}
		i, ok := index[lvl.DimensionID]
		if !ok {
			return fmt.Errorf("level %s references unknown dimension %s", lvl.ID, lvl.DimensionID)
		}
		rb.Dimensions[i].Levels = append(rb.Dimensions[i].Levels, lvl)
		return nil
	})
}

func (r *rubricRepository) query(ctx context.Context, q string, args []any, scan func(*entsql.Rows) error) error {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("rubric.rows.close_error", "error", err)
		}
	}()
	for rows.Next() {
		if err := scan(&rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// timeScanner accepts the time encodings of both supported drivers.
type timeScanner struct{ t *time.Time }

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
		return nil
	case int64:
		*s.t = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return s.Scan(string(v))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				*s.t = t.UTC()
				return nil
			}
		}
		return fmt.Errorf("unrecognized time value %q", v)
	case nil:
		return errors.New("created_at is NULL")
	}
	return fmt.Errorf("unsupported time type %T", src)
}

var _ sql.Scanner = timeScanner{}
