package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/entity"
	"github.com/joseph-ayodele/essaycoach/internal/repository"
	"github.com/joseph-ayodele/essaycoach/internal/rubric"
)

// Uploader is the part of an agent the builder needs.
type Uploader interface {
	UploadDocument(ctx context.Context, path, ownerID string) (string, error)
}

// FileInput references an uploaded document in a workflow's inputs.
type FileInput struct {
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
	Type           string `json:"type"`
}

// RubricInputBuilder turns a stored rubric into an uploaded workflow file input.
type RubricInputBuilder struct {
	Rubrics repository.RubricRepository
	// TempDir holds rendered rubrics while they upload; empty means os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

func NewRubricInputBuilder(rubrics repository.RubricRepository, logger *slog.Logger) *RubricInputBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RubricInputBuilder{Rubrics: rubrics, Logger: logger}
}

// Resolve loads the requested rubric, or the owner's most recent one when id is nil.
func (b *RubricInputBuilder) Resolve(ctx context.Context, id *uuid.UUID, ownerID string) (*entity.Rubric, error) {
	var (
		r   *entity.Rubric
		err error
	)
	if id != nil {
		r, err = b.Rubrics.GetRubric(ctx, *id, ownerID)
	} else {
		r, err = b.Rubrics.LatestRubric(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if len(r.Dimensions) == 0 {
		return nil, common.RubricError(common.CodeRubricEmpty,
			fmt.Sprintf("No rubric items found for rubric ID %s. This rubric may be empty or corrupted.", r.ID),
			r.ID.String(), nil)
	}
	return r, nil
}

// Build resolves the rubric, renders it to a temporary .txt file and uploads it.
func (b *RubricInputBuilder) Build(ctx context.Context, up Uploader, id *uuid.UUID, ownerID string) (FileInput, error) {
	r, err := b.Resolve(ctx, id, ownerID)
	if err != nil {
		return FileInput{}, err
	}

	uploadID, err := b.upload(ctx, up, r, ownerID)
	if err != nil {
		b.Logger.Error("agent.rubric_input.error", "rubric_id", r.ID, "owner_id", ownerID, "error", err)
		return FileInput{}, common.RubricError(common.CodeRubricBuildFailed,
			"Failed to build rubric from database", r.ID.String(), err)
	}
	b.Logger.Debug("agent.rubric_input.ok", "rubric_id", r.ID, "upload_id", uploadID)
	return FileInput{
		TransferMethod: "local_file",
		UploadFileID:   uploadID,
		Type:           "document",
	}, nil
}

func (b *RubricInputBuilder) upload(ctx context.Context, up Uploader, r *entity.Rubric, ownerID string) (string, error) {
	f, err := os.CreateTemp(b.TempDir, fmt.Sprintf("rubric_%s_*.txt", r.ID))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(rubric.Render(r)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write rubric text: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return up.UploadDocument(ctx, path, ownerID)
}
