package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/extract"
	"github.com/joseph-ayodele/essaycoach/internal/llm"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	"github.com/joseph-ayodele/essaycoach/internal/repository"
	"github.com/joseph-ayodele/essaycoach/internal/rubric"
)

// ImportRequest is one uploaded document to turn into a stored rubric.
type ImportRequest struct {
	OwnerID  string
	Document extract.Document
	// RubricName overrides the name the model extracted.
	RubricName string
}

// Detection is the model's verdict on whether the document is a rubric.
type Detection struct {
	IsRubric   bool    `json:"is_rubric"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ImportResult is returned for both outcomes; Success is false for "not a rubric".
type ImportResult struct {
	Success     bool       `json:"success"`
	RubricID    *uuid.UUID `json:"rubric_id,omitempty"`
	RubricName  string     `json:"rubric_name,omitempty"`
	ItemsCount  int        `json:"items_count,omitempty"`
	LevelsCount int        `json:"levels_count,omitempty"`
	AIParsed    bool       `json:"ai_parsed"`
	AIModel     string     `json:"ai_model,omitempty"`
	Detection   Detection  `json:"detection"`
}

// Importer sequences extraction, parsing, validation and persistence.
type Importer struct {
	Logger        *slog.Logger
	Extractor     extract.TextExtractor
	Parser        llm.StructureParser
	Rubrics       repository.RubricRepository
	Metrics       *metrics.Recorder
	MinTextLength int
}

func NewImporter(
	logger *slog.Logger,
	extractor extract.TextExtractor,
	parser llm.StructureParser,
	rubrics repository.RubricRepository,
	rec *metrics.Recorder,
	minTextLength int,
) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if minTextLength <= 0 {
		minTextLength = constants.MinRubricTextLength
	}
	return &Importer{
		Logger:        logger,
		Extractor:     extractor,
		Parser:        parser,
		Rubrics:       rubrics,
		Metrics:       rec,
		MinTextLength: minTextLength,
	}
}

// Import runs one document through the whole pipeline. A document the model
// does not recognize as a rubric yields a negative result and no error.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	ctx, reqID := common.EnsureRequestID(ctx)
	start := time.Now()
	log := im.Logger.With("req_id", reqID, "owner_id", req.OwnerID, "document", req.Document.Name)

	res, err := im.run(ctx, log, req)
	if err != nil {
		im.Metrics.RecordImport(constants.ImportError)
		log.Error("rubric.import.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return ImportResult{}, err
	}
	if !res.Success {
		im.Metrics.RecordImport(constants.ImportNotRubric)
		log.Info("rubric.import.not_rubric",
			"confidence", res.Detection.Confidence,
			"reason", res.Detection.Reason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, nil
	}
	im.Metrics.RecordImport(constants.ImportSuccess)
	log.Info("rubric.import.ok",
		"rubric_id", res.RubricID,
		"rubric_name", res.RubricName,
		"dimensions", res.ItemsCount,
		"levels", res.LevelsCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (im *Importer) run(ctx context.Context, log *slog.Logger, req ImportRequest) (ImportResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return ImportResult{}, common.InputValidationError("owner_id is required", "owner_id", req.OwnerID)
	}
	if req.Document.Content == nil {
		return ImportResult{}, common.InputValidationError("document content is required", "document", req.Document.Name)
	}

	log.Info("rubric.import.start")
	ext, err := im.Extractor.Extract(ctx, req.Document)
	if err != nil {
		return ImportResult{}, err
	}
	text := strings.TrimSpace(ext.Text)
	if n := utf8.RuneCountInString(text); n < im.MinTextLength {
		return ImportResult{}, common.InsufficientText(n, im.MinTextLength)
	}
	log.Debug("rubric.import.extracted",
		"format", ext.Format,
		"method", ext.Method,
		"pages", ext.Pages,
		"chars", utf8.RuneCountInString(text),
		"warnings", len(ext.Warnings),
	)

	raw, content, err := im.Parser.ParseRubric(ctx, text)
	if err != nil {
		if len(content) > 0 {
			log.Debug("rubric.import.raw_reply", "content", string(content))
		}
		return ImportResult{}, err
	}

	verdict, err := rubric.Validate(raw)
	if err != nil {
		return ImportResult{}, err
	}
	detection := Detection{IsRubric: verdict.IsRubric, Confidence: verdict.Confidence, Reason: verdict.Reason}
	if !verdict.IsRubric {
		return ImportResult{
			Success:   false,
			AIParsed:  true,
			AIModel:   im.Parser.Model(),
			Detection: detection,
		}, nil
	}

	name := finalName(req.RubricName, raw.RubricName, req.Document.Name)
	saved, err := im.Rubrics.CreateRubric(ctx, &repository.CreateRubricRequest{
		OwnerID:     req.OwnerID,
		Description: name,
		Dimensions:  raw.Dimensions,
	})
	if err != nil {
		return ImportResult{}, err
	}

	id := saved.ID
	return ImportResult{
		Success:     true,
		RubricID:    &id,
		RubricName:  name,
		ItemsCount:  len(saved.Dimensions),
		LevelsCount: saved.LevelCount(),
		AIParsed:    true,
		AIModel:     im.Parser.Model(),
		Detection:   detection,
	}, nil
}

// finalName prefers the caller's name, then the model's, then one derived from the file.
func finalName(override, extracted, document string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	if s := strings.TrimSpace(extracted); s != "" {
		return s
	}
	return fmt.Sprintf("Rubric from %s", document)
}
