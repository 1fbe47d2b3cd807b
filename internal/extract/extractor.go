package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages  int    // 0 = no limit

	// OCR fallback for scanned PDFs whose text layer is blank.
	EnableOCR     bool
	Pdftoppm      string // if empty -> "pdftoppm"
	Tesseract     string // if empty -> "tesseract"
	TesseractLang string // if empty -> "eng"
	DPI           int    // if 0 -> 300
}

// Extractor reads PDF, XLSX and plain-text rubric documents.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner, mainly for tests.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// DetectFormat sniffs content first and falls back to the file extension.
func DetectFormat(name string, head []byte) (constants.DocumentFormat, error) {
	ext := constants.MapExtToFormat(filepath.Ext(name))
	switch {
	case bytes.HasPrefix(head, pdfMagic):
		return constants.PDF, nil
	case bytes.HasPrefix(head, zipMagic) && ext == constants.XLSX:
		return constants.XLSX, nil
	case ext == constants.TXT:
		if !utf8.Valid(head) {
			return "", common.ExtractionFailed("text document is not valid UTF-8", nil).WithDetail("filename", name)
		}
		return constants.TXT, nil
	}
	return "", common.ExtractionFailed(fmt.Sprintf("unsupported document format: %s", name), nil).
		WithDetail("filename", name)
}

// Extract returns the text of every page in order, joined by blank lines.
// An empty result is not an error; callers enforce their own minimum.
func (e *Extractor) Extract(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()
	e.logger.Debug("extract.start", "filename", doc.Name)

	if doc.Content == nil {
		return Result{}, common.ExtractionFailed("document has no content", nil)
	}
	data, err := io.ReadAll(doc.Content)
	if err != nil {
		return Result{}, common.ExtractionFailed("read document", err)
	}

	format, err := DetectFormat(doc.Name, data)
	if err != nil {
		e.logger.Warn("extract.unsupported", "filename", doc.Name, "bytes", len(data))
		return Result{}, err
	}

	var res Result
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, data)
	case constants.XLSX:
		res, err = e.extractXLSX(data)
	default:
		res = Result{Text: string(data), Pages: 1, Method: "plain"}
	}
	res.Format = format
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("extract.error",
			"filename", doc.Name,
			"format", format,
			"error", err,
			"elapsed_ms", res.Duration.Milliseconds(),
		)
		return res, err
	}

	e.logger.Info("extract.ok",
		"filename", doc.Name,
		"format", format,
		"method", res.Method,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// joinPages drops whitespace-only pages and joins the rest with a blank line.
func joinPages(pages []string) (string, []string) {
	var kept, warns []string
	for i, p := range pages {
		p = strings.TrimRight(p, " \t\n")
		if strings.TrimSpace(p) == "" {
			warns = append(warns, fmt.Sprintf("page %d is empty", i+1))
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n"), warns
}
