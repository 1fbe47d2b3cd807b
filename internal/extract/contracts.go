package extract

import (
	"context"
	"io"
	"time"

	"github.com/joseph-ayodele/essaycoach/constants"
)

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, doc Document) (Result, error)
}

// Document is an uploaded file handle. Name is only used for format hints.
type Document struct {
	Name    string
	Content io.Reader
}

type Result struct {
	Text     string
	Pages    int
	Format   constants.DocumentFormat
	Method   string // "pdftotext" | "ocr" | "excelize" | "plain"
	Duration time.Duration
	Warnings []string
}
