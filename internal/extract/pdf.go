package extract

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/essaycoach/internal/common"
)

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (Result, error) {
	// pdftotext -layout -enc UTF-8 -eol unix [-l N] - -
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, "-", "-")

	out, errb, err := e.runner.Run(ctx, bytes.NewReader(data), e.cfg.Pdftotext, args...)
	if err != nil {
		ae := common.ExtractionFailed("pdftotext could not read the document", err).
			WithDetail("stderr", truncate(strings.TrimSpace(string(errb)), 1024))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ae.WithDetail("exit_code", exitErr.ExitCode())
		}
		return Result{Method: "pdftotext"}, ae
	}

	// a form feed terminates every page
	pages := strings.Split(string(out), "\f")
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	text, warns := joinPages(pages)
	if strings.TrimSpace(text) == "" && e.cfg.EnableOCR {
		return e.ocrPDF(ctx, data)
	}
	return Result{Text: text, Pages: len(pages), Method: "pdftotext", Warnings: warns}, nil
}
