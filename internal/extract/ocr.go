package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/essaycoach/internal/common"
)

// ConfigFrom maps environment configuration onto extractor settings.
func ConfigFrom(c common.ExtractConfig) Config {
	return Config{
		Pdftotext:     c.Pdftotext,
		MaxPages:      c.MaxPages,
		EnableOCR:     c.EnableOCR,
		Pdftoppm:      c.Pdftoppm,
		Tesseract:     c.Tesseract,
		TesseractLang: c.TesseractLang,
		DPI:           c.DPI,
	}
}

// ocrPDF rasterizes every page and runs tesseract over the images.
func (e *Extractor) ocrPDF(ctx context.Context, data []byte) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "essaycoach-ocr-*")
	if err != nil {
		return Result{Method: "ocr"}, common.ExtractionFailed("create ocr workspace", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("extract.ocr.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return Result{Method: "ocr"}, common.ExtractionFailed("stage pdf for ocr", err)
	}

	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, in, prefix)
	if _, errb, err := e.runner.Run(ctx, nil, e.cfg.Pdftoppm, args...); err != nil {
		return Result{Method: "ocr"}, common.ExtractionFailed("pdftoppm could not render the document", err).
			WithDetail("stderr", truncate(strings.TrimSpace(string(errb)), 1024))
	}

	// prefix-1.png, prefix-2.png, ... ; zero-padded when there are 10+ pages
	images, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(images)
	if len(images) == 0 {
		return Result{Method: "ocr"}, common.ExtractionFailed("pdftoppm produced no images", nil)
	}

	pages := make([]string, 0, len(images))
	var warns []string
	for i, img := range images {
		out, errb, err := e.runner.Run(ctx, nil, e.cfg.Tesseract, img, "stdout", "-l", e.cfg.TesseractLang)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Method: "ocr"}, common.ExtractionFailed("ocr cancelled", ctx.Err())
			}
			warns = append(warns, fmt.Sprintf("page %d ocr failed: %s", i+1, truncate(strings.TrimSpace(string(errb)), 256)))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, string(out))
	}

	text, emptyWarns := joinPages(pages)
	warns = append(warns, emptyWarns...)
	e.logger.Info("extract.ocr.ok", "pages", len(images), "text_len", len(text), "warnings", len(warns))
	return Result{Text: text, Pages: len(images), Method: "ocr", Warnings: warns}, nil
}
