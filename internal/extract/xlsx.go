package extract

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/essaycoach/internal/common"
)

// extractXLSX renders each sheet as one page: cells joined by tab, rows by newline.
func (e *Extractor) extractXLSX(data []byte) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Result{Method: "excelize"}, common.ExtractionFailed("open spreadsheet", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("extract.xlsx.close_error", "error", err)
		}
	}()

	sheets := f.GetSheetList()
	if e.cfg.MaxPages > 0 && len(sheets) > e.cfg.MaxPages {
		sheets = sheets[:e.cfg.MaxPages]
	}

	pages := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return Result{Method: "excelize"}, common.ExtractionFailed("read sheet "+sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
		}
		pages = append(pages, b.String())
	}

	text, warns := joinPages(pages)
	return Result{Text: text, Pages: len(pages), Method: "excelize", Warnings: warns}, nil
}
