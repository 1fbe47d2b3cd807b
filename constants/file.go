package constants

import "strings"

// DocumentFormat is the detected format of an uploaded rubric document.
type DocumentFormat string

const (
	PDF  DocumentFormat = "PDF"
	XLSX DocumentFormat = "XLSX"
	TXT  DocumentFormat = "TXT"
)

// FileTypes holds the formats the extractor accepts.
var FileTypes = []string{string(PDF), string(XLSX), string(TXT)}

// AllowedExtensions holds the file extensions accepted for rubric import.
var AllowedExtensions = map[string]DocumentFormat{
	"pdf":  PDF,
	"xlsx": XLSX,
	"txt":  TXT,
	"md":   TXT,
}

// MinRubricTextLength is the shortest extracted text worth sending to the model.
const MinRubricTextLength = 50

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the format for an extension, or "" if unsupported.
func MapExtToFormat(ext string) DocumentFormat {
	return AllowedExtensions[NormalizeExt(ext)]
}
