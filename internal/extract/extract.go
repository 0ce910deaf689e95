// Package extract pulls plain text out of uploaded document files so it
// can be chunked and embedded. Dispatch is by file extension.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupported is returned for file formats without an extractor.
var ErrUnsupported = errors.New("unsupported file format")

type extractor func(data []byte) (string, error)

var extractors = map[string]extractor{
	".pdf":  extractPDF,
	".docx": extractDocx,
	".html": extractHTML,
	".htm":  extractHTML,
	".txt":  extractPlain,
	".md":   extractPlain,
}

// Supported reports whether the file's extension has an extractor.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedExtensions returns the accepted extensions, sorted, for error messages.
func SupportedExtensions() string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

// Extract returns the plain text of the file, or ErrUnsupported for
// unknown formats. The result may still be empty for image-only documents.
func Extract(filename string, data []byte) (string, error) {
	fn, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", fmt.Errorf("%w: %s (supported: %s)", ErrUnsupported, filename, SupportedExtensions())
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", filename, err)
	}
	return text, nil
}

func extractPlain(data []byte) (string, error) {
	return string(data), nil
}
