// Package pdfload extracts per-page text from PDF files.
package pdfload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"ragbot/internal/domain"
)

// Loader reads PDF files and returns their text page by page.
type Loader struct {
	logger *zap.Logger
}

// New creates a PDF loader.
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load extracts the text of every page of the PDF at path. Page numbers are
// zero-based. A file that cannot be opened or parsed, or that yields no
// extractable text at all, is reported as an error naming the file.
func (l *Loader) Load(path string) ([]domain.Page, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s could not be opened: %w", filepath.Base(path), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s could not be read: %w", filepath.Base(path), err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s could not be parsed: %w", filepath.Base(path), err)
	}

	var pages []domain.Page
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("failed to extract page text",
				zap.String("file", filepath.Base(path)),
				zap.Int("page", i),
				zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, domain.Page{Source: path, Number: i - 1, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%s contains no extractable text", filepath.Base(path))
	}
	l.logger.Info("loaded pdf", zap.String("file", filepath.Base(path)), zap.Int("pages", len(pages)))
	return pages, nil
}
