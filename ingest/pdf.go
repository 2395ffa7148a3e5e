package ingest

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LoadPDFText extracts the plain text of a PDF incident report, one string
// per page with blank pages removed. Pages whose text extraction fails are
// skipped rather than failing the whole document.
func LoadPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return strings.Join(pages, "\n\n"), nil
}
