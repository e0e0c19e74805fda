package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// loadPDF emits one unit per page that has extractable text.
func loadPDF(ctx context.Context, path string) ([]domain.TextUnit, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf failed: %v", domain.ErrUnsupportedFormat, err)
	}
	defer f.Close()

	var units []domain.TextUnit
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract text from pdf page %d failed: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, domain.TextUnit{Text: text, Page: i})
	}
	return units, nil
}
