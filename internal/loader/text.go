package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

func loadText(_ context.Context, path string) ([]domain.TextUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file failed: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: text file is not valid utf-8", domain.ErrUnsupportedFormat)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []domain.TextUnit{{Text: text}}, nil
}
