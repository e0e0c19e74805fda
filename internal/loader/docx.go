package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"docqa/internal/domain"
)

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []struct {
		Content string `xml:",chardata"`
	} `xml:"t"`
}

// loadDOCX reads word/document.xml from an OOXML archive. Legacy binary .doc files are not
// archives and fail as unsupported.
func loadDOCX(_ context.Context, path string) ([]domain.TextUnit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: not an office open xml document", domain.ErrUnsupportedFormat)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml failed: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml failed: %w", err)
		}
		text, err := parseDocumentXML(content)
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, nil
		}
		return []domain.TextUnit{{Text: text}}, nil
	}
	return nil, fmt.Errorf("%w: word/document.xml missing", domain.ErrUnsupportedFormat)
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml failed: %w", err)
	}
	var b strings.Builder
	for i, p := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
