package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"text/template"

	"docqa/internal/ai"
	"docqa/internal/domain"
)

// DefaultSnippetLength is the number of runes of chunk text quoted per source.
const DefaultSnippetLength = 200

var promptTemplate = template.Must(template.New("prompt").Parse(`
You are an AI assistant helping answer questions based on the following context:

{{.Context}}

Question: {{.Question}}
Answer:
`))

type promptData struct {
	Context  string
	Question string
}

// Composer builds the prompt from ranked chunks and asks the generator for an answer.
type Composer struct {
	generator  ai.Generator
	snippetLen int
}

func NewComposer(generator ai.Generator, snippetLen int) *Composer {
	if snippetLen <= 0 {
		snippetLen = DefaultSnippetLength
	}
	return &Composer{generator: generator, snippetLen: snippetLen}
}

// Compose answers question from ranked. With no results the prompt carries an empty context.
func (c *Composer) Compose(ctx context.Context, question string, ranked []domain.RetrievalResult) (*domain.Answer, error) {
	prompt, err := BuildPrompt(question, JoinContext(ranked))
	if err != nil {
		return nil, err
	}
	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	sources := make([]domain.SourceRef, len(ranked))
	for i, r := range ranked {
		sources[i] = domain.SourceRef{
			Source:     r.Entry.Metadata.Source(),
			Confidence: Confidence(r.Similarity),
			Content:    truncateRunes(r.Entry.Content, c.snippetLen),
		}
	}
	return &domain.Answer{Answer: text, Sources: sources}, nil
}

// BuildPrompt renders the answer prompt.
func BuildPrompt(question, contextText string) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, promptData{Context: contextText, Question: question}); err != nil {
		return "", fmt.Errorf("render prompt failed: %w", err)
	}
	return b.String(), nil
}

// JoinContext concatenates chunk texts in ranked order, one per line.
func JoinContext(ranked []domain.RetrievalResult) string {
	parts := make([]string, len(ranked))
	for i, r := range ranked {
		parts[i] = r.Entry.Content
	}
	return strings.Join(parts, "\n")
}

// Confidence is the similarity as a percentage rounded to two decimals.
func Confidence(similarity float64) float64 {
	return math.Round(100*similarity*100) / 100
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
