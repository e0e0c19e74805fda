package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func sampleText(paragraphs int) string {
	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		for s := 0; s < 7; s++ {
			if s > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "Paragraph %d sentence %d talks about retrieval and vectors.", p, s)
		}
	}
	return b.String()
}

func reconstruct(pieces []Piece) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(string([]rune(p.Text)[p.Overlap:]))
	}
	return b.String()
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := New()
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})

	t.Run("overlap not smaller than size is clamped", func(t *testing.T) {
		c := New(WithChunkSize(100), WithOverlap(100))
		assert.Equal(t, 25, c.Overlap())
		assert.Less(t, c.Overlap(), c.Size())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		c := New(WithChunkSize(0), WithOverlap(-3))
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})
}

func TestSplit_ThousandCharacterExample(t *testing.T) {
	text := strings.Repeat("abcdefghij", 100)
	chunks := New(WithChunkSize(500), WithOverlap(50)).SplitText(text)

	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 500)
	assert.Equal(t, chunks[0][len(chunks[0])-50:], chunks[1][:50])
	assert.Equal(t, text[450:], chunks[1])
}

func TestSplit_EmptyInput(t *testing.T) {
	c := New()
	assert.Empty(t, c.SplitText(""))
	assert.Empty(t, c.Split(nil))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := New(WithChunkSize(100), WithOverlap(10)).SplitText("A short document.")
	assert.Equal(t, []string{"A short document."}, chunks)
}

func TestSplit_Coverage(t *testing.T) {
	cases := []struct {
		name          string
		text          string
		size, overlap int
	}{
		{"paragraphs", sampleText(12), 500, 50},
		{"small windows", sampleText(4), 80, 20},
		{"no separators", strings.Repeat("x", 2345), 300, 30},
		{"zero overlap", sampleText(5), 200, 0},
		{"multibyte", strings.Repeat("héllo wörld ", 300), 120, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pieces := New(WithChunkSize(tc.size), WithOverlap(tc.overlap)).
				Split([]domain.TextUnit{{Text: tc.text}})
			require.NotEmpty(t, pieces)
			assert.Equal(t, tc.text, reconstruct(pieces))
		})
	}
}

func TestSplit_OverlapAndLengthBounds(t *testing.T) {
	const size, overlap = 180, 40
	pieces := New(WithChunkSize(size), WithOverlap(overlap)).
		Split([]domain.TextUnit{{Text: sampleText(8)}})
	require.Greater(t, len(pieces), 2)

	assert.Equal(t, 0, pieces[0].Overlap)
	for i, p := range pieces {
		runes := []rune(p.Text)
		assert.LessOrEqual(t, len(runes), size+overlap, "piece %d too long", i)
		if i == 0 {
			continue
		}
		prev := []rune(pieces[i-1].Text)
		require.GreaterOrEqual(t, len(prev), overlap)
		assert.Equal(t, overlap, p.Overlap)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(runes[:overlap]))
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 300)
	second := strings.Repeat("b", 300)
	pieces := New(WithChunkSize(500), WithOverlap(50)).
		Split([]domain.TextUnit{{Text: first + "\n\n" + second}})

	require.Len(t, pieces, 2)
	assert.Equal(t, first+"\n\n", pieces[0].Text)
	assert.True(t, strings.HasSuffix(pieces[1].Text, second))
}

func TestSplit_FallsBackToSentenceThenWhitespace(t *testing.T) {
	t.Run("sentence", func(t *testing.T) {
		text := strings.Repeat("word ", 30) + "end. " + strings.Repeat("more ", 40)
		pieces := New(WithChunkSize(200), WithOverlap(10)).Split([]domain.TextUnit{{Text: text}})
		require.Greater(t, len(pieces), 1)
		assert.True(t, strings.HasSuffix(pieces[0].Text, "end. "))
	})

	t.Run("whitespace", func(t *testing.T) {
		text := strings.Repeat("token ", 100)
		pieces := New(WithChunkSize(100), WithOverlap(10)).Split([]domain.TextUnit{{Text: text}})
		require.Greater(t, len(pieces), 1)
		assert.True(t, strings.HasSuffix(pieces[0].Text, " "))
	})
}

func TestSplit_KeepsPagesAndOffsets(t *testing.T) {
	units := []domain.TextUnit{
		{Text: strings.Repeat("p", 150), Page: 1},
		{Text: strings.Repeat("q", 40), Page: 2},
	}
	pieces := New(WithChunkSize(100), WithOverlap(10)).Split(units)

	require.Len(t, pieces, 3)
	assert.Equal(t, 1, pieces[0].Page)
	assert.Equal(t, 0, pieces[0].Offset)
	assert.Equal(t, 1, pieces[1].Page)
	assert.Equal(t, 90, pieces[1].Offset)
	assert.Equal(t, 2, pieces[2].Page)
	assert.Equal(t, 0, pieces[2].Offset)
	assert.Equal(t, 0, pieces[2].Overlap)
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(WithChunkSize(150), WithOverlap(25))
	text := sampleText(6)
	assert.Equal(t, c.SplitText(text), c.SplitText(text))
}
