package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkerUnbrokenText(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)

	spans := c.Split(strings.Repeat("a", 2500))
	require.Len(t, spans, 4)
	want := [][2]int{{0, 1000}, {800, 1800}, {1600, 2500}, {2400, 2500}}
	for i, span := range spans {
		require.Equal(t, want[i][0], span.Start, "span %d start", i)
		require.Equal(t, want[i][1], span.End, "span %d end", i)
		require.Len(t, []rune(span.Text), span.End-span.Start)
	}
}

func TestChunkerSnapsToSentenceBreak(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(100, 20)
	require.NoError(t, err)

	text := strings.Repeat("x", 69) + "." + strings.Repeat("y", 100)
	spans := c.Split(text)
	require.Equal(t, 0, spans[0].Start)
	require.Equal(t, 70, spans[0].End)
	require.True(t, strings.HasSuffix(spans[0].Text, "."))
	require.Equal(t, 50, spans[1].Start)
}

func TestChunkerIgnoresEarlyBreak(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(100, 20)
	require.NoError(t, err)

	text := strings.Repeat("x", 30) + "\n" + strings.Repeat("y", 200)
	spans := c.Split(text)
	require.Equal(t, 100, spans[0].End)
}

func TestChunkerCoversTextInOrder(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(120, 30)
	require.NoError(t, err)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("é", i%7))
		b.WriteString(" ends here. ")
	}
	text := b.String()
	runes := []rune(text)
	spans := c.Split(text)
	require.NotEmpty(t, spans)

	require.Equal(t, 0, spans[0].Start)
	require.Equal(t, len(runes), spans[len(spans)-1].End)
	for i, span := range spans {
		require.Equal(t, string(runes[span.Start:span.End]), span.Text)
		if i > 0 {
			require.Greater(t, span.Start, spans[i-1].Start, "starts strictly increase")
			require.LessOrEqual(t, span.Start, spans[i-1].End, "no gaps between spans")
		}
	}
}

func TestChunkerEmptyText(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(10, 2)
	require.NoError(t, err)
	require.Empty(t, c.Split(""))
}

func TestNewChunkerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChunker(0, 0)
	require.Error(t, err)
	_, err = NewChunker(100, 100)
	require.Error(t, err)
	_, err = NewChunker(100, -1)
	require.Error(t, err)
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	html := `<html><head><style>.x{color:red}</style><script>var a = "<p>";</script></head>
<body><header>Site header</header><nav><a href="/">Home</a></nav>
<!-- tracking -->
<main><h1>Market&nbsp;Outlook</h1><p>Growth of 12%   in
2024 &amp; beyond.</p></main>
<aside>Related</aside><footer>Copyright</footer></body></html>`

	require.Equal(t, "Market Outlook Growth of 12% in 2024 beyond.", ExtractText(html))
	require.Empty(t, ExtractText("<script>only()</script>"))
}

func TestFlags(t *testing.T) {
	t.Parallel()

	metrics := []string{"$5 trillion", "€ 3bn", "grew 12.5 %", "a CAGR of", "two billion users", "the market size of"}
	for _, text := range metrics {
		require.True(t, HasMetrics(text), text)
	}
	require.False(t, HasMetrics("No numbers here, just prose."))

	citations := []string{"as shown [3]", "(Source: IMF)", "According to analysts", "a recent study", "case studies", "our research", "the survey found"}
	for _, text := range citations {
		require.True(t, HasCitations(text), text)
	}
	require.False(t, HasCitations("Plain statement."))
}
