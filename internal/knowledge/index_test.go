package knowledge

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunksRespectsSentences(t *testing.T) {
	content := "First sentence here. Second sentence follows! Third one asks? Fourth closes."
	chunks := SplitIntoChunks(content, 60)

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
		assert.Equal(t, len(c.Content), c.Length)
	}
	// No chunk starts or ends mid-sentence: every sentence survives intact.
	joined := strings.Join([]string{chunks[0].Content, chunks[len(chunks)-1].Content}, " ")
	assert.Contains(t, joined, "First sentence here")
}

func TestSplitIntoChunksOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 200) // well past the target, no terminator
	chunks := SplitIntoChunks(long+". Short one.", 100)

	require.GreaterOrEqual(t, len(chunks), 2)
	// The oversized sentence is kept whole as its own chunk.
	assert.Greater(t, chunks[0].Length, 100)
	assert.Equal(t, "Short one", chunks[len(chunks)-1].Content)
}

func TestSplitIntoChunksSkipsEmptySentences(t *testing.T) {
	chunks := SplitIntoChunks("One... Two!!   ?? Three.", 500)
	require.Len(t, chunks, 1)
	assert.Equal(t, "One. Two. Three", chunks[0].Content)
}

func TestSplitIntoChunksEmptyContent(t *testing.T) {
	assert.Empty(t, SplitIntoChunks("", 500))
	assert.Empty(t, SplitIntoChunks("   ", 500))
}

func newPricingIndex(t *testing.T) (*Index, *KnowledgeBase) {
	t.Helper()
	ix := NewIndex()
	kb, err := ix.Create("Product FAQ", "pricing and support", []DocumentInput{
		{
			Title:   "Pricing",
			Content: "Our starter plan costs ninety nine dollars per month. Enterprise pricing is custom. Discounts apply for annual billing.",
		},
		{
			Title:   "Support",
			Content: "Support is available around the clock. Contact the help desk by email or phone.",
		},
	})
	require.NoError(t, err)
	return ix, kb
}

func TestQueryScoresTokenMatches(t *testing.T) {
	ix, kb := newPricingIndex(t)

	results := ix.Query(kb.ID, "how much does the starter plan cost", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "Pricing", results[0].DocumentTitle)
	assert.Contains(t, results[0].Content, "ninety nine dollars")
}

func TestQueryVerbatimPhraseBonus(t *testing.T) {
	ix := NewIndex()
	kb, err := ix.Create("kb", "", []DocumentInput{
		{Title: "a", Content: "The red fox jumps. Plans and pricing vary."},
		{Title: "b", Content: "Red fox pricing plans are seasonal."},
	})
	require.NoError(t, err)

	results := ix.Query(kb.ID, "pricing plans", 5)
	require.Len(t, results, 2)
	// "pricing plans" appears verbatim only in the second document, so
	// it outranks the chunk with the same token hits.
	assert.Equal(t, "b", results[0].DocumentTitle)
	assert.Equal(t, results[0].Score, results[1].Score+verbatimBonus)
}

func TestQueryDropsZeroScores(t *testing.T) {
	ix, kb := newPricingIndex(t)
	results := ix.Query(kb.ID, "zebra quantum sandwich", 3)
	assert.Empty(t, results)
}

func TestQueryShortTokensIgnored(t *testing.T) {
	ix, kb := newPricingIndex(t)
	// Every word is two characters or fewer, so nothing scores.
	results := ix.Query(kb.ID, "is it on", 3)
	assert.Empty(t, results)
}

func TestQueryUnknownBase(t *testing.T) {
	ix := NewIndex()
	results := ix.Query("no-such-base", "anything", 3)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestQueryTruncatesToMaxResults(t *testing.T) {
	ix := NewIndex()
	var docs []DocumentInput
	for i := 0; i < 10; i++ {
		docs = append(docs, DocumentInput{
			Title:   fmt.Sprintf("doc%d", i),
			Content: "Every document mentions pricing somewhere in its text.",
		})
	}
	kb, err := ix.Create("many", "", docs)
	require.NoError(t, err)

	results := ix.Query(kb.ID, "pricing", 4)
	assert.Len(t, results, 4)
}

func TestQueryCacheInvalidatedOnIngest(t *testing.T) {
	ix, kb := newPricingIndex(t)

	first := ix.Query(kb.ID, "refund policy", 3)
	assert.Empty(t, first)

	_, err := ix.AddDocument(kb.ID, DocumentInput{
		Title:   "Refunds",
		Content: "Our refund policy allows returns within thirty days.",
	})
	require.NoError(t, err)

	second := ix.Query(kb.ID, "refund policy", 3)
	require.NotEmpty(t, second)
	assert.Equal(t, "Refunds", second[0].DocumentTitle)
}

func TestAddDocumentLeavesHeldSnapshotsIntact(t *testing.T) {
	ix, kb := newPricingIndex(t)

	held, ok := ix.Get(kb.ID)
	require.True(t, ok)
	require.Len(t, held.Documents, 2)

	_, err := ix.AddDocument(kb.ID, DocumentInput{
		Title:   "Refunds",
		Content: "Our refund policy allows returns within thirty days.",
	})
	require.NoError(t, err)

	// A reference obtained before the ingest still sees the old document
	// set; only a fresh Get observes the addition.
	assert.Len(t, held.Documents, 2)
	fresh, ok := ix.Get(kb.ID)
	require.True(t, ok)
	assert.Len(t, fresh.Documents, 3)
	assert.True(t, fresh.UpdatedAt.After(held.UpdatedAt) || fresh.UpdatedAt.Equal(held.UpdatedAt))
}

func TestConcurrentIngestAndRead(t *testing.T) {
	ix, kb := newPricingIndex(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := ix.AddDocument(kb.ID, DocumentInput{
				Title:   fmt.Sprintf("doc%d", i),
				Content: "Another note about pricing and support hours.",
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			got, ok := ix.Get(kb.ID)
			require.True(t, ok)
			for _, doc := range got.Documents {
				_ = len(doc.Chunks)
			}
		}
	}()
	wg.Wait()

	final, ok := ix.Get(kb.ID)
	require.True(t, ok)
	assert.Len(t, final.Documents, 52)
}

func TestCreateRejectsEmptyContent(t *testing.T) {
	ix := NewIndex()
	_, err := ix.Create("kb", "", []DocumentInput{{Title: "empty", Content: "  "}})
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = ix.Create("", "", nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestDeleteAndList(t *testing.T) {
	ix, kb := newPricingIndex(t)

	list := ix.List()
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].DocumentCount)

	assert.True(t, ix.Delete(kb.ID))
	assert.False(t, ix.Delete(kb.ID))
	assert.Empty(t, ix.List())
}

func TestFirstID(t *testing.T) {
	ix := NewIndex()
	_, ok := ix.FirstID()
	assert.False(t, ok)

	kb, err := ix.Create("first", "", []DocumentInput{{Title: "t", Content: "Some text."}})
	require.NoError(t, err)

	id, ok := ix.FirstID()
	require.True(t, ok)
	assert.Equal(t, kb.ID, id)
}
