package knowledge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/metrics"
)

// ErrInvalidDocument is returned when an ingested document has no
// usable content.
var ErrInvalidDocument = errors.New("invalid document")

const (
	// DefaultMaxResults caps a query when the caller does not say.
	DefaultMaxResults = 3

	// verbatimBonus is added when the whole query appears as a phrase.
	verbatimBonus = 2

	queryCacheSize = 256
)

// Document is operator-supplied source material.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Chunks   []Chunk           `json:"chunks"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// KnowledgeBase is a named collection of chunked documents.
type KnowledgeBase struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Documents   []Document `json:"documents"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Summary is the listing view of a knowledge base.
type Summary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	DocumentCount int       `json:"documentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Result is one scored chunk returned by Query.
type Result struct {
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	ChunkIndex    int    `json:"chunkIndex"`
	Content       string `json:"content"`
	Score         int    `json:"score"`
}

// DocumentInput is the ingest form of a document.
type DocumentInput struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index holds knowledge bases in memory. Bases are built fully before
// they become visible, so readers never observe a partially chunked
// document. Query results are memoized in an LRU cache; retrieval is
// deterministic so the cache only needs invalidation on mutation.
type Index struct {
	mu    sync.RWMutex
	bases map[string]*KnowledgeBase

	queryCache *lru.Cache[string, []Result]
	chunkSize  int
}

// NewIndex creates an empty index with the default chunk size.
func NewIndex() *Index {
	cache, _ := lru.New[string, []Result](queryCacheSize)
	return &Index{
		bases:      make(map[string]*KnowledgeBase),
		queryCache: cache,
		chunkSize:  DefaultChunkSize,
	}
}

// Create chunks the given documents and publishes a new knowledge
// base atomically.
func (ix *Index) Create(name, description string, docs []DocumentInput) (*KnowledgeBase, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: knowledge base name is required", ErrInvalidDocument)
	}
	now := time.Now()
	kb := &KnowledgeBase{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, in := range docs {
		if strings.TrimSpace(in.Content) == "" {
			return nil, fmt.Errorf("%w: document %q has no content", ErrInvalidDocument, in.Title)
		}
		kb.Documents = append(kb.Documents, Document{
			ID:       uuid.NewString(),
			Title:    in.Title,
			Content:  in.Content,
			Chunks:   SplitIntoChunks(in.Content, ix.chunkSize),
			Metadata: in.Metadata,
		})
	}

	ix.mu.Lock()
	ix.bases[kb.ID] = kb
	ix.mu.Unlock()
	ix.queryCache.Purge()

	logger.Info("Knowledge base created",
		zap.String("id", kb.ID),
		zap.String("name", name),
		zap.Int("documents", len(kb.Documents)))
	return kb, nil
}

// AddDocument ingests one more document into an existing base.
func (ix *Index) AddDocument(kbID string, in DocumentInput) (*Document, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: document has no content", ErrInvalidDocument)
	}
	doc := Document{
		ID:       uuid.NewString(),
		Title:    in.Title,
		Content:  in.Content,
		Chunks:   SplitIntoChunks(in.Content, ix.chunkSize),
		Metadata: in.Metadata,
	}

	// Publish a fresh KnowledgeBase value instead of appending in place:
	// Get hands out the stored pointer, so readers may still be walking
	// the old Documents slice after the lock is released.
	ix.mu.Lock()
	kb, ok := ix.bases[kbID]
	if !ok {
		ix.mu.Unlock()
		return nil, fmt.Errorf("knowledge base %s not found", kbID)
	}
	next := *kb
	next.Documents = append(append([]Document(nil), kb.Documents...), doc)
	next.UpdatedAt = time.Now()
	ix.bases[kbID] = &next
	ix.mu.Unlock()
	ix.queryCache.Purge()

	return &doc, nil
}

// Get returns a knowledge base by id.
func (ix *Index) Get(kbID string) (*KnowledgeBase, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	kb, ok := ix.bases[kbID]
	return kb, ok
}

// List returns summaries of all bases.
func (ix *Index) List() []Summary {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Summary, 0, len(ix.bases))
	for _, kb := range ix.bases {
		out = append(out, Summary{
			ID:            kb.ID,
			Name:          kb.Name,
			Description:   kb.Description,
			DocumentCount: len(kb.Documents),
			CreatedAt:     kb.CreatedAt,
			UpdatedAt:     kb.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FirstID returns the id of the oldest base, used to auto-select a
// base for calls that do not name one.
func (ix *Index) FirstID() (string, bool) {
	all := ix.List()
	if len(all) == 0 {
		return "", false
	}
	return all[0].ID, true
}

// Delete removes a base. Deleting an unknown id is a no-op.
func (ix *Index) Delete(kbID string) bool {
	ix.mu.Lock()
	_, ok := ix.bases[kbID]
	delete(ix.bases, kbID)
	ix.mu.Unlock()
	ix.queryCache.Purge()
	return ok
}

// Query scores every chunk of the named base against the query and
// returns the top maxResults matches, best first. Unknown bases and
// no-hit queries both return an empty slice, never an error: on the
// voice path retrieval failure just means an unaugmented prompt.
func (ix *Index) Query(kbID, query string, maxResults int) []Result {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	cacheKey := fmt.Sprintf("%s|%d|%s", kbID, maxResults, strings.ToLower(query))
	if cached, ok := ix.queryCache.Get(cacheKey); ok {
		metrics.KnowledgeQueries.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.KnowledgeQueries.WithLabelValues("miss").Inc()

	ix.mu.RLock()
	kb, ok := ix.bases[kbID]
	if !ok {
		ix.mu.RUnlock()
		return []Result{}
	}

	queryLower := strings.ToLower(query)
	tokens := queryTokens(queryLower)

	var results []Result
	for _, doc := range kb.Documents {
		for _, chunk := range doc.Chunks {
			score := scoreChunk(strings.ToLower(chunk.Content), queryLower, tokens)
			if score == 0 {
				continue
			}
			results = append(results, Result{
				DocumentID:    doc.ID,
				DocumentTitle: doc.Title,
				ChunkIndex:    chunk.Index,
				Content:       chunk.Content,
				Score:         score,
			})
		}
	}
	ix.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if results == nil {
		results = []Result{}
	}
	ix.queryCache.Add(cacheKey, results)
	return results
}

// queryTokens lowercases and keeps words longer than two characters.
func queryTokens(queryLower string) []string {
	var tokens []string
	for _, w := range strings.Fields(queryLower) {
		if len(w) > 2 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// scoreChunk counts query tokens appearing as substrings and awards a
// bonus when the full query appears verbatim.
func scoreChunk(chunkLower, queryLower string, tokens []string) int {
	score := 0
	for _, tok := range tokens {
		if strings.Contains(chunkLower, tok) {
			score++
		}
	}
	if queryLower != "" && strings.Contains(chunkLower, queryLower) {
		score += verbatimBonus
	}
	return score
}
