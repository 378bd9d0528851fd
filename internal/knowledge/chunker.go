package knowledge

import (
	"regexp"
	"strings"
)

// DefaultChunkSize is the target character length for a chunk.
const DefaultChunkSize = 500

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Chunk is a contiguous, sentence-respecting slice of a document.
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Length  int    `json:"length"`
}

// SplitIntoChunks breaks content into chunks of at most targetSize
// characters without splitting sentences. Sentences accumulate into a
// chunk until adding the next one would exceed the target; a single
// sentence longer than the target becomes its own chunk.
func SplitIntoChunks(content string, targetSize int) []Chunk {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}

	sentences := sentenceSplit.Split(content, -1)
	var chunks []Chunk
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, ". ")
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: text,
			Length:  len(text),
		})
		current = nil
		currentLen = 0
	}

	for _, raw := range sentences {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		// Account for the ". " joiner when sizing the chunk.
		added := len(sentence)
		if currentLen > 0 {
			added += 2
		}
		if currentLen+added > targetSize && currentLen > 0 {
			flush()
		}
		current = append(current, sentence)
		if currentLen > 0 {
			currentLen += 2
		}
		currentLen += len(sentence)
	}
	flush()
	return chunks
}
