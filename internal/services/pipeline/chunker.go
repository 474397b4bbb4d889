// -----------------------------------------------------------------------
// Chunker - splits cleaned text into overlapping, size-bounded segments
// -----------------------------------------------------------------------

package pipeline

import (
	"fmt"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// Chunk sizes and overlap are counted in characters (runes), so multi-byte
// text is never cut mid-character.

// sentenceEnders are the runes treated as sentence boundaries
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'\n': true,
}

// ValidateChunkParams checks chunking parameters. Violations are
// configuration errors and reject the submission before a task is created.
func ValidateChunkParams(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", overlap, chunkSize)
	}
	return nil
}

// Split walks the cleaned text and emits chunks of at most chunkSize runes,
// preferring to break at paragraph boundaries, falling back to sentence
// boundaries, and hard-cutting when a window contains neither. Consecutive
// chunks share overlap runes of trailing/leading text. Output indices are
// 0-based and contiguous. Split is pure and deterministic.
func Split(text string, chunkSize, overlap int) ([]models.Chunk, error) {
	if err := ValidateChunkParams(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []models.Chunk{}, nil
	}

	chunks := make([]models.Chunk, 0, len(runes)/(chunkSize-overlap)+1)
	start := 0
	for {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, models.Chunk{Index: len(chunks), Text: string(runes[start:])})
			break
		}

		// A break before start+overlap+1 would make the next chunk start
		// at or before the current one, so the search floor excludes it.
		cut := findBreak(runes, start+overlap+1, end)
		chunks = append(chunks, models.Chunk{Index: len(chunks), Text: string(runes[start:cut])})
		start = cut - overlap
	}

	return chunks, nil
}

// findBreak returns the best cut position in (min, max], scanning backwards
// so chunks stay as full as possible: paragraph break first, then sentence
// break, then the hard cut at max.
func findBreak(runes []rune, min, max int) int {
	for i := max; i > min; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := max; i > min; i-- {
		if sentenceEnders[runes[i-1]] {
			return i
		}
	}
	return max
}

// Join reassembles chunk texts into one document-order content string.
// When no chunk was repaired, the shared overlap prefixes are stripped so
// the result reproduces the original cleaned text exactly. Repaired chunks
// no longer align on overlap boundaries, so those are joined as paragraphs.
func Join(chunks []models.Chunk, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}

	anyRepaired := false
	for _, c := range chunks {
		if c.Repaired {
			anyRepaired = true
			break
		}
	}

	var b strings.Builder
	if anyRepaired {
		for i, c := range chunks {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(c.Text)
		}
		return b.String()
	}

	b.WriteString(chunks[0].Text)
	for _, c := range chunks[1:] {
		r := []rune(c.Text)
		if len(r) > overlap {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}
