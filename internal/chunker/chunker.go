// Package chunker turns an ordered transcript segment sequence into
// overlapping, token-bounded chunks. Chunk boundaries always fall on segment
// boundaries: splitting inside a segment would make its time alignment
// ambiguous.
package chunker

import (
	"fmt"
	"strings"

	"github.com/vidqa/ingestor/internal/models"
)

// Default token budgets, matching the embedding model's comfortable input
// range with room below its hard cap.
const (
	DefaultTargetTokens  = 1000
	DefaultOverlapTokens = 200
)

// Chunker slices transcripts into chunks of at most targetTokens tokens,
// with consecutive chunks sharing up to overlapTokens tokens of context.
type Chunker struct {
	tokenizer     Tokenizer
	targetTokens  int
	overlapTokens int
}

// New creates a Chunker. overlapTokens must be smaller than targetTokens;
// anything else is a configuration error rejected eagerly, not a per-job
// failure.
func New(tokenizer Tokenizer, targetTokens, overlapTokens int) (*Chunker, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("chunker: tokenizer is required")
	}

	if targetTokens <= 0 {
		return nil, fmt.Errorf("chunker: target_tokens must be positive, got %d", targetTokens)
	}

	if overlapTokens < 0 {
		return nil, fmt.Errorf("chunker: overlap_tokens must be non-negative, got %d", overlapTokens)
	}

	if overlapTokens >= targetTokens {
		return nil, fmt.Errorf("chunker: overlap_tokens (%d) must be smaller than target_tokens (%d)",
			overlapTokens, targetTokens)
	}

	return &Chunker{
		tokenizer:     tokenizer,
		targetTokens:  targetTokens,
		overlapTokens: overlapTokens,
	}, nil
}

// Chunk produces the ordered chunk sequence for segments. Token counts are
// budgeted per segment and summed, so the same input always yields the same
// boundaries. A single segment whose own count exceeds the target becomes
// its own chunk un-split; the embedder's input cap is the backstop for that
// pathological case.
func (c *Chunker) Chunk(segments []models.TranscriptSegment) []models.Chunk {
	if len(segments) == 0 {
		return nil
	}

	tokens := make([]int, len(segments))
	for i, seg := range segments {
		tokens[i] = c.tokenizer.Count(seg.Text)
	}

	var chunks []models.Chunk

	start := 0
	overlap := 0

	for start < len(segments) {
		end := start // inclusive index of the last segment in this chunk
		total := tokens[start]

		for end+1 < len(segments) && total+tokens[end+1] <= c.targetTokens {
			end++
			total += tokens[end]
		}

		chunks = append(chunks, models.Chunk{
			Index:         len(chunks),
			Text:          joinSegments(segments[start : end+1]),
			Start:         segments[start].Start,
			End:           segments[end].End,
			TokenCount:    total,
			OverlapTokens: overlap,
		})

		if end+1 >= len(segments) {
			break
		}

		start, overlap = c.nextWindow(tokens, start, end)
	}

	return chunks
}

// nextWindow walks back from the end of the just-closed chunk [start, end]
// to find where the next window begins: the longest segment suffix whose
// token total stays within the overlap budget. Always advances past start so
// the loop makes progress even when the overlap spans the whole chunk.
func (c *Chunker) nextWindow(tokens []int, start, end int) (nextStart, overlap int) {
	nextStart = end + 1

	for nextStart > start+1 && overlap+tokens[nextStart-1] <= c.overlapTokens {
		nextStart--
		overlap += tokens[nextStart]
	}

	return nextStart, overlap
}

// joinSegments concatenates segment texts with single spaces.
func joinSegments(segments []models.TranscriptSegment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Text
	}

	return strings.Join(parts, " ")
}
