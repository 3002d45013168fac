// Package models holds the ingestion pipeline's data types: the in-memory
// job, transcript segments, chunks, and the persisted vector record.
package models

import (
	"fmt"
	"time"
)

// JobStatus is the coordinator-owned lifecycle stage of an ingestion job.
type JobStatus string

// Job lifecycle states. Status moves strictly forward except for failed,
// which is reachable from any state.
const (
	StatusReceived            JobStatus = "received"
	StatusAcquiringTranscript JobStatus = "acquiring_transcript"
	StatusTranscribingAudio   JobStatus = "transcribing_audio"
	StatusChunking            JobStatus = "chunking"
	StatusEmbedding           JobStatus = "embedding"
	StatusWriting             JobStatus = "writing"
	StatusCompleted           JobStatus = "completed"
	StatusFailed              JobStatus = "failed"
)

// IngestionJob is one unit of work, created when a queue message is dequeued
// and mutated only by the coordinator. It is not a durable entity: only the
// queue message handle and the resulting vector records outlive it.
type IngestionJob struct {
	VideoID      string
	CollectionID string
	SourceURL    string
	Status       JobStatus
	AttemptCount int
}

// TranscriptSegment is one time-aligned piece of transcript text. Start and
// End are seconds from the beginning of the video; both acquisition paths
// normalize to this unit. Segments are time-ordered and non-overlapping.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Chunk is a token-bounded run of contiguous segments. Text is the segment
// texts joined by single spaces; Start and End come from the first and last
// contributing segment. OverlapTokens is the length of the token prefix
// shared with the previous chunk (0 for the first chunk).
type Chunk struct {
	Index         int
	Text          string
	Start         float64
	End           float64
	TokenCount    int
	OverlapTokens int
}

/// VectorRecord is the persisted unit: one embedding vector plus the metadata
// the query side needs to cite its source. Key is deterministic (see
// RecordKey), which makes re-ingestion an overwrite rather than a duplicate.
type VectorRecord struct {
	Key          string
	CollectionID string
	VideoID      string
	ChunkIndex   int
	Start        float64
	End          float64
	Excerpt      string
	Model        string
	Embedding    []float32
	UpdatedAt    time.Time
}

// RecordKey derives the deterministic key for one chunk of one video in one
// collection. The zero-padded index keeps keys lexically ordered per video;
// padding width bounds a video at 100k chunks, far beyond any real
// transcript.
func RecordKey(collectionID, videoID string, chunkIndex int) string {
	return fmt.Sprintf("%s/%s/%05d", collectionID, videoID, chunkIndex)
}

// NewVectorRecord builds the persisted record for an embedded chunk.
func NewVectorRecord(collectionID, videoID, model string, chunk Chunk, embedding []float32) VectorRecord {
	return VectorRecord{
		Key:          RecordKey(collectionID, videoID, chunk.Index),
		CollectionID: collectionID,
		VideoID:      videoID,
		ChunkIndex:   chunk.Index,
		Start:        chunk.Start,
		End:          chunk.End,
		Excerpt:      chunk.Text,
		Model:        model,
		Embedding:    embedding,
		UpdatedAt:    time.Now(),
	}
}
