// Package ingesterrors provides the failure taxonomy for the ingestion
// pipeline plus the typed errors each component reports. Every failure is
// classified as Transient (retry with backoff), Permanent (no retry, route to
// the dead-letter destination) or Fatal (abort the process); the coordinator
// reads the classification, it never guesses.
package ingesterrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for the coordinator's retry decision.
type Kind int

const (
	// KindTransient marks failures worth retrying with backoff (network
	// blips, throttling, service unavailability).
	KindTransient Kind = iota
	// KindPermanent marks failures retrying cannot fix (malformed input,
	// rejected payloads, unsupported content).
	KindPermanent
	// KindFatal marks process-level failures (missing required
	// configuration); the process aborts rather than the job.
	KindFatal
)

// String returns the lowercase taxonomy name.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// classified is implemented by errors that carry their own taxonomy kind.
type classified interface {
	ErrorKind() Kind
}

// Classify returns the taxonomy kind of err by unwrapping to the first
// classified error. Unclassified errors default to Transient: everything the
// pipeline calls is a network collaborator, so an unwrapped error is almost
// always an I/O failure and retrying is the safe decision.
func Classify(err error) Kind {
	for err != nil {
		if c, ok := err.(classified); ok {
			return c.ErrorKind()
		}

		err = errors.Unwrap(err)
	}

	return KindTransient
}

// Transient wraps err so Classify reports KindTransient.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &kindError{kind: KindTransient, err: err}
}

// Permanent wraps err so Classify reports KindPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &kindError{kind: KindPermanent, err: err}
}

// Fatal wraps err so Classify reports KindFatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}

	return &kindError{kind: KindFatal, err: err}
}

// kindError attaches a taxonomy kind to an arbitrary error.
type kindError struct {
	kind Kind
	err  error
}

// Error implements the error interface.
func (e *kindError) Error() string { return e.err.Error() }

// Unwrap exposes the wrapped error for errors.Is/As.
func (e *kindError) Unwrap() error { return e.err }

// ErrorKind returns the attached taxonomy kind.
func (e *kindError) ErrorKind() Kind { return e.kind }

// ErrNoTranscript is the sentinel for a video with no platform transcript.
// It is neither retried nor dead-lettered: the coordinator answers it by
// switching to the audio-transcription fallback.
var ErrNoTranscript = &NoTranscriptError{}

// NoTranscriptError reports that the video platform has no transcript track.
type NoTranscriptError struct {
	VideoID string
}

// NewNoTranscriptError creates a NoTranscriptError for the given video.
func NewNoTranscriptError(videoID string) *NoTranscriptError {
	return &NoTranscriptError{VideoID: videoID}
}

// Error implements the error interface.
func (e *NoTranscriptError) Error() string {
	if e.VideoID != "" {
		return "no transcript available for video " + e.VideoID
	}

	return "no transcript available"
}

// Is implements the error interface for error comparison.
func (e *NoTranscriptError) Is(target error) bool {
	_, ok := target.(*NoTranscriptError)

	return ok
}

// ErrorKind classifies absence of a transcript as permanent: if the fallback
// path is also unavailable the job cannot succeed by retrying.
func (e *NoTranscriptError) ErrorKind() Kind { return KindPermanent }

// ErrRateLimited is the sentinel for platform throttling on the primary
// transcript path. Distinct from hard failure and from "no transcript": the
// coordinator retries with backoff, it does not fall back to audio.
var ErrRateLimited = &RateLimitedError{}

// RateLimitedError reports request throttling by a collaborator.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}

	return "rate limited"
}

// Is implements the error interface for error comparison.
func (e *RateLimitedError) Is(target error) bool {
	_, ok := target.(*RateLimitedError)

	return ok
}

// ErrorKind classifies throttling as transient.
func (e *RateLimitedError) ErrorKind() Kind { return KindTransient }

// ErrTranscriptionTimeout is the sentinel for a transcription job that did
// not reach a terminal state within the polling deadline.
var ErrTranscriptionTimeout = &TranscriptionTimeoutError{}

// TranscriptionTimeoutError reports an exhausted transcription polling wait.
type TranscriptionTimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TranscriptionTimeoutError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("transcription job %s did not complete within %s", e.JobID, e.Elapsed)
	}

	return "transcription timed out"
}

// Is implements the error interface for error comparison.
func (e *TranscriptionTimeoutError) Is(target error) bool {
	_, ok := target.(*TranscriptionTimeoutError)

	return ok
}

// ErrorKind classifies a transcription timeout as transient: the service may
// simply be backed up, and re-running the job is safe.
func (e *TranscriptionTimeoutError) ErrorKind() Kind { return KindTransient }

// ErrEmbeddingRejected is the sentinel for input the embedding service will
// never accept (malformed or over the model's length cap). Signals a chunker
// defect or pathological input, so no retry.
var ErrEmbeddingRejected = &EmbeddingRejectedError{}

// EmbeddingRejectedError reports embedding input rejected by the service.
type EmbeddingRejectedError struct {
	Message string
}

// NewEmbeddingRejectedError creates an EmbeddingRejectedError with a custom message.
func NewEmbeddingRejectedError(message string) *EmbeddingRejectedError {
	return &EmbeddingRejectedError{Message: message}
}

// Error implements the error interface.
func (e *EmbeddingRejectedError) Error() string {
	if e.Message != "" {
		return "embedding rejected: " + e.Message
	}

	return "embedding rejected"
}

// Is implements the error interface for error comparison.
func (e *EmbeddingRejectedError) Is(target error) bool {
	_, ok := target.(*EmbeddingRejectedError)

	return ok
}

// ErrorKind classifies a rejected embedding input as permanent.
func (e *EmbeddingRejectedError) ErrorKind() Kind { return KindPermanent }

// ErrWriteRejected is the sentinel for vector index writes refused because of
// a schema or index mismatch (wrong dimension, missing column). No retry.
var ErrWriteRejected = &WriteRejectedError{}

// WriteRejectedError reports a vector record the index schema refuses.
type WriteRejectedError struct {
	Key     string
	Message string
}

// NewWriteRejectedError creates a WriteRejectedError for the given record key.
func NewWriteRejectedError(key, message string) *WriteRejectedError {
	return &WriteRejectedError{Key: key, Message: message}
}

// Error implements the error interface.
func (e *WriteRejectedError) Error() string {
	switch {
	case e.Key != "" && e.Message != "":
		return fmt.Sprintf("vector write rejected for key %s: %s", e.Key, e.Message)
	case e.Message != "":
		return "vector write rejected: " + e.Message
	default:
		return "vector write rejected"
	}
}

// Is implements the error interface for error comparison.
func (e *WriteRejectedError) Is(target error) bool {
	_, ok := target.(*WriteRejectedError)

	return ok
}

// ErrorKind classifies a schema-level write rejection as permanent.
func (e *WriteRejectedError) ErrorKind() Kind { return KindPermanent }
