package transcribe

// JobState is the transcription job lifecycle reported by the service.
type JobState string

// Terminal states are Completed and Failed; anything else means keep polling.
const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Segment is one time-aligned piece of recognized speech, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Job is the transcription job resource returned on submit and poll.
type Job struct {
	ID       string    `json:"job_id"`
	State    JobState  `json:"status"`
	Error    string    `json:"error,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// submitResponse wraps the submit reply.
type submitResponse struct {
	Job Job `json:"job"`
}

// jobResponse wraps the poll reply.
type jobResponse struct {
	Job Job `json:"job"`
}
