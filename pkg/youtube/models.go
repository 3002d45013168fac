package youtube

// timedTextResponse is the json3 caption track payload.
type timedTextResponse struct {
	Events []timedTextEvent `json:"events"`
}

// timedTextEvent is one caption cue. Events without segs carry styling or
// window metadata and are skipped.
type timedTextEvent struct {
	StartMs    int64          `json:"tStartMs"`
	DurationMs int64          `json:"dDurationMs"`
	Segs       []timedTextSeg `json:"segs"`
}

// timedTextSeg is one text run inside a cue.
type timedTextSeg struct {
	UTF8 string `json:"utf8"`
}
