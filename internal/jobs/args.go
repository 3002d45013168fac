// Package jobs defines the queue job types and their insertion surface.
package jobs

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// IngestArgs is the inbound queue message: one video to ingest into one
// collection.
type IngestArgs struct {
	// VideoURL is the submitted video page URL.
	VideoURL string `json:"video_url" validate:"required,url"`

	// CollectionID is the namespace the resulting vectors belong to.
	CollectionID string `json:"collection_id" validate:"required"`
}

// Kind returns the job type identifier for River.
func (IngestArgs) Kind() string { return "ingest_video" }

// Validate rejects malformed messages at the boundary, before any
// processing begins.
func (a IngestArgs) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid ingest message: %w", err)
	}

	return nil
}
