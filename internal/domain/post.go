package domain

import "time"

// ErrorKind classifies a failed publish attempt.
type ErrorKind string

const (
	// ErrorKindNotApproved marks outcomes synthesized when dispatch was
	// attempted against ineligible content. The publisher is never called.
	ErrorKindNotApproved ErrorKind = "not_approved"

	// ErrorKindTransient marks network/timeout-class failures eligible for
	// retry on a later poll cycle.
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindPermanent marks failures the publisher reports as
	// unrecoverable (invalid target or credential). Surfaced for human
	// intervention rather than retried forever.
	ErrorKindPermanent ErrorKind = "permanent"
)

// PublishOutcome is the per-target result of a dispatch. Ephemeral; a
// successful outcome is persisted as a PostRecord.
type PublishOutcome struct {
	TargetID       string    `json:"target_id"`
	Succeeded      bool      `json:"succeeded"`
	ExternalPostID string    `json:"external_post_id,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// PostRecord is created once per (content id, target id) successful publish.
// Immutable after creation except soft delete.
type PostRecord struct {
	ID             string    `db:"id"               json:"id"`
	ContentID      string    `db:"content_id"       json:"content_id"`
	TargetID       string    `db:"target_id"        json:"target_id"`
	ExternalPostID string    `db:"external_post_id" json:"external_post_id"`
	PublishedAt    time.Time `db:"published_at"     json:"published_at"`
	IsDeleted      bool      `db:"is_deleted"       json:"is_deleted"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
}
