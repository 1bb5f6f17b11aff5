package domain

import (
	"fmt"
	"time"
)

// ApprovalStatus represents the state of an approval record. It is a distinct
// type from ContentStatus even though the names overlap: the two lifecycles
// are mapped through ContentStatusForDecision, never shared.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalRecord tracks one submission of a content item through review.
// A content id accumulates a history of resolved records across resubmissions,
// but at most one record is open (pending) at a time.
type ApprovalRecord struct {
	ID         string         `db:"id"          json:"id"`
	ContentID  string         `db:"content_id"  json:"content_id"`
	ApproverID string         `db:"approver_id" json:"approver_id"`
	Status     ApprovalStatus `db:"status"      json:"status"`
	Notes      *string        `db:"notes"       json:"notes,omitempty"`
	DecidedAt  *time.Time     `db:"decided_at"  json:"decided_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"  json:"updated_at"`
}

// IsOpen reports whether the record is still awaiting a decision.
func (a *ApprovalRecord) IsOpen() bool {
	return a.Status == ApprovalStatusPending
}

// ContentStatusForDecision maps a resolved approval decision onto the content
// lifecycle. Only Approved and Rejected are valid decisions.
func ContentStatusForDecision(decision ApprovalStatus) (ContentStatus, error) {
	switch decision {
	case ApprovalStatusApproved:
		return ContentStatusApproved, nil
	case ApprovalStatusRejected:
		return ContentStatusRejected, nil
	default:
		return "", fmt.Errorf("%w: decision must be approved or rejected, got %q",
			ErrInvalidArgument, decision)
	}
}
