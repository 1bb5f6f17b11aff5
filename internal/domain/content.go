package domain

import (
	"fmt"
	"time"
)

// ContentStatus represents the lifecycle state of a content item.
type ContentStatus string

const (
	ContentStatusDraft           ContentStatus = "draft"
	ContentStatusPendingApproval ContentStatus = "pending_approval"
	ContentStatusApproved        ContentStatus = "approved"
	ContentStatusRejected        ContentStatus = "rejected"
	ContentStatusPublished       ContentStatus = "published"
)

// ContentItem represents a piece of content gated behind the approval workflow.
type ContentItem struct {
	ID        string        `db:"id"         json:"id"`
	OwnerID   string        `db:"owner_id"   json:"owner_id"`
	Title     string        `db:"title"      json:"title"`
	Body      string        `db:"body"       json:"body"`
	Status    ContentStatus `db:"status"     json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// contentTransitions maps each status to the set of statuses reachable from it.
// Published is terminal.
var contentTransitions = map[ContentStatus][]ContentStatus{
	ContentStatusDraft: {
		ContentStatusPendingApproval, // Submitted for approval
	},
	ContentStatusPendingApproval: {
		ContentStatusApproved, // Approver accepts
		ContentStatusRejected, // Approver declines
	},
	ContentStatusApproved: {
		ContentStatusPublished, // All targets published
	},
	ContentStatusRejected: {
		ContentStatusPendingApproval, // Resubmission
	},
	ContentStatusPublished: {},
}

// ValidateContentTransition checks if a content status transition is legal.
// Returns ErrInvalidTransition if the transition is not allowed.
func ValidateContentTransition(from, to ContentStatus) error {
	allowed, exists := contentTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}

	for _, next := range allowed {
		if next == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// IsTerminalContentStatus reports whether no further transitions are legal.
func IsTerminalContentStatus(s ContentStatus) bool {
	return s == ContentStatusPublished
}

// IsPublishEligible reports whether the content may be dispatched to targets.
// Only exactly Approved content is eligible.
func (c *ContentItem) IsPublishEligible() bool {
	return c.Status == ContentStatusApproved
}
