// Package publish fans out content to external distribution targets and
// collects per-target outcomes. Partial failure is the normal case here,
// not an exceptional one.
package publish

import (
	"context"
	"errors"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

// ErrPermanent marks publish failures the target platform reports as
// unrecoverable (invalid target, revoked credential). Implementations wrap
// it so the coordinator can classify without knowing platform specifics.
var ErrPermanent = errors.New("permanent publish failure")

// Message is the opaque rendered payload sent to a target. The wire format
// of any specific platform is the publisher implementation's concern.
type Message struct {
	ContentID string   `json:"content_id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// Result is a successful publish response.
type Result struct {
	ExternalPostID string
}

// Publisher attempts publication to a single external target. Possibly slow,
// possibly failing; implementations may perform token refresh internally.
type Publisher interface {
	Publish(ctx context.Context, targetID string, msg Message) (*Result, error)
}

// classifyError maps a publisher error onto the retry taxonomy. Anything
// not explicitly permanent is treated as transient and left to a later
// poll cycle.
func classifyError(err error) domain.ErrorKind {
	if errors.Is(err, ErrPermanent) {
		return domain.ErrorKindPermanent
	}
	return domain.ErrorKindTransient
}
