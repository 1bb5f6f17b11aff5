// Package approval enforces the content approval state machine: submission,
// decision, and the publish-eligibility gate consulted at dispatch time.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/notify"
)

// ContentStore defines the content operations the state machine needs.
type ContentStore interface {
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.ContentStatus) error
}

// ApprovalStore defines the approval record operations the state machine needs.
type ApprovalStore interface {
	CreateOpen(ctx context.Context, contentID, approverID string, notes *string) (*domain.ApprovalRecord, error)
	GetByID(ctx context.Context, id string) (*domain.ApprovalRecord, error)
	Resolve(ctx context.Context, id string, decision domain.ApprovalStatus, notes *string, decidedAt time.Time) error
}

// AuditSink receives one audit event per transition.
type AuditSink interface {
	Audit(ctx context.Context, event notify.Event)
}

// Service implements the approval state machine over the stores.
type Service struct {
	content   ContentStore
	approvals ApprovalStore
	audit     AuditSink
	logger    logger.Logger
	now       func() time.Time
}

// NewService creates a new approval service.
func NewService(content ContentStore, approvals ApprovalStore, audit AuditSink, log logger.Logger) *Service {
	return &Service{
		content:   content,
		approvals: approvals,
		audit:     audit,
		logger:    log,
		now:       time.Now,
	}
}

// Submit opens an approval record for the content and moves it to pending
// approval. Content must be in draft or rejected (resubmission); at most one
// open record may exist per content id.
func (s *Service) Submit(ctx context.Context, contentID, approverID string, notes *string) (*domain.ApprovalRecord, error) {
	content, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}

	if validateErr := domain.ValidateContentTransition(content.Status, domain.ContentStatusPendingApproval); validateErr != nil {
		return nil, validateErr
	}

	record, err := s.approvals.CreateOpen(ctx, contentID, approverID, notes)
	if err != nil {
		return nil, err
	}

	if updateErr := s.content.UpdateStatus(ctx, contentID, content.Status, domain.ContentStatusPendingApproval); updateErr != nil {
		return nil, fmt.Errorf("move content to pending approval: %w", updateErr)
	}

	s.logger.Info("content submitted for approval",
		logger.String("content_id", contentID),
		logger.String("approval_id", record.ID),
		logger.String("approver_id", approverID))

	s.audit.Audit(ctx, notify.Event{
		Kind:      notify.EventApprovalSubmitted,
		ContentID: contentID,
		ActorID:   approverID,
		Detail:    map[string]any{"approval_id": record.ID, "from": string(content.Status)},
	})

	return record, nil
}

// Decide resolves an open approval record. Approved moves the content to
// approved; rejected moves it to rejected and closes the record either way.
func (s *Service) Decide(ctx context.Context, approvalID string, decision domain.ApprovalStatus, notes *string) (*domain.ApprovalRecord, error) {
	nextContentStatus, err := domain.ContentStatusForDecision(decision)
	if err != nil {
		return nil, err
	}

	record, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if !record.IsOpen() {
		return nil, fmt.Errorf("%w: approval %s is already resolved as %s",
			domain.ErrInvalidTransition, approvalID, record.Status)
	}

	decidedAt := s.now().UTC()
	if resolveErr := s.approvals.Resolve(ctx, approvalID, decision, notes, decidedAt); resolveErr != nil {
		return nil, resolveErr
	}

	if updateErr := s.content.UpdateStatus(ctx, record.ContentID,
		domain.ContentStatusPendingApproval, nextContentStatus); updateErr != nil {
		return nil, fmt.Errorf("move content to %s: %w", nextContentStatus, updateErr)
	}

	record.Status = decision
	record.DecidedAt = &decidedAt
	if notes != nil {
		record.Notes = notes
	}

	s.logger.Info("approval decided",
		logger.String("content_id", record.ContentID),
		logger.String("approval_id", approvalID),
		logger.String("decision", string(decision)))

	s.audit.Audit(ctx, notify.Event{
		Kind:      notify.EventApprovalDecided,
		ContentID: record.ContentID,
		ActorID:   record.ApproverID,
		Detail:    map[string]any{"approval_id": approvalID, "decision": string(decision)},
	})

	return record, nil
}

// IsPublishEligible reports whether the content may be dispatched. True only
// for exactly approved content. Re-checked at dispatch time, never cached:
// approval can be revoked between scheduling and the due instant.
func (s *Service) IsPublishEligible(ctx context.Context, contentID string) (bool, error) {
	content, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return false, fmt.Errorf("load content: %w", err)
	}
	return content.IsPublishEligible(), nil
}
