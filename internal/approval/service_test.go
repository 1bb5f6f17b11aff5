package approval_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/approval"
	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/notify"
)

type fakeContentStore struct {
	mu    sync.Mutex
	items map[string]*domain.ContentItem
}

func newFakeContentStore(items ...*domain.ContentItem) *fakeContentStore {
	s := &fakeContentStore{items: make(map[string]*domain.ContentItem)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *fakeContentStore) GetByID(_ context.Context, id string) (*domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (s *fakeContentStore) UpdateStatus(_ context.Context, id string, from, to domain.ContentStatus) error {
	if err := domain.ValidateContentTransition(from, to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.Status != from {
		return fmt.Errorf("%w: content %s is no longer %s", domain.ErrInvalidTransition, id, from)
	}
	item.Status = to
	return nil
}

type fakeApprovalStore struct {
	mu      sync.Mutex
	records map[string]*domain.ApprovalRecord
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{records: make(map[string]*domain.ApprovalRecord)}
}

func (s *fakeApprovalStore) CreateOpen(_ context.Context, contentID, approverID string, notes *string) (*domain.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ContentID == contentID && r.IsOpen() {
			return nil, fmt.Errorf("%w: content %s", domain.ErrConflict, contentID)
		}
	}
	record := &domain.ApprovalRecord{
		ID:         uuid.NewString(),
		ContentID:  contentID,
		ApproverID: approverID,
		Status:     domain.ApprovalStatusPending,
		Notes:      notes,
		CreatedAt:  time.Now(),
	}
	s.records[record.ID] = record
	copied := *record
	return &copied, nil
}

func (s *fakeApprovalStore) GetByID(_ context.Context, id string) (*domain.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *fakeApprovalStore) Resolve(_ context.Context, id string, decision domain.ApprovalStatus, notes *string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !record.IsOpen() {
		return fmt.Errorf("%w: approval %s is already resolved", domain.ErrInvalidTransition, id)
	}
	record.Status = decision
	record.DecidedAt = &decidedAt
	if notes != nil {
		record.Notes = notes
	}
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []notify.Event
}

func (a *fakeAudit) Audit(_ context.Context, event notify.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *fakeAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]string, len(a.events))
	for i, e := range a.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func newService(content *fakeContentStore) (*approval.Service, *fakeApprovalStore, *fakeAudit) {
	approvals := newFakeApprovalStore()
	audit := &fakeAudit{}
	svc := approval.NewService(content, approvals, audit, logger.NewNopLogger())
	return svc, approvals, audit
}

func draftContent(id string) *domain.ContentItem {
	return &domain.ContentItem{ID: id, OwnerID: "owner-1", Status: domain.ContentStatusDraft}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("draft content is submitted", func(t *testing.T) {
		content := newFakeContentStore(draftContent("c1"))
		svc, _, audit := newService(content)

		record, err := svc.Submit(ctx, "c1", "approver-1", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusPending, record.Status)

		item, _ := content.GetByID(ctx, "c1")
		assert.Equal(t, domain.ContentStatusPendingApproval, item.Status)
		assert.Equal(t, []string{notify.EventApprovalSubmitted}, audit.kinds())
	})

	t.Run("duplicate open submission conflicts", func(t *testing.T) {
		content := newFakeContentStore(draftContent("c1"))
		svc, approvals, _ := newService(content)

		_, err := approvals.CreateOpen(ctx, "c1", "approver-0", nil)
		require.NoError(t, err)

		_, err = svc.Submit(ctx, "c1", "approver-1", nil)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("approved content cannot be resubmitted", func(t *testing.T) {
		item := draftContent("c1")
		item.Status = domain.ContentStatusApproved
		svc, _, _ := newService(newFakeContentStore(item))

		_, err := svc.Submit(ctx, "c1", "approver-1", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("rejected content can be resubmitted", func(t *testing.T) {
		item := draftContent("c1")
		item.Status = domain.ContentStatusRejected
		content := newFakeContentStore(item)
		svc, _, _ := newService(content)

		_, err := svc.Submit(ctx, "c1", "approver-1", nil)
		require.NoError(t, err)

		got, _ := content.GetByID(ctx, "c1")
		assert.Equal(t, domain.ContentStatusPendingApproval, got.Status)
	})

	t.Run("unknown content", func(t *testing.T) {
		svc, _, _ := newService(newFakeContentStore())
		_, err := svc.Submit(ctx, "missing", "approver-1", nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDecide(t *testing.T) {
	ctx := context.Background()

	submit := func(t *testing.T) (*approval.Service, *fakeContentStore, *fakeAudit, string) {
		t.Helper()
		content := newFakeContentStore(draftContent("c1"))
		svc, _, audit := newService(content)
		record, err := svc.Submit(ctx, "c1", "approver-1", nil)
		require.NoError(t, err)
		return svc, content, audit, record.ID
	}

	t.Run("approve", func(t *testing.T) {
		svc, content, audit, approvalID := submit(t)

		record, err := svc.Decide(ctx, approvalID, domain.ApprovalStatusApproved, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusApproved, record.Status)
		require.NotNil(t, record.DecidedAt)

		item, _ := content.GetByID(ctx, "c1")
		assert.Equal(t, domain.ContentStatusApproved, item.Status)
		assert.Contains(t, audit.kinds(), notify.EventApprovalDecided)
	})

	t.Run("reject closes record and allows resubmission", func(t *testing.T) {
		svc, content, _, approvalID := submit(t)

		notes := "needs a better headline"
		record, err := svc.Decide(ctx, approvalID, domain.ApprovalStatusRejected, &notes)
		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusRejected, record.Status)

		item, _ := content.GetByID(ctx, "c1")
		assert.Equal(t, domain.ContentStatusRejected, item.Status)

		_, err = svc.Submit(ctx, "c1", "approver-2", nil)
		assert.NoError(t, err)
	})

	t.Run("double decision is rejected", func(t *testing.T) {
		svc, _, _, approvalID := submit(t)

		_, err := svc.Decide(ctx, approvalID, domain.ApprovalStatusApproved, nil)
		require.NoError(t, err)

		_, err = svc.Decide(ctx, approvalID, domain.ApprovalStatusRejected, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown approval id", func(t *testing.T) {
		svc, _, _, _ := submit(t)
		_, err := svc.Decide(ctx, "missing", domain.ApprovalStatusApproved, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("pending is not a decision", func(t *testing.T) {
		svc, _, _, approvalID := submit(t)
		_, err := svc.Decide(ctx, approvalID, domain.ApprovalStatusPending, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestIsPublishEligible(t *testing.T) {
	ctx := context.Background()
	content := newFakeContentStore(draftContent("c1"))
	svc, _, _ := newService(content)

	eligible, err := svc.IsPublishEligible(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, eligible, "draft content is not eligible")

	record, err := svc.Submit(ctx, "c1", "approver-1", nil)
	require.NoError(t, err)
	_, err = svc.Decide(ctx, record.ID, domain.ApprovalStatusApproved, nil)
	require.NoError(t, err)

	eligible, err = svc.IsPublishEligible(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, eligible)

	_, err = svc.IsPublishEligible(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
