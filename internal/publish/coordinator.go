package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/notify"
)

const (
	defaultPublishTimeout = 15 * time.Second
	defaultMaxConcurrent  = 5
	defaultRatePerSecond  = 10
)

// EligibilityChecker is the approval gate consulted before any dispatch.
type EligibilityChecker interface {
	IsPublishEligible(ctx context.Context, contentID string) (bool, error)
}

// ContentStore defines the content write the coordinator performs on full
// success.
type ContentStore interface {
	UpdateStatus(ctx context.Context, id string, from, to domain.ContentStatus) error
}

// PostStore persists successful publishes. The store's (content id, target
// id) uniqueness is what makes concurrent dispatches produce exactly one
// record per pair.
type PostStore interface {
	Create(ctx context.Context, contentID, targetID, externalPostID string) (bool, error)
	ListTargetsPublished(ctx context.Context, contentID string) ([]string, error)
}

// Sink receives notification and audit events.
type Sink interface {
	Notify(ctx context.Context, event notify.Event)
	Audit(ctx context.Context, event notify.Event)
}

// CoordinatorConfig holds tuning options.
type CoordinatorConfig struct {
	// PublishTimeout bounds each call to the external publisher so one
	// unresponsive target cannot stall the batch.
	PublishTimeout time.Duration

	// MaxConcurrent caps in-flight publishes per dispatch.
	MaxConcurrent int

	// RatePerSecond caps outbound publisher calls across dispatches.
	RatePerSecond int
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		PublishTimeout: defaultPublishTimeout,
		MaxConcurrent:  defaultMaxConcurrent,
		RatePerSecond:  defaultRatePerSecond,
	}
}

// DispatchResult is the aggregate of one dispatch.
type DispatchResult struct {
	Outcomes     []domain.PublishOutcome
	AllSucceeded bool
	AnySucceeded bool
}

// Coordinator fans out publish attempts to a content item's targets,
// collects per-target outcomes, and decides the content's resulting status.
// Publisher errors never propagate past this boundary; they become
// structured outcomes.
type Coordinator struct {
	publisher   Publisher
	eligibility EligibilityChecker
	content     ContentStore
	posts       PostStore
	sink        Sink
	metrics     *metrics.Metrics
	logger      logger.Logger

	publishTimeout time.Duration
	maxConcurrent  int
	limiter        *rate.Limiter
}

// NewCoordinator creates a new publish coordinator.
func NewCoordinator(
	publisher Publisher,
	eligibility EligibilityChecker,
	content ContentStore,
	posts PostStore,
	sink Sink,
	m *metrics.Metrics,
	cfg CoordinatorConfig,
	log logger.Logger,
) *Coordinator {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}

	return &Coordinator{
		publisher:      publisher,
		eligibility:    eligibility,
		content:        content,
		posts:          posts,
		sink:           sink,
		metrics:        m,
		logger:         log,
		publishTimeout: cfg.PublishTimeout,
		maxConcurrent:  cfg.MaxConcurrent,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
	}
}

// Dispatch attempts publication of the content to every target. One target's
// failure never aborts the others. The returned error reports store access
// failures only; publisher failures are always in the outcome list.
func (c *Coordinator) Dispatch(ctx context.Context, content *domain.ContentItem, scheduleID string, targetIDs []string) (*DispatchResult, error) {
	eligible, err := c.eligibility.IsPublishEligible(ctx, content.ID)
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if !eligible {
		return c.notApproved(ctx, content.ID, scheduleID, targetIDs), nil
	}

	// Targets fulfilled by an earlier partially-successful dispatch are
	// not re-published.
	fulfilled, err := c.posts.ListTargetsPublished(ctx, content.ID)
	if err != nil {
		return nil, fmt.Errorf("list published targets: %w", err)
	}
	fulfilledSet := make(map[string]bool, len(fulfilled))
	for _, t := range fulfilled {
		fulfilledSet[t] = true
	}

	msg := Message{
		ContentID: content.ID,
		Title:     content.Title,
		Body:      content.Body,
	}

	outcomes := make([]domain.PublishOutcome, len(targetIDs))
	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup

	for i, targetID := range targetIDs {
		if fulfilledSet[targetID] {
			outcomes[i] = domain.PublishOutcome{TargetID: targetID, Succeeded: true}
			continue
		}

		wg.Add(1)
		go func(i int, targetID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = c.publishOne(ctx, content.ID, targetID, msg)
		}(i, targetID)
	}
	wg.Wait()

	result := &DispatchResult{Outcomes: outcomes, AllSucceeded: true}
	for _, o := range outcomes {
		if o.Succeeded {
			result.AnySucceeded = true
		} else {
			result.AllSucceeded = false
		}
	}

	c.settle(ctx, content, scheduleID, result)
	return result, nil
}

// publishOne attempts a single target and converts any failure to a
// structured outcome.
func (c *Coordinator) publishOne(ctx context.Context, contentID, targetID string, msg Message) domain.PublishOutcome {
	if waitErr := c.limiter.Wait(ctx); waitErr != nil {
		c.metrics.ObservePublish(false, string(domain.ErrorKindTransient))
		return domain.PublishOutcome{
			TargetID:     targetID,
			ErrorKind:    domain.ErrorKindTransient,
			ErrorMessage: waitErr.Error(),
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()

	res, err := c.publisher.Publish(pubCtx, targetID, msg)
	if err != nil {
		kind := classifyError(err)
		c.metrics.ObservePublish(false, string(kind))
		c.logger.Warn("publish attempt failed",
			logger.String("content_id", contentID),
			logger.String("target_id", targetID),
			logger.String("error_kind", string(kind)),
			logger.Error(err))

		if kind == domain.ErrorKindPermanent {
			c.sink.Notify(ctx, notify.Event{
				Kind:      notify.EventTargetUnrecoverable,
				ContentID: contentID,
				Detail:    map[string]any{"target_id": targetID, "error": err.Error()},
			})
		}

		return domain.PublishOutcome{
			TargetID:     targetID,
			ErrorKind:    kind,
			ErrorMessage: err.Error(),
		}
	}

	created, createErr := c.posts.Create(ctx, contentID, targetID, res.ExternalPostID)
	if createErr != nil {
		// The post went out; only the record write failed. Count the
		// target as published rather than re-sending on retry.
		c.logger.Error("failed to record post",
			logger.String("content_id", contentID),
			logger.String("target_id", targetID),
			logger.Error(createErr))
	} else if !created {
		c.logger.Debug("post record already exists",
			logger.String("content_id", contentID),
			logger.String("target_id", targetID))
	}

	c.metrics.ObservePublish(true, "")
	return domain.PublishOutcome{
		TargetID:       targetID,
		Succeeded:      true,
		ExternalPostID: res.ExternalPostID,
	}
}

// notApproved synthesizes one failed outcome per target without touching
// the publisher.
func (c *Coordinator) notApproved(ctx context.Context, contentID, scheduleID string, targetIDs []string) *DispatchResult {
	outcomes := make([]domain.PublishOutcome, len(targetIDs))
	for i, targetID := range targetIDs {
		outcomes[i] = domain.PublishOutcome{
			TargetID:     targetID,
			ErrorKind:    domain.ErrorKindNotApproved,
			ErrorMessage: "content is not approved",
		}
	}

	c.metrics.ObserveDispatch(metrics.OutcomeNotApproved)
	c.logger.Warn("dispatch blocked, content not approved",
		logger.String("content_id", contentID),
		logger.String("schedule_id", scheduleID))

	return &DispatchResult{Outcomes: outcomes}
}

// settle applies the aggregate decision: all targets succeeded moves the
// content to its terminal published state; some-but-not-all keeps it
// approved so a later cycle can retry the failed targets; none leaves
// everything in place and raises an audit event.
func (c *Coordinator) settle(ctx context.Context, content *domain.ContentItem, scheduleID string, result *DispatchResult) {
	switch {
	case result.AllSucceeded:
		if err := c.content.UpdateStatus(ctx, content.ID,
			domain.ContentStatusApproved, domain.ContentStatusPublished); err != nil {
			c.logger.Error("failed to mark content published",
				logger.String("content_id", content.ID),
				logger.Error(err))
		}
		c.metrics.ObserveDispatch(metrics.OutcomeAllSucceeded)
		c.sink.Audit(ctx, notify.Event{
			Kind:       notify.EventContentPublished,
			ContentID:  content.ID,
			ScheduleID: scheduleID,
		})

	case result.AnySucceeded:
		c.metrics.ObserveDispatch(metrics.OutcomePartial)
		c.sink.Notify(ctx, notify.Event{
			Kind:       notify.EventDispatchPartial,
			ContentID:  content.ID,
			ScheduleID: scheduleID,
			Detail:     map[string]any{"failed_targets": failedTargets(result.Outcomes)},
		})

	default:
		c.metrics.ObserveDispatch(metrics.OutcomeAllFailed)
		c.sink.Notify(ctx, notify.Event{
			Kind:       notify.EventDispatchFailed,
			ContentID:  content.ID,
			ScheduleID: scheduleID,
			Detail:     map[string]any{"failed_targets": failedTargets(result.Outcomes)},
		})
	}
}

func failedTargets(outcomes []domain.PublishOutcome) []string {
	var failed []string
	for _, o := range outcomes {
		if !o.Succeeded {
			failed = append(failed, o.TargetID)
		}
	}
	return failed
}
