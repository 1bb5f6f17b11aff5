// Package worker provides the background dispatch loop for the scheduler.
// dispatcher.go implements the due-schedule polling worker.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/notify"
	"github.com/jonesrussell/content-scheduler/internal/publish"
	"github.com/jonesrussell/content-scheduler/internal/recurrence"
)

const (
	defaultPollInterval  = 5 * time.Minute
	defaultBatchSize     = 50
	defaultMaxConcurrent = 4
	staleClaimAge        = 10 * time.Minute
	recoveryInterval     = 1 * time.Minute
	retryBatchDivisor    = 2 // Retry batch = batchSize / divisor
)

// CalendarStore defines the schedule operations the dispatcher needs. The
// store's claim semantics (atomic pending -> dispatching flip) are what make
// dispatch at-most-once per entry per due window.
type CalendarStore interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduleEntry, error)
	ClaimRetryable(ctx context.Context, now time.Time, limit int) ([]domain.ScheduleEntry, error)
	GetRecurringNeedingAdvance(ctx context.Context, now time.Time, limit int) ([]domain.ScheduleEntry, error)
	MarkDispatched(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	AdvanceOccurrence(ctx context.Context, id string, next time.Time) error
	Deactivate(ctx context.Context, id string) error
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ContentStore loads the content item behind a schedule entry.
type ContentStore interface {
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)
}

// Coordinator fans out one dispatch to the entry's targets.
type Coordinator interface {
	Dispatch(ctx context.Context, content *domain.ContentItem, scheduleID string, targetIDs []string) (*publish.DispatchResult, error)
}

// Sink receives notification events raised by the loop itself.
type Sink interface {
	Notify(ctx context.Context, event notify.Event)
}

// DispatcherConfig holds configuration options.
type DispatcherConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxConcurrent int
	StaleClaimAge time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:  defaultPollInterval,
		BatchSize:     defaultBatchSize,
		MaxConcurrent: defaultMaxConcurrent,
		StaleClaimAge: staleClaimAge,
	}
}

// Dispatcher polls for due schedule entries and dispatches them through the
// publish coordinator. One bad entry never aborts the batch.
type Dispatcher struct {
	schedules   CalendarStore
	content     ContentStore
	coordinator Coordinator
	sink        Sink
	metrics     *metrics.Metrics
	logger      logger.Logger
	tracer      trace.Tracer

	pollInterval  time.Duration
	batchSize     int
	maxConcurrent int
	staleClaimAge time.Duration
	now           func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewDispatcher creates a new dispatch worker.
func NewDispatcher(
	schedules CalendarStore,
	content ContentStore,
	coordinator Coordinator,
	sink Sink,
	m *metrics.Metrics,
	cfg DispatcherConfig,
	log logger.Logger,
) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.StaleClaimAge <= 0 {
		cfg.StaleClaimAge = staleClaimAge
	}

	return &Dispatcher{
		schedules:     schedules,
		content:       content,
		coordinator:   coordinator,
		sink:          sink,
		metrics:       m,
		logger:        log,
		tracer:        otel.Tracer("schedule-dispatcher"),
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		maxConcurrent: cfg.MaxConcurrent,
		staleClaimAge: cfg.StaleClaimAge,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the polling loop and the stale-claim recovery loop.
func (w *Dispatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.logger.Info("schedule dispatcher started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("batch_size", w.batchSize),
		logger.Int("max_concurrent", w.maxConcurrent))
}

// Stop gracefully stops the worker. In-flight dispatches finish; a publish
// already sent to a target is not recalled.
func (w *Dispatcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("schedule dispatcher stopped")
}

// IsRunning returns whether the worker is currently running.
func (w *Dispatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *Dispatcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.processOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// processOnce runs one poll cycle: due entries, retryable entries, then
// recurrence backfill for entries whose advance was lost to a crash.
func (w *Dispatcher) processOnce(ctx context.Context) {
	started := w.now()
	now := started.UTC()

	due, err := w.schedules.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error("failed to claim due schedules", logger.Error(err))
	} else if len(due) > 0 {
		w.logger.Debug("processing due schedules", logger.Int("count", len(due)))
		w.dispatchBatch(ctx, due)
	}

	retryable, err := w.schedules.ClaimRetryable(ctx, now, w.batchSize/retryBatchDivisor)
	if err != nil {
		w.logger.Error("failed to claim retryable schedules", logger.Error(err))
	} else if len(retryable) > 0 {
		w.logger.Debug("processing retryable schedules", logger.Int("count", len(retryable)))
		w.dispatchBatch(ctx, retryable)
	}

	w.backfillRecurring(ctx, now)
	w.metrics.ObserveBatch(time.Since(started))
}

// dispatchBatch processes claimed entries concurrently, bounded by the
// worker cap. Entries are already partitioned exclusively by the claim, so
// no entry is written by two dispatch paths at once.
func (w *Dispatcher) dispatchBatch(ctx context.Context, entries []domain.ScheduleEntry) {
	sem := make(chan struct{}, w.maxConcurrent)
	var wg sync.WaitGroup

	for i := range entries {
		wg.Add(1)
		go func(entry *domain.ScheduleEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			w.dispatchOne(ctx, entry)
		}(&entries[i])
	}
	wg.Wait()
}

func (w *Dispatcher) dispatchOne(ctx context.Context, entry *domain.ScheduleEntry) {
	ctx, span := w.tracer.Start(ctx, "schedule.dispatch",
		trace.WithAttributes(
			attribute.String("schedule_id", entry.ID),
			attribute.String("content_id", entry.ContentID),
			attribute.Int("target_count", len(entry.TargetIDs)),
		))
	defer span.End()

	content, err := w.content.GetByID(ctx, entry.ContentID)
	if err != nil {
		w.handleDispatchError(ctx, entry, fmt.Errorf("load content: %w", err))
		return
	}

	result, err := w.coordinator.Dispatch(ctx, content, entry.ID, entry.TargetIDs)
	if err != nil {
		w.handleDispatchError(ctx, entry, fmt.Errorf("dispatch: %w", err))
		return
	}

	if result.AllSucceeded {
		w.finishSuccess(ctx, entry)
		return
	}
	w.finishFailure(ctx, entry, result)
}

// finishSuccess marks the entry dispatched, then either advances the
// recurrence or deactivates a one-shot.
func (w *Dispatcher) finishSuccess(ctx context.Context, entry *domain.ScheduleEntry) {
	if markErr := w.schedules.MarkDispatched(ctx, entry.ID); markErr != nil {
		// The publishes went out; only the schedule update failed. The
		// recurrence backfill picks the entry up on a later cycle.
		w.logger.Error("failed to mark schedule dispatched",
			logger.String("schedule_id", entry.ID),
			logger.Error(markErr))
	}

	if entry.IsRecurring() {
		w.advance(ctx, entry)
		return
	}

	if deactivateErr := w.schedules.Deactivate(ctx, entry.ID); deactivateErr != nil {
		w.logger.Error("failed to deactivate one-shot schedule",
			logger.String("schedule_id", entry.ID),
			logger.Error(deactivateErr))
	}

	w.logger.Debug("schedule dispatched",
		logger.String("schedule_id", entry.ID),
		logger.String("content_id", entry.ContentID))
}

// finishFailure handles partial and total failures. Recurring entries
// advance regardless of outcome so a broken target cannot pin the schedule
// to a past occurrence forever; one-shot entries go to failed for retry
// with backoff.
func (w *Dispatcher) finishFailure(ctx context.Context, entry *domain.ScheduleEntry, result *publish.DispatchResult) {
	if entry.IsRecurring() {
		w.advance(ctx, entry)
		return
	}

	w.handleDispatchError(ctx, entry, fmt.Errorf("dispatch incomplete: %d/%d targets failed",
		countFailed(result.Outcomes), len(result.Outcomes)))
}

func (w *Dispatcher) handleDispatchError(ctx context.Context, entry *domain.ScheduleEntry, err error) {
	w.logger.Error("failed to dispatch schedule entry",
		logger.String("schedule_id", entry.ID),
		logger.String("content_id", entry.ContentID),
		logger.Int("retry_count", entry.RetryCount),
		logger.Error(err))

	if markErr := w.schedules.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
		w.logger.Error("failed to mark schedule entry as failed",
			logger.String("schedule_id", entry.ID),
			logger.Error(markErr))
		return
	}

	// This attempt consumed the last retry; surface for human follow-up.
	if entry.RetryCount+1 >= entry.MaxRetries {
		w.sink.Notify(ctx, notify.Event{
			Kind:       notify.EventDispatchFailed,
			ContentID:  entry.ContentID,
			ScheduleID: entry.ID,
			Detail:     map[string]any{"retries_exhausted": true, "error": err.Error()},
		})
	}
}

// advance computes and persists the next occurrence; an exhausted
// recurrence deactivates the entry.
func (w *Dispatcher) advance(ctx context.Context, entry *domain.ScheduleEntry) {
	next, ok, err := recurrence.Next(entry.OccurrenceDate, entry.Rule())
	if err != nil {
		// Rules are validated at creation; this is a contract violation.
		w.logger.Error("invalid recurrence rule reached the dispatcher",
			logger.String("schedule_id", entry.ID),
			logger.Error(err))
		return
	}

	if !ok {
		if deactivateErr := w.schedules.Deactivate(ctx, entry.ID); deactivateErr != nil {
			w.logger.Error("failed to deactivate exhausted schedule",
				logger.String("schedule_id", entry.ID),
				logger.Error(deactivateErr))
			return
		}
		w.sink.Notify(ctx, notify.Event{
			Kind:       notify.EventRecurrenceExhausted,
			ContentID:  entry.ContentID,
			ScheduleID: entry.ID,
		})
		w.logger.Info("recurrence exhausted, schedule deactivated",
			logger.String("schedule_id", entry.ID))
		return
	}

	if advanceErr := w.schedules.AdvanceOccurrence(ctx, entry.ID, next); advanceErr != nil {
		w.logger.Error("failed to advance occurrence",
			logger.String("schedule_id", entry.ID),
			logger.Error(advanceErr))
		return
	}

	w.logger.Debug("occurrence advanced",
		logger.String("schedule_id", entry.ID),
		logger.Time("next_occurrence", next))
}

// backfillRecurring advances recurring entries left dispatched without a
// fresh next occurrence, e.g. after a crash between mark and advance.
func (w *Dispatcher) backfillRecurring(ctx context.Context, now time.Time) {
	entries, err := w.schedules.GetRecurringNeedingAdvance(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch recurring schedules needing advance", logger.Error(err))
		return
	}

	for i := range entries {
		w.advance(ctx, &entries[i])
	}
}

// runRecovery resets stale dispatching entries back to pending. This
// handles entries that were claimed by a cycle that crashed before
// completing.
func (w *Dispatcher) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			released, err := w.schedules.ReleaseStale(ctx, w.staleClaimAge)
			if err != nil {
				w.logger.Error("stale claim recovery failed", logger.Error(err))
			} else if released > 0 {
				w.metrics.ObserveStaleReleased(released)
				w.logger.Warn("recovered stale schedule claims",
					logger.Int64("released", released))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func countFailed(outcomes []domain.PublishOutcome) int {
	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded {
			failed++
		}
	}
	return failed
}
