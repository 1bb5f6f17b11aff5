package domain

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RecurrenceType describes how a schedule repeats.
type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// RecurrenceRule is the tuple governing how a schedule repeats.
type RecurrenceRule struct {
	Type     RecurrenceType `json:"type"`
	Interval int            `json:"interval"`
	Until    *time.Time     `json:"until,omitempty"`
}

// Validate checks the rule at creation time so malformed rules never reach
// the dispatcher.
func (r RecurrenceRule) Validate() error {
	switch r.Type {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	default:
		return fmt.Errorf("%w: unknown recurrence type %q", ErrInvalidArgument, r.Type)
	}
	if r.Type != RecurrenceNone && r.Interval <= 0 {
		return fmt.Errorf("%w: recurrence interval must be positive, got %d",
			ErrInvalidArgument, r.Interval)
	}
	return nil
}

// ScheduleStatus represents the dispatch state of a schedule entry.
type ScheduleStatus string

const (
	ScheduleStatusPending     ScheduleStatus = "pending"
	ScheduleStatusDispatching ScheduleStatus = "dispatching"
	ScheduleStatusDispatched  ScheduleStatus = "dispatched"
	ScheduleStatusFailed      ScheduleStatus = "failed"
)

// ScheduleEntry represents a scheduled publication of a content item to one
// or more external targets. OccurrenceDate always holds the current (next
// due) occurrence; NextOccurrence is the computed following one.
type ScheduleEntry struct {
	ID                 string         `db:"id"                  json:"id"`
	ContentID          string         `db:"content_id"          json:"content_id"`
	OccurrenceDate     time.Time      `db:"occurrence_date"     json:"occurrence_date"`
	OccurrenceTime     *time.Time     `db:"occurrence_time"     json:"occurrence_time,omitempty"`
	Timezone           string         `db:"timezone"            json:"timezone"`
	Recurrence         RecurrenceType `db:"recurrence"          json:"recurrence"`
	RecurrenceInterval int            `db:"recurrence_interval" json:"recurrence_interval"`
	RecurrenceUntil    *time.Time     `db:"recurrence_until"    json:"recurrence_until,omitempty"`
	NextOccurrence     *time.Time     `db:"next_occurrence"     json:"next_occurrence,omitempty"`
	TargetIDs          pq.StringArray `db:"target_ids"          json:"target_ids"`
	Status             ScheduleStatus `db:"status"              json:"status"`
	IsActive           bool           `db:"is_active"           json:"is_active"`
	IsDeleted          bool           `db:"is_deleted"          json:"is_deleted"`
	RetryCount         int            `db:"retry_count"         json:"retry_count"`
	MaxRetries         int            `db:"max_retries"         json:"max_retries"`
	LastError          *string        `db:"last_error"          json:"last_error,omitempty"`
	NextRetryAt        *time.Time     `db:"next_retry_at"       json:"next_retry_at,omitempty"`
	LastDispatchedAt   *time.Time     `db:"last_dispatched_at"  json:"last_dispatched_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"          json:"updated_at"`
}

// Rule assembles the recurrence rule from the flattened columns.
func (s *ScheduleEntry) Rule() RecurrenceRule {
	return RecurrenceRule{
		Type:     s.Recurrence,
		Interval: s.RecurrenceInterval,
		Until:    s.RecurrenceUntil,
	}
}

// IsRecurring reports whether the entry repeats.
func (s *ScheduleEntry) IsRecurring() bool {
	return s.Recurrence != RecurrenceNone
}

// ShouldRetry reports whether a failed entry can be retried.
func (s *ScheduleEntry) ShouldRetry() bool {
	return s.RetryCount < s.MaxRetries
}

// IsExhausted reports whether all retries have been used up.
func (s *ScheduleEntry) IsExhausted() bool {
	return s.RetryCount >= s.MaxRetries
}

// OccursAt resolves the occurrence date plus optional time-of-day in the
// entry's timezone to a comparable instant. A missing time-of-day means
// midnight; an empty timezone means UTC.
func (s *ScheduleEntry) OccursAt() (time.Time, error) {
	loc := time.UTC
	if s.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(s.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidArgument, s.Timezone)
		}
	}

	hour, minute, sec := 0, 0, 0
	if s.OccurrenceTime != nil {
		hour, minute, sec = s.OccurrenceTime.Clock()
	}

	y, m, d := s.OccurrenceDate.Date()
	return time.Date(y, m, d, hour, minute, sec, 0, loc), nil
}

// Validate checks the entry at creation time.
func (s *ScheduleEntry) Validate() error {
	if s.ContentID == "" {
		return fmt.Errorf("%w: content id is required", ErrInvalidArgument)
	}
	if len(s.TargetIDs) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalidArgument)
	}
	if _, err := s.OccursAt(); err != nil {
		return err
	}
	return s.Rule().Validate()
}

// ScheduleStats holds schedule counts for monitoring.
type ScheduleStats struct {
	Pending     int64 `json:"pending"`
	Dispatching int64 `json:"dispatching"`
	Dispatched  int64 `json:"dispatched"`
	Failed      int64 `json:"failed"`
	Recurring   int64 `json:"recurring"`
}
