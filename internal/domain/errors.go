// Package domain contains the core domain models for the content scheduler.
package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidTransition is returned when a status change is attempted from a
// state that does not allow it.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrConflict is returned when an open approval already exists for the content.
var ErrConflict = errors.New("open approval already exists")

// ErrInvalidArgument is returned when input fails validation, e.g. a
// recurrence rule with a non-positive interval.
var ErrInvalidArgument = errors.New("invalid argument")
