// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import "errors"

// ErrNotFound is returned when a lookup by ID or unique key finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned on a duplicate unique constraint (List URL,
// Profile name, a Video's external ID within its List). The active-task
// dedup guard does not use it: EnqueueTask returns (nil, nil) instead.
var ErrConflict = errors.New("store: conflict")

// ErrInUse is returned when a Profile deletion is attempted while a List
// still references it.
var ErrInUse = errors.New("store: in use")

// ErrInvalidTransition is returned when a Task status change is requested
// from a status that does not permit it (e.g. cancelling a running task).
var ErrInvalidTransition = errors.New("store: invalid status transition")
