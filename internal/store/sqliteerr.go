// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import "strings"

// isUniqueConstraint reports whether err is a sqlite UNIQUE constraint
// violation. modernc.org/sqlite surfaces this as a plain error whose message
// contains the sqlite3 diagnostic text; matching on it avoids depending on
// the driver's internal error type.
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
