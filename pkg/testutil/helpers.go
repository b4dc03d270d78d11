// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/airframe-optimizer/pkg/output"
)

// FindRow finds a result row by label in the rows slice.
// Returns a pointer to the row if found, nil otherwise.
func FindRow(rows []output.Row, label string) *output.Row {
	for i := range rows {
		if rows[i].Label == label {
			return &rows[i]
		}
	}
	return nil
}
