package testutil

import (
	"testing"

	"github.com/iwvelando/airframe-optimizer/pkg/output"
)

func TestFindRow(t *testing.T) {
	rows := []output.Row{
		{Label: "Fin Height (cm)", Value: "7.350"},
		{Label: "Apogee (m)", Value: "231.40"},
		{Label: "Apogee (m)", Value: "duplicate"},
	}

	tests := []struct {
		name        string
		label       string
		expectFound bool
		expected    string
	}{
		{name: "first row", label: "Fin Height (cm)", expectFound: true, expected: "7.350"},
		{name: "first match wins", label: "Apogee (m)", expectFound: true, expected: "231.40"},
		{name: "missing label", label: "Total Score", expectFound: false},
		{name: "case sensitive", label: "apogee (m)", expectFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := FindRow(rows, tt.label)
			if !tt.expectFound {
				if row != nil {
					t.Errorf("expected no row for %q, got %+v", tt.label, row)
				}
				return
			}
			if row == nil {
				t.Fatalf("expected row %q", tt.label)
			}
			if row.Value != tt.expected {
				t.Errorf("expected value %q, got %q", tt.expected, row.Value)
			}
		})
	}
}

func TestFindRowReturnsElement(t *testing.T) {
	rows := []output.Row{{Label: "Total Score", Value: "0.0000"}}
	row := FindRow(rows, "Total Score")
	if row == nil {
		t.Fatal("expected row")
	}
	row.Value = "changed"
	if rows[0].Value != "changed" {
		t.Error("FindRow should return a pointer into the slice")
	}
}

func TestFindRowEmpty(t *testing.T) {
	if FindRow(nil, "anything") != nil {
		t.Error("expected nil for empty rows")
	}
}
