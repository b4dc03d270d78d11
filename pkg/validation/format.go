// Package validation provides common validation utilities.
package validation

import (
	"fmt"

	"github.com/iwvelando/airframe-optimizer/pkg/constants"
)

// ValidateOutputFormat checks if the output format is one of the supported formats.
func ValidateOutputFormat(format string) error {
	switch format {
	case constants.OutputFormatPretty, constants.OutputFormatCSV, constants.OutputFormatJSON:
		return nil
	}
	return fmt.Errorf("expected output format of %s, %s or %s, got %s",
		constants.OutputFormatPretty, constants.OutputFormatCSV, constants.OutputFormatJSON, format)
}

// ValidateAlgorithm checks if the search algorithm is supported.
func ValidateAlgorithm(algorithm string) error {
	if algorithm != constants.AlgorithmNelderMead && algorithm != constants.AlgorithmGrid {
		return fmt.Errorf("expected algorithm of %s or %s, got %s",
			constants.AlgorithmNelderMead, constants.AlgorithmGrid, algorithm)
	}
	return nil
}
