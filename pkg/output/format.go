// Package output provides utilities for formatting and displaying optimization results.
package output

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Row is one labelled value of a result table.
type Row struct {
	Label string
	Value string
}

// ParameterLabel returns the display name of a parameter with its unit.
func ParameterLabel(key string) string {
	if config.IsIntegerParameter(key) {
		return config.DisplayName(key)
	}
	return config.DisplayName(key) + " (cm)"
}

// Rows flattens a summary into labelled values in a stable order.
func Rows(summary optimization.Summary) []Row {
	p := message.NewPrinter(language.English)
	best := summary.Best
	if best == nil {
		return nil
	}

	var rows []Row
	seen := make(map[string]bool, len(best.Values))
	for _, key := range config.ParameterKeys {
		v, ok := best.Values[key]
		if !ok {
			continue
		}
		seen[key] = true
		if config.IsIntegerParameter(key) {
			rows = append(rows, Row{ParameterLabel(key), p.Sprintf("%.0f", v)})
		} else {
			rows = append(rows, Row{ParameterLabel(key), p.Sprintf("%.3f", v)})
		}
	}
	for _, key := range best.SortedKeys() {
		if !seen[key] {
			rows = append(rows, Row{key, p.Sprintf("%.3f", best.Values[key])})
		}
	}
	rows = append(rows,
		Row{config.DisplayName(config.KeyStage1Parachute), best.Stage1Parachute},
		Row{config.DisplayName(config.KeyStage2Parachute), best.Stage2Parachute},
		Row{"Apogee (m)", p.Sprintf("%.2f", best.Apogee)},
		Row{"Flight Duration (s)", p.Sprintf("%.2f", best.Duration)},
		Row{"Altitude Score", p.Sprintf("%.4f", best.AltitudeScore)},
		Row{"Duration Score", p.Sprintf("%.4f", best.DurationScore)},
		Row{"Total Score", p.Sprintf("%.4f", best.TotalScore)},
	)
	return rows
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(summary optimization.Summary) {
	p := message.NewPrinter(language.English)
	fmt.Printf("--- Optimization results (%s) ---\n", summary.Algorithm)
	_, _ = p.Printf("State: %s | Evaluations: %d | Parachute combinations: %d\n",
		summary.State, summary.Evaluations, summary.Combos)

	if summary.Best == nil {
		fmt.Printf("No improvement found or cancelled early\n")
		return
	}

	width := len("Parameter")
	rows := Rows(summary)
	for _, row := range rows {
		if len(row.Label) > width {
			width = len(row.Label)
		}
	}
	fmt.Printf("%-*s | Value\n", width, "Parameter")
	fmt.Printf("%-*s | _____\n", width, "_________")
	for _, row := range rows {
		fmt.Printf("%-*s | %s\n", width, row.Label, row.Value)
	}
	for _, note := range summary.Notes {
		fmt.Printf("Note: %s\n", note)
	}
}

// CsvFormat outputs in comma-separated value format.
func CsvFormat(summary optimization.Summary) {
	fmt.Printf(`"parameter","value"`)
	fmt.Printf("\n")
	fmt.Printf(`"state","%s"`, summary.State)
	fmt.Printf("\n")
	fmt.Printf(`"evaluations","%d"`, summary.Evaluations)
	fmt.Printf("\n")
	for _, row := range Rows(summary) {
		fmt.Printf(`"%s","%s"`, row.Label, row.Value)
		fmt.Printf("\n")
	}
}

// JSONFormat outputs the summary as indented JSON.
func JSONFormat(summary optimization.Summary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
