// Package optimization provides shared data structures for optimization results.
package optimization

import "sort"

// BestResult captures the best evaluation observed during a run.
//
// Values holds the raw display value (cm or count) of every tunable
// parameter keyed by its internal name, including parameters that were not
// optimized and therefore carry their original value.
type BestResult struct {
	Values          map[string]float64 `json:"values"`
	Stage1Parachute string             `json:"stage1Parachute"`
	Stage2Parachute string             `json:"stage2Parachute"`
	Apogee          float64            `json:"apogee"`
	Duration        float64            `json:"duration"`
	AltitudeScore   float64            `json:"altitudeScore"`
	DurationScore   float64            `json:"durationScore"`
	TotalScore      float64            `json:"totalScore"`
	Stability       float64            `json:"stability"`
	Evaluation      int                `json:"evaluation"`
}

// Clone returns a deep copy of the record.
func (b *BestResult) Clone() *BestResult {
	if b == nil {
		return nil
	}
	out := *b
	out.Values = make(map[string]float64, len(b.Values))
	for k, v := range b.Values {
		out.Values[k] = v
	}
	return &out
}

// Flatten returns the record as a single key/value map with the score
// entries alongside the parameter values.
func (b *BestResult) Flatten() map[string]float64 {
	out := make(map[string]float64, len(b.Values)+5)
	for k, v := range b.Values {
		out[k] = v
	}
	out["apogee"] = b.Apogee
	out["duration"] = b.Duration
	out["altitudeScore"] = b.AltitudeScore
	out["durationScore"] = b.DurationScore
	out["totalScore"] = b.TotalScore
	return out
}

// SortedKeys returns the parameter keys in lexical order.
func (b *BestResult) SortedKeys() []string {
	keys := make([]string, 0, len(b.Values))
	for k := range b.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Progress is one progress report of a run.
type Progress struct {
	Phase       int `json:"phase"`
	Current     int `json:"current"`
	Total       int `json:"total"`
	TotalPhases int `json:"totalPhases"`
}

// Fraction returns Current/Total in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Summary describes the outcome of a completed run.
type Summary struct {
	State       string      `json:"state"`
	Algorithm   string      `json:"algorithm"`
	Evaluations int         `json:"evaluations"`
	Combos      int         `json:"combinations"`
	Improved    bool        `json:"improved"`
	Best        *BestResult `json:"best,omitempty"`
	Notes       []string    `json:"notes,omitempty"`
}
