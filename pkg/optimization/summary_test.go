package optimization

import "testing"

func TestBestResultCloneIsDeep(t *testing.T) {
	orig := &BestResult{Values: map[string]float64{"height": 4}, TotalScore: 2}
	cp := orig.Clone()
	cp.Values["height"] = 9
	if orig.Values["height"] != 4 {
		t.Fatalf("clone shares the values map")
	}
	var nilRecord *BestResult
	if nilRecord.Clone() != nil {
		t.Fatalf("expected nil clone of nil record")
	}
}

func TestBestResultFlatten(t *testing.T) {
	b := &BestResult{
		Values:        map[string]float64{"thickness": 0.3},
		Apogee:        230,
		Duration:      42,
		AltitudeScore: 1,
		DurationScore: 4,
		TotalScore:    5,
	}
	flat := b.Flatten()
	if flat["thickness"] != 0.3 || flat["totalScore"] != 5 || flat["apogee"] != 230 {
		t.Fatalf("unexpected flattened record: %v", flat)
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		p    Progress
		want float64
	}{
		{Progress{Current: 0, Total: 0}, 0},
		{Progress{Current: 50, Total: 100}, 0.5},
		{Progress{Current: 150, Total: 100}, 1},
	}
	for _, tt := range tests {
		if got := tt.p.Fraction(); got != tt.want {
			t.Fatalf("Fraction(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
