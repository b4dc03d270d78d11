package optimizer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/config"
)

func TestUpdateBoundsTable(t *testing.T) {
	inf := math.Inf(1)

	tests := []struct {
		name        string
		param       parameter
		userMin     float64
		userMax     float64
		wantMin     float64
		wantMax     float64
		wantStep    float64
		wantWarning bool
	}{
		{
			name:     "unbounded user range keeps physical limits",
			param:    parameter{key: config.KeyHeight, absMax: 7.5},
			userMin:  -inf,
			userMax:  inf,
			wantMin:  0,
			wantMax:  7.5,
			wantStep: 0.75,
		},
		{
			name:     "user range is intersected",
			param:    parameter{key: config.KeyHeight, absMax: 7.5},
			userMin:  2,
			userMax:  10,
			wantMin:  2,
			wantMax:  7.5,
			wantStep: 0.55,
		},
		{
			name:        "range above the physical max collapses onto it",
			param:       parameter{key: config.KeyHeight, absMax: 7.5},
			userMin:     10,
			userMax:     20,
			wantMin:     7.5,
			wantMax:     7.5,
			wantStep:    0,
			wantWarning: true,
		},
		{
			name:        "range below the physical min collapses onto it",
			param:       parameter{key: config.KeyHeight, absMax: 7.5},
			userMin:     -5,
			userMax:     -1,
			wantMin:     0,
			wantMax:     0,
			wantStep:    0,
			wantWarning: true,
		},
		{
			name:     "half-open range steps by a tenth of the bound",
			param:    parameter{key: config.KeyThickness, absMax: inf},
			userMin:  4,
			userMax:  inf,
			wantMin:  4,
			wantMax:  inf,
			wantStep: 0.4,
		},
		{
			name:     "narrow range uses the minimum step",
			param:    parameter{key: config.KeyThickness, absMax: inf},
			userMin:  0.1,
			userMax:  0.15,
			wantMin:  0.1,
			wantMax:  0.15,
			wantStep: 0.01,
		},
		{
			name:     "fin count rounds inward",
			param:    parameter{key: config.KeyFinCount, integer: true, absMin: 1, absMax: inf},
			userMin:  2.5,
			userMax:  6.7,
			wantMin:  3,
			wantMax:  6,
			wantStep: 1,
		},
		{
			name:     "fin count with no whole value inside",
			param:    parameter{key: config.KeyFinCount, integer: true, absMin: 1, absMax: inf},
			userMin:  2.5,
			userMax:  2.7,
			wantMin:  2,
			wantMax:  2,
			wantStep: 0,
		},
		{
			name:     "open fin count",
			param:    parameter{key: config.KeyFinCount, integer: true, absMin: 1, absMax: inf},
			userMin:  -inf,
			userMax:  inf,
			wantMin:  1,
			wantMax:  inf,
			wantStep: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.param
			warning, err := p.updateBounds(tt.userMin, tt.userMax)
			if err != nil {
				t.Fatalf("updateBounds() error = %v", err)
			}
			if p.min != tt.wantMin || p.max != tt.wantMax {
				t.Fatalf("range = [%v, %v], expected [%v, %v]", p.min, p.max, tt.wantMin, tt.wantMax)
			}
			if math.Abs(p.step-tt.wantStep) > 1e-9 {
				t.Fatalf("step = %v, expected %v", p.step, tt.wantStep)
			}
			if (warning != "") != tt.wantWarning {
				t.Fatalf("warning = %q, expected warning: %v", warning, tt.wantWarning)
			}
		})
	}
}

func TestUpdateBoundsRejectsInvertedRange(t *testing.T) {
	p := parameter{key: config.KeyRootChord, absMax: 60, max: 60, step: 6}
	_, err := p.updateBounds(5, 2)
	if !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
	if p.max != 60 || p.step != 6 {
		t.Fatalf("rejected bounds must not change the parameter: %+v", p)
	}
}

func TestUpdateBoundsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inf := math.Inf(1)

	sample := func() float64 {
		switch rng.Intn(6) {
		case 0:
			return -inf
		case 1:
			return inf
		default:
			return rng.Float64()*40 - 10
		}
	}

	for i := 0; i < 2000; i++ {
		p := parameter{key: config.KeyRootChord, absMax: 20}
		if i%2 == 1 {
			p = parameter{key: config.KeyFinCount, integer: true, absMin: 1, absMax: inf}
		}
		userMin, userMax := sample(), sample()
		if userMin > userMax {
			userMin, userMax = userMax, userMin
		}
		if _, err := p.updateBounds(userMin, userMax); err != nil {
			t.Fatalf("updateBounds(%v, %v) error = %v", userMin, userMax, err)
		}
		if p.min > p.max {
			t.Fatalf("min %v exceeds max %v for user range [%v, %v]", p.min, p.max, userMin, userMax)
		}
		if p.min < p.absMin || p.max > p.absMax {
			t.Fatalf("range [%v, %v] escapes physical range [%v, %v]", p.min, p.max, p.absMin, p.absMax)
		}
		if p.integer && (p.min != math.Trunc(p.min) || (!math.IsInf(p.max, 1) && p.max != math.Trunc(p.max))) {
			t.Fatalf("fin count range [%v, %v] is not whole", p.min, p.max)
		}
		if p.step < 0 || (p.min != p.max && p.step == 0) {
			t.Fatalf("unexpected step %v for [%v, %v]", p.step, p.min, p.max)
		}
	}
}

func TestClamp(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	height := &parameter{key: config.KeyHeight, min: 2, max: 7.5}
	count := &parameter{key: config.KeyFinCount, integer: true, min: 3, max: 6}

	for i := 0; i < 500; i++ {
		x := rng.Float64()*20 - 5

		once := height.clamp(x)
		if once < 2 || once > 7.5 {
			t.Fatalf("clamp(%v) = %v outside [2, 7.5]", x, once)
		}
		if twice := height.clamp(once); twice != once {
			t.Fatalf("clamp is not idempotent: %v then %v", once, twice)
		}

		n := count.clamp(x)
		if n != math.Round(n) || n < 3 || n > 6 {
			t.Fatalf("fin count clamp(%v) = %v", x, n)
		}
	}
}

func TestBuildParametersRestoreIsExact(t *testing.T) {
	a := loadTestAirframe(t)
	fins, tube, _ := a.LastFinSet()
	original := *fins
	params := buildParameters(fins, tube, a.NoseCone)

	for _, p := range params {
		if err := p.set(p.clamp(p.original * 0.9)); err != nil {
			t.Fatalf("set %s: %v", p.key, err)
		}
	}
	for _, p := range params {
		p.restore()
	}
	if *fins != original {
		t.Fatalf("fin set not restored: %+v vs %+v", *fins, original)
	}
}

func TestNoseWallSetterAcceptsMaximum(t *testing.T) {
	a := loadTestAirframe(t)
	fins, tube, _ := a.LastFinSet()
	params := buildParameters(fins, tube, a.NoseCone)

	var wall *parameter
	for _, p := range params {
		if p.key == config.KeyNoseWallThickness {
			wall = p
		}
	}
	if err := wall.set(wall.absMax); err != nil {
		t.Fatalf("setting the wall to its absolute max failed: %v", err)
	}
	if a.NoseCone.WallThickness > a.NoseCone.BaseRadius {
		t.Fatalf("wall %v exceeds base radius %v", a.NoseCone.WallThickness, a.NoseCone.BaseRadius)
	}
}

func TestFinCountSetterRejectsFractions(t *testing.T) {
	a := loadTestAirframe(t)
	fins, tube, _ := a.LastFinSet()
	params := buildParameters(fins, tube, a.NoseCone)

	var count *parameter
	for _, p := range params {
		if p.key == config.KeyFinCount {
			count = p
		}
	}
	if err := count.set(3.5); !errors.Is(err, airframe.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for 3.5 fins, got %v", err)
	}
	if fins.Count != 3 {
		t.Fatalf("rejected write changed the fin count to %d", fins.Count)
	}
	if err := count.set(5); err != nil || fins.Count != 5 {
		t.Fatalf("set(5) = %v, count %d", err, fins.Count)
	}
}
