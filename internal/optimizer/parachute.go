package optimizer

import (
	"fmt"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"go.uber.org/zap"
)

// stage is one recovery stage: the first or second parachute of the design.
type stage struct {
	key     string
	chute   *airframe.Parachute
	enabled bool

	// original is the component state captured at initialization; label is
	// its option name ("None" when the chute carries no preset).
	original airframe.Parachute
	label    string
	// display names the original chute in status lines.
	display string
}

func newStage(key string, chute *airframe.Parachute, enabled bool, catalog PresetCatalog) *stage {
	s := &stage{
		key:     key,
		chute:   chute,
		enabled: enabled && chute != nil,
		label:   constants.ParachuteNone,
		display: constants.ParachuteDefault,
	}
	if chute == nil {
		return s
	}
	s.original = chute.Snapshot()
	if chute.Preset != nil {
		s.label = catalog.DisplayName(chute.Preset)
	}
	s.display = catalog.DisplayName(chute.Preset)
	return s
}

// options lists the candidate selections of the stage. A disabled stage
// only offers its original selection; an enabled one offers "None", every
// catalog preset and its original selection when that is a custom preset.
func (s *stage) options(catalog PresetCatalog) []string {
	if !s.enabled {
		return []string{s.label}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(option string) {
		if option == "" || seen[option] {
			return
		}
		seen[option] = true
		out = append(out, option)
	}

	add(constants.ParachuteNone)
	for _, preset := range catalog.Presets() {
		add(catalog.DisplayName(preset))
	}
	add(s.label)
	return out
}

func (s *stage) restore() {
	if s.chute != nil {
		s.chute.Restore(s.original)
	}
}

// apply sets the stage to option and returns the option actually in effect.
// "None" and the original label restore the original component; unknown
// options restore it as well and are reported through warn.
func (s *stage) apply(option string, catalog PresetCatalog, warn func(string)) string {
	if s.chute == nil {
		return option
	}
	if !s.enabled {
		s.restore()
		return s.label
	}

	preset := catalog.FindByDisplayName(option)
	switch {
	case preset != nil:
		s.restore()
		catalog.Apply(s.chute, preset)
		return option
	case option == constants.ParachuteNone, option == s.label:
		s.restore()
		return option
	default:
		warn(fmt.Sprintf("Warning: Could not find preset for %s. Applying original preset instead.", option))
		s.restore()
		return s.label
	}
}

// applyParachutes puts every stage in the state selected on rc.
func (o *Optimizer) applyParachutes(rc *RunContext) {
	stage1, stage2 := rc.Selection()
	warn := func(msg string) {
		o.warn(msg, zap.String("op", "optimizer.applyParachutes"))
	}
	applied1 := o.stages[0].apply(stage1, o.catalog, warn)
	applied2 := o.stages[1].apply(stage2, o.catalog, warn)
	if applied1 != stage1 || applied2 != stage2 {
		rc.setSelection(applied1, applied2)
	}
}

// parachuteOptions returns the candidate lists of both stages.
func (o *Optimizer) parachuteOptions() ([]string, []string) {
	return o.stages[0].options(o.catalog), o.stages[1].options(o.catalog)
}
