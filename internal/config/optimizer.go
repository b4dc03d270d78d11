package config

import "strings"

// Parameter keys.
const (
	KeyThickness         = "thickness"
	KeyRootChord         = "rootChord"
	KeyHeight            = "height"
	KeyFinCount          = "finCount"
	KeyNoseLength        = "noseLength"
	KeyNoseWallThickness = "noseWallThickness"
)

// Criterion and parachute stage keys.
const (
	KeyAltitudeScore   = "altitudeScore"
	KeyDurationScore   = "durationScore"
	KeyStage1Parachute = "stage1Parachute"
	KeyStage2Parachute = "stage2Parachute"
)

// ParameterKeys lists the tunable parameters in optimization order.
var ParameterKeys = []string{
	KeyThickness,
	KeyRootChord,
	KeyHeight,
	KeyFinCount,
	KeyNoseLength,
	KeyNoseWallThickness,
}

var displayNames = map[string]string{
	KeyThickness:         "Fin Thickness",
	KeyRootChord:         "Root Chord",
	KeyHeight:            "Fin Height",
	KeyFinCount:          "Number of Fins",
	KeyNoseLength:        "Nose Cone Length",
	KeyNoseWallThickness: "Nose Cone Wall Thickness",
	KeyAltitudeScore:     "Altitude Score",
	KeyDurationScore:     "Duration Score",
	KeyStage1Parachute:   "Stage 1 Parachute",
	KeyStage2Parachute:   "Stage 2 Parachute",
}

var canonicalKeys = func() map[string]string {
	m := make(map[string]string, 2*len(displayNames))
	for key, display := range displayNames {
		m[squash(key)] = key
		m[squash(display)] = key
	}
	return m
}()

func squash(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimSuffix(value, "(cm)")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, value)
}

// CanonicalKey returns the canonical identifier for a parameter, criterion
// or parachute stage. Matching ignores case, separators and a "(cm)" suffix,
// and accepts display names. Unknown values are returned trimmed.
func CanonicalKey(value string) string {
	if key, ok := canonicalKeys[squash(value)]; ok {
		return key
	}
	return strings.TrimSpace(value)
}

// DisplayName returns the human-readable name of a key.
func DisplayName(key string) string {
	if name, ok := displayNames[CanonicalKey(key)]; ok {
		return name
	}
	return key
}

// IsKnownKey reports whether value names any enabled-map entry.
func IsKnownKey(value string) bool {
	_, ok := canonicalKeys[squash(value)]
	return ok
}

// IsParameterKey reports whether value names a tunable parameter.
func IsParameterKey(value string) bool {
	key := CanonicalKey(value)
	for _, k := range ParameterKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsIntegerParameter reports whether the parameter only takes whole values.
func IsIntegerParameter(key string) bool {
	return CanonicalKey(key) == KeyFinCount
}
