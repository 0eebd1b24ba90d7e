package config

import (
	"fmt"
	"strings"
)

// Preset is a named export quality level.
type Preset string

const (
	PresetDraft    Preset = "draft"
	PresetStandard Preset = "standard"
	PresetHigh     Preset = "high"
)

// Presets lists every accepted quality preset.
var Presets = []Preset{PresetDraft, PresetStandard, PresetHigh}

// ParsePreset rejects anything outside the closed preset set.
func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Presets {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown quality preset %q", s)
}

func (p Preset) String() string {
	return string(p)
}
