package filtergraph

import (
	"fmt"
	"strings"
)

type Preset string

const (
	// PresetComposite fits the video inside the target frame, pads it with a
	// solid color, grades it and centers the template on top.
	PresetComposite Preset = "composite"
	// PresetCorner lays the template over the untouched video at the
	// top-left corner.
	PresetCorner Preset = "corner"

	DefaultPreset = PresetComposite
)

// ParsePreset maps a request or config value to a Preset. Empty selects
// DefaultPreset.
func ParsePreset(s string) (Preset, error) {
	switch Preset(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultPreset, nil
	case PresetComposite:
		return PresetComposite, nil
	case PresetCorner:
		return PresetCorner, nil
	default:
		return "", fmt.Errorf("unknown preset %q", s)
	}
}

type Params struct {
	Preset     Preset
	Width      int
	Height     int
	Contrast   float64
	Saturation float64
	PadColor   string
}

// DefaultParams is the 900x1600 portrait composite.
func DefaultParams() Params {
	return Params{
		Preset:     PresetComposite,
		Width:      900,
		Height:     1600,
		Contrast:   1.15,
		Saturation: 1.25,
		PadColor:   "black",
	}
}

const outputLabel = "out"

// Build returns the graph for p. Unknown presets build the composite graph;
// callers validate presets with ParsePreset.
func Build(p Params) Spec {
	if p.Preset == PresetCorner {
		return corner()
	}
	return composite(p)
}

func composite(p Params) Spec {
	color := p.PadColor
	if color == "" {
		color = "black"
	}
	w, h := Number(float64(p.Width)), Number(float64(p.Height))

	return Spec{
		Output: outputLabel,
		Stages: []Stage{
			{
				Filter: "scale",
				Inputs: []string{VideoInput},
				Params: []Param{
					{"w", w},
					{"h", h},
					{"force_original_aspect_ratio", Symbol("decrease")},
				},
			},
			{
				Filter: "pad",
				Params: []Param{
					{"w", w},
					{"h", h},
					{"x", Symbol("(ow-iw)/2")},
					{"y", Symbol("(oh-ih)/2")},
					{"color", Symbol(color)},
				},
			},
			{
				Filter:  "eq",
				Outputs: []string{"base"},
				Params: []Param{
					{"contrast", Number(p.Contrast)},
					{"saturation", Number(p.Saturation)},
				},
			},
			{
				Filter:  "overlay",
				Inputs:  []string{"base", ImageInput},
				Outputs: []string{outputLabel},
				Params: []Param{
					{"x", Symbol("(W-w)/2")},
					{"y", Symbol("(H-h)/2")},
				},
			},
		},
	}
}

func corner() Spec {
	return Spec{
		Output: outputLabel,
		Stages: []Stage{
			{
				Filter:  "overlay",
				Inputs:  []string{VideoInput, ImageInput},
				Outputs: []string{outputLabel},
				Params: []Param{
					{"x", Number(0)},
					{"y", Number(0)},
				},
			},
		},
	}
}
