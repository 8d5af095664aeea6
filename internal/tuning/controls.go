// Package tuning drives interactive block-matcher tuning: normalized control edits,
// synchronous recomputation and the settings file.
package tuning

import (
	"fmt"
	"math"

	"fisheye-stereo/internal/disparity"
)

// Rule is how a raw control value is turned into a usable parameter.
type Rule int

const (
	// RuleTruncate drops the fractional part (toward zero).
	RuleTruncate Rule = iota
	// RuleOdd maps v to 2*trunc(v/2)+1.
	RuleOdd
	// RuleMultiple16 maps v to 16*trunc(v/16).
	RuleMultiple16
)

func (r Rule) String() string {
	switch r {
	case RuleOdd:
		return "odd"
	case RuleMultiple16:
		return "multiple of 16"
	default:
		return "truncate"
	}
}

// Control describes one tuning parameter as presented to the user.
type Control struct {
	Name    string // settings file key
	Label   string
	Min     int
	Max     int
	Default int
	Rule    Rule
}

// Controls lists the nine parameters in display order.
var Controls = []Control{
	{Name: "SADWindowSize", Label: "SWS", Min: 5, Max: 255, Default: 5, Rule: RuleOdd},
	{Name: "preFilterSize", Label: "PFS", Min: 5, Max: 255, Default: 5, Rule: RuleOdd},
	{Name: "preFilterCap", Label: "PreFiltCap", Min: 5, Max: 63, Default: 29, Rule: RuleOdd},
	{Name: "minDisparity", Label: "MinDISP", Min: -100, Max: 100, Default: -25, Rule: RuleTruncate},
	{Name: "numberOfDisparities", Label: "NumOfDisp", Min: 16, Max: 256, Default: 128, Rule: RuleMultiple16},
	{Name: "textureThreshold", Label: "TxtrThrshld", Min: 0, Max: 1000, Default: 100, Rule: RuleTruncate},
	{Name: "uniquenessRatio", Label: "UnicRatio", Min: 1, Max: 20, Default: 10, Rule: RuleTruncate},
	{Name: "speckleRange", Label: "SpcklRng", Min: 0, Max: 40, Default: 15, Rule: RuleTruncate},
	{Name: "speckleWindowSize", Label: "SpklWinSze", Min: 0, Max: 300, Default: 100, Rule: RuleTruncate},
}

// ControlByName looks up a control by its settings key.
func ControlByName(name string) (Control, bool) {
	for _, c := range Controls {
		if c.Name == name {
			return c, true
		}
	}
	return Control{}, false
}

// Normalize clamps v to the control's range and applies its rule. It is idempotent.
func (c Control) Normalize(v float64) int {
	if math.IsNaN(v) {
		v = float64(c.Default)
	}
	return c.Round(math.Max(float64(c.Min), math.Min(float64(c.Max), v)))
}

// Round applies the control's rule without clamping to the slider range.
func (c Control) Round(v float64) int {
	switch c.Rule {
	case RuleOdd:
		return int(math.Trunc(v/2))*2 + 1
	case RuleMultiple16:
		return int(math.Trunc(v/16)) * 16
	default:
		return int(math.Trunc(v))
	}
}

// DefaultParams returns the parameter set built from every control's default.
func DefaultParams() disparity.Params {
	p := disparity.DefaultParams()
	for _, c := range Controls {
		_ = set(&p, c.Name, c.Default)
	}
	return p
}

// Get returns the named parameter from p.
func Get(p disparity.Params, name string) (int, error) {
	switch name {
	case "SADWindowSize":
		return p.SADWindowSize, nil
	case "preFilterSize":
		return p.PreFilterSize, nil
	case "preFilterCap":
		return p.PreFilterCap, nil
	case "minDisparity":
		return p.MinDisparity, nil
	case "numberOfDisparities":
		return p.NumberOfDisparities, nil
	case "textureThreshold":
		return p.TextureThreshold, nil
	case "uniquenessRatio":
		return p.UniquenessRatio, nil
	case "speckleRange":
		return p.SpeckleRange, nil
	case "speckleWindowSize":
		return p.SpeckleWindowSize, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownControl, name)
}

func set(p *disparity.Params, name string, v int) error {
	switch name {
	case "SADWindowSize":
		p.SADWindowSize = v
	case "preFilterSize":
		p.PreFilterSize = v
	case "preFilterCap":
		p.PreFilterCap = v
	case "minDisparity":
		p.MinDisparity = v
	case "numberOfDisparities":
		p.NumberOfDisparities = v
	case "textureThreshold":
		p.TextureThreshold = v
	case "uniquenessRatio":
		p.UniquenessRatio = v
	case "speckleRange":
		p.SpeckleRange = v
	case "speckleWindowSize":
		p.SpeckleWindowSize = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownControl, name)
	}
	return nil
}
