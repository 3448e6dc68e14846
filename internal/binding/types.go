// Package binding maps vendor-specific raw rig variable names onto stable
// semantic roles, and persists the resulting binding tables per model.
package binding

import (
	"errors"
	"strconv"
)

// Common errors
var (
	ErrNoUsageMatch = errors.New("no parameter carries the requested usage tag")
	ErrEmptyTable   = errors.New("binding table is empty")
)

// Special-usage tags form a closed vocabulary identifying which semantic
// role a bound parameter fulfills.
const (
	UsageHeadLR    = "HEAD_LR"
	UsageHeadUD    = "HEAD_UD"
	UsageEyeLR     = "EYE_LR"
	UsageEyeUD     = "EYE_UD"
	UsageEyeOpen   = "EYE_OPEN"
	UsageMouthOpen = "MOUTH_OPEN"
	UsageMouthForm = "MOUTH_FORM"
	UsageBodyLR    = "BODY_LR"
	UsageBodyUD    = "BODY_UD"
)

// UsageTags lists the closed vocabulary in a stable order.
func UsageTags() []string {
	return []string{
		UsageHeadLR, UsageHeadUD,
		UsageEyeLR, UsageEyeUD, UsageEyeOpen,
		UsageMouthOpen, UsageMouthForm,
		UsageBodyLR, UsageBodyUD,
	}
}

// FrameOption is one named position inside a raw variable's frame list.
type FrameOption struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// RawVariable describes one raw rig control as produced by the external
// model unpacker manifest. Immutable.
type RawVariable struct {
	Label     string        `json:"label"`
	MinValue  float64       `json:"minValue"`
	MaxValue  float64       `json:"maxValue"`
	FrameList []FrameOption `json:"frameList"`
}

// Param is one bound parameter. Name is the matched raw variable label,
// empty until resolved ("rig does not expose this capability").
// SemanticFrames maps the formatted numeric frame value to its label; see
// FrameKey.
type Param struct {
	Name           string            `json:"name"`
	Range          [2]float64        `json:"range"`
	Category       string            `json:"category"`
	SpecialUsage   []string          `json:"special_usage"`
	SemanticFrames map[string]string `json:"semantic_frames,omitempty"`
}

// HasUsage reports whether the param carries the given special-usage tag.
func (p *Param) HasUsage(tag string) bool {
	for _, t := range p.SpecialUsage {
		if t == tag {
			return true
		}
	}
	return false
}

// Remap places a normalized ratio in [0,1] inside the param's numeric range.
func (p *Param) Remap(ratio float64) float64 {
	return p.Range[0] + ratio*(p.Range[1]-p.Range[0])
}

// Table maps friendly names to bound parameters. Friendly names are unique
// by construction. Callers swap in freshly resolved tables atomically, never
// merging field by field.
type Table map[string]*Param

// FindByUsage returns the first parameter carrying the tag, iterating in an
// unspecified order; tables are expected to hold at most one param per tag.
func (t Table) FindByUsage(tag string) (*Param, error) {
	if len(t) == 0 {
		return nil, ErrEmptyTable
	}
	for _, p := range t {
		if p != nil && p.HasUsage(tag) {
			return p, nil
		}
	}
	return nil, ErrNoUsageMatch
}

// Clone deep-copies the table so the caller can hand out an editable copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, p := range t {
		if p == nil {
			continue
		}
		cp := *p
		cp.SpecialUsage = append([]string(nil), p.SpecialUsage...)
		if p.SemanticFrames != nil {
			cp.SemanticFrames = make(map[string]string, len(p.SemanticFrames))
			for k, v := range p.SemanticFrames {
				cp.SemanticFrames[k] = v
			}
		}
		out[name] = &cp
	}
	return out
}

// FrameKey formats a frame value as a semantic-frames map key.
func FrameKey(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
