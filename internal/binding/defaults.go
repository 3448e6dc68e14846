package binding

import "regexp"

// Default categories.
const (
	categoryHead  = "head"
	categoryEye   = "eye"
	categoryMouth = "mouth"
	categoryBody  = "body"

	// CategoryAutoMatched marks entries synthesized outside the default
	// scaffold.
	CategoryAutoMatched = "auto-matched"
)

// defaultRange is used for scaffold entries and synthesized extras.
var defaultRange = [2]float64{0, 1}

// DefaultTable returns the built-in scaffold: one entry per semantic role,
// all unresolved (Name empty). Every resolved table contains at least these
// friendly names.
func DefaultTable() Table {
	return Table{
		"head_turn":  {Range: defaultRange, Category: categoryHead, SpecialUsage: []string{UsageHeadLR}},
		"head_nod":   {Range: defaultRange, Category: categoryHead, SpecialUsage: []string{UsageHeadUD}},
		"eye_gaze_x": {Range: defaultRange, Category: categoryEye, SpecialUsage: []string{UsageEyeLR}},
		"eye_gaze_y": {Range: defaultRange, Category: categoryEye, SpecialUsage: []string{UsageEyeUD}},
		"eye_open":   {Range: defaultRange, Category: categoryEye, SpecialUsage: []string{UsageEyeOpen}},
		"mouth_talk": {Range: defaultRange, Category: categoryMouth, SpecialUsage: []string{UsageMouthOpen}},
		"mouth_form": {Range: defaultRange, Category: categoryMouth, SpecialUsage: []string{UsageMouthForm}},
		"body_sway":  {Range: defaultRange, Category: categoryBody, SpecialUsage: []string{UsageBodyLR}},
		"body_lean":  {Range: defaultRange, Category: categoryBody, SpecialUsage: []string{UsageBodyUD}},
	}
}

// namePattern maps a friendly name to the raw-name convention expected for
// it. The list is ordered; within one entry, the first raw name matching
// the pattern (in manifest order) wins.
type namePattern struct {
	Friendly string
	Pattern  *regexp.Regexp
}

// knownPatterns is the closed table of expected vendor naming conventions.
var knownPatterns = []namePattern{
	{"mouth_talk", regexp.MustCompile(`^face_talk$`)},
	{"mouth_form", regexp.MustCompile(`^face_mouth(_form)?$`)},
	{"eye_open", regexp.MustCompile(`^face_eye(_open)?$`)},
	{"eye_gaze_x", regexp.MustCompile(`^(face_)?eye_(lr|x)$`)},
	{"eye_gaze_y", regexp.MustCompile(`^(face_)?eye_(ud|y)$`)},
	{"head_turn", regexp.MustCompile(`^head_(lr|x|turn)$`)},
	{"head_nod", regexp.MustCompile(`^head_(ud|y|nod)$`)},
	{"body_sway", regexp.MustCompile(`^body_(lr|x)$`)},
	{"body_lean", regexp.MustCompile(`^body_(ud|y)$`)},
}
