package binding

import (
	"encoding/json"
	"os"
	"regexp"

	"github.com/rs/zerolog"
)

// Resolver builds binding tables from raw variable manifests. It never
// fails outright: every degradation path lands on the built-in default
// table.
type Resolver struct {
	matcher *Matcher
	logger  zerolog.Logger
}

// NewResolver creates a resolver using the given matcher for the
// compatibility flat path.
func NewResolver(matcher *Matcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		matcher: matcher,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve produces a complete table from the manifest: the default scaffold
// with raw names filled in wherever an extracted name matches a known
// pattern. Unmatched scaffold entries keep an empty Name, meaning the rig
// does not expose that capability.
//
// When several raw names match one pattern the first in manifest order wins.
// Manifest order is not guaranteed stable by the unpacker, so repeated
// resolutions of a reordered manifest may bind a different raw name; this is
// documented behavior, not an error.
func (r *Resolver) Resolve(manifest []RawVariable) Table {
	names := flattenNames(manifest)
	table := DefaultTable()

	matched := 0
	for _, np := range knownPatterns {
		raw, ok := firstMatch(np.Pattern, names)
		if !ok {
			continue
		}
		if p, exists := table[np.Friendly]; exists {
			p.Name = raw
		} else {
			table[np.Friendly] = &Param{
				Name:         raw,
				Range:        defaultRange,
				Category:     CategoryAutoMatched,
				SpecialUsage: nil,
			}
		}
		matched++
	}

	r.logger.Info().
		Int("raw_names", len(names)).
		Int("matched", matched).
		Msg("Binding table resolved")
	return table
}

// ResolveFile reads a manifest JSON document and resolves it. Read and parse
// failures degrade to the default table.
func (r *Resolver) ResolveFile(path string) Table {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Manifest unreadable, using default table")
		return DefaultTable()
	}
	var manifest []RawVariable
	if err := json.Unmarshal(data, &manifest); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Manifest unparseable, using default table")
		return DefaultTable()
	}
	return r.Resolve(manifest)
}

// AnalyzeVariables is the compatibility path: a table keyed directly by
// literal raw label, classified through the user-editable rules. When the
// rule set is empty it is reloaded once; if still empty the result is an
// empty table.
func (r *Resolver) AnalyzeVariables(manifest []RawVariable) Table {
	if r.matcher.rules.Empty() {
		if err := r.matcher.rules.Reload(); err != nil || r.matcher.rules.Empty() {
			r.logger.Warn().Msg("No semantic rules available, returning empty analysis")
			return Table{}
		}
	}

	r.logger.Info().Int("variables", len(manifest)).Msg("Analyzing runtime variable list")

	table := make(Table, len(manifest))
	for _, v := range manifest {
		if v.Label == "" {
			continue
		}
		category, tags := r.matcher.Match(v.Label)

		var frames map[string]string
		if len(v.FrameList) > 0 {
			frames = make(map[string]string, len(v.FrameList))
			for _, opt := range v.FrameList {
				if opt.Label != "" {
					frames[FrameKey(opt.Value)] = opt.Label
				}
			}
		}

		table[v.Label] = &Param{
			Name:           v.Label,
			Range:          [2]float64{v.MinValue, v.MaxValue},
			Category:       category,
			SpecialUsage:   tags,
			SemanticFrames: frames,
		}
	}

	r.logger.Info().Int("entries", len(table)).Msg("Variable analysis complete")
	return table
}

// flattenNames extracts every raw name referenced anywhere in the manifest,
// including nested frame lists, deduplicated, preserving manifest order.
func flattenNames(manifest []RawVariable) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(n string) {
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}

	for _, v := range manifest {
		add(v.Label)
		for _, opt := range v.FrameList {
			add(opt.Label)
		}
	}
	return names
}

func firstMatch(pattern *regexp.Regexp, names []string) (string, bool) {
	for _, n := range names {
		if pattern.MatchString(n) {
			return n, true
		}
	}
	return "", false
}
