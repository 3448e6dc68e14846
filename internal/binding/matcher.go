package binding

import "strings"

// CategoryUnclassified is assigned when no rule matches a raw name.
const CategoryUnclassified = "unclassified"

// Matcher applies ordered keyword rules to raw variable names. Rule order is
// a tie-break contract: the first rule whose keyword set overlaps the
// lowercased name wins, short-circuit, not best-match.
type Matcher struct {
	rules *Rules
}

// NewMatcher builds a matcher over an explicitly owned rule set.
func NewMatcher(rules *Rules) *Matcher {
	return &Matcher{rules: rules}
}

// Match classifies a raw name, returning its category and special-usage
// tags. Unmatched names classify as unclassified with no tags.
func (m *Matcher) Match(name string) (category string, tags []string) {
	lower := strings.ToLower(name)
	for _, rule := range m.rules.Snapshot() {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				category = rule.Category
				if category == "" {
					category = CategoryUnclassified
				}
				if rule.Tag != "" {
					tags = []string{rule.Tag}
				}
				return category, tags
			}
		}
	}
	return CategoryUnclassified, nil
}
