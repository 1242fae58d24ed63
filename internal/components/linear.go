package components

import (
	"slices"

	"github.com/eleven-am/fwmatch/internal/domain"
)

// LinearIndex checks every rule in turn. It is the reference the range tree
// is validated against.
type LinearIndex struct {
	rules []domain.Rule
}

func NewLinearIndex(rules []domain.Rule) *LinearIndex {
	sorted := slices.Clone(rules)
	slices.SortFunc(sorted, compareRules)
	return &LinearIndex{rules: sorted}
}

func (l *LinearIndex) Contains(ip uint32, port uint16) bool {
	for _, r := range l.rules {
		if r.Contains(ip, port) {
			return true
		}
	}
	return false
}

func (l *LinearIndex) Len() int {
	return len(l.rules)
}
