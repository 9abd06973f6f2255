package domain

import "strings"

// Tier is one label from an ordered priority vocabulary, highest first.
// The vocabulary itself is configuration, not a constant: different
// deployments run entirely different label sets.
type Tier string

// Tiers is an ordered tier vocabulary, highest priority first.
type Tiers []Tier

// Lowest returns the least important tier. Vocabularies are validated
// non-empty at config load.
func (t Tiers) Lowest() Tier {
	return t[len(t)-1]
}

// Match scans freeform text for tier labels in vocabulary order and returns
// the first (highest-priority) hit.
func (t Tiers) Match(text string) (Tier, bool) {
	for _, v := range t {
		if strings.Contains(text, string(v)) {
			return v, true
		}
	}
	return "", false
}

// Contains reports whether label is part of the vocabulary.
func (t Tiers) Contains(label Tier) bool {
	for _, v := range t {
		if v == label {
			return true
		}
	}
	return false
}

// TierSet is an unordered subset of a vocabulary, e.g. the tiers that
// receive enrichment.
type TierSet map[Tier]struct{}

// NewTierSet builds a set from a list of labels.
func NewTierSet(labels []Tier) TierSet {
	s := make(TierSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s TierSet) Has(t Tier) bool {
	_, ok := s[t]
	return ok
}
