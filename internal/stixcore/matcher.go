package stixcore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Matcher maps extracted techniques to abilities from an injected store.
// It holds no mutable state, so one Matcher is safe for concurrent use.
type Matcher struct {
	store AbilityStore
}

// NewMatcher creates a Matcher over the given ability store.
func NewMatcher(store AbilityStore) *Matcher {
	return &Matcher{store: store}
}

// MatchBundle runs the full extract+match pipeline for one bundle. The
// store is queried once per invocation; the snapshot is indexed by
// technique ID and reused across all attack-patterns. Mapping order
// follows the bundle's object order.
func (m *Matcher) MatchBundle(ctx context.Context, b *Bundle, opts Options) (*MatchReport, error) {
	patterns, err := ExtractAttackPatterns(b)
	if err != nil {
		return nil, err
	}

	abilities, err := m.store.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to locate abilities: %w", err)
	}
	index := indexByTechnique(abilities)

	report := &MatchReport{
		Mappings:  make([]Mapping, 0, len(patterns)),
		Unmatched: []string{},
	}
	unmatched := make(map[string]bool)

	for _, p := range patterns {
		report.Stats.AttackPatterns++

		mapping := Mapping{
			AttackPatternID: p.Object.ID,
			Name:            p.Object.Name,
			Tactics:         p.Tactics,
			Abilities:       []AbilityRecord{},
		}

		if p.TechniqueID != "" {
			report.Stats.WithTechnique++
			tid := p.TechniqueID
			mapping.TechniqueID = &tid

			matched, parentID := matchAgainst(index, p.TechniqueID, p.Tactics, opts)
			mapping.ParentTechniqueID = parentID
			for _, ab := range matched {
				mapping.Abilities = append(mapping.Abilities, normalizeAbility(ab))
			}
			report.Stats.AbilitiesTotal += len(matched)

			if len(matched) == 0 {
				unmatched[p.TechniqueID] = true
			}
		}

		report.Mappings = append(report.Mappings, mapping)
	}

	for tid := range unmatched {
		report.Unmatched = append(report.Unmatched, tid)
	}
	sort.Strings(report.Unmatched)
	return report, nil
}

// MatchTechnique resolves abilities for a single technique ID against a
// fresh store snapshot. It returns the matched records and, when parent
// fallback produced them, the parent technique ID actually used.
func (m *Matcher) MatchTechnique(ctx context.Context, techniqueID string, tactics []string, opts Options) ([]AbilityRecord, *string, error) {
	abilities, err := m.store.Locate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to locate abilities: %w", err)
	}
	matched, parentID := matchAgainst(indexByTechnique(abilities), techniqueID, tactics, opts)
	records := make([]AbilityRecord, 0, len(matched))
	for _, ab := range matched {
		records = append(records, normalizeAbility(ab))
	}
	return records, parentID, nil
}

// indexByTechnique buckets abilities by upper-cased technique.attack_id
// for fast lookups. Abilities without an attack ID are unreachable by
// matching and are skipped.
func indexByTechnique(abilities []Ability) map[string][]Ability {
	index := make(map[string][]Ability)
	for _, ab := range abilities {
		tid := strings.ToUpper(strings.TrimSpace(ab.Technique.AttackID))
		if tid == "" {
			continue
		}
		index[tid] = append(index[tid], ab)
	}
	return index
}

// matchAgainst selects abilities for one technique: exact match first,
// then parent fallback for sub-techniques when the exact set is empty.
// The returned parent ID is non-nil only when the fallback actually
// produced abilities, so callers can tell "matched directly" from
// "matched via parent".
func matchAgainst(index map[string][]Ability, techniqueID string, tactics []string, opts Options) ([]Ability, *string) {
	tid := strings.ToUpper(techniqueID)
	matched := filterByTactic(index[tid], tactics, opts)

	if len(matched) == 0 && opts.FallbackToParent && strings.Contains(tid, ".") {
		parentID := tid[:strings.Index(tid, ".")]
		parentMatched := filterByTactic(index[parentID], tactics, opts)
		if len(parentMatched) > 0 {
			return parentMatched, &parentID
		}
	}
	return matched, nil
}

// filterByTactic keeps abilities whose tactic appears in the wanted set.
// An empty candidate list or an empty tactic set means no filter applies,
// never "filter to nothing". Tactic strings are compared as-is since
// ATT&CK tactic names are a fixed lower-case vocabulary.
func filterByTactic(candidates []Ability, tactics []string, opts Options) []Ability {
	if !opts.FilterByTactic || len(candidates) == 0 || len(tactics) == 0 {
		return candidates
	}
	wanted := make(map[string]bool, len(tactics))
	for _, t := range tactics {
		wanted[t] = true
	}
	var kept []Ability
	for _, ab := range candidates {
		if wanted[ab.Tactic] {
			kept = append(kept, ab)
		}
	}
	return kept
}

// normalizeAbility reshapes a store record into the output view. Missing
// fields surface as null, never as a failure.
func normalizeAbility(ab Ability) AbilityRecord {
	return AbilityRecord{
		AbilityID:     optional(ab.AbilityID),
		Name:          optional(ab.Name),
		Description:   optional(ab.Description),
		Tactic:        optional(ab.Tactic),
		TechniqueID:   optional(ab.Technique.AttackID),
		TechniqueName: optional(ab.Technique.Name),
		Plugin:        optional(ab.Plugin),
		Platforms:     ab.Platforms,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
