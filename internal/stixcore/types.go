package stixcore

// Bundle represents the top-level envelope of a STIX 2.x document.
type Bundle struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Objects []StixObject `json:"objects"`
}

// StixObject represents a single object within the bundle. Only
// attack-pattern objects are consumed; everything else is skipped.
type StixObject struct {
	Type               string              `json:"type"`
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	KillChainPhases    []KillChainPhase    `json:"kill_chain_phases"`
	ExternalReferences []ExternalReference `json:"external_references"`
}

// KillChainPhase represents the tactic (e.g., defense-evasion) an attack
// pattern belongs to.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// ExternalReference contains the mapping to the external ID, like "T1566".
type ExternalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// TechniqueRef is the nested technique record carried by an ability.
type TechniqueRef struct {
	AttackID string `json:"attack_id"`
	Name     string `json:"name"`
}

// Ability is a locally-known emulation/remediation entry mapped to an
// ATT&CK technique and tactic. Abilities are owned by the store; the
// matcher reads them and never mutates them.
type Ability struct {
	AbilityID   string       `json:"ability_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tactic      string       `json:"tactic"`
	Technique   TechniqueRef `json:"technique"`
	Plugin      string       `json:"plugin,omitempty"`
	Platforms   []string     `json:"platforms,omitempty"`
}

// AbilityRecord is the normalized view of an ability returned to callers.
// Absent source fields surface as null rather than failing.
type AbilityRecord struct {
	AbilityID     *string  `json:"ability_id"`
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Tactic        *string  `json:"tactic"`
	TechniqueID   *string  `json:"technique_id"`
	TechniqueName *string  `json:"technique_name"`
	Plugin        *string  `json:"plugin"`
	Platforms     []string `json:"platforms"`
}

// Mapping is the per-attack-pattern output record. ParentTechniqueID is set
// only when the match actually fell back to the parent technique.
type Mapping struct {
	AttackPatternID   string          `json:"attack_pattern_id"`
	Name              string          `json:"name"`
	TechniqueID       *string         `json:"technique_id"`
	ParentTechniqueID *string         `json:"parent_technique_id,omitempty"`
	Tactics           []string        `json:"tactics"`
	Abilities         []AbilityRecord `json:"abilities"`
}

// Stats provides aggregate counters over one match invocation.
type Stats struct {
	AttackPatterns int `json:"attack_patterns"`
	WithTechnique  int `json:"with_technique"`
	AbilitiesTotal int `json:"abilities_total"`
}

// MatchReport is the full result of matching one bundle against the
// ability store.
type MatchReport struct {
	ID        string    `json:"id,omitempty"`
	Mappings  []Mapping `json:"mappings"`
	Unmatched []string  `json:"unmatched"`
	Stats     Stats     `json:"stats"`
}

// Options controls matching behavior. Zero value is not the default; use
// DefaultOptions.
type Options struct {
	// FallbackToParent retries an empty sub-technique match against the
	// parent T#### ID.
	FallbackToParent bool `json:"fallback_to_parent"`
	// FilterByTactic keeps only abilities whose tactic appears in the
	// attack-pattern's kill chain phases.
	FilterByTactic bool `json:"filter_by_tactic"`
}

// DefaultOptions returns the documented defaults: fall back to the parent
// technique, no tactic filtering.
func DefaultOptions() Options {
	return Options{
		FallbackToParent: true,
		FilterByTactic:   false,
	}
}
