package stixcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidBundle is returned when the input is not a STIX bundle
// envelope. It is the only error the extraction pipeline raises itself;
// everything else degrades to empty results.
var ErrInvalidBundle = errors.New("input is not a STIX 2.x bundle")

const (
	bundleType        = "bundle"
	attackPatternType = "attack-pattern"
	mitreAttackSource = "mitre-attack"
)

var (
	// Accept T#### or T####.### case-insensitively.
	techniqueIDPattern = regexp.MustCompile(`(?i)^T\d{4}(\.\d{3})?$`)
	// Recovery path: derive the ID from a MITRE technique URL, e.g.
	// https://attack.mitre.org/techniques/T1055/011
	techniqueURLPattern = regexp.MustCompile(`(?i)/techniques/(T\d{4})(?:/(\d{3}))?\b`)
)

// ExtractedPattern pairs an attack-pattern with its derived technique ID
// and tactic set. TechniqueID is empty when no reference yields one.
type ExtractedPattern struct {
	Object      StixObject
	TechniqueID string
	Tactics     []string
}

// DecodeBundle parses raw JSON into a Bundle and validates the envelope.
// Wrong-typed fields inside individual objects do not reject the bundle:
// the decoder keeps whatever it could populate, so a bundle mixing
// well-formed and malformed attack-patterns still yields partial results.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("failed to decode bundle JSON: %w", err)
		}
		// A top-level mismatch means the input is not an object at all.
		if typeErr.Struct == "" && typeErr.Field == "" {
			return nil, ErrInvalidBundle
		}
	}
	if b.Type != bundleType {
		return nil, ErrInvalidBundle
	}
	return &b, nil
}

// ExtractAttackPatterns walks the bundle's object list and emits one entry
// per attack-pattern, preserving input order. Objects of any other STIX
// type are skipped. A bundle with zero attack-patterns is valid and yields
// an empty result.
func ExtractAttackPatterns(b *Bundle) ([]ExtractedPattern, error) {
	if b == nil || b.Type != bundleType {
		return nil, ErrInvalidBundle
	}

	var patterns []ExtractedPattern
	for _, obj := range b.Objects {
		if obj.Type != attackPatternType {
			continue
		}
		patterns = append(patterns, ExtractedPattern{
			Object:      obj,
			TechniqueID: deriveTechniqueID(obj.ExternalReferences),
			Tactics:     deriveTactics(obj.KillChainPhases),
		})
	}
	return patterns, nil
}

// deriveTechniqueID resolves the ATT&CK technique ID for one
// attack-pattern. The mitre-attack external_id is authoritative; URL
// parsing is a recovery path for malformed or incomplete references.
func deriveTechniqueID(refs []ExternalReference) string {
	for _, ref := range refs {
		if !strings.EqualFold(ref.SourceName, mitreAttackSource) {
			continue
		}
		extID := strings.TrimSpace(ref.ExternalID)
		if techniqueIDPattern.MatchString(extID) {
			return strings.ToUpper(extID)
		}
		if id := techniqueIDFromURL(ref.URL); id != "" {
			return id
		}
	}
	// Last resort: any reference whose URL looks like a technique page.
	for _, ref := range refs {
		if id := techniqueIDFromURL(ref.URL); id != "" {
			return id
		}
	}
	return ""
}

func techniqueIDFromURL(url string) string {
	m := techniqueURLPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	id := strings.ToUpper(m[1])
	if m[2] != "" {
		id += "." + m[2]
	}
	return id
}

// deriveTactics collects the mitre-attack kill chain phase names as a
// sorted, deduplicated set so output is deterministic regardless of input
// object ordering.
func deriveTactics(phases []KillChainPhase) []string {
	seen := make(map[string]bool)
	tactics := []string{}
	for _, phase := range phases {
		if !strings.EqualFold(phase.KillChainName, mitreAttackSource) {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(phase.PhaseName))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tactics = append(tactics, name)
	}
	sort.Strings(tactics)
	return tactics
}
