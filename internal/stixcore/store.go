package stixcore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

// AbilityStore is the seam to the external ability collection. Locate
// returns a complete unfiltered snapshot per call; all filtering happens
// client-side in the matcher.
type AbilityStore interface {
	Locate(ctx context.Context) ([]Ability, error)
}

// StaticStore serves a fixed in-memory ability list.
type StaticStore struct {
	abilities []Ability
}

// NewStaticStore creates a store over the given abilities.
func NewStaticStore(abilities []Ability) *StaticStore {
	return &StaticStore{abilities: abilities}
}

// Locate returns the full ability snapshot. Callers get their own copy so
// the store's backing list stays immutable.
func (s *StaticStore) Locate(_ context.Context) ([]Ability, error) {
	snapshot := make([]Ability, len(s.abilities))
	copy(snapshot, s.abilities)
	return snapshot, nil
}

// rawAbility tolerates both ability schema generations: the nested
// technique record and the older flat technique_id/technique_name fields.
// Platforms may arrive as a list or as a platform->executors map.
type rawAbility struct {
	AbilityID     string          `json:"ability_id"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Tactic        string          `json:"tactic"`
	Technique     *TechniqueRef   `json:"technique"`
	TechniqueID   string          `json:"technique_id"`
	TechniqueName string          `json:"technique_name"`
	Plugin        string          `json:"plugin"`
	Platforms     json.RawMessage `json:"platforms"`
}

func (r rawAbility) normalize() Ability {
	ab := Ability{
		AbilityID:   r.AbilityID,
		Name:        r.Name,
		Description: r.Description,
		Tactic:      r.Tactic,
		Plugin:      r.Plugin,
		Platforms:   decodePlatforms(r.Platforms),
	}
	if ab.AbilityID == "" {
		ab.AbilityID = r.ID
	}
	if r.Technique != nil {
		ab.Technique = *r.Technique
	} else {
		ab.Technique = TechniqueRef{AttackID: r.TechniqueID, Name: r.TechniqueName}
	}
	return ab
}

func decodePlatforms(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var byPlatform map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byPlatform); err == nil {
		platforms := make([]string, 0, len(byPlatform))
		for name := range byPlatform {
			platforms = append(platforms, name)
		}
		sort.Strings(platforms)
		return platforms
	}
	return nil
}

// LoadAbilityFile reads abilities from a JSON or YAML file. CALDERA-style
// ability files are YAML; the content is converted and decoded through the
// same json-tagged structs either way.
func LoadAbilityFile(path string) ([]Ability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ability file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert ability YAML: %w", err)
		}
	}
	return decodeAbilities(data)
}

func decodeAbilities(data []byte) ([]Ability, error) {
	var raws []rawAbility
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode abilities: %w", err)
	}
	abilities := make([]Ability, 0, len(raws))
	for _, r := range raws {
		abilities = append(abilities, r.normalize())
	}
	return abilities, nil
}
