package stixcore

import (
	"fmt"
	"log"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// abilityDocument is the document shape stored in the Bleve index.
type abilityDocument struct {
	AbilityID     string   `json:"ability_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Tactic        string   `json:"tactic"`
	AttackID      string   `json:"attack_id"`
	TechniqueName string   `json:"technique_name"`
	Plugin        string   `json:"plugin"`
	Platforms     []string `json:"platforms"`
	Type          string   `json:"type"`
}

// AbilityIndex is a searchable Bleve index over the ability store, with
// keyword mappings on the exact-match fields and text mappings on the
// prose ones.
type AbilityIndex struct {
	index bleve.Index
}

// OpenAbilityIndex opens the index at path, creating it with the ability
// mapping when it does not exist yet.
func OpenAbilityIndex(path string) (*AbilityIndex, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Printf("Creating new Bleve index at %s...", path)
		index, err = bleve.New(path, createAbilityIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ability index: %w", err)
	}
	return &AbilityIndex{index: index}, nil
}

func createAbilityIndexMapping() *mapping.IndexMappingImpl {
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	textFieldMapping := bleve.NewTextFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ability_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("tactic", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("attack_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("plugin", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("platforms", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("technique_name", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("ability", docMapping)
	return indexMapping
}

// IndexAbilities indexes the given abilities in batches. Abilities without
// an ability_id cannot be keyed and are skipped.
func (ai *AbilityIndex) IndexAbilities(abilities []Ability) (int, error) {
	batch := ai.index.NewBatch()
	count := 0

	for _, ab := range abilities {
		if ab.AbilityID == "" {
			continue
		}
		doc := abilityDocument{
			AbilityID:     ab.AbilityID,
			Name:          ab.Name,
			Description:   ab.Description,
			Tactic:        ab.Tactic,
			AttackID:      strings.ToUpper(ab.Technique.AttackID),
			TechniqueName: ab.Technique.Name,
			Plugin:        ab.Plugin,
			Platforms:     ab.Platforms,
			Type:          "ability",
		}
		if err := batch.Index(ab.AbilityID, doc); err != nil {
			return count, fmt.Errorf("failed to batch ability %s: %w", ab.AbilityID, err)
		}
		count++

		if count%100 == 0 {
			if err := ai.index.Batch(batch); err != nil {
				return count, fmt.Errorf("failed to index batch: %w", err)
			}
			batch = ai.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := ai.index.Batch(batch); err != nil {
			return count, fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return count, nil
}

// Search runs a free-text match query over the index.
func (ai *AbilityIndex) Search(query string, size int) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Fields = []string{"ability_id", "name", "tactic", "attack_id"}
	req.Size = size
	return ai.index.Search(req)
}

// SearchByTechnique finds abilities indexed under the exact attack ID.
func (ai *AbilityIndex) SearchByTechnique(attackID string, size int) (*bleve.SearchResult, error) {
	query := bleve.NewTermQuery(strings.ToUpper(attackID))
	query.SetField("attack_id")
	req := bleve.NewSearchRequest(query)
	req.Fields = []string{"ability_id", "name", "tactic", "attack_id"}
	req.Size = size
	return ai.index.Search(req)
}

// DocCount reports the number of indexed abilities.
func (ai *AbilityIndex) DocCount() (uint64, error) {
	return ai.index.DocCount()
}

// Close releases the underlying index.
func (ai *AbilityIndex) Close() error {
	return ai.index.Close()
}
