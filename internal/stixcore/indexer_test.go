package stixcore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *AbilityIndex {
	t.Helper()
	index, err := OpenAbilityIndex(filepath.Join(t.TempDir(), "abilities.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

func TestAbilityIndex(t *testing.T) {
	index := newTestIndex(t)

	abilities := []Ability{
		{
			AbilityID:   "ab-1",
			Name:        "Spawn powershell payload",
			Description: "Launches a staged powershell payload",
			Tactic:      "execution",
			Technique:   TechniqueRef{AttackID: "T1059.001", Name: "PowerShell"},
		},
		{
			AbilityID: "ab-2",
			Name:      "Dump lsass memory",
			Tactic:    "credential-access",
			Technique: TechniqueRef{AttackID: "t1003", Name: "OS Credential Dumping"},
		},
		// No ability_id, cannot be keyed.
		{Name: "anonymous"},
	}

	indexed, err := index.IndexAbilities(abilities)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)

	count, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	t.Run("Free-text search", func(t *testing.T) {
		results, err := index.Search("powershell", 5)
		require.NoError(t, err)
		require.GreaterOrEqual(t, int(results.Total), 1)
		assert.Equal(t, "ab-1", results.Hits[0].ID)
	})

	t.Run("Technique term search is upper-cased", func(t *testing.T) {
		// Stored attack IDs are normalized to upper case at index time.
		results, err := index.SearchByTechnique("t1003", 5)
		require.NoError(t, err)
		require.EqualValues(t, 1, results.Total)
		assert.Equal(t, "ab-2", results.Hits[0].ID)
	})

	t.Run("No hits for unknown technique", func(t *testing.T) {
		results, err := index.SearchByTechnique("T9999", 5)
		require.NoError(t, err)
		assert.EqualValues(t, 0, results.Total)
	})
}
