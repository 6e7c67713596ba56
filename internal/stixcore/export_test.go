package stixcore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteReportXLSX(t *testing.T) {
	tid := "T1059.001"
	parent := "T1059"
	abID := "ab-1"
	abName := "Spawn powershell"
	abTactic := "execution"

	report := &MatchReport{
		Mappings: []Mapping{
			{
				AttackPatternID:   "attack-pattern--1",
				Name:              "PowerShell",
				TechniqueID:       &tid,
				ParentTechniqueID: &parent,
				Tactics:           []string{"execution"},
				Abilities: []AbilityRecord{
					{AbilityID: &abID, Name: &abName, Tactic: &abTactic},
				},
			},
			{
				AttackPatternID: "attack-pattern--2",
				Name:            "Mystery Behavior",
				Tactics:         []string{},
				Abilities:       []AbilityRecord{},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteReportXLSX(report, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Matches")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, reportColumns, rows[0])
	assert.Equal(t, []string{"PowerShell", "T1059.001", "T1059", "execution", "ab-1", "Spawn powershell", "execution"}, rows[1])
	// Unmatched mapping still gets a row; trailing empty cells are trimmed
	// by the reader.
	assert.Equal(t, "Mystery Behavior", rows[2][0])
}
