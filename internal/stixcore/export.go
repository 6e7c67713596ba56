package stixcore

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var reportColumns = []string{
	"Attack Pattern", "Technique ID", "Parent Technique", "Tactics",
	"Ability ID", "Ability Name", "Ability Tactic",
}

// WriteReportXLSX exports a match report as a spreadsheet, one row per
// technique/ability pair. Mappings without abilities still get a row so
// unmatched techniques stay visible.
func WriteReportXLSX(report *MatchReport, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Matches"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, header := range reportColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := 2
	for _, mapping := range report.Mappings {
		rows := abilityRows(mapping)
		for _, values := range rows {
			for col, value := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, row)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(sheet, cell, value); err != nil {
					return fmt.Errorf("failed to write row %d: %w", row, err)
				}
			}
			row++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report spreadsheet: %w", err)
	}
	return nil
}

func abilityRows(mapping Mapping) [][]string {
	base := []string{
		mapping.Name,
		deref(mapping.TechniqueID),
		deref(mapping.ParentTechniqueID),
		strings.Join(mapping.Tactics, ", "),
	}
	if len(mapping.Abilities) == 0 {
		return [][]string{append(base, "", "", "")}
	}
	rows := make([][]string, 0, len(mapping.Abilities))
	for _, ab := range mapping.Abilities {
		row := append(append([]string{}, base...),
			deref(ab.AbilityID), deref(ab.Name), deref(ab.Tactic))
		rows = append(rows, row)
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
