// Package report renders a batch result into an XLSX workbook for
// researchers who review personas in a spreadsheet rather than as JSON.
//
// The workbook carries three sheets: Personas (one row per persona),
// Evidence (one row per linked evidence item), and Statuses (the per-speaker
// outcome summary).
package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/MrWong99/personaforge/pkg/types"
)

const (
	sheetPersonas = "Personas"
	sheetEvidence = "Evidence"
	sheetStatuses = "Statuses"
)

// WriteXLSX renders result into an XLSX workbook at path.
func WriteXLSX(path string, result *types.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writePersonaSheet(f, result.Personas); err != nil {
		return fmt.Errorf("report: personas sheet: %w", err)
	}
	if err := writeEvidenceSheet(f, result.Personas); err != nil {
		return fmt.Errorf("report: evidence sheet: %w", err)
	}
	if err := writeStatusSheet(f, result.Statuses); err != nil {
		return fmt.Errorf("report: statuses sheet: %w", err)
	}

	// Drop the implicit default sheet.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("report: delete default sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save %q: %w", path, err)
	}
	return nil
}

func writePersonaSheet(f *excelize.File, personas []types.Persona) error {
	if _, err := f.NewSheet(sheetPersonas); err != nil {
		return err
	}
	header := []any{
		"Name", "Archetype", "Description",
		"Experience", "Industry", "Location", "Roles", "Age Range", "Professional Context",
		"Goals & Motivations", "Challenges & Frustrations",
		"Patterns", "Overall Confidence", "Fallback", "Document",
	}
	if err := writeRow(f, sheetPersonas, 1, header); err != nil {
		return err
	}

	for i, p := range personas {
		row := []any{
			p.Name, p.Archetype, p.Description,
			p.Demographics.ExperienceLevel.Value,
			p.Demographics.Industry.Value,
			p.Demographics.Location.Value,
			p.Demographics.Roles.Value,
			p.Demographics.AgeRange.Value,
			p.Demographics.ProfessionalContext.Value,
			p.GoalsAndMotivations.Value,
			p.ChallengesAndFrustrations.Value,
			strings.Join(p.Patterns, ", "),
			p.OverallConfidence,
			p.Metadata.IsFallback,
			p.Metadata.DocumentID,
		}
		if err := writeRow(f, sheetPersonas, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeEvidenceSheet(f *excelize.File, personas []types.Persona) error {
	if _, err := f.NewSheet(sheetEvidence); err != nil {
		return err
	}
	header := []any{"Persona", "Field", "Quote", "Speaker", "Document", "Start", "End", "Match Score"}
	if err := writeRow(f, sheetEvidence, 1, header); err != nil {
		return err
	}

	row := 2
	for _, p := range personas {
		fields := []struct {
			name  string
			items []types.EvidenceItem
		}{
			{"goals_and_motivations", p.GoalsAndMotivations.Evidence},
			{"challenges_and_frustrations", p.ChallengesAndFrustrations.Evidence},
			{"key_quotes", p.KeyQuotes.Evidence},
		}
		for _, field := range fields {
			for _, it := range field.items {
				start, end := any(""), any("")
				if it.Linked() {
					start, end = *it.StartChar, *it.EndChar
				}
				cells := []any{p.Name, field.name, it.Quote, it.Speaker, it.DocumentID, start, end, it.MatchScore}
				if err := writeRow(f, sheetEvidence, row, cells); err != nil {
					return err
				}
				row++
			}
		}
	}
	return nil
}

func writeStatusSheet(f *excelize.File, statuses []types.SpeakerStatus) error {
	if _, err := f.NewSheet(sheetStatuses); err != nil {
		return err
	}
	if err := writeRow(f, sheetStatuses, 1, []any{"Speaker", "Outcome", "Reason"}); err != nil {
		return err
	}
	for i, st := range statuses {
		if err := writeRow(f, sheetStatuses, i+2, []any{st.Speaker, string(st.Outcome), st.Reason}); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
