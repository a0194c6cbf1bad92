package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/smart-redact/redactd/internal/detect"
	"github.com/smart-redact/redactd/internal/layout"
	"github.com/smart-redact/redactd/internal/redact"
)

// highlightFillColor marks redacted cells. Yellow, so reviewers can see
// at a glance which cells were touched.
const highlightFillColor = "FFFF00"

// excelAdapter handles .xlsx and .xlsm workbooks via excelize. Cell
// values become one span each; formulas are read by cached value, and
// redaction replaces the whole cell content string, dropping any
// formula that produced PII.
type excelAdapter struct {
	path string
}

func (a *excelAdapter) Medium() Medium { return MediumSpreadsheet }

func (a *excelAdapter) Extract(ctx context.Context) (*Extraction, error) {
	f, err := excelize.OpenFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var b layout.Builder
	stats := Stats{}

	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats.Sheets++

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		for ri, row := range rows {
			for ci, value := range row {
				if strings.TrimSpace(value) == "" {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return nil, fmt.Errorf("naming cell (%d,%d): %w", ci+1, ri+1, err)
				}
				if stats.Cells > 0 {
					b.Sep("\n")
				}
				b.Unit(value, detect.Position{Kind: detect.PositionCell, Sheet: sheet, Cell: cell})
				stats.Cells++
			}
		}
	}

	return &Extraction{Text: b.Text(), Spans: b.Spans(), Stats: stats}, nil
}

// Redact writes a redacted copy of the workbook. Each finding's matched
// text is replaced inside its cell with a sequenced inventory token like
// [SSN_1], and the cell is filled yellow. Findings without a cell
// position fall back to scanning every cell for the matched substring.
func (a *excelAdapter) Redact(ctx context.Context, findings detect.FindingSet, outPath string) error {
	f, err := excelize.OpenFile(a.path)
	if err != nil {
		return fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	styleID, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{highlightFillColor}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating highlight style: %w", err)
	}

	seq := redact.NewTokenSequencer()
	for _, finding := range findings {
		if err := ctx.Err(); err != nil {
			return err
		}
		token := seq.Next(finding.EntityType)

		if pos := finding.Position; pos != nil && pos.Kind == detect.PositionCell {
			if err := a.redactCell(f, pos.Sheet, pos.Cell, finding.Text, token, styleID); err != nil {
				return err
			}
			continue
		}
		if err := a.redactEverywhere(f, finding.Text, token, styleID); err != nil {
			return err
		}
	}

	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("writing redacted workbook: %w", err)
	}
	return nil
}

func (a *excelAdapter) redactCell(f *excelize.File, sheet, cell, match, token string, styleID int) error {
	value, err := f.GetCellValue(sheet, cell)
	if err != nil {
		return fmt.Errorf("reading cell %s!%s: %w", sheet, cell, err)
	}
	replaced := value
	if match != "" && strings.Contains(value, match) {
		replaced = strings.ReplaceAll(value, match, token)
	} else {
		// Cached value drifted from the extracted one; replace the whole
		// cell rather than leak.
		replaced = token
	}
	if err := f.SetCellStr(sheet, cell, replaced); err != nil {
		return fmt.Errorf("writing cell %s!%s: %w", sheet, cell, err)
	}
	if err := f.SetCellStyle(sheet, cell, cell, styleID); err != nil {
		return fmt.Errorf("styling cell %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// redactEverywhere is the position-less fallback: every cell containing
// the match gets the token spliced in.
func (a *excelAdapter) redactEverywhere(f *excelize.File, match, token string, styleID int) error {
	if match == "" {
		return nil
	}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		for ri, row := range rows {
			for ci, value := range row {
				if !strings.Contains(value, match) {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return fmt.Errorf("naming cell (%d,%d): %w", ci+1, ri+1, err)
				}
				if err := a.redactCell(f, sheet, cell, match, token, styleID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
