package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/w3bsuki/strike-ab/internal/store"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Write renders snapshots in the named format.
func Write(w io.Writer, format string, snapshots []*Snapshot) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, snapshots)
	case FormatCSV:
		return WriteCSV(w, snapshots)
	case FormatXLSX:
		return WriteXLSX(w, snapshots)
	default:
		return fmt.Errorf("invalid format %q: must be json, csv or xlsx", format)
	}
}

var assignmentHeader = []string{
	"experiment_id",
	"variant_id",
	"variant_name",
	"subject_key",
	"user_id",
	"session_id",
	"assigned_at",
	"converted",
	"conversion_value",
	"converted_at",
}

var summaryHeader = []string{
	"experiment_id",
	"experiment_name",
	"experiment_status",
	"analysis_status",
	"winner",
	"variant_id",
	"variant_name",
	"control",
	"visitors",
	"conversions",
	"conversion_rate",
	"uplift_pct",
	"z_score",
	"confidence",
	"total_value",
}

type jsonExport struct {
	Experiments []*Snapshot `json:"experiments"`
}

func WriteJSON(w io.Writer, snapshots []*Snapshot) error {
	export := jsonExport{Experiments: snapshots}
	if export.Experiments == nil {
		export.Experiments = []*Snapshot{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// WriteCSV writes one row per assignment.
func WriteCSV(w io.Writer, snapshots []*Snapshot) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(assignmentHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, snap := range snapshots {
		for _, a := range snap.Assignments {
			cells := assignmentRow(snap.Experiment, a)
			row := make([]string, len(cells))
			for i, c := range cells {
				row[i] = formatCell(c)
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with a Summary sheet (one row per variant) and
// an Assignments sheet matching the CSV layout.
func WriteXLSX(w io.Writer, snapshots []*Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet("Assignments"); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	var summary, assignments [][]any
	for _, snap := range snapshots {
		summary = append(summary, summaryRows(snap)...)
		for _, a := range snap.Assignments {
			assignments = append(assignments, assignmentRow(snap.Experiment, a))
		}
	}

	if err := writeSheet(f, "Summary", summaryHeader, summary); err != nil {
		return err
	}
	if err := writeSheet(f, "Assignments", assignmentHeader, assignments); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write %s header: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write %s row: %w", sheet, err)
			}
		}
	}
	return nil
}

func summaryRows(snap *Snapshot) [][]any {
	exp, an := snap.Experiment, snap.Analysis
	winner := ""
	if an.Winner != nil {
		winner = *an.Winner
	}

	rows := make([][]any, 0, len(an.Variants))
	for _, v := range an.Variants {
		rows = append(rows, []any{
			exp.ID,
			exp.Name,
			string(exp.Status),
			string(an.Status),
			winner,
			v.VariantID,
			v.Name,
			v.IsControl,
			v.Visitors,
			v.Conversions,
			v.ConversionRate,
			v.Uplift,
			v.Significance,
			v.Confidence,
			v.TotalValue,
		})
	}
	return rows
}

func assignmentRow(exp *store.Experiment, a *store.Assignment) []any {
	name := ""
	if v := exp.Variant(a.VariantID); v != nil {
		name = v.Name
	}

	var value any = ""
	if a.ConversionValue != nil {
		value = *a.ConversionValue
	}
	var convertedAt any = ""
	if a.ConvertedAt != nil {
		convertedAt = a.ConvertedAt.UTC().Format(time.RFC3339)
	}

	return []any{
		a.ExperimentID,
		a.VariantID,
		name,
		a.SubjectKey,
		a.UserID,
		a.SessionID,
		a.AssignedAt.UTC().Format(time.RFC3339),
		a.Converted,
		value,
		convertedAt,
	}
}

func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
