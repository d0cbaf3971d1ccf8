package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tagomatech/ETL/internal/export"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// printHeader prints a titled block of key/value lines
func printHeader(w io.Writer, title string, kv ...string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(w, "  %-10s: %s\n", kv[i], kv[i+1])
	}
	fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
}

// printSuccess prints a success message
func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✅ %s\n", fmt.Sprintf(format, args...))
}

// printWarning prints a warning message
func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "⚠️  %s\n", fmt.Sprintf(format, args...))
}

// printTable prints a column-aligned table
func printTable(w io.Writer, t export.Table) {
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, v := range row {
			if i < len(widths) && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	printRow(w, t.Header, widths)
	total := 0
	for _, width := range widths {
		total += width + 2
	}
	fmt.Fprintln(w, strings.Repeat("─", max(total-2, 0)))
	for _, row := range t.Rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, values []string, widths []int) {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = fmt.Sprintf("%-*s", widths[i], v)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// parseDate reads a --start/--end flag; empty means unbounded
func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

// writeOutput writes sheets to path (".xlsx" for a workbook, CSV otherwise) or the first sheet as CSV to stdout
func writeOutput(stdout io.Writer, path string, sheets ...export.Sheet) error {
	if path == "" || path == "-" {
		return export.WriteCSV(stdout, sheets[0].Table)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = export.WriteXLSX(f, sheets...)
	} else {
		err = export.WriteCSV(f, sheets[0].Table)
		for _, sh := range sheets[1:] {
			if err != nil {
				break
			}
			err = writeCompanion(path, sh)
		}
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeCompanion writes an extra sheet next to a CSV output: kc.csv -> kc_segments.csv
func writeCompanion(path string, sh export.Sheet) error {
	ext := filepath.Ext(path)
	companion := strings.TrimSuffix(path, ext) + "_" + sh.Name + ext

	f, err := os.Create(companion)
	if err != nil {
		return fmt.Errorf("create %s: %w", companion, err)
	}
	if err := export.WriteCSV(f, sh.Table); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
