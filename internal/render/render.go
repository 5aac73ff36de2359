// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/olekukonko/tablewriter"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

type bestRow struct {
	Key       string `json:"key"`
	Date      string `json:"date"`
	Candidate string `json:"candidate"`
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch d := result.Data.(type) {
	case *model.Report:
		for _, l := range d.Layers {
			if err := enc.Encode(l); err != nil {
				return err
			}
		}
		return nil
	case []model.LayerStatus:
		for _, s := range d {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	case *model.BestMap:
		for _, date := range sortedKeys(d.Dates) {
			if err := enc.Encode(bestRow{Key: d.Key, Date: date, Candidate: d.Dates[date]}); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Tabular view ─────────────────────────────────────────────────────────────

// tabulate flattens a result into a header and rows shared by the table,
// delimited and markdown renderers.
func tabulate(result *model.Result) ([]string, [][]string, error) {
	switch result.Kind {
	case model.KindLayerStatus:
		s, ok := result.Data.(*model.LayerStatus)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return []string{"FIELD", "VALUE"}, statusRows(s), nil

	case model.KindLayerList:
		list, ok := result.Data.([]model.LayerStatus)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			rows = append(rows, []string{s.Key, fmt.Sprintf("%d", s.DateCount), s.Default, strings.Join(s.Periods, " ")})
		}
		return []string{"LAYER", "DATES", "DEFAULT", "PERIODS"}, rows, nil

	case model.KindReport:
		r, ok := result.Data.(*model.Report)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		rows := make([][]string, 0, len(r.Layers))
		for _, l := range r.Layers {
			status := "ok"
			if l.Failed() {
				status = "failed"
			}
			rows = append(rows, []string{l.Key, fmt.Sprintf("%d", l.Dates), l.Default, strings.Join(l.Periods, " "), status})
		}
		return []string{"LAYER", "DATES", "DEFAULT", "PERIODS", "STATUS"}, rows, nil

	case model.KindPeriods:
		p, ok := result.Data.(*model.LayerPeriods)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		rows := make([][]string, 0, len(p.Periods))
		for _, period := range p.Periods {
			rows = append(rows, []string{period})
		}
		return []string{"PERIOD"}, rows, nil

	case model.KindBestMap:
		b, ok := result.Data.(*model.BestMap)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		rows := make([][]string, 0, len(b.Dates))
		for _, date := range sortedKeys(b.Dates) {
			rows = append(rows, []string{date, b.Dates[date]})
		}
		return []string{"DATE", "CANDIDATE"}, rows, nil

	case model.KindConversion:
		c, ok := result.Data.(*model.Conversion)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		rows := make([][]string, 0, len(c.Converted))
		for _, k := range c.Converted {
			rows = append(rows, []string{k, c.To})
		}
		return []string{"KEY", "NOW"}, rows, nil

	case model.KindStoreStats:
		s, ok := result.Data.(*model.StoreStats)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		rows := make([][]string, 0, len(s.Buckets))
		for _, b := range s.Buckets {
			rows = append(rows, []string{b.Name, fmt.Sprintf("%d", b.Keys), fmt.Sprintf("%d", b.Bytes)})
		}
		return []string{"TYPE", "KEYS", "BYTES"}, rows, nil
	}
	return nil, nil, nil
}

func statusRows(s *model.LayerStatus) [][]string {
	rows := [][]string{
		{"Key", s.Key},
		{"Dates", fmt.Sprintf("%d", s.DateCount)},
		{"First", s.FirstDate},
		{"Last", s.LastDate},
		{"Default", s.Default},
		{"Periods", strings.Join(s.Periods, "\n")},
	}
	if len(s.Configs) > 0 {
		rows = append(rows, []string{"Config", strings.Join(s.Configs, "\n")})
	}
	if s.BestLayer != "" {
		rows = append(rows, []string{"Best Layer", s.BestLayer})
	}
	if len(s.BestConfig) > 0 {
		var cands []string
		for _, c := range s.BestConfig {
			cands = append(cands, fmt.Sprintf("%s (%g)", c.Layer, c.Priority))
		}
		rows = append(rows, []string{"Candidates", strings.Join(cands, "\n")})
	}
	if len(s.BestMap) > 0 {
		rows = append(rows, []string{"Resolved", fmt.Sprintf("%d dates", len(s.BestMap))})
	}
	return rows
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	header, rows, err := tabulate(result)
	if err != nil {
		return err
	}
	if header == nil {
		// Fallback: JSON
		return renderJSON(w, result)
	}

	switch d := result.Data.(type) {
	case *model.Report:
		fmt.Fprintf(w, "%s: %d keys listed, %d skipped, %d layers, %d failed\n",
			d.Source, d.Listed, d.Skipped, len(d.Layers), len(d.Failures()))
		if d.Bypassed {
			fmt.Fprintln(w, "index already created, nothing to do")
			return nil
		}
	case *model.LayerPeriods:
		if d.Key != "" {
			fmt.Fprintf(w, "%s (%d dates)\n", d.Key, d.Dates)
		}
		if d.Unchanged {
			fmt.Fprintln(w, "date already indexed, no changes made")
			return nil
		}
		defer fmt.Fprintf(w, "Default: %s\n", d.Default)
	case *model.Conversion:
		defer fmt.Fprintf(w, "%d converted, %d already %s\n", len(d.Converted), d.Unchanged, d.To)
	case *model.StoreStats:
		fmt.Fprintf(w, "backend %s, %d layers\n", d.Backend, d.Layers)
		if len(d.Buckets) == 0 {
			return nil
		}
	}

	writeTable(w, header, rows)

	if r, ok := result.Data.(*model.Report); ok {
		if failed := r.Failures(); len(failed) > 0 {
			fmt.Fprintln(w, "\nFailed layers:")
			frows := make([][]string, 0, len(failed))
			for _, l := range failed {
				frows = append(frows, []string{l.Key, l.Error})
			}
			writeTable(w, []string{"LAYER", "ERROR"}, frows)
		}
	}
	return nil
}

func writeTable(w io.Writer, header []string, rows [][]string) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(rows)
	tw.Render()
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	header, rows, err := tabulate(result)
	if err != nil {
		return err
	}
	if header == nil {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	} else {
		lower := make([]string, len(header))
		for i, h := range header {
			lower[i] = strings.ToLower(h)
		}
		_ = cw.Write(lower)
		for _, r := range rows {
			_ = cw.Write(r)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	header, rows, err := tabulate(result)
	if err != nil {
		return err
	}
	if header == nil {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(header, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("----|", len(header)))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Command,
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
