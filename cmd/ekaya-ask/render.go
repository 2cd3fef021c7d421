package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-analyst/pkg/client"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// progressPrinter shows session stages on a single spinner line.
type progressPrinter struct {
	spinner *pterm.SpinnerPrinter
}

func startProgress() *progressPrinter {
	spinner, err := pterm.DefaultSpinner.WithRemoveWhenDone(false).Start("Sending question")
	if err != nil {
		return &progressPrinter{}
	}
	return &progressPrinter{spinner: spinner}
}

func (p *progressPrinter) update(ev models.StatusEvent) {
	if p.spinner == nil {
		return
	}
	p.spinner.UpdateText(stageText(ev))
}

func (p *progressPrinter) succeed(payload models.AnalysisPayload) {
	if p.spinner == nil {
		return
	}
	p.spinner.Success(fmt.Sprintf("%d rows in %.2fs", payload.RowCount, payload.ExecutionTime))
	p.spinner = nil
}

func (p *progressPrinter) fail(msg string) {
	if p.spinner == nil {
		return
	}
	p.spinner.Fail(msg)
	p.spinner = nil
}

func (p *progressPrinter) stop() {
	if p.spinner == nil {
		return
	}
	_ = p.spinner.Stop()
	p.spinner = nil
}

func stageText(ev models.StatusEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	return string(ev.Stage)
}

func printPayload(w io.Writer, output string, payload models.AnalysisPayload, maxRows int) error {
	if output != "table" {
		return encode(w, output, payload)
	}

	pterm.DefaultSection.Println("Answer")
	pterm.Println(payload.Answer)
	if payload.TextSummary != "" {
		pterm.Println()
		pterm.Println(payload.TextSummary)
	}

	pterm.DefaultSection.Println("SQL")
	pterm.FgGray.Println(payload.SQLQuery)

	header, rows, hidden := tableRows(payload, maxRows)
	if len(header) > 0 {
		pterm.DefaultSection.Println("Results")
		if err := pterm.DefaultTable.WithHasHeader().WithData(append([][]string{header}, rows...)).Render(); err != nil {
			return err
		}
		if hidden > 0 {
			pterm.Info.Printfln("%d more rows not shown", hidden)
		}
		if payload.Truncated {
			pterm.Warning.Printfln("Result capped at %d of %d rows", len(payload.TableData), payload.RowCount)
		}
	}

	if len(payload.Visualizations) > 0 {
		pterm.DefaultSection.Println("Charts")
		if err := pterm.DefaultBulletList.WithItems(bulletItems(chartLines(payload.Visualizations))).Render(); err != nil {
			return err
		}
	}

	if len(payload.Recommendations) > 0 {
		pterm.DefaultSection.Println("Recommendations")
		if err := pterm.DefaultBulletList.WithItems(bulletItems(payload.Recommendations)).Render(); err != nil {
			return err
		}
	}
	return nil
}

func printDatasets(info *client.DatasetsInfo) error {
	data := [][]string{{"NAME", "ROWS", "COLUMNS", "SAMPLE COLUMNS"}}
	for _, d := range info.Datasets {
		data = append(data, []string{
			d.Name,
			strconv.FormatInt(d.Rows, 10),
			strconv.Itoa(d.Columns),
			joinLimited(d.SampleColumns, 5),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("%s backend, %s, %d rows total", info.Backend, info.Status, info.TotalRows)
	return nil
}

// tableRows lays out the records in column order. hidden counts rows left
// out by maxRows; a maxRows of 0 keeps all of them.
func tableRows(payload models.AnalysisPayload, maxRows int) (header []string, rows [][]string, hidden int) {
	for _, c := range payload.Columns {
		header = append(header, c.Name)
	}
	if len(header) == 0 && len(payload.TableData) > 0 {
		for name := range payload.TableData[0] {
			header = append(header, name)
		}
		sort.Strings(header)
	}

	records := payload.TableData
	if maxRows > 0 && len(records) > maxRows {
		hidden = len(records) - maxRows
		records = records[:maxRows]
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, name := range header {
			row[i] = formatCell(rec[name])
		}
		rows = append(rows, row)
	}
	return header, rows, hidden
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func chartLines(charts []models.ChartDescriptor) []string {
	lines := make([]string, 0, len(charts))
	for _, c := range charts {
		line := fmt.Sprintf("%s: %s (x: %s, y: %s)", c.Type, c.Title, c.Encoding.XField, c.Encoding.YField)
		if c.Truncated {
			line += fmt.Sprintf(", first %d of %d points", len(c.Data), c.TotalPoints)
		}
		lines = append(lines, line)
	}
	return lines
}

func bulletItems(lines []string) []pterm.BulletListItem {
	items := make([]pterm.BulletListItem, 0, len(lines))
	for _, s := range lines {
		items = append(items, pterm.BulletListItem{Level: 0, Text: s})
	}
	return items
}

func joinLimited(items []string, limit int) string {
	var buf bytes.Buffer
	for i, s := range items {
		if i == limit {
			fmt.Fprintf(&buf, ", +%d", len(items)-limit)
			break
		}
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(s)
	}
	return buf.String()
}

// encode writes v as indented JSON, or as YAML keyed by the same field names.
func encode(w io.Writer, output string, v any) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	doc, err := jsonDocument(v)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(doc)
}

// jsonDocument round-trips v through JSON so YAML output uses the wire names.
func jsonDocument(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
