package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/shared"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprint(id)
}

// progress is a progress bar that is a no-op when output is not a terminal.
type progress struct {
	bar *pb.ProgressBar
}

func newProgress(w io.Writer, total int, prefix string) *progress {
	f, ok := w.(*os.File)
	if !ok || f != os.Stdout || !shared.IsTTY() {
		return &progress{}
	}
	bar := pb.New(total)
	bar.SetWriter(w)
	if total > 0 {
		bar.SetTemplateString(`{{ string . "prefix" }} {{ counters . }} {{ bar . }} {{ percent . }} | ETA {{ rtime . "%s" }}`)
	} else {
		bar.SetTemplateString(`{{ string . "prefix" }} {{ counters . }} {{ etime . }}`)
	}
	bar.Set("prefix", prefix)
	bar.Start()
	return &progress{bar: bar}
}

func (p *progress) Increment() {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *progress) SetCurrent(n int) {
	if p.bar != nil {
		p.bar.SetCurrent(int64(n))
	}
}

func (p *progress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}

func outcomeColor(o reconcile.Outcome) string {
	switch o {
	case reconcile.OutcomeUpdated:
		return shared.ColorSuccess.Sprint(o)
	case reconcile.OutcomeFailed, reconcile.OutcomeConflict:
		return shared.ColorError.Sprint(o)
	case reconcile.OutcomeNotFound:
		return shared.ColorWarning.Sprint(o)
	case reconcile.OutcomeFresh, reconcile.OutcomeInFlight, reconcile.OutcomeUnchanged:
		return shared.ColorMuted.Sprint(o)
	}
	return string(o)
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
