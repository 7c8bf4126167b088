package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/dbtuneai/pgvacuum/pkg/pg"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
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
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// RenderSummary writes the per class counters of a run followed by its totals.
func RenderSummary(w io.Writer, s events.Summary) error {
	rows := make([][]string, 0, len(s.Classes))
	for _, c := range s.Classes {
		rows = append(rows, []string{
			c.Class,
			humanize.Comma(int64(c.Evaluated)),
			humanize.Comma(int64(c.Dispatched)),
			humanize.Comma(int64(c.PartitionsSkipped)),
		})
	}
	classes := renderTable(
		[]string{"Class", "Evaluated", "Dispatched", "Partitions skipped"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)

	title := "Run " + s.RunID
	if s.DryRun {
		title += " (dry run)"
	}
	totals := renderTable(
		[]string{"Total", "Value"},
		[][]string{
			{"Dispatched", humanize.Comma(int64(s.Dispatched))},
			{"Skipped", humanize.Comma(int64(s.Skipped))},
			{"Failed", humanize.Comma(int64(s.Failed))},
			{"Async jobs", humanize.Comma(int64(s.AsyncJobs))},
			{"Freeze bypassed", humanize.Comma(int64(s.FreezeBypassed))},
			{"Still active", humanize.Comma(int64(s.ActiveJobs))},
			{"Duration", s.Duration().Round(time.Millisecond).String()},
		},
		[]columnAlignment{alignLeft, alignRight},
	)

	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", title, classes, totals)
	return err
}

// RenderInquiry writes the maintenance statistics of the given tables.
func RenderInquiry(w io.Writer, stats []pg.TableStats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "No tables to report.")
		return err
	}

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Identifier(),
			humanize.Bytes(uint64(max(s.SizeBytes, 0))),
			humanize.Comma(s.XIDAge),
			humanize.Comma(s.LiveTuples),
			humanize.Comma(s.DeadTuples),
			lastRun(s.LastVacuum, s.LastAutoVacuum),
			lastRun(s.LastAnalyze, s.LastAutoAnalyze),
		})
	}
	out := renderTable(
		[]string{"Table", "Size", "XID age", "Live", "Dead", "Last vacuum", "Last analyze"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
	_, err := fmt.Fprintln(w, out)
	return err
}

// lastRun returns the most recent of a manual and an automatic run.
func lastRun(manual, auto *time.Time) string {
	latest, suffix := manual, ""
	if auto != nil && (latest == nil || auto.After(*latest)) {
		latest, suffix = auto, " (auto)"
	}
	if latest == nil {
		return "never"
	}
	return humanize.Time(*latest) + suffix
}
