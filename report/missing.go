// Package report renders data quality reports produced during
// preprocessing.
package report

import (
	"bytes"
	"strconv"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Header of the missing-value report table.
const (
	ColumnHeader = "columns"
	CountHeader  = "missing values count"
)

// MissingValueReport lists the missing-cell count of every column.
type MissingValueReport struct {
	Counts []table.ColumnCount
}

// NewMissingValueReport counts missing cells per column of t.
func NewMissingValueReport(t table.Table) MissingValueReport {
	return MissingValueReport{Counts: table.MissingCounts(t)}
}

// Total is the number of missing cells in the table.
func (r MissingValueReport) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Count
	}
	return n
}

// HasMissing reports whether any column has a missing cell.
func (r MissingValueReport) HasMissing() bool { return r.Total() > 0 }

// Affected returns the columns with at least one missing cell.
func (r MissingValueReport) Affected() []table.ColumnCount {
	var out []table.ColumnCount
	for _, c := range r.Counts {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Table returns the report as a two column table.
func (r MissingValueReport) Table() table.Table {
	names := make([]string, len(r.Counts))
	counts := make([]int, len(r.Counts))
	for i, c := range r.Counts {
		names[i] = c.Column
		counts[i] = c.Count
	}
	return dataframe.New(
		series.New(names, series.String, ColumnHeader),
		series.New(counts, series.Int, CountHeader),
	)
}

// CSV encodes the report table.
func (r MissingValueReport) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := table.WriteCSV(r.Table(), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BarChartPNG draws the affected columns as a bar chart.
func (r MissingValueReport) BarChartPNG() ([]byte, error) {
	affected := r.Affected()
	if len(affected) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "no missing values to plot")
	}

	values := make(plotter.Values, len(affected))
	labels := make([]string, len(affected))
	for i, c := range affected {
		values[i] = float64(c.Count)
		labels[i] = c.Column
	}

	p := plot.New()
	p.Title.Text = "Missing values per column (total " + strconv.Itoa(r.Total()) + ")"
	p.Y.Label.Text = CountHeader
	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = 1.5708
	p.X.Tick.Label.XAlign = -1

	width := vg.Length(len(affected)) * vg.Points(18)
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	w, err := p.WriterTo(width, 4*vg.Inch, "png")
	if err != nil {
		return nil, errors.Wrap(err, "failed to render chart")
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}
	return buf.Bytes(), nil
}
