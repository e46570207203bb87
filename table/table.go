// Package table provides the tabular helpers shared by every stage: CSV
// codec, schema checks, missing-value accounting and conversion between
// gota data frames and gonum matrices.
//
// A Table is a gota DataFrame: ordered, uniquely named columns of equal
// length. Missing cells are NA elements (NaN in float columns).
package table

import (
	"io"
	"math"
	"strconv"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
)

// Table is an ordered set of named, equally long columns.
type Table = dataframe.DataFrame

const (
	// RawMissing is the missing-value sentinel found in raw sensor files.
	RawMissing = "na"
	// QuotedMissing is the sentinel after the transform stage.
	QuotedMissing = "'na'"
)

// naValues are parsed into NA elements when reading a table.
var naValues = []string{"", "NA", "NaN", "<nil>"}

// ReadCSV reads a CSV stream with a header row. Every column is loaded as
// a string column; numeric conversion is a preprocessing step.
func ReadCSV(r io.Reader) (Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(naValues),
	)
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "failed to parse csv")
	}
	return df, nil
}

// FromRecords builds a string table from a header row followed by data rows.
func FromRecords(records [][]string) (Table, error) {
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(naValues),
	)
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "failed to load records")
	}
	return df, nil
}

// WriteCSV writes t with a header row. Missing cells are written as NaN.
func WriteCSV(t Table, w io.Writer) error {
	if err := t.WriteCSV(w, dataframe.WriteHeader(true)); err != nil {
		return errors.Wrap(err, "failed to write csv")
	}
	return nil
}

// HasColumn reports whether t has a column called name.
func HasColumn(t Table, name string) bool {
	for _, n := range t.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// RequireColumns returns a SchemaError for the first name not present in t.
func RequireColumns(op string, t Table, names ...string) error {
	for _, name := range names {
		if !HasColumn(t, name) {
			return errors.NewMissingColumnError(op, name)
		}
	}
	return nil
}

// IsNumeric reports whether the column holds float or int values.
func IsNumeric(s series.Series) bool {
	return s.Type() == series.Float || s.Type() == series.Int
}

// IsMissing reports, per element, whether the cell is missing.
func IsMissing(s series.Series) []bool {
	mask := s.IsNaN()
	if s.Type() == series.Float {
		for i, v := range s.Float() {
			if math.IsNaN(v) {
				mask[i] = true
			}
		}
	}
	return mask
}

// ColumnCount pairs a column name with a count.
type ColumnCount struct {
	Column string
	Count  int
}

// MissingCounts returns the number of missing cells per column, in
// column order.
func MissingCounts(t Table) []ColumnCount {
	names := t.Names()
	out := make([]ColumnCount, len(names))
	for i, name := range names {
		n := 0
		for _, missing := range IsMissing(t.Col(name)) {
			if missing {
				n++
			}
		}
		out[i] = ColumnCount{Column: name, Count: n}
	}
	return out
}

// ParseFloats converts a string column to floats. NA cells become NaN.
// ok is false when any present value does not parse.
func ParseFloats(s series.Series) (values []float64, ok bool) {
	records := s.Records()
	missing := IsMissing(s)
	values = make([]float64, len(records))
	for i, rec := range records {
		if missing[i] {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(rec, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// ToDense converts a table whose columns are all numeric into a matrix.
// Missing cells become NaN. A non-numeric column is a NumericError.
func ToDense(op string, t Table) (*mat.Dense, error) {
	r, c := t.Nrow(), t.Ncol()
	if r == 0 || c == 0 {
		return nil, errors.NewNumericError(op, "table has no rows or no columns")
	}
	m := mat.NewDense(r, c, nil)
	for j, name := range t.Names() {
		s := t.Col(name)
		if !IsNumeric(s) {
			return nil, errors.NewNonNumericColumnError(op, name, string(s.Type()))
		}
		missing := IsMissing(s)
		for i, v := range s.Float() {
			if missing[i] {
				v = math.NaN()
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// FromDense builds a float table from m using names as column names.
func FromDense(m mat.Matrix, names []string) Table {
	_, c := m.Dims()
	cols := make([]series.Series, c)
	for j := 0; j < c; j++ {
		cols[j] = series.New(mat.Col(nil, j, m), series.Float, names[j])
	}
	return dataframe.New(cols...)
}

// IndexNames returns "0".."n-1", the column names of projected tables.
func IndexNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// Without returns the names of t minus the given ones, in order.
func Without(t Table, drop ...string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var keep []string
	for _, n := range t.Names() {
		if !skip[n] {
			keep = append(keep, n)
		}
	}
	return keep
}

// Select returns a copy of t holding only the named columns, in the given order.
func Select(t Table, names []string) Table {
	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = t.Col(name).Copy()
	}
	return dataframe.New(cols...)
}

// Replace returns a copy of t where the column with the same name as s is
// replaced by s. Column order is kept.
func Replace(t Table, s series.Series) Table {
	names := t.Names()
	cols := make([]series.Series, len(names))
	for i, name := range names {
		if name == s.Name {
			cols[i] = s
		} else {
			cols[i] = t.Col(name).Copy()
		}
	}
	return dataframe.New(cols...)
}
