package pipeline

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/preprocessing"
	"github.com/YuminosukeSato/airpressure/report"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Label tokens written by the transform stage.
const (
	NegativeLabel = "'neg'"
	PositiveLabel = "'pos'"
)

// Preprocessor holds the table transformations applied before fitting.
// Every operation returns a new table and leaves its input untouched.
// Fitted state (imputer, scaler, PCA) is local to each call.
type Preprocessor struct {
	params *config.Params
	store  ObjectStore
	logger log.Logger
}

// NewPreprocessor returns a Preprocessor. store receives the
// missing-value report.
func NewPreprocessor(params *config.Params, store ObjectStore, logger log.Logger) *Preprocessor {
	if logger == nil {
		logger = log.Default()
	}
	return &Preprocessor{
		params: params,
		store:  store,
		logger: logger.With(log.ComponentKey, "Preprocessor"),
	}
}

// RemoveColumns drops the named columns.
func (p *Preprocessor) RemoveColumns(t table.Table, columns []string) (table.Table, error) {
	const op = "RemoveColumns"
	if err := table.RequireColumns(op, t, columns...); err != nil {
		return table.Table{}, err
	}
	keep := table.Without(t, columns...)
	if len(keep) == 0 {
		return table.Table{}, errors.NewSchemaError(op, strings.Join(columns, ","), "no columns left")
	}
	p.logger.Debug("removed columns", log.DroppedColumnsKey, columns, log.ColumnsKey, len(keep))
	return table.Select(t, keep), nil
}

// SeparateLabelFeature splits t into the feature table and the label column.
func (p *Preprocessor) SeparateLabelFeature(t table.Table, label string) (table.Table, series.Series, error) {
	const op = "SeparateLabelFeature"
	if err := table.RequireColumns(op, t, label); err != nil {
		return table.Table{}, series.Series{}, err
	}
	keep := table.Without(t, label)
	if len(keep) == 0 {
		return table.Table{}, series.Series{}, errors.NewSchemaError(op, label, "table has no feature columns")
	}
	return table.Select(t, keep), t.Col(label).Copy(), nil
}

// ReplaceInvalidValues turns the quoted sentinel into a missing cell and
// converts string columns whose remaining values are all numbers into
// float columns. Applying it twice yields the same table.
func (p *Preprocessor) ReplaceInvalidValues(t table.Table) table.Table {
	names := t.Names()
	cols := make([]series.Series, len(names))
	converted := 0
	for i, name := range names {
		s := t.Col(name)
		if s.Type() != series.String {
			cols[i] = s.Copy()
			continue
		}
		records := s.Records()
		missing := table.IsMissing(s)
		for j, v := range records {
			if missing[j] || v == table.QuotedMissing {
				records[j] = "NaN"
			}
		}
		cleaned := series.New(records, series.String, name)
		if values, ok := table.ParseFloats(cleaned); ok {
			cols[i] = series.New(values, series.Float, name)
			converted++
			continue
		}
		cols[i] = cleaned
	}
	p.logger.Debug("replaced invalid values", "numeric_columns", converted)
	return dataframe.New(cols...)
}

// IsNullPresent counts missing cells per column. When any column has one,
// the missing-value report is uploaded to the input files bucket as CSV
// together with a bar chart next to it.
func (p *Preprocessor) IsNullPresent(ctx context.Context, t table.Table) (bool, error) {
	r := report.NewMissingValueReport(t)
	if !r.HasMissing() {
		p.logger.Info("no missing values found, skipped report")
		return false, nil
	}

	bucket, key := p.params.S3Bucket.InputFiles, p.params.NullValuesCSV
	data, err := r.CSV()
	if err != nil {
		return true, err
	}
	if err := p.store.WriteBytes(ctx, data, bucket, key, "text/csv"); err != nil {
		return true, err
	}
	chart, err := r.BarChartPNG()
	if err != nil {
		return true, err
	}
	chartKey := strings.TrimSuffix(key, path.Ext(key)) + ".png"
	if err := p.store.WriteBytes(ctx, chart, bucket, chartKey, "image/png"); err != nil {
		return true, err
	}

	p.logger.Info("uploaded missing value report",
		log.MissingKey, r.Total(),
		"affected_columns", len(r.Affected()),
		log.BucketKey, bucket, log.ObjectKeyKey, key)
	return true, nil
}

// EncodeTargetCols maps the label column from 'neg'/'pos' to 0/1. Any
// other token, or a missing label, is a SchemaError naming the row.
func (p *Preprocessor) EncodeTargetCols(t table.Table) (table.Table, error) {
	const op = "EncodeTargetCols"
	label := p.params.TargetCol
	if err := table.RequireColumns(op, t, label); err != nil {
		return table.Table{}, err
	}
	s := t.Col(label)
	missing := table.IsMissing(s)
	encoded := make([]int, s.Len())

	if table.IsNumeric(s) {
		for i, v := range s.Float() {
			if missing[i] || (v != 0 && v != 1) {
				return table.Table{}, errors.NewSchemaError(op, label,
					fmt.Sprintf("row %d: label %v is not 0 or 1", i, v))
			}
			encoded[i] = int(v)
		}
		return table.Replace(t, series.New(encoded, series.Int, label)), nil
	}

	for i, v := range s.Records() {
		switch {
		case missing[i]:
			return table.Table{}, errors.NewSchemaError(op, label, fmt.Sprintf("row %d: missing label", i))
		case v == NegativeLabel:
			encoded[i] = 0
		case v == PositiveLabel:
			encoded[i] = 1
		default:
			return table.Table{}, errors.NewSchemaError(op, label,
				fmt.Sprintf("row %d: unrecognised label %q", i, v))
		}
	}
	return table.Replace(t, series.New(encoded, series.Int, label)), nil
}

// ImputeMissingValues fills missing cells with the KNN imputer configured
// by knn_imputer. Column set and row count are preserved.
func (p *Preprocessor) ImputeMissingValues(t table.Table) (table.Table, error) {
	X, err := table.ToDense("ImputeMissingValues", t)
	if err != nil {
		return table.Table{}, err
	}
	cfg := p.params.KNNImputer
	imputer := preprocessing.NewKNNImputer(cfg.NNeighbors, cfg.Weights)
	filled, err := imputer.FitTransform(X)
	if err != nil {
		return table.Table{}, err
	}
	p.logger.Debug("imputed missing values",
		"n_neighbors", cfg.NNeighbors, "weights", cfg.Weights, log.RowsKey, t.Nrow())
	return table.FromDense(filled, t.Names()), nil
}

// GetColumnsWithZeroDeviation returns the numeric columns whose sample
// standard deviation over present values is exactly 0. Non-numeric
// columns are not considered.
func (p *Preprocessor) GetColumnsWithZeroDeviation(t table.Table) ([]string, error) {
	var numeric []string
	for _, name := range t.Names() {
		if table.IsNumeric(t.Col(name)) {
			numeric = append(numeric, name)
		}
	}
	if len(numeric) == 0 {
		return nil, nil
	}
	X, err := table.ToDense("GetColumnsWithZeroDeviation", table.Select(t, numeric))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, j := range preprocessing.ZeroDeviationColumns(X) {
		out = append(out, numeric[j])
	}
	p.logger.Debug("found zero deviation columns", log.DroppedColumnsKey, out)
	return out, nil
}

// ScaleNumericalColumns standardises every column to zero mean and unit
// population variance. Constant columns are centred only.
func (p *Preprocessor) ScaleNumericalColumns(t table.Table) (table.Table, error) {
	const op = "ScaleNumericalColumns"
	X, err := table.ToDense(op, t)
	if err != nil {
		return table.Table{}, err
	}
	r, c := X.Dims()
	if err := errors.CheckMatrix(op, X, r, c); err != nil {
		return table.Table{}, err
	}
	scaled, err := preprocessing.NewStandardScalerDefault().FitTransform(X)
	if err != nil {
		return table.Table{}, err
	}
	return table.FromDense(scaled, t.Names()), nil
}

// ApplyPCATransform projects t onto pca_model.n_components principal
// components. Output columns are named "0".."k-1".
func (p *Preprocessor) ApplyPCATransform(t table.Table) (table.Table, error) {
	X, err := table.ToDense("ApplyPCATransform", t)
	if err != nil {
		return table.Table{}, err
	}
	k := p.params.PCAModel.NComponents
	projected, err := preprocessing.NewPCA(k).FitTransform(X)
	if err != nil {
		return table.Table{}, err
	}
	p.logger.Debug("applied pca", "n_components", k, log.RowsKey, t.Nrow())
	return table.FromDense(projected, table.IndexNames(k)), nil
}

// HandleImbalance oversamples every minority class with SMOTE up to the
// majority count. Synthetic rows follow the original ones.
func (p *Preprocessor) HandleImbalance(features table.Table, label series.Series) (table.Table, series.Series, error) {
	const op = "HandleImbalance"
	X, err := table.ToDense(op, features)
	if err != nil {
		return table.Table{}, series.Series{}, err
	}
	if !table.IsNumeric(label) {
		return table.Table{}, series.Series{}, errors.NewNonNumericColumnError(op, label.Name, string(label.Type()))
	}
	y := label.Float()
	for _, v := range y {
		if math.IsNaN(v) {
			return table.Table{}, series.Series{}, errors.NewNumericError(op, "label column holds missing values")
		}
	}

	cfg := p.params.SMOTE
	Xres, yres, err := preprocessing.NewSMOTE(cfg.KNeighbors, cfg.RandomState).FitResample(X, y)
	if err != nil {
		return table.Table{}, series.Series{}, err
	}
	labels := make([]int, len(yres))
	for i, v := range yres {
		labels[i] = int(v)
	}
	p.logger.Info("balanced classes",
		"rows_before", len(y), "rows_after", len(yres), log.RandomSeedKey, cfg.RandomState)
	return table.FromDense(Xres, features.Names()), series.New(labels, series.Int, label.Name), nil
}
