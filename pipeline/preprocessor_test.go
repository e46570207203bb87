package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func newTestPreprocessor(t *testing.T) (*Preprocessor, *testEnv) {
	env := newTestEnv(t)
	return NewPreprocessor(env.params, env.store, env.logger), env
}

func floatTable(cols map[string][]float64, order ...string) table.Table {
	ss := make([]series.Series, len(order))
	for i, name := range order {
		ss[i] = series.New(cols[name], series.Float, name)
	}
	return dataframe.New(ss...)
}

func TestPreprocessor_ReplaceAndEncode(t *testing.T) {
	pre, _ := newTestPreprocessor(t)
	in := mustTable(t, [][]string{
		{"a", "b", "class"},
		{"1", "'na'", "'pos'"},
		{"2", "5", "'neg'"},
	})

	replaced := pre.ReplaceInvalidValues(in)
	encoded, err := pre.EncodeTargetCols(replaced)
	require.NoError(t, err)

	assert.Equal(t, series.Float, encoded.Col("b").Type())
	b := encoded.Col("b").Float()
	assert.True(t, math.IsNaN(b[0]))
	assert.Equal(t, 5.0, b[1])
	assert.Equal(t, series.Int, encoded.Col("class").Type())
	assert.Equal(t, []float64{1, 0}, encoded.Col("class").Float())

	// 入力は変更されない
	assert.Equal(t, "'na'", in.Col("b").Records()[0])

	t.Run("replace is idempotent", func(t *testing.T) {
		again := pre.ReplaceInvalidValues(replaced)
		assert.Equal(t, replaced.Names(), again.Names())
		for _, name := range replaced.Names() {
			assert.Equal(t, replaced.Col(name).Type(), again.Col(name).Type(), name)
			assert.Equal(t, replaced.Col(name).Records(), again.Col(name).Records(), name)
		}
	})

	t.Run("numeric labels pass through", func(t *testing.T) {
		again, err := pre.EncodeTargetCols(encoded)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 0}, again.Col("class").Float())
	})
}

func TestPreprocessor_EncodeTargetCols_Errors(t *testing.T) {
	pre, _ := newTestPreprocessor(t)

	tests := []struct {
		name    string
		records [][]string
		want    string
	}{
		{"unknown token", [][]string{{"class"}, {"'neg'"}, {"'maybe'"}}, "row 1"},
		{"missing label", [][]string{{"class"}, {""}, {"'pos'"}}, "missing label"},
		{"no label column", [][]string{{"a"}, {"1"}}, "class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pre.EncodeTargetCols(mustTable(t, tt.records))
			require.Error(t, err)
			var schemaErr *errors.SchemaError
			assert.True(t, errors.As(err, &schemaErr))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPreprocessor_RemoveColumns(t *testing.T) {
	pre, _ := newTestPreprocessor(t)
	in := mustTable(t, [][]string{
		{"a", "b", "c"},
		{"1", "2", "3"},
	})

	out, err := pre.RemoveColumns(in, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, out.Names())
	assert.Equal(t, []string{"a", "b", "c"}, in.Names())

	_, err = pre.RemoveColumns(in, []string{"b", "zz"})
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "zz", schemaErr.Column)

	_, err = pre.RemoveColumns(in, []string{"a", "b", "c"})
	assert.Error(t, err)
}

func TestPreprocessor_SeparateLabelFeature(t *testing.T) {
	pre, _ := newTestPreprocessor(t)
	in := mustTable(t, [][]string{
		{"a", "class", "b"},
		{"1", "'pos'", "2"},
		{"3", "'neg'", "4"},
	})

	features, label, err := pre.SeparateLabelFeature(in, "class")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, features.Names())
	assert.Equal(t, in.Nrow(), label.Len())
	assert.Equal(t, []string{"'pos'", "'neg'"}, label.Records())

	_, _, err = pre.SeparateLabelFeature(in, "absent")
	var schemaErr *errors.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestPreprocessor_IsNullPresent(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads report when a column has missing values", func(t *testing.T) {
		pre, env := newTestPreprocessor(t)
		in := floatTable(map[string][]float64{
			"aa_000": {1, 2, 3},
			"ab_000": {math.NaN(), 2, math.NaN()},
		}, "aa_000", "ab_000")

		found, err := pre.IsNullPresent(ctx, in)
		require.NoError(t, err)
		assert.True(t, found)

		bucket := env.params.S3Bucket.InputFiles
		csv, err := env.store.ReadBytes(ctx, bucket, env.params.NullValuesCSV)
		require.NoError(t, err)
		assert.Equal(t, "columns,missing values count\naa_000,0\nab_000,2\n", string(csv))
		assert.Len(t, env.backend.Keys(bucket), 2)
	})

	t.Run("uploads nothing without missing values", func(t *testing.T) {
		pre, env := newTestPreprocessor(t)
		in := floatTable(map[string][]float64{"aa_000": {1, 2}}, "aa_000")

		found, err := pre.IsNullPresent(ctx, in)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, env.backend.Keys(env.params.S3Bucket.InputFiles))
	})
}

func TestPreprocessor_ImputeMissingValues(t *testing.T) {
	pre, _ := newTestPreprocessor(t)
	in := floatTable(map[string][]float64{
		"a": {1, 2, 3, 4},
		"b": {10, math.NaN(), 30, 40},
	}, "a", "b")

	out, err := pre.ImputeMissingValues(in)
	require.NoError(t, err)
	assert.Equal(t, in.Names(), out.Names())
	assert.Equal(t, in.Nrow(), out.Nrow())
	for _, v := range out.Col("b").Float() {
		assert.False(t, math.IsNaN(v))
	}
	assert.True(t, math.IsNaN(in.Col("b").Float()[1]))

	_, err = pre.ImputeMissingValues(mustTable(t, [][]string{{"s"}, {"x"}}))
	var numErr *errors.NumericError
	assert.True(t, errors.As(err, &numErr))
}

func TestPreprocessor_GetColumnsWithZeroDeviation(t *testing.T) {
	pre, _ := newTestPreprocessor(t)
	in := floatTable(map[string][]float64{
		"flat":   {3, 3, 3},
		"varied": {1, 2, 3},
		"flatna": {5, math.NaN(), 5},
	}, "flat", "varied", "flatna")

	cols, err := pre.GetColumnsWithZeroDeviation(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"flat", "flatna"}, cols)
}

func TestPreprocessor_ScaleNumericalColumns(t *testing.T) {
	pre, _ := newTestPreprocessor(t)
	in := floatTable(map[string][]float64{
		"a": {1, 2, 3, 4, 5},
		"b": {10, 10, 10, 10, 10},
	}, "a", "b")

	out, err := pre.ScaleNumericalColumns(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Names())

	a := out.Col("a").Float()
	mean, std := stat.PopMeanStdDev(a, nil)
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, std, 1e-9)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, out.Col("b").Float())
	// 行順は保たれる
	assert.Less(t, a[0], a[4])
}

func TestPreprocessor_ApplyPCATransform(t *testing.T) {
	pre, env := newTestPreprocessor(t)
	env.params.PCAModel.NComponents = 2
	in := floatTable(map[string][]float64{
		"a": {1, 2, 3, 4, 5},
		"b": {2, 4, 6, 8, 11},
		"c": {5, 3, 4, 1, 2},
	}, "a", "b", "c")

	out, err := pre.ApplyPCATransform(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, out.Names())
	assert.Equal(t, 5, out.Nrow())

	env.params.PCAModel.NComponents = 4
	_, err = pre.ApplyPCATransform(in)
	var numErr *errors.NumericError
	assert.True(t, errors.As(err, &numErr))
}

func TestPreprocessor_HandleImbalance(t *testing.T) {
	pre, env := newTestPreprocessor(t)
	env.params.SMOTE.KNeighbors = 2
	features := floatTable(map[string][]float64{
		"a": {0, 0.1, 0.2, 0.3, 0.4, 0.5, 5, 5.1, 5.2},
		"b": {1, 1.1, 0.9, 1.2, 0.8, 1.0, 7, 7.2, 6.9},
	}, "a", "b")
	label := series.New([]int{0, 0, 0, 0, 0, 0, 1, 1, 1}, series.Int, "class")

	X, y, err := pre.HandleImbalance(features, label)
	require.NoError(t, err)
	assert.Equal(t, 12, X.Nrow())
	assert.Equal(t, 12, y.Len())
	assert.Equal(t, "class", y.Name)

	counts := map[int]int{}
	ys, err := y.Int()
	require.NoError(t, err)
	for _, v := range ys {
		counts[v]++
	}
	assert.Equal(t, map[int]int{0: 6, 1: 6}, counts)
	// 元の行が先頭に残る
	assert.Equal(t, features.Col("a").Float(), X.Col("a").Float()[:9])

	t.Run("minority too small", func(t *testing.T) {
		env.params.SMOTE.KNeighbors = 3
		_, _, err := pre.HandleImbalance(features, label)
		var imbErr *errors.ImbalanceError
		assert.True(t, errors.As(err, &imbErr))
	})

	t.Run("single class", func(t *testing.T) {
		one := series.New([]int{0, 0, 0, 0, 0, 0, 0, 0, 0}, series.Int, "class")
		_, _, err := pre.HandleImbalance(features, one)
		var imbErr *errors.ImbalanceError
		assert.True(t, errors.As(err, &imbErr))
	})
}
