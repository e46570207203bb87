package errors

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewSchemaError(t *testing.T) {
	err := NewMissingColumnError("RemoveColumns", "ab_000")

	want := "aps: RemoveColumns: schema error on column 'ab_000': column not present"
	assert.Equal(t, want, err.Error())

	var schemaErr *SchemaError
	require.True(t, As(err, &schemaErr), "Error should be castable to *SchemaError")
	assert.Equal(t, "ab_000", schemaErr.Column)

	// スタックトレースの存在確認
	formatted := fmt.Sprintf("%+v", err)
	assert.Contains(t, formatted, "errors_test.go")
}

func TestNewNumericError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "with column",
			err:     NewNonNumericColumnError("ImputeMissingValues", "class", "string"),
			wantMsg: "aps: ImputeMissingValues: numeric error on column 'class': expected a numeric column, got string",
		},
		{
			name:    "without column",
			err:     NewNumericError("ApplyPCATransform", "n_components 5 exceeds 3 columns"),
			wantMsg: "aps: ApplyPCATransform: numeric error: n_components 5 exceeds 3 columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			var numErr *NumericError
			assert.True(t, As(tt.err, &numErr))
		})
	}
}

func TestNewImbalanceError(t *testing.T) {
	err := NewImbalanceError("HandleImbalance", "1", 3, 6)
	assert.Equal(t, "aps: HandleImbalance: imbalance error: class '1' has 3 samples, at least 6 required", err.Error())

	err = NewImbalanceReasonError("HandleImbalance", "only one class present")
	assert.Equal(t, "aps: HandleImbalance: imbalance error: only one class present", err.Error())

	var imbErr *ImbalanceError
	assert.True(t, As(err, &imbErr))
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := New("connection refused")
	err := NewGatewayError("s3", "GetObject", "bucket/key.csv", cause)

	assert.True(t, Is(err, cause), "cause should be reachable through the chain")
	assert.Equal(t, "aps: s3 gateway: GetObject bucket/key.csv: connection refused", err.Error())

	var gwErr *GatewayError
	require.True(t, As(err, &gwErr))
	assert.Equal(t, "s3", gwErr.Gateway)

	noTarget := NewGatewayError("mlflow", "SearchRuns", "", cause)
	assert.Equal(t, "aps: mlflow gateway: SearchRuns: connection refused", noTarget.Error())
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger.Error().Object("err", &SchemaError{Op: "EncodeTargetCols", Column: "class", Reason: "unknown label"}).Msg("failed")
	logger.Warn().Object("warning", NewStageWarning("ModelTracker", "Promote", "unknown stage")).Msg("skipped")

	out := buf.String()
	assert.Contains(t, out, `"type":"SchemaError"`)
	assert.Contains(t, out, `"column":"class"`)
	assert.Contains(t, out, `"type":"StageWarning"`)
	assert.Contains(t, out, `"operation":"Promote"`)
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("StandardScaler", "Transform")

	want := "aps: StandardScaler: this model is not fitted yet. Call Fit() before using Transform()"
	assert.Equal(t, want, err.Error())

	var notFittedErr *NotFittedError
	assert.True(t, As(err, &notFittedErr))
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 8, 1)
	assert.Equal(t, "aps: Predict: dimension mismatch on axis 1 (features). Expected 10, got 8", err.Error())
}

func TestNewModelError(t *testing.T) {
	err := NewModelError("Fit", "invalid input", fmt.Errorf("test error"))
	assert.Equal(t, "aps: Fit: invalid input: test error", err.Error())

	err = NewModelError("Fit", "empty data", nil)
	assert.Equal(t, "aps: Fit: empty data", err.Error())
}

func TestWarn_Handlers(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewConvergenceWarning("LogisticRegression", 100, ""))
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0].Error(), "LogisticRegression failed to converge after 100 iterations"))

	var routed []error
	SetZerologWarnFunc(func(w error) { routed = append(routed, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
	assert.Len(t, got, 1, "zerolog sink takes precedence over the plain handler")
	require.Len(t, routed, 1)
	assert.Contains(t, routed[0].Error(), "'roc_auc' is ill-defined")
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "in Predict: expected 10, got 5")
}

func TestCheckMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	assert.NoError(t, CheckMatrix("PCA", m, 2, 2))

	m.Set(1, 0, math.NaN())
	err := CheckMatrix("PCA", m, 2, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1, column 0")

	assert.Error(t, CheckScalar("loss", math.NaN()))
	assert.NoError(t, CheckScalar("loss", 0.3))
}

func TestStabilizers(t *testing.T) {
	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 2.0, SafeDivide(4, 2))
	assert.False(t, math.IsInf(StabilizeExp(1000), 0))
	assert.False(t, math.IsInf(StabilizeLog(0), 0))
}

