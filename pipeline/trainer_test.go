package pipeline

import (
	"context"
	"math/rand"
	"testing"

	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/gateway/mlflow"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainTestSplit(t *testing.T) {
	y := make([]float64, 0, 30)
	for i := 0; i < 20; i++ {
		y = append(y, 0)
	}
	for i := 0; i < 10; i++ {
		y = append(y, 1)
	}

	train, test, err := TrainTestSplit(y, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 6)
	assert.Len(t, train, 24)
	assert.IsIncreasing(t, train)
	assert.IsIncreasing(t, test)

	seen := make(map[int]bool)
	pos := 0
	for _, i := range append(append([]int(nil), train...), test...) {
		assert.False(t, seen[i], "row %d appears twice", i)
		seen[i] = true
	}
	for _, i := range test {
		if y[i] == 1 {
			pos++
		}
	}
	assert.Equal(t, 2, pos)
	assert.Len(t, seen, len(y))

	again, _, err := TrainTestSplit(y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, again)

	t.Run("invalid test size", func(t *testing.T) {
		_, _, err := TrainTestSplit(y, 1, 42)
		var vErr *errors.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("class too small", func(t *testing.T) {
		_, _, err := TrainTestSplit([]float64{0, 0, 0, 1}, 0.2, 42)
		var numErr *errors.NumericError
		assert.True(t, errors.As(err, &numErr))
	})
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "LogisticRegression_C0.1_iter100", CandidateName(0.1, 100))
	assert.Equal(t, "LogisticRegression_C10_iter300", CandidateName(10, 300))
}

// separable returns two well separated gaussian blobs centred on -2 and 2.
func separable(n int, seed int64) (map[string][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	cols := map[string][]float64{"0": nil, "1": nil}
	var y []int
	for i := 0; i < n; i++ {
		cls := i % 2
		centre := float64(cls)*4 - 2
		cols["0"] = append(cols["0"], centre+rng.NormFloat64())
		cols["1"] = append(cols["1"], centre+rng.NormFloat64())
		y = append(y, cls)
	}
	return cols, y
}

func TestModelTrainer_Train(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.params
	tracker := newFakeTracker(p, env.store)

	// 前回のProduction成果物はStagingへ移される
	bucket := p.S3Bucket.Model
	require.NoError(t, env.store.WriteBytes(ctx, []byte("old"), bucket, p.ModelDir.Prod+"/old"+p.SaveFormat, "application/octet-stream"))

	cols, y := separable(60, 1)
	features := floatTable(cols, "0", "1")
	label := series.New(y, series.Int, p.TargetCol)

	result, err := NewModelTrainer(p, env.store, tracker, env.logger).Train(ctx, features, label)
	require.NoError(t, err)

	require.Len(t, result.Candidates, len(p.TrainModel.C)*len(p.TrainModel.MaxIter))
	assert.Equal(t, "exp-1", result.ExperimentID)

	production := 0
	for _, cand := range result.Candidates {
		assert.Equal(t, mlflow.RunFinished, tracker.ended[cand.RunID])
		assert.Contains(t, tracker.metrics[cand.RunID], MetricROCAUC)
		assert.NotEmpty(t, tracker.logged[cand.RunID])
		assert.GreaterOrEqual(t, result.Best.Metrics[MetricROCAUC], cand.Metrics[MetricROCAUC])
		assert.Equal(t, cand.Stage, tracker.stages[cand.Version])
		if cand.Stage == mlflow.StageProduction {
			production++
			assert.Equal(t, result.Best.Name, cand.Name)
		}
	}
	assert.Equal(t, 1, production)
	assert.Greater(t, result.Best.Metrics[MetricAccuracy], 0.8)

	prod, err := env.store.ListKeys(ctx, bucket, p.ModelDir.Prod)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ModelDir.Prod + "/" + result.Best.Name + p.SaveFormat}, prod)

	stag, err := env.store.ListKeys(ctx, bucket, p.ModelDir.Stag)
	require.NoError(t, err)
	assert.Len(t, stag, len(result.Candidates))
	assert.Contains(t, stag, p.ModelDir.Stag+"/old"+p.SaveFormat)

	data, err := env.store.ReadBytes(ctx, bucket, prod[0])
	require.NoError(t, err)
	bundle, err := model.DecodeBundle(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, bundle.Features)
}

func TestModelTrainer_Train_NonNumericLabel(t *testing.T) {
	env := newTestEnv(t)
	cols, _ := separable(10, 1)
	label := series.New([]string{"'neg'", "'pos'", "'neg'", "'pos'", "'neg'", "'pos'", "'neg'", "'pos'", "'neg'", "'pos'"}, series.String, "class")

	_, err := NewModelTrainer(env.params, env.store, newFakeTracker(env.params, env.store), env.logger).
		Train(context.Background(), floatTable(cols, "0", "1"), label)
	var numErr *errors.NumericError
	assert.True(t, errors.As(err, &numErr))
}
