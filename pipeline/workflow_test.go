package pipeline

import (
	"context"
	"testing"

	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRaw uploads raw sensor files split into two parts.
func seedRaw(t *testing.T, env *testEnv, mode Mode, records [][]string) {
	t.Helper()
	ds := datasetFor(env.params, mode)
	half := 1 + (len(records)-1)/2
	first := records[:half]
	second := append([][]string{records[0]}, records[half:]...)
	ctx := context.Background()
	require.NoError(t, env.store.WriteTable(ctx, mustTable(t, first), ds.bucket, ds.goodDir+"/ApsFailure_1.csv"))
	require.NoError(t, env.store.WriteTable(ctx, mustTable(t, second), ds.bucket, ds.goodDir+"/ApsFailure_2.csv"))
}

func TestLoadWorkflow_Run(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	docs := newFakeDocs()
	records := sensorRecords(8, 4, 3, true)
	seedRaw(t, env, ModeTrain, records)

	w := NewLoadWorkflow(env.params, env.store, docs, ModeTrain, NewInstrumenter(env.logger, "load"))
	require.NoError(t, w.Run(ctx))

	p := env.params
	keys := env.backend.Keys(p.S3Bucket.TrainData)
	assert.Contains(t, keys, p.Data.Train.GoodDataDir+"/")
	assert.Contains(t, keys, p.Data.Train.BadDataDir+"/")

	exported, err := env.store.ReadTable(ctx, p.S3Bucket.InputFiles, p.ExportCSVFile.Train)
	require.NoError(t, err)
	assert.Equal(t, len(records)-1, exported.Nrow())
	assert.Equal(t, records[0], exported.Names())
	for _, v := range exported.Col("class").Records() {
		assert.Contains(t, []string{NegativeLabel, PositiveLabel}, v)
	}
	assert.Contains(t, exported.Col("ad_000").Records(), "'na'")
}

func TestLoadWorkflow_DocumentStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	docs := newFakeDocs()
	docs.fail = errors.New("connection refused")
	seedRaw(t, env, ModePred, sensorRecords(4, 2, 3, false))

	err := NewLoadWorkflow(env.params, env.store, docs, ModePred, NewInstrumenter(env.logger, "load")).
		Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DBOperation.InsertGoodDataAsRecord")
	var gwErr *errors.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "mongodb", gwErr.Gateway)
	assert.True(t, env.logger.ContainsField(log.ErrorTypeKey, "GatewayError"))

	_, err = env.store.ReadTable(context.Background(), env.params.S3Bucket.InputFiles, env.params.ExportCSVFile.Pred)
	assert.True(t, errors.Is(err, gateway.ErrObjectNotFound))
}

func TestTrainingWorkflow_MissingExport(t *testing.T) {
	env := newTestEnv(t)
	w := NewTrainingWorkflow(env.params, env.store, newFakeTracker(env.params, env.store), NewInstrumenter(env.logger, "train"))

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DataGetter.GetData")
	assert.True(t, env.logger.ContainsField(log.ComponentKey, componentGetter))
}

func TestTrainingWorkflow_Prepare(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedRaw(t, env, ModeTrain, sensorRecords(30, 10, 5, true))
	require.NoError(t, NewLoadWorkflow(env.params, env.store, newFakeDocs(), ModeTrain, NewInstrumenter(env.logger, "load")).Run(ctx))

	w := NewTrainingWorkflow(env.params, env.store, newFakeTracker(env.params, env.store), NewInstrumenter(env.logger, "train"))
	X, label, err := w.Prepare(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "1", "2"}, X.Names())
	assert.Equal(t, 60, X.Nrow())
	assert.Equal(t, 60, label.Len())
	for _, name := range X.Names() {
		assert.NotContains(t, table.IsMissing(X.Col(name)), true, name)
	}

	// 欠損値レポートはad_000のみを含む
	csv, err := env.store.ReadBytes(ctx, env.params.S3Bucket.InputFiles, env.params.NullValuesCSV)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "ad_000,")
	assert.True(t, env.logger.ContainsField(log.OperationKey, "ImputeMissingValues"))
}

func TestWorkflows_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.params
	tracker := newFakeTracker(p, env.store)

	seedRaw(t, env, ModeTrain, sensorRecords(30, 10, 5, true))
	require.NoError(t, NewLoadWorkflow(p, env.store, newFakeDocs(), ModeTrain, NewInstrumenter(env.logger, "load")).Run(ctx))

	result, err := NewTrainingWorkflow(p, env.store, tracker, NewInstrumenter(env.logger, "train")).Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.Best.Name)

	seedRaw(t, env, ModePred, sensorRecords(6, 4, 9, false))
	require.NoError(t, NewLoadWorkflow(p, env.store, newFakeDocs(), ModePred, NewInstrumenter(env.logger, "load")).Run(ctx))

	out, err := NewPredictionWorkflow(p, env.store, NewInstrumenter(env.logger, "predict")).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{PredictionColumn, ClassColumn}, out.Names())
	assert.Equal(t, 10, out.Nrow())
	for _, v := range out.Col(ClassColumn).Records() {
		assert.Contains(t, []string{"neg", "pos"}, v)
	}

	written, err := env.store.ReadTable(ctx, p.S3Bucket.PredOutput, p.PredOutput)
	require.NoError(t, err)
	assert.Equal(t, out.Col(ClassColumn).Records(), written.Col(ClassColumn).Records())
}

func TestPredictionWorkflow_NoProductionModel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedRaw(t, env, ModePred, sensorRecords(6, 4, 9, false))
	require.NoError(t, NewLoadWorkflow(env.params, env.store, newFakeDocs(), ModePred, NewInstrumenter(env.logger, "load")).Run(ctx))

	_, err := NewPredictionWorkflow(env.params, env.store, NewInstrumenter(env.logger, "predict")).Run(ctx)
	require.Error(t, err)
	var modelErr *errors.ModelError
	assert.True(t, errors.As(err, &modelErr))
	assert.Contains(t, err.Error(), "Predictor.LoadProductionModel")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("pred")
	require.NoError(t, err)
	assert.Equal(t, ModePred, m)

	_, err = ParseMode("test")
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}
