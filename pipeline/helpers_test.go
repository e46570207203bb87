package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/gateway/memstore"
	"github.com/YuminosukeSato/airpressure/gateway/mlflow"
	"github.com/YuminosukeSato/airpressure/gateway/mongostore"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type testEnv struct {
	params  *config.Params
	backend *memstore.Store
	store   *gateway.ObjectStore
	logger  *log.TestLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	params := config.Default()
	params.PCAModel.NComponents = 3
	params.SMOTE.KNeighbors = 3
	params.TrainModel.C = []float64{0.1, 1}
	params.TrainModel.MaxIter = []int{50}
	require.NoError(t, params.Validate())

	logger, _ := log.NewTestLogger(log.LevelDebug)
	backend := memstore.New()
	return &testEnv{
		params:  params,
		backend: backend,
		store:   gateway.NewObjectStore(backend, logger),
		logger:  logger,
	}
}

func mustTable(t *testing.T, records [][]string) table.Table {
	t.Helper()
	tbl, err := table.FromRecords(records)
	require.NoError(t, err)
	return tbl
}

// sensorRecords builds a raw sensor file: neg rows centred on 0, pos rows
// on 4, a constant column and a column with raw "na" cells. label=false
// omits the class column.
func sensorRecords(nNeg, nPos int, seed int64, label bool) [][]string {
	rng := rand.New(rand.NewSource(seed))
	header := []string{"aa_000", "ab_000", "ac_000", "ad_000", "ae_000"}
	if label {
		header = append([]string{"class"}, header...)
	}
	records := [][]string{header}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for i := 0; i < nNeg+nPos; i++ {
		centre, cls := 0.0, "neg"
		if i >= nNeg {
			centre, cls = 4.0, "pos"
		}
		ad := f(rng.NormFloat64())
		if i%7 == 3 {
			ad = table.RawMissing
		}
		row := []string{
			f(centre + rng.NormFloat64()),
			f(centre + rng.NormFloat64()),
			"7",
			ad,
			f(rng.NormFloat64()),
		}
		if label {
			row = append([]string{cls}, row...)
		}
		records = append(records, row)
	}
	return records
}

// fakeDocs is an in-memory DocumentStore that round trips through the
// same document conversion as the MongoDB gateway.
type fakeDocs struct {
	mu   sync.Mutex
	docs map[string][]bson.D
	fail error
}

func newFakeDocs() *fakeDocs { return &fakeDocs{docs: make(map[string][]bson.D)} }

func (f *fakeDocs) InsertRecords(ctx context.Context, t table.Table, db, collection string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, errors.NewGatewayError("mongodb", "InsertRecords", db+"."+collection, f.fail)
	}
	docs := mongostore.Documents(t)
	for _, d := range docs {
		f.docs[db+"."+collection] = append(f.docs[db+"."+collection], d.(bson.D))
	}
	return len(docs), nil
}

func (f *fakeDocs) ExportAsTable(ctx context.Context, db, collection string) (table.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.docs[db+"."+collection]
	if len(docs) == 0 {
		return table.Table{}, errors.NewGatewayError("mongodb", "ExportAsTable", db+"."+collection, errors.ErrEmptyData)
	}
	return table.FromRecords(mongostore.Records(docs))
}

// fakeTracker stores model bundles in the object store like the MLflow
// gateway and records every call.
type fakeTracker struct {
	mu       sync.Mutex
	params   *config.Params
	store    ObjectStore
	runs     int
	ended    map[string]string
	logged   map[string]map[string]string
	metrics  map[string]map[string]float64
	versions int
	stages   map[string]string
}

func newFakeTracker(params *config.Params, store ObjectStore) *fakeTracker {
	return &fakeTracker{
		params:  params,
		store:   store,
		ended:   make(map[string]string),
		logged:  make(map[string]map[string]string),
		metrics: make(map[string]map[string]float64),
		stages:  make(map[string]string),
	}
}

func (f *fakeTracker) SelectExperiment(ctx context.Context, name string) (string, error) {
	return "exp-1", nil
}

func (f *fakeTracker) StartRun(ctx context.Context, experimentID, name string) (mlflow.RunInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	id := fmt.Sprintf("run-%d", f.runs)
	f.logged[id] = make(map[string]string)
	f.metrics[id] = make(map[string]float64)
	return mlflow.RunInfo{RunID: id, RunName: name, ExperimentID: experimentID}, nil
}

func (f *fakeTracker) EndRun(ctx context.Context, runID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended[runID] = status
	return nil
}

func (f *fakeTracker) LogParam(ctx context.Context, runID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged[runID][key] = value
	return nil
}

func (f *fakeTracker) LogMetric(ctx context.Context, runID, key string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[runID][key] = value
	return nil
}

func (f *fakeTracker) ArtifactKey(name string) string {
	return f.params.ModelDir.Trained + "/" + name + f.params.SaveFormat
}

func (f *fakeTracker) LogModel(ctx context.Context, runID string, bundle *model.Bundle, registeredName string) (string, error) {
	data, err := bundle.Encode()
	if err != nil {
		return "", err
	}
	if err := f.store.WriteBytes(ctx, data, f.params.S3Bucket.Model, f.ArtifactKey(bundle.Name), "application/octet-stream"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions++
	return strconv.Itoa(f.versions), nil
}

func (f *fakeTracker) Promote(ctx context.Context, name, version, stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[version] = stage
	return nil
}

var _ Tracker = (*fakeTracker)(nil)
var _ DocumentStore = (*fakeDocs)(nil)
