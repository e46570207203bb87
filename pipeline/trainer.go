package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/gateway/mlflow"
	"github.com/YuminosukeSato/airpressure/metrics"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/sklearn/linear_model"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
)

// Metric names logged for every candidate.
const (
	MetricAccuracy = "accuracy"
	MetricF1       = "f1_score"
	MetricROCAUC   = "roc_auc"
)

// Candidate is one fitted point of the hyperparameter grid.
type Candidate struct {
	Name    string
	RunID   string
	Version string
	Stage   string
	Params  map[string]interface{}
	Metrics map[string]float64
}

// TrainResult summarises a training run.
type TrainResult struct {
	ExperimentID string
	Candidates   []Candidate
	// Best is the candidate promoted to Production.
	Best Candidate
}

// ModelTrainer fits the logistic regression grid, tracks every candidate
// and promotes the best one by ROC-AUC.
type ModelTrainer struct {
	params  *config.Params
	store   ObjectStore
	tracker Tracker
	logger  log.Logger
}

// NewModelTrainer returns a ModelTrainer.
func NewModelTrainer(params *config.Params, store ObjectStore, tracker Tracker, logger log.Logger) *ModelTrainer {
	if logger == nil {
		logger = log.Default()
	}
	return &ModelTrainer{
		params:  params,
		store:   store,
		tracker: tracker,
		logger:  logger.With(log.ComponentKey, "ModelTrainer"),
	}
}

// TrainTestSplit splits row indices 0..n-1 per class so both sides keep
// the class proportions. Each class contributes ceil(testSize*count) rows
// to the test side. Index order within each side is ascending.
func TrainTestSplit(y []float64, testSize float64, seed int64) (train, test []int, err error) {
	const op = "TrainTestSplit"
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	members := make(map[float64][]int)
	for i, v := range y {
		members[v] = append(members[v], i)
	}
	classes := make([]float64, 0, len(members))
	for c := range members {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		idx := members[c]
		nTest := int(math.Ceil(testSize * float64(len(idx))))
		if nTest >= len(idx) {
			return nil, nil, errors.NewNumericError(op,
				fmt.Sprintf("class %g has %d rows, too few to split with test_size %g", c, len(idx), testSize))
		}
		perm := rng.Perm(len(idx))
		for k, pi := range perm {
			if k < nTest {
				test = append(test, idx[pi])
			} else {
				train = append(train, idx[pi])
			}
		}
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

func subset(X mat.Matrix, y []float64, rows []int) (*mat.Dense, *mat.Dense) {
	_, c := X.Dims()
	xs := mat.NewDense(len(rows), c, nil)
	ys := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		xs.SetRow(i, mat.Row(nil, r, X))
		ys.Set(i, 0, y[r])
	}
	return xs, ys
}

// CandidateName is the artifact name of one grid point.
func CandidateName(c float64, maxIter int) string {
	return fmt.Sprintf("LogisticRegression_C%s_iter%d", strconv.FormatFloat(c, 'g', -1, 64), maxIter)
}

// Train fits every grid point on the training split, evaluates on the
// test split and records the candidate in its own tracker run. The best
// candidate by ROC-AUC (first one on ties) is promoted to Production and
// copied into model_dir.prod; the others go to Staging and model_dir.stag.
func (m *ModelTrainer) Train(ctx context.Context, features table.Table, label series.Series) (*TrainResult, error) {
	const op = "Train"
	X, err := table.ToDense(op, features)
	if err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := errors.CheckMatrix(op, X, r, c); err != nil {
		return nil, err
	}
	if !table.IsNumeric(label) {
		return nil, errors.NewNonNumericColumnError(op, label.Name, string(label.Type()))
	}
	y := label.Float()

	cfg := m.params.TrainModel
	trainIdx, testIdx, err := TrainTestSplit(y, cfg.TestSize, cfg.RandomState)
	if err != nil {
		return nil, err
	}
	Xtrain, ytrain := subset(X, y, trainIdx)
	Xtest, ytest := subset(X, y, testIdx)
	m.logger.Info("split data", "train_rows", len(trainIdx), "test_rows", len(testIdx), log.RandomSeedKey, cfg.RandomState)

	expID, err := m.tracker.SelectExperiment(ctx, m.params.MLflow.ExperimentName)
	if err != nil {
		return nil, err
	}

	result := &TrainResult{ExperimentID: expID}
	names := features.Names()
	for _, c := range cfg.C {
		for _, maxIter := range cfg.MaxIter {
			cand, err := m.fitCandidate(ctx, expID, c, maxIter, names, Xtrain, ytrain, Xtest, ytest)
			if err != nil {
				return nil, err
			}
			result.Candidates = append(result.Candidates, cand)
		}
	}

	if err := m.promote(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *ModelTrainer) fitCandidate(ctx context.Context, expID string, c float64, maxIter int,
	features []string, Xtrain, ytrain, Xtest, ytest *mat.Dense) (cand Candidate, err error) {
	cand.Name = CandidateName(c, maxIter)
	run, err := m.tracker.StartRun(ctx, expID, m.params.MLflow.RunName)
	if err != nil {
		return cand, err
	}
	cand.RunID = run.RunID
	defer func() {
		status := mlflow.RunFinished
		if err != nil {
			status = mlflow.RunFailed
		}
		if endErr := m.tracker.EndRun(ctx, run.RunID, status); endErr != nil && err == nil {
			err = endErr
		}
	}()

	clf := linear_model.NewLogisticRegression(
		linear_model.WithLRC(c),
		linear_model.WithLRMaxIter(maxIter),
		linear_model.WithLRRandomState(m.params.TrainModel.RandomState),
	)
	if err := clf.Fit(Xtrain, ytrain); err != nil {
		return cand, err
	}
	cand.Params = clf.GetParams()

	cand.Metrics, err = evaluate(clf, Xtest, ytest)
	if err != nil {
		return cand, err
	}

	keys := make([]string, 0, len(cand.Params))
	for k := range cand.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.tracker.LogParam(ctx, run.RunID, k, fmt.Sprint(cand.Params[k])); err != nil {
			return cand, err
		}
	}
	for _, k := range []string{MetricAccuracy, MetricF1, MetricROCAUC} {
		if err := m.tracker.LogMetric(ctx, run.RunID, k, cand.Metrics[k]); err != nil {
			return cand, err
		}
	}

	bundle := model.NewBundle(cand.Name, clf, features, cand.Metrics)
	cand.Version, err = m.tracker.LogModel(ctx, run.RunID, bundle, m.params.MLflow.RegisteredModelName)
	if err != nil {
		return cand, err
	}
	m.logger.Info("fitted candidate",
		log.ModelNameKey, cand.Name,
		log.TrackerRunKey, run.RunID,
		log.AccuracyKey, cand.Metrics[MetricAccuracy],
		log.F1Key, cand.Metrics[MetricF1],
		log.ROCAUCKey, cand.Metrics[MetricROCAUC])
	return cand, nil
}

func evaluate(clf model.Classifier, X, y *mat.Dense) (map[string]float64, error) {
	pred, err := clf.Predict(X)
	if err != nil {
		return nil, err
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := y.Dims()
	yTrue := mat.NewVecDense(n, mat.Col(nil, 0, y))
	yPred := mat.NewVecDense(n, mat.Col(nil, 0, pred))
	yScore := mat.NewVecDense(n, mat.Col(nil, 1, proba))

	acc, err := metrics.Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	f1, err := metrics.F1Score(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	auc, err := metrics.AUC(yTrue, yScore)
	if err != nil {
		return nil, err
	}
	return map[string]float64{MetricAccuracy: acc, MetricF1: f1, MetricROCAUC: auc}, nil
}

// promote moves the previous production artifacts to the staging folder,
// then transitions and copies every candidate.
func (m *ModelTrainer) promote(ctx context.Context, result *TrainResult) error {
	if len(result.Candidates) == 0 {
		return errors.NewValueError("ModelTrainer.promote", "no candidates were trained")
	}
	best := 0
	for i, cand := range result.Candidates {
		if cand.Metrics[MetricROCAUC] > result.Candidates[best].Metrics[MetricROCAUC] {
			best = i
		}
	}

	bucket := m.params.S3Bucket.Model
	dirs := m.params.ModelDir
	old, err := m.store.ListKeys(ctx, bucket, dirs.Prod)
	if err != nil {
		return err
	}
	for _, key := range old {
		if path.Ext(key) != m.params.SaveFormat {
			continue
		}
		if err := m.store.Move(ctx, bucket, key, bucket, dirs.Stag+"/"+path.Base(key)); err != nil {
			return err
		}
	}

	name := m.params.MLflow.RegisteredModelName
	for i := range result.Candidates {
		cand := &result.Candidates[i]
		stage, dir := mlflow.StageStaging, dirs.Stag
		if i == best {
			stage, dir = mlflow.StageProduction, dirs.Prod
		}
		cand.Stage = stage
		if err := m.tracker.Promote(ctx, name, cand.Version, cand.Stage); err != nil {
			return err
		}
		src := m.tracker.ArtifactKey(cand.Name)
		dst := dir + "/" + cand.Name + m.params.SaveFormat
		if err := m.store.Copy(ctx, bucket, src, bucket, dst); err != nil {
			return err
		}
		m.logger.Debug("copied artifact", log.ModelNameKey, cand.Name, log.ModelStageKey, cand.Stage, log.ObjectKeyKey, dst)
	}
	result.Best = result.Candidates[best]
	m.logger.Info("promoted best model",
		log.ModelNameKey, result.Best.Name,
		log.ModelVersionKey, result.Best.Version,
		log.ROCAUCKey, result.Best.Metrics[MetricROCAUC])
	return nil
}
