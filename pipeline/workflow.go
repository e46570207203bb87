package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
)

const (
	componentPreprocessor = "Preprocessor"
	componentTransformer  = "DataTransformer"
	componentDB           = "DBOperation"
	componentGetter       = "DataGetter"
	componentTrainer      = "ModelTrainer"
	componentPredictor    = "Predictor"
)

// presentColumns keeps the names that exist in t.
func presentColumns(t table.Table, names []string) []string {
	var out []string
	for _, n := range names {
		if table.HasColumn(t, n) {
			out = append(out, n)
		}
	}
	return out
}

// LoadWorkflow prepares the raw files of one mode and loads them through
// the document store into the export table.
type LoadWorkflow struct {
	mode        Mode
	transformer *DataTransformer
	db          *DBOperation
	inst        *Instrumenter
}

// NewLoadWorkflow wires the load stages for mode.
func NewLoadWorkflow(params *config.Params, store ObjectStore, docs DocumentStore, mode Mode, inst *Instrumenter) *LoadWorkflow {
	logger := inst.Logger()
	return &LoadWorkflow{
		mode:        mode,
		transformer: newDataTransformer(params, store, logger, mode),
		db:          NewDBOperation(params, store, docs, mode, logger),
		inst:        inst,
	}
}

// Run creates the folders, quotes the good files, inserts them into the
// document store and exports the collection.
func (w *LoadWorkflow) Run(ctx context.Context) error {
	if err := w.inst.Do(ctx, componentDB, "CreateDirsForGoodBadData", w.db.CreateDirsForGoodBadData); err != nil {
		return err
	}
	if _, err := Call(ctx, w.inst, componentTransformer, "AddQuotesToString", w.transformer.AddQuotesToString); err != nil {
		return err
	}
	db, coll := w.db.Database(), w.db.Collection()
	if _, err := Call(ctx, w.inst, componentDB, "InsertGoodDataAsRecord", func(ctx context.Context) (int, error) {
		return w.db.InsertGoodDataAsRecord(ctx, db, coll)
	}); err != nil {
		return err
	}
	return w.inst.Do(ctx, componentDB, "ExportCollectionToCSV", func(ctx context.Context) error {
		return w.db.ExportCollectionToCSV(ctx, db, coll)
	})
}

// TrainingWorkflow runs ingestion, preprocessing and the trainer.
type TrainingWorkflow struct {
	params  *config.Params
	getter  *DataGetter
	pre     *Preprocessor
	trainer *ModelTrainer
	inst    *Instrumenter
}

// NewTrainingWorkflow wires the training stages.
func NewTrainingWorkflow(params *config.Params, store ObjectStore, tracker Tracker, inst *Instrumenter) *TrainingWorkflow {
	logger := inst.Logger()
	return &TrainingWorkflow{
		params:  params,
		getter:  NewDataGetter(params, store, ModeTrain, logger),
		pre:     NewPreprocessor(params, store, logger),
		trainer: NewModelTrainer(params, store, tracker, logger),
		inst:    inst,
	}
}

// Prepare runs ingestion and every preprocessing stage and returns the
// balanced feature table and label.
func (w *TrainingWorkflow) Prepare(ctx context.Context) (table.Table, series.Series, error) {
	in, pre := w.inst, w.pre
	fail := func(err error) (table.Table, series.Series, error) { return table.Table{}, series.Series{}, err }

	t, err := Call(ctx, in, componentGetter, "GetData", w.getter.GetData)
	if err != nil {
		return fail(err)
	}
	if drop := w.params.DropColumns; len(drop) > 0 {
		if t, err = Call(ctx, in, componentPreprocessor, "RemoveColumns", func(context.Context) (table.Table, error) {
			return pre.RemoveColumns(t, drop)
		}); err != nil {
			return fail(err)
		}
	}
	if t, err = Call(ctx, in, componentPreprocessor, "ReplaceInvalidValues", func(context.Context) (table.Table, error) {
		return pre.ReplaceInvalidValues(t), nil
	}); err != nil {
		return fail(err)
	}
	if t, err = Call(ctx, in, componentPreprocessor, "EncodeTargetCols", func(context.Context) (table.Table, error) {
		return pre.EncodeTargetCols(t)
	}); err != nil {
		return fail(err)
	}

	var label series.Series
	if err := in.Do(ctx, componentPreprocessor, "SeparateLabelFeature", func(context.Context) error {
		var err error
		t, label, err = pre.SeparateLabelFeature(t, w.params.TargetCol)
		return err
	}); err != nil {
		return fail(err)
	}

	X, err := cleanFeatures(ctx, in, pre, t)
	if err != nil {
		return fail(err)
	}

	if err := in.Do(ctx, componentPreprocessor, "HandleImbalance", func(context.Context) error {
		var err error
		X, label, err = pre.HandleImbalance(X, label)
		return err
	}); err != nil {
		return fail(err)
	}
	return X, label, nil
}

// cleanFeatures runs the feature stages shared by training and
// prediction: null report, imputation when needed, zero deviation drop,
// scaling and PCA.
func cleanFeatures(ctx context.Context, in *Instrumenter, pre *Preprocessor, t table.Table) (table.Table, error) {
	hasNull, err := Call(ctx, in, componentPreprocessor, "IsNullPresent", func(ctx context.Context) (bool, error) {
		return pre.IsNullPresent(ctx, t)
	})
	if err != nil {
		return table.Table{}, err
	}
	if hasNull {
		if t, err = Call(ctx, in, componentPreprocessor, "ImputeMissingValues", func(context.Context) (table.Table, error) {
			return pre.ImputeMissingValues(t)
		}); err != nil {
			return table.Table{}, err
		}
	}

	zero, err := Call(ctx, in, componentPreprocessor, "GetColumnsWithZeroDeviation", func(context.Context) ([]string, error) {
		return pre.GetColumnsWithZeroDeviation(t)
	})
	if err != nil {
		return table.Table{}, err
	}
	if len(zero) > 0 {
		if t, err = Call(ctx, in, componentPreprocessor, "RemoveColumns", func(context.Context) (table.Table, error) {
			return pre.RemoveColumns(t, zero)
		}); err != nil {
			return table.Table{}, err
		}
	}

	if t, err = Call(ctx, in, componentPreprocessor, "ScaleNumericalColumns", func(context.Context) (table.Table, error) {
		return pre.ScaleNumericalColumns(t)
	}); err != nil {
		return table.Table{}, err
	}
	return Call(ctx, in, componentPreprocessor, "ApplyPCATransform", func(context.Context) (table.Table, error) {
		return pre.ApplyPCATransform(t)
	})
}

// Run prepares the data and trains the model grid.
func (w *TrainingWorkflow) Run(ctx context.Context) (*TrainResult, error) {
	X, label, err := w.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return Call(ctx, w.inst, componentTrainer, "Train", func(ctx context.Context) (*TrainResult, error) {
		return w.trainer.Train(ctx, X, label)
	})
}

// PredictionWorkflow scores the prediction export with the production model.
type PredictionWorkflow struct {
	params *config.Params
	store  ObjectStore
	getter *DataGetter
	pre    *Preprocessor
	inst   *Instrumenter
	logger log.Logger
}

// NewPredictionWorkflow wires the prediction stages.
func NewPredictionWorkflow(params *config.Params, store ObjectStore, inst *Instrumenter) *PredictionWorkflow {
	logger := inst.Logger()
	return &PredictionWorkflow{
		params: params,
		store:  store,
		getter: NewDataGetter(params, store, ModePred, logger),
		pre:    NewPreprocessor(params, store, logger),
		inst:   inst,
		logger: logger.With(log.ComponentKey, componentPredictor),
	}
}

// Prediction output columns.
const (
	PredictionColumn = "prediction"
	ClassColumn      = "class"
)

// Run preprocesses the prediction export, loads the production model,
// predicts and writes the result table to the prediction output bucket.
// It returns the written table.
func (w *PredictionWorkflow) Run(ctx context.Context) (table.Table, error) {
	in, pre := w.inst, w.pre

	t, err := Call(ctx, in, componentGetter, "GetData", w.getter.GetData)
	if err != nil {
		return table.Table{}, err
	}
	drop := presentColumns(t, append(append([]string(nil), w.params.DropColumns...), w.params.TargetCol))
	if len(drop) > 0 {
		if t, err = Call(ctx, in, componentPreprocessor, "RemoveColumns", func(context.Context) (table.Table, error) {
			return pre.RemoveColumns(t, drop)
		}); err != nil {
			return table.Table{}, err
		}
	}
	if t, err = Call(ctx, in, componentPreprocessor, "ReplaceInvalidValues", func(context.Context) (table.Table, error) {
		return pre.ReplaceInvalidValues(t), nil
	}); err != nil {
		return table.Table{}, err
	}
	X, err := cleanFeatures(ctx, in, pre, t)
	if err != nil {
		return table.Table{}, err
	}

	bundle, err := Call(ctx, in, componentPredictor, "LoadProductionModel", w.loadProductionModel)
	if err != nil {
		return table.Table{}, err
	}
	out, err := Call(ctx, in, componentPredictor, "Predict", func(context.Context) (table.Table, error) {
		return predict(bundle, X)
	})
	if err != nil {
		return table.Table{}, err
	}
	bucket, key := w.params.S3Bucket.PredOutput, w.params.PredOutput
	if err := in.Do(ctx, componentPredictor, "WritePredictions", func(ctx context.Context) error {
		return w.store.WriteTable(ctx, out, bucket, key)
	}); err != nil {
		return table.Table{}, err
	}
	return out, nil
}

// loadProductionModel decodes the artifact in model_dir.prod. When more
// than one artifact is present the first in key order is used.
func (w *PredictionWorkflow) loadProductionModel(ctx context.Context) (*model.Bundle, error) {
	bucket, dir := w.params.S3Bucket.Model, w.params.ModelDir.Prod
	keys, err := w.store.ListKeys(ctx, bucket, dir)
	if err != nil {
		return nil, err
	}
	var artifacts []string
	for _, k := range keys {
		if path.Ext(k) == w.params.SaveFormat {
			artifacts = append(artifacts, k)
		}
	}
	if len(artifacts) == 0 {
		return nil, errors.NewModelError("LoadProductionModel",
			fmt.Sprintf("no %s artifact under %s/%s", w.params.SaveFormat, bucket, dir), errors.ErrEmptyData)
	}
	if len(artifacts) > 1 {
		errors.Warn(errors.NewStageWarning(componentPredictor, "LoadProductionModel",
			fmt.Sprintf("%d production artifacts found, using %s", len(artifacts), artifacts[0])))
	}
	data, err := w.store.ReadBytes(ctx, bucket, artifacts[0])
	if err != nil {
		return nil, err
	}
	bundle, err := model.DecodeBundle(data)
	if err != nil {
		return nil, err
	}
	w.logger.Info("loaded production model", log.ModelNameKey, bundle.Name, log.ObjectKeyKey, artifacts[0])
	return bundle, nil
}

// predict scores X. The feature count must match the one the model was
// trained on.
func predict(bundle *model.Bundle, X table.Table) (table.Table, error) {
	const op = "Predict"
	if X.Ncol() != len(bundle.Features) {
		return table.Table{}, errors.NewDimensionError(op, len(bundle.Features), X.Ncol(), 1)
	}
	m, err := table.ToDense(op, X)
	if err != nil {
		return table.Table{}, err
	}
	pred, err := bundle.Model.Predict(m)
	if err != nil {
		return table.Table{}, err
	}
	return predictionTable(pred), nil
}

func predictionTable(pred mat.Matrix) table.Table {
	n, _ := pred.Dims()
	codes := make([]int, n)
	classes := make([]string, n)
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == 1 {
			codes[i], classes[i] = 1, "pos"
		} else {
			classes[i] = "neg"
		}
	}
	return dataframe.New(
		series.New(codes, series.Int, PredictionColumn),
		series.New(classes, series.String, ClassColumn),
	)
}
