// Package airpressure is a batch pipeline for the APS (air pressure
// system) failure dataset of heavy trucks.
//
// Raw sensor files arrive in an object store, are normalised and loaded
// into MongoDB, exported back as one table, preprocessed and used to
// train logistic regression candidates. Every candidate is tracked in
// MLflow; the best one by ROC-AUC is promoted to Production and scores
// new data.
//
// # Workflows
//
// The command line tool in cmd/aps runs three workflows:
//
//	aps load --mode train   # good raw files -> MongoDB -> train_export.csv
//	aps train               # preprocess, fit the grid, promote the best model
//	aps load --mode pred
//	aps predict             # score pred_export.csv with the production model
//
// Parameters are read from params.yaml (see aps init-config) and can be
// overridden with APS_ environment variables.
//
// # Packages
//
//   - pipeline: stages (transform, preprocessing, ingestion, database
//     operations, trainer) and the workflows wiring them
//   - preprocessing: KNN imputer, standard scaler, PCA, SMOTE
//   - sklearn/linear_model: binary logistic regression
//   - metrics: accuracy, precision, recall, F1, ROC-AUC, log loss
//   - table: gota tables, CSV codec and matrix conversion
//   - report: missing value report (CSV and bar chart)
//   - gateway: object store (S3, local folders, memory), MongoDB, MLflow
//   - config: parameter file
//   - core/model, core/parallel: estimator interfaces, model bundles and
//     parallel helpers
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// # Example
//
//	params, err := config.Load("params.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := gateway.NewObjectStore(memstore.New(), nil)
//	inst := pipeline.NewInstrumenter(nil, "train")
//	result, err := pipeline.NewTrainingWorkflow(params, store, tracker, inst).Run(ctx)
package airpressure
