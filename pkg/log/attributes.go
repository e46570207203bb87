// Package log defines the attribute keys used by every stage of the pipeline.
//
// Keys follow a hierarchical naming convention ("pipeline.component",
// "data.rows") so that structured logs can be filtered per stage, per
// storage location or per tracked run.

package log

// Pipeline context
const (
	// ComponentKey identifies the stage owner, e.g. "Preprocessor", "DataTransformer".
	ComponentKey = "pipeline.component"

	// OperationKey identifies the stage operation, e.g. "ImputeMissingValues".
	OperationKey = "pipeline.operation"

	// WorkflowKey identifies the top-level workflow: "train", "predict", "load".
	WorkflowKey = "pipeline.workflow"

	// RunIDKey correlates every record emitted by a single workflow invocation.
	RunIDKey = "pipeline.run_id"

	// StatusKey records the outcome of a stage: "ok" or "error".
	StatusKey = "pipeline.status"

	// DurationMsKey records the execution time of a stage in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Data shape
const (
	// RowsKey indicates the number of rows in a table.
	RowsKey = "data.rows"

	// ColumnsKey indicates the number of columns in a table.
	ColumnsKey = "data.columns"

	// MissingKey indicates the total count of missing cells.
	MissingKey = "data.missing"

	// DroppedColumnsKey lists columns removed by a stage.
	DroppedColumnsKey = "data.dropped_columns"
)

// Storage and external systems
const (
	BucketKey     = "storage.bucket"
	ObjectKeyKey  = "storage.key"
	FolderKey     = "storage.folder"
	DatabaseKey   = "docstore.database"
	CollectionKey = "docstore.collection"
	ExperimentKey = "tracker.experiment"
	TrackerRunKey = "tracker.run_id"
)

// Model context
const (
	// ModelNameKey identifies the type of model, e.g. "LogisticRegression".
	ModelNameKey = "model.name"

	// ModelVersionKey is the registry version assigned to a logged model.
	ModelVersionKey = "model.version"

	// ModelStageKey is the lifecycle stage: "Staging" or "Production".
	ModelStageKey = "model.stage"

	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// AccuracyKey records accuracy on held-out data.
	AccuracyKey = "metrics.accuracy"

	// F1Key records the F1 score on held-out data.
	F1Key = "metrics.f1_score"

	// ROCAUCKey records ROC-AUC on held-out data.
	ROCAUCKey = "metrics.roc_auc"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error context
const (
	// ErrorTypeKey categorizes the failure, e.g. "SchemaError", "GatewayError".
	ErrorTypeKey = "error.type"
)

// Standard status values
const (
	StatusOK    = "ok"
	StatusError = "error"
)
