// Package config holds the pipeline parameters read once from params.yaml
// and passed explicitly to every component.
package config

import (
	"strings"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
)

// Params is the full parameter file.
type Params struct {
	S3Bucket      S3Buckets     `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	Data          DataDirs      `mapstructure:"data" yaml:"data"`
	ExportCSVFile TrainPred     `mapstructure:"export_csv_file" yaml:"export_csv_file"`
	NullValuesCSV string        `mapstructure:"null_values_csv_file" yaml:"null_values_csv_file"`
	KNNImputer    KNNImputer    `mapstructure:"knn_imputer" yaml:"knn_imputer"`
	PCAModel      PCAModel      `mapstructure:"pca_model" yaml:"pca_model"`
	SMOTE         SMOTE         `mapstructure:"smote" yaml:"smote"`
	ModelDir      ModelDirs     `mapstructure:"model_dir" yaml:"model_dir"`
	SaveFormat    string        `mapstructure:"save_format" yaml:"save_format"`
	MLflow        MLflow        `mapstructure:"mlflow_config" yaml:"mlflow_config"`
	MongoDB       MongoDB       `mapstructure:"mongodb" yaml:"mongodb"`
	TrainModel    TrainModel    `mapstructure:"train_model" yaml:"train_model"`
	TargetCol     string        `mapstructure:"target_col" yaml:"target_col"`
	DropColumns   []string      `mapstructure:"drop_columns" yaml:"drop_columns"`
	PredOutput    string        `mapstructure:"pred_output_file" yaml:"pred_output_file"`
	Log           Log           `mapstructure:"log" yaml:"log"`
	AWS           AWS           `mapstructure:"aws" yaml:"aws"`
	Metrics       MetricsExport `mapstructure:"metrics" yaml:"metrics"`
}

// S3Buckets names the buckets used by the pipeline.
type S3Buckets struct {
	TrainData  string `mapstructure:"air_pressure_train_data_bucket" yaml:"air_pressure_train_data_bucket"`
	PredData   string `mapstructure:"air_pressure_pred_data_bucket" yaml:"air_pressure_pred_data_bucket"`
	InputFiles string `mapstructure:"input_files_bucket" yaml:"input_files_bucket"`
	Model      string `mapstructure:"air_pressure_model_bucket" yaml:"air_pressure_model_bucket"`
	PredOutput string `mapstructure:"air_pressure_pred_output_bucket" yaml:"air_pressure_pred_output_bucket"`
}

// GoodBad holds the folders of validated and rejected raw files.
type GoodBad struct {
	GoodDataDir string `mapstructure:"good_data_dir" yaml:"good_data_dir"`
	BadDataDir  string `mapstructure:"bad_data_dir" yaml:"bad_data_dir"`
}

type DataDirs struct {
	Train GoodBad `mapstructure:"train" yaml:"train"`
	Pred  GoodBad `mapstructure:"pred" yaml:"pred"`
}

type TrainPred struct {
	Train string `mapstructure:"train" yaml:"train"`
	Pred  string `mapstructure:"pred" yaml:"pred"`
}

type KNNImputer struct {
	NNeighbors int    `mapstructure:"n_neighbors" yaml:"n_neighbors"`
	Weights    string `mapstructure:"weights" yaml:"weights"`
}

type PCAModel struct {
	NComponents int `mapstructure:"n_components" yaml:"n_components"`
}

type SMOTE struct {
	KNeighbors  int   `mapstructure:"k_neighbors" yaml:"k_neighbors"`
	RandomState int64 `mapstructure:"random_state" yaml:"random_state"`
}

type ModelDirs struct {
	Trained string `mapstructure:"trained" yaml:"trained"`
	Stag    string `mapstructure:"stag" yaml:"stag"`
	Prod    string `mapstructure:"prod" yaml:"prod"`
}

// MLflow configures the experiment tracker client.
type MLflow struct {
	RemoteServerURI     string `mapstructure:"remote_server_uri" yaml:"remote_server_uri"`
	ExperimentName      string `mapstructure:"experiment_name" yaml:"experiment_name"`
	RunName             string `mapstructure:"run_name" yaml:"run_name"`
	RegisteredModelName string `mapstructure:"registered_model_name" yaml:"registered_model_name"`
	SerializationFormat string `mapstructure:"serialization_format" yaml:"serialization_format"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// MongoDB configures the document store. URL is usually supplied by
// MONGODB_URL.
type MongoDB struct {
	URL             string `mapstructure:"url" yaml:"url"`
	TrainDBName     string `mapstructure:"train_db_name" yaml:"train_db_name"`
	TrainCollection string `mapstructure:"train_collection_name" yaml:"train_collection_name"`
	PredDBName      string `mapstructure:"pred_db_name" yaml:"pred_db_name"`
	PredCollection  string `mapstructure:"pred_collection_name" yaml:"pred_collection_name"`
}

// TrainModel configures the hyperparameter grid of the trainer.
type TrainModel struct {
	TestSize    float64   `mapstructure:"test_size" yaml:"test_size"`
	RandomState int64     `mapstructure:"random_state" yaml:"random_state"`
	C           []float64 `mapstructure:"c" yaml:"c"`
	MaxIter     []int     `mapstructure:"max_iter" yaml:"max_iter"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Dir, when set, receives one log file per day and workflow.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type AWS struct {
	Region string `mapstructure:"region" yaml:"region"`
	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// MetricsExport configures the Prometheus Pushgateway. Empty URL disables push.
type MetricsExport struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// Validate checks the parameters that would otherwise fail deep inside a stage.
func (p *Params) Validate() error {
	if p.KNNImputer.NNeighbors < 1 {
		return errors.NewValidationError("knn_imputer.n_neighbors", "must be at least 1", p.KNNImputer.NNeighbors)
	}
	switch p.KNNImputer.Weights {
	case "uniform", "distance":
	default:
		return errors.NewValidationError("knn_imputer.weights", "must be 'uniform' or 'distance'", p.KNNImputer.Weights)
	}
	if p.PCAModel.NComponents < 1 {
		return errors.NewValidationError("pca_model.n_components", "must be at least 1", p.PCAModel.NComponents)
	}
	if p.SMOTE.KNeighbors < 1 {
		return errors.NewValidationError("smote.k_neighbors", "must be at least 1", p.SMOTE.KNeighbors)
	}
	if p.TrainModel.TestSize <= 0 || p.TrainModel.TestSize >= 1 {
		return errors.NewValidationError("train_model.test_size", "must be in (0, 1)", p.TrainModel.TestSize)
	}
	if len(p.TrainModel.C) == 0 || len(p.TrainModel.MaxIter) == 0 {
		return errors.NewValidationError("train_model", "c and max_iter grids must not be empty", p.TrainModel)
	}
	if p.TargetCol == "" {
		return errors.NewValidationError("target_col", "must not be empty", p.TargetCol)
	}
	if !strings.HasPrefix(p.SaveFormat, ".") {
		return errors.NewValidationError("save_format", "must start with '.'", p.SaveFormat)
	}
	return nil
}
