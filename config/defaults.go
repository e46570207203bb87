package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all parameters
func SetDefaults(v *viper.Viper) {
	// Buckets
	v.SetDefault("s3_bucket.air_pressure_train_data_bucket", "air-pressure-train-data")
	v.SetDefault("s3_bucket.air_pressure_pred_data_bucket", "air-pressure-pred-data")
	v.SetDefault("s3_bucket.input_files_bucket", "air-pressure-input-files")
	v.SetDefault("s3_bucket.air_pressure_model_bucket", "air-pressure-model")
	v.SetDefault("s3_bucket.air_pressure_pred_output_bucket", "air-pressure-pred-output")

	// Raw data folders
	v.SetDefault("data.train.good_data_dir", "good/train")
	v.SetDefault("data.train.bad_data_dir", "bad/train")
	v.SetDefault("data.pred.good_data_dir", "good/pred")
	v.SetDefault("data.pred.bad_data_dir", "bad/pred")

	v.SetDefault("export_csv_file.train", "train_export.csv")
	v.SetDefault("export_csv_file.pred", "pred_export.csv")
	v.SetDefault("null_values_csv_file", "null_values.csv")
	v.SetDefault("pred_output_file", "predictions.csv")

	// Preprocessing
	v.SetDefault("knn_imputer.n_neighbors", 3)
	v.SetDefault("knn_imputer.weights", "uniform")
	v.SetDefault("pca_model.n_components", 100)
	v.SetDefault("smote.k_neighbors", 5)
	v.SetDefault("smote.random_state", 42)

	// Model artifacts
	v.SetDefault("model_dir.trained", "trained")
	v.SetDefault("model_dir.stag", "staging")
	v.SetDefault("model_dir.prod", "production")
	v.SetDefault("save_format", ".gob")

	// Experiment tracker
	v.SetDefault("mlflow_config.remote_server_uri", "http://localhost:5000")
	v.SetDefault("mlflow_config.experiment_name", "air_pressure")
	v.SetDefault("mlflow_config.run_name", "aps")
	v.SetDefault("mlflow_config.registered_model_name", "aps_logistic_regression")
	v.SetDefault("mlflow_config.serialization_format", "gob")
	v.SetDefault("mlflow_config.timeout_seconds", 30)

	// Document store
	v.SetDefault("mongodb.url", "mongodb://localhost:27017")
	v.SetDefault("mongodb.train_db_name", "air_pressure")
	v.SetDefault("mongodb.train_collection_name", "train_good_data")
	v.SetDefault("mongodb.pred_db_name", "air_pressure")
	v.SetDefault("mongodb.pred_collection_name", "pred_good_data")

	// Trainer grid
	v.SetDefault("train_model.test_size", 0.2)
	v.SetDefault("train_model.random_state", 42)
	v.SetDefault("train_model.c", []float64{0.1, 1.0, 10.0})
	v.SetDefault("train_model.max_iter", []int{100, 300})

	v.SetDefault("target_col", "class")
	v.SetDefault("drop_columns", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("metrics.job", "air_pressure_pipeline")
}

// BindSensitiveEnvVars binds secrets that are conventionally supplied
// through unprefixed environment variables.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("mongodb.url", "APS_MONGODB_URL", "MONGODB_URL")
	_ = v.BindEnv("mlflow_config.remote_server_uri", "APS_MLFLOW_TRACKING_URI", "MLFLOW_TRACKING_URI")
	_ = v.BindEnv("aws.region", "APS_AWS_REGION", "AWS_REGION")
	_ = v.BindEnv("aws.endpoint", "APS_AWS_ENDPOINT", "AWS_ENDPOINT_URL")
}
