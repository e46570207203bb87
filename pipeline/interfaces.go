// Package pipeline wires the air pressure stages together: transform,
// document store load, ingestion, preprocessing, training and prediction.
//
// Stages are plain methods returning new tables. Logging, failure records,
// panic recovery and stage metrics are applied once by the Instrumenter
// when a workflow calls a stage.
package pipeline

import (
	"context"

	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/gateway/mlflow"
	"github.com/YuminosukeSato/airpressure/table"
)

// ObjectStore is the object storage used by the stages.
// *gateway.ObjectStore implements it.
type ObjectStore interface {
	ReadTable(ctx context.Context, bucket, key string) (table.Table, error)
	ReadBytes(ctx context.Context, bucket, key string) ([]byte, error)
	ListTablesInFolder(ctx context.Context, bucket, folder string) ([]gateway.NamedTable, error)
	ListKeys(ctx context.Context, bucket, folder string) ([]string, error)
	WriteTable(ctx context.Context, t table.Table, bucket, key string) error
	WriteBytes(ctx context.Context, data []byte, bucket, key, contentType string) error
	CreateFolder(ctx context.Context, bucket, folder string) error
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	Move(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
}

// DocumentStore persists tables as one document per row.
// *mongostore.Store implements it.
type DocumentStore interface {
	InsertRecords(ctx context.Context, t table.Table, db, collection string) (int, error)
	ExportAsTable(ctx context.Context, db, collection string) (table.Table, error)
}

// Tracker records runs and manages the model registry.
// *mlflow.Client implements it.
type Tracker interface {
	SelectExperiment(ctx context.Context, name string) (string, error)
	StartRun(ctx context.Context, experimentID, name string) (mlflow.RunInfo, error)
	EndRun(ctx context.Context, runID, status string) error
	LogParam(ctx context.Context, runID, key, value string) error
	LogMetric(ctx context.Context, runID, key string, value float64) error
	LogModel(ctx context.Context, runID string, bundle *model.Bundle, registeredName string) (string, error)
	Promote(ctx context.Context, name, version, stage string) error
	ArtifactKey(name string) string
}

var (
	_ ObjectStore = (*gateway.ObjectStore)(nil)
	_ Tracker     = (*mlflow.Client)(nil)
)
