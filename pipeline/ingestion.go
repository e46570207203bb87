package pipeline

import (
	"context"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
)

// DataGetter reads the exported table of one mode from the input files
// bucket.
type DataGetter struct {
	store  ObjectStore
	bucket string
	key    string
	logger log.Logger
}

// NewDataGetter returns a DataGetter for mode.
func NewDataGetter(params *config.Params, store ObjectStore, mode Mode, logger log.Logger) *DataGetter {
	if logger == nil {
		logger = log.Default()
	}
	return &DataGetter{
		store:  store,
		bucket: params.S3Bucket.InputFiles,
		key:    datasetFor(params, mode).exportKey,
		logger: logger.With(log.ComponentKey, "DataGetter"),
	}
}

// GetData returns the exported table.
func (g *DataGetter) GetData(ctx context.Context) (table.Table, error) {
	t, err := g.store.ReadTable(ctx, g.bucket, g.key)
	if err != nil {
		return table.Table{}, err
	}
	g.logger.Info("got data",
		log.BucketKey, g.bucket, log.ObjectKeyKey, g.key,
		log.RowsKey, t.Nrow(), log.ColumnsKey, t.Ncol())
	return t, nil
}
