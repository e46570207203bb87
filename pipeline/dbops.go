package pipeline

import (
	"context"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/pkg/log"
)

// DBOperation moves the good raw files of one mode through the document
// store and back out as a single export table.
type DBOperation struct {
	store       ObjectStore
	docs        DocumentStore
	data        dataset
	inputBucket string
	logger      log.Logger
}

// NewDBOperation returns a DBOperation for mode.
func NewDBOperation(params *config.Params, store ObjectStore, docs DocumentStore, mode Mode, logger log.Logger) *DBOperation {
	if logger == nil {
		logger = log.Default()
	}
	return &DBOperation{
		store:       store,
		docs:        docs,
		data:        datasetFor(params, mode),
		inputBucket: params.S3Bucket.InputFiles,
		logger:      logger.With(log.ComponentKey, "DBOperation"),
	}
}

// Database and Collection are the configured targets of this mode.
func (d *DBOperation) Database() string   { return d.data.db }
func (d *DBOperation) Collection() string { return d.data.collection }

// InsertGoodDataAsRecord inserts every table of the good data folder into
// the collection and returns the number of inserted records.
func (d *DBOperation) InsertGoodDataAsRecord(ctx context.Context, db, collection string) (int, error) {
	tables, err := d.store.ListTablesInFolder(ctx, d.data.bucket, d.data.goodDir)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, nt := range tables {
		n, err := d.docs.InsertRecords(ctx, nt.Table, db, collection)
		if err != nil {
			return total, err
		}
		total += n
		d.logger.Debug("inserted table", log.ObjectKeyKey, nt.Key, log.RowsKey, n)
	}
	d.logger.Info("inserted good data",
		log.DatabaseKey, db, log.CollectionKey, collection, "tables", len(tables), log.RowsKey, total)
	return total, nil
}

// ExportCollectionToCSV writes the whole collection as one CSV to the
// export key of this mode in the input files bucket.
func (d *DBOperation) ExportCollectionToCSV(ctx context.Context, db, collection string) error {
	t, err := d.docs.ExportAsTable(ctx, db, collection)
	if err != nil {
		return err
	}
	if err := d.store.WriteTable(ctx, t, d.inputBucket, d.data.exportKey); err != nil {
		return err
	}
	d.logger.Info("exported collection",
		log.CollectionKey, collection, log.BucketKey, d.inputBucket,
		log.ObjectKeyKey, d.data.exportKey, log.RowsKey, t.Nrow())
	return nil
}

// CreateDirsForGoodBadData creates the good and bad folders of this mode.
func (d *DBOperation) CreateDirsForGoodBadData(ctx context.Context) error {
	for _, dir := range []string{d.data.goodDir, d.data.badDir} {
		if err := d.store.CreateFolder(ctx, d.data.bucket, dir); err != nil {
			return err
		}
	}
	return nil
}
