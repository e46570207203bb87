package pipeline

import (
	"context"
	"strings"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// QuoteTable normalises the textual encoding of a raw table: every value
// of labelColumn is wrapped in single quotes and the raw missing-value
// sentinel is replaced by the quoted one in every column. An empty
// labelColumn skips the label step. Values already quoted are kept, so
// applying QuoteTable twice changes nothing.
func QuoteTable(t table.Table, labelColumn string) table.Table {
	names := t.Names()
	cols := make([]series.Series, len(names))
	for i, name := range names {
		s := t.Col(name)
		if s.Type() != series.String {
			cols[i] = s.Copy()
			continue
		}
		records := s.Records()
		missing := table.IsMissing(s)
		for j, v := range records {
			switch {
			case missing[j]:
				records[j] = "NaN"
			case v == table.RawMissing:
				records[j] = table.QuotedMissing
			case name == labelColumn && labelColumn != "" && !isQuoted(v):
				records[j] = "'" + v + "'"
			}
		}
		cols[i] = series.New(records, series.String, name)
	}
	return dataframe.New(cols...)
}

func isQuoted(v string) bool {
	return len(v) >= 2 && strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'")
}

// DataTransformer rewrites the good raw files of one mode in place.
type DataTransformer struct {
	store  ObjectStore
	data   dataset
	logger log.Logger
}

// NewTrainDataTransformer quotes the label column of the training files.
func NewTrainDataTransformer(params *config.Params, store ObjectStore, logger log.Logger) *DataTransformer {
	return newDataTransformer(params, store, logger, ModeTrain)
}

// NewPredDataTransformer handles prediction files, which carry no label.
func NewPredDataTransformer(params *config.Params, store ObjectStore, logger log.Logger) *DataTransformer {
	return newDataTransformer(params, store, logger, ModePred)
}

func newDataTransformer(params *config.Params, store ObjectStore, logger log.Logger, mode Mode) *DataTransformer {
	if logger == nil {
		logger = log.Default()
	}
	return &DataTransformer{
		store:  store,
		data:   datasetFor(params, mode),
		logger: logger.With(log.ComponentKey, "DataTransformer"),
	}
}

// AddQuotesToString applies QuoteTable to every table of the good data
// folder and writes each one back under its key. It returns the number of
// rewritten tables.
func (d *DataTransformer) AddQuotesToString(ctx context.Context) (int, error) {
	tables, err := d.store.ListTablesInFolder(ctx, d.data.bucket, d.data.goodDir)
	if err != nil {
		return 0, err
	}
	for _, nt := range tables {
		quoted := QuoteTable(nt.Table, d.data.labelColumn)
		if err := d.store.WriteTable(ctx, quoted, d.data.bucket, nt.Key); err != nil {
			return 0, err
		}
		d.logger.Debug("quoted table", log.ObjectKeyKey, nt.Key, log.RowsKey, quoted.Nrow())
	}
	d.logger.Info("transformed good data",
		log.BucketKey, d.data.bucket, log.FolderKey, d.data.goodDir, "tables", len(tables))
	return len(tables), nil
}
