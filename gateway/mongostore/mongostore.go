// Package mongostore is the document store gateway: tables go in as one
// document per row and come back out as string tables.
package mongostore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/go-gota/gota/series"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const gatewayName = "mongodb"

// idField is the primary key added by the server; it is not part of the table.
const idField = "_id"

// Store wraps a connected MongoDB client.
type Store struct {
	client *mongo.Client
	logger log.Logger
}

// New connects to uri and pings the primary.
func New(ctx context.Context, uri string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.NewGatewayError(gatewayName, "Connect", "", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.NewGatewayError(gatewayName, "Ping", "", err)
	}
	return &Store{client: client, logger: logger.With(log.ComponentKey, "MongoDBOperation")}, nil
}

// InsertRecords inserts one document per row of t and returns the number
// of inserted documents.
func (s *Store) InsertRecords(ctx context.Context, t table.Table, db, collection string) (int, error) {
	docs := Documents(t)
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := s.client.Database(db).Collection(collection).InsertMany(ctx, docs)
	if err != nil {
		return 0, errors.NewGatewayError(gatewayName, "InsertRecords", db+"."+collection, err)
	}
	s.logger.Info("inserted records",
		log.DatabaseKey, db, log.CollectionKey, collection, log.RowsKey, len(res.InsertedIDs))
	return len(res.InsertedIDs), nil
}

// ExportAsTable reads the whole collection into a string table. Column
// order follows the fields of the first document.
func (s *Store) ExportAsTable(ctx context.Context, db, collection string) (table.Table, error) {
	target := db + "." + collection
	cur, err := s.client.Database(db).Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return table.Table{}, errors.NewGatewayError(gatewayName, "ExportAsTable", target, err)
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return table.Table{}, errors.NewGatewayError(gatewayName, "ExportAsTable", target, err)
	}
	if len(docs) == 0 {
		return table.Table{}, errors.NewGatewayError(gatewayName, "ExportAsTable", target, errors.ErrEmptyData)
	}
	t, err := table.FromRecords(Records(docs))
	if err != nil {
		return table.Table{}, errors.NewGatewayError(gatewayName, "ExportAsTable", target, err)
	}
	s.logger.Info("exported collection",
		log.DatabaseKey, db, log.CollectionKey, collection,
		log.RowsKey, t.Nrow(), log.ColumnsKey, t.Ncol())
	return t, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.NewGatewayError(gatewayName, "Close", "", err)
	}
	return nil
}

// Documents converts every row of t into an ordered document. Missing
// cells are stored as null.
func Documents(t table.Table) []interface{} {
	names := t.Names()
	cols := make([]series.Series, len(names))
	for j, name := range names {
		cols[j] = t.Col(name)
	}
	docs := make([]interface{}, t.Nrow())
	for i := range docs {
		doc := make(bson.D, len(names))
		for j, name := range names {
			doc[j] = bson.E{Key: name, Value: cellValue(cols[j], i)}
		}
		docs[i] = doc
	}
	return docs
}

func cellValue(s series.Series, i int) interface{} {
	e := s.Elem(i)
	if e.IsNA() {
		return nil
	}
	switch s.Type() {
	case series.Float:
		return e.Float()
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return nil
		}
		return v
	case series.Bool:
		v, err := e.Bool()
		if err != nil {
			return nil
		}
		return v
	default:
		return e.String()
	}
}

// Records turns documents into CSV style records: a header row built from
// the first document followed by one row per document. "_id" is dropped
// and fields absent from a document are left empty.
func Records(docs []bson.D) [][]string {
	if len(docs) == 0 {
		return nil
	}
	var header []string
	for _, e := range docs[0] {
		if e.Key != idField {
			header = append(header, e.Key)
		}
	}
	records := make([][]string, 0, len(docs)+1)
	records = append(records, header)
	for _, doc := range docs {
		fields := make(map[string]interface{}, len(doc))
		for _, e := range doc {
			fields[e.Key] = e.Value
		}
		row := make([]string, len(header))
		for j, key := range header {
			row[j] = formatValue(fields[key])
		}
		records = append(records, row)
	}
	return records
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
