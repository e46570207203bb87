// Package gateway holds the object store used by every stage. Storage
// backends (S3, in-memory) implement the byte-level Backend; ObjectStore
// layers the table, text and JSON codecs on top.
package gateway

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/YuminosukeSato/airpressure/table"
	"github.com/goccy/go-json"
)

// ErrObjectNotFound is wrapped by backends when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Backend is the byte-level contract of an object storage service. All
// returned errors are GatewayErrors.
type Backend interface {
	// Name identifies the backend in GatewayErrors, e.g. "s3".
	Name() string
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
}

// NamedTable is a table read from a folder together with its location.
type NamedTable struct {
	Table table.Table
	// Key is the absolute object key.
	Key string
	// Name is the base file name.
	Name string
}

// ObjectStore reads and writes tables, text and JSON documents.
type ObjectStore struct {
	backend Backend
	logger  log.Logger
}

// NewObjectStore wraps backend. A nil logger uses the slog default.
func NewObjectStore(backend Backend, logger log.Logger) *ObjectStore {
	if logger == nil {
		logger = log.Default()
	}
	return &ObjectStore{
		backend: backend,
		logger:  logger.With(log.ComponentKey, "ObjectStore"),
	}
}

func (o *ObjectStore) wrap(op, bucket, key string, err error) error {
	return errors.NewGatewayError(o.backend.Name(), op, bucket+"/"+key, err)
}

// ReadBytes returns the raw object.
func (o *ObjectStore) ReadBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	return o.backend.Get(ctx, bucket, key)
}

// ReadText returns the object decoded as UTF-8 text.
func (o *ObjectStore) ReadText(ctx context.Context, bucket, key string) (string, error) {
	data, err := o.backend.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON decodes the object into v.
func (o *ObjectStore) ReadJSON(ctx context.Context, bucket, key string, v interface{}) error {
	data, err := o.backend.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return o.wrap("ReadJSON", bucket, key, err)
	}
	return nil
}

// ReadTable parses the object as CSV with a header row.
func (o *ObjectStore) ReadTable(ctx context.Context, bucket, key string) (table.Table, error) {
	data, err := o.backend.Get(ctx, bucket, key)
	if err != nil {
		return table.Table{}, err
	}
	t, err := table.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return table.Table{}, o.wrap("ReadTable", bucket, key, err)
	}
	o.logger.Debug("read table",
		log.BucketKey, bucket, log.ObjectKeyKey, key,
		log.RowsKey, t.Nrow(), log.ColumnsKey, t.Ncol())
	return t, nil
}

// ListTablesInFolder reads every ".csv" object directly or transitively
// under folder.
func (o *ObjectStore) ListTablesInFolder(ctx context.Context, bucket, folder string) ([]NamedTable, error) {
	keys, err := o.backend.List(ctx, bucket, folderPrefix(folder))
	if err != nil {
		return nil, err
	}
	var out []NamedTable
	for _, key := range keys {
		if !strings.HasSuffix(key, ".csv") {
			continue
		}
		t, err := o.ReadTable(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedTable{Table: t, Key: key, Name: path.Base(key)})
	}
	o.logger.Info("listed tables in folder",
		log.BucketKey, bucket, log.FolderKey, folder, "tables", len(out))
	return out, nil
}

// ListKeys returns the keys under folder in lexical order.
func (o *ObjectStore) ListKeys(ctx context.Context, bucket, folder string) ([]string, error) {
	return o.backend.List(ctx, bucket, folderPrefix(folder))
}

// WriteTable encodes t as CSV and uploads it under key.
func (o *ObjectStore) WriteTable(ctx context.Context, t table.Table, bucket, key string) error {
	var buf bytes.Buffer
	if err := table.WriteCSV(t, &buf); err != nil {
		return o.wrap("WriteTable", bucket, key, err)
	}
	if err := o.backend.Put(ctx, bucket, key, buf.Bytes(), "text/csv"); err != nil {
		return err
	}
	o.logger.Debug("wrote table",
		log.BucketKey, bucket, log.ObjectKeyKey, key,
		log.RowsKey, t.Nrow(), log.ColumnsKey, t.Ncol())
	return nil
}

// WriteBytes uploads data under key.
func (o *ObjectStore) WriteBytes(ctx context.Context, data []byte, bucket, key, contentType string) error {
	return o.backend.Put(ctx, bucket, key, data, contentType)
}

// CreateFolder creates the "folder/" marker object unless it exists.
func (o *ObjectStore) CreateFolder(ctx context.Context, bucket, folder string) error {
	key := folderPrefix(folder)
	exists, err := o.backend.Exists(ctx, bucket, key)
	if err != nil {
		return err
	}
	if exists {
		o.logger.Debug("folder already exists", log.BucketKey, bucket, log.FolderKey, folder)
		return nil
	}
	if err := o.backend.Put(ctx, bucket, key, nil, "application/x-directory"); err != nil {
		return err
	}
	o.logger.Info("created folder", log.BucketKey, bucket, log.FolderKey, folder)
	return nil
}

// Copy duplicates an object, possibly across buckets.
func (o *ObjectStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	return o.backend.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey)
}

// Delete removes an object.
func (o *ObjectStore) Delete(ctx context.Context, bucket, key string) error {
	return o.backend.Delete(ctx, bucket, key)
}

// Move copies an object and deletes the source.
func (o *ObjectStore) Move(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if err := o.backend.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey); err != nil {
		return err
	}
	return o.backend.Delete(ctx, srcBucket, srcKey)
}

func folderPrefix(folder string) string {
	return strings.TrimSuffix(folder, "/") + "/"
}
