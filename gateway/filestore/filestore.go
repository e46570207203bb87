// Package filestore keeps objects as files below a local directory, one
// sub directory per bucket. It backs --local runs of the CLI.
package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/spf13/afero"
)

// Store maps bucket/key onto <root>/<bucket>/<key>. Keys ending in "/"
// are folders.
type Store struct {
	fs afero.Fs
}

// New returns a Store rooted at dir, creating it when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewGatewayError("file", "New", dir, err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewWithFs uses fs as the root directory.
func NewWithFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

var _ gateway.Backend = (*Store)(nil)

func (s *Store) Name() string { return "file" }

func objectPath(bucket, key string) string {
	return filepath.Join(bucket, filepath.FromSlash(strings.TrimSuffix(key, "/")))
}

func (s *Store) fail(op, bucket, key string, err error) error {
	if os.IsNotExist(err) {
		err = gateway.ErrObjectNotFound
	}
	return errors.NewGatewayError(s.Name(), op, bucket+"/"+key, err)
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("Get", bucket, key, err)
	}
	data, err := afero.ReadFile(s.fs, objectPath(bucket, key))
	if err != nil {
		return nil, s.fail("Get", bucket, key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return s.fail("Put", bucket, key, err)
	}
	p := objectPath(bucket, key)
	if strings.HasSuffix(key, "/") {
		if err := s.fs.MkdirAll(p, 0o755); err != nil {
			return s.fail("Put", bucket, key, err)
		}
		return nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return s.fail("Put", bucket, key, err)
	}
	if err := afero.WriteFile(s.fs, p, body, 0o644); err != nil {
		return s.fail("Put", bucket, key, err)
	}
	return nil
}

// List walks the bucket directory. Empty folders are reported with a
// trailing slash like S3 folder markers.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("List", bucket, prefix, err)
	}
	ok, err := afero.DirExists(s.fs, bucket)
	if err != nil {
		return nil, s.fail("List", bucket, prefix, err)
	}
	if !ok {
		return nil, nil
	}
	var keys []string
	err = afero.Walk(s.fs, bucket, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(bucket, p)
		if err != nil || rel == "." {
			return err
		}
		key := filepath.ToSlash(rel)
		if info.IsDir() {
			entries, err := afero.ReadDir(s.fs, p)
			if err != nil || len(entries) > 0 {
				return err
			}
			key += "/"
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("List", bucket, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, s.fail("Exists", bucket, key, err)
	}
	p := objectPath(bucket, key)
	var (
		ok  bool
		err error
	)
	if strings.HasSuffix(key, "/") {
		ok, err = afero.DirExists(s.fs, p)
	} else {
		ok, err = afero.Exists(s.fs, p)
	}
	if err != nil {
		return false, s.fail("Exists", bucket, key, err)
	}
	return ok, nil
}

func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	data, err := s.Get(ctx, srcBucket, srcKey)
	if err != nil {
		return errors.NewGatewayError(s.Name(), "Copy", srcBucket+"/"+srcKey, err)
	}
	return s.Put(ctx, dstBucket, dstKey, data, "")
}

// Delete removes an object. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return s.fail("Delete", bucket, key, err)
	}
	if err := s.fs.Remove(objectPath(bucket, key)); err != nil && !os.IsNotExist(err) {
		return s.fail("Delete", bucket, key, err)
	}
	return nil
}
