// Package memstore is an in-memory object storage backend for tests and
// examples.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
)

// Store keeps objects in a map keyed by bucket and key.
type Store struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]map[string][]byte)}
}

var _ gateway.Backend = (*Store)(nil)

func (s *Store) Name() string { return "memory" }

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewGatewayError(s.Name(), "Get", bucket+"/"+key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[bucket][key]
	if !ok {
		return nil, errors.NewGatewayError(s.Name(), "Get", bucket+"/"+key, gateway.ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewGatewayError(s.Name(), "Put", bucket+"/"+key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[bucket] == nil {
		s.objects[bucket] = make(map[string][]byte)
	}
	s.objects[bucket][key] = append([]byte(nil), body...)
	return nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewGatewayError(s.Name(), "List", bucket+"/"+prefix, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.NewGatewayError(s.Name(), "Exists", bucket+"/"+key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[bucket][key]
	return ok, nil
}

func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	data, err := s.Get(ctx, srcBucket, srcKey)
	if err != nil {
		return errors.NewGatewayError(s.Name(), "Copy", srcBucket+"/"+srcKey, err)
	}
	return s.Put(ctx, dstBucket, dstKey, data, "")
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewGatewayError(s.Name(), "Delete", bucket+"/"+key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[bucket], key)
	return nil
}

// Keys returns every key of bucket in lexical order.
func (s *Store) Keys(bucket string) []string {
	keys, _ := s.List(context.Background(), bucket, "")
	return keys
}
