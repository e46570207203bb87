// Package s3store is the object storage backend for Amazon S3 and
// S3-compatible services.
package s3store

import (
	"bytes"
	"context"
	"io"

	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const gatewayName = "s3"

// Config selects the region and, for S3-compatible services, the endpoint.
type Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
	// PartSize and Concurrency tune multipart uploads; zero keeps the SDK defaults.
	PartSize    int64
	Concurrency int
}

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
	manager.UploadAPIClient
}

// Store implements gateway.Backend on top of an S3 client.
type Store struct {
	client   API
	uploader *manager.Uploader
}

var _ gateway.Backend = (*Store)(nil)

// New loads the default AWS configuration (environment, shared config,
// instance role) and creates the S3 client and uploader.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.NewGatewayError(gatewayName, "LoadDefaultConfig", "", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, cfg Config) *Store {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})
	return &Store{client: client, uploader: uploader}
}

func (s *Store) Name() string { return gatewayName }

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewGatewayError(gatewayName, "GetObject", bucket+"/"+key, notFound(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewGatewayError(gatewayName, "GetObject", bucket+"/"+key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return errors.NewGatewayError(gatewayName, "Upload", bucket+"/"+key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewGatewayError(gatewayName, "ListObjectsV2", bucket+"/"+prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(notFound(err), gateway.ErrObjectNotFound) {
		return false, nil
	}
	return false, errors.NewGatewayError(gatewayName, "HeadObject", bucket+"/"+key, err)
}

func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err != nil {
		return errors.NewGatewayError(gatewayName, "CopyObject", srcBucket+"/"+srcKey, notFound(err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.NewGatewayError(gatewayName, "DeleteObject", bucket+"/"+key, err)
	}
	return nil
}

// notFound marks NoSuchKey and NotFound responses with gateway.ErrObjectNotFound.
func notFound(err error) error {
	var noSuchKey *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &nf) {
		return errors.Wrap(gateway.ErrObjectNotFound, err.Error())
	}
	return err
}
