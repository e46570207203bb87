// Package mlflow is the experiment tracker gateway. It talks to an MLflow
// tracking server over the REST 2.0 API and stores model artifacts in the
// model bucket of the object store.
package mlflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/goccy/go-json"
)

const gatewayName = "mlflow"

const apiPrefix = "/api/2.0/mlflow/"

// MLflow error codes handled by the client.
const (
	codeNotFound      = "RESOURCE_DOES_NOT_EXIST"
	codeAlreadyExists = "RESOURCE_ALREADY_EXISTS"
)

// Model stages accepted by Promote.
const (
	StageStaging    = "Staging"
	StageProduction = "Production"
)

// Run statuses accepted by EndRun.
const (
	RunFinished = "FINISHED"
	RunFailed   = "FAILED"
)

// ArtifactStore receives serialized models.
type ArtifactStore interface {
	WriteBytes(ctx context.Context, data []byte, bucket, key, contentType string) error
}

// Config holds the tracking server address and artifact placement.
type Config struct {
	TrackingURI string
	// Timeout bounds every HTTP request. Zero means 30s.
	Timeout time.Duration
	// ModelBucket and TrainedDir locate uploaded model artifacts.
	ModelBucket string
	TrainedDir  string
	// SaveFormat is the artifact file extension, e.g. ".gob".
	SaveFormat string
}

// Client is a minimal MLflow REST client.
type Client struct {
	cfg       Config
	http      *http.Client
	artifacts ArtifactStore
	logger    log.Logger
	now       func() time.Time
}

// New returns a Client. A nil logger uses the slog default.
func New(cfg Config, artifacts ArtifactStore, logger log.Logger) (*Client, error) {
	if cfg.TrackingURI == "" {
		return nil, errors.NewValidationError("mlflow_config.remote_server_uri", "tracking uri is required", cfg.TrackingURI)
	}
	if _, err := url.Parse(cfg.TrackingURI); err != nil {
		return nil, errors.NewValidationError("mlflow_config.remote_server_uri", err.Error(), cfg.TrackingURI)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		artifacts: artifacts,
		logger:    logger.With(log.ComponentKey, "MLFlowOperation"),
		now:       time.Now,
	}, nil
}

// apiError is the JSON error body returned by the tracking server.
type apiError struct {
	Status    int    `json:"-"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.ErrorCode, e.Message)
}

func hasCode(err error, code string) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == code
}

// call performs one API request. A nil in skips the body; a nil out
// discards the response.
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, in, out interface{}) error {
	target := strings.TrimSuffix(c.cfg.TrackingURI, "/") + apiPrefix + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.ErrorCode == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return errors.WithStack(apiErr)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (c *Client) fail(op, target string, err error) error {
	return errors.NewGatewayError(gatewayName, op, target, err)
}

func (c *Client) millis() int64 { return c.now().UnixMilli() }
