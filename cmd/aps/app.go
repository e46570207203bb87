package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/gateway"
	"github.com/YuminosukeSato/airpressure/gateway/filestore"
	"github.com/YuminosukeSato/airpressure/gateway/mlflow"
	"github.com/YuminosukeSato/airpressure/gateway/mongostore"
	"github.com/YuminosukeSato/airpressure/gateway/s3store"
	"github.com/YuminosukeSato/airpressure/pipeline"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/joho/godotenv"
)

// app carries the flags and the resources opened by one command.
type app struct {
	configPath string
	logLevel   string
	localDir   string

	params  *config.Params
	logger  log.Logger
	closers []func(context.Context) error
}

// setup loads .env and the parameter file, installs the loggers and
// returns the instrumenter of workflow.
func (a *app) setup(workflow string) (*pipeline.Instrumenter, error) {
	// .env は任意
	_ = godotenv.Load()

	params, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	a.params = params

	level := params.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	var w io.Writer = os.Stdout
	if dir := params.Log.Dir; dir != "" {
		f, err := openLogFile(dir, workflow)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return f.Close() })
		w = io.MultiWriter(os.Stdout, f)
	}
	handler, err := log.NewHandler(w, level)
	if err != nil {
		return nil, errors.NewValidationError("log.level", err.Error(), level)
	}
	slog.SetDefault(slog.New(handler))
	errors.SetZerologWarnFunc(log.ZerologWarnFunc(os.Stderr))

	inst := pipeline.NewInstrumenter(log.NewSlogLogger(slog.Default()), workflow)
	a.logger = inst.Logger()
	return inst, nil
}

// openLogFile opens <dir>/<date>_<workflow>.log for appending.
func openLogFile(dir, workflow string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log dir %s", dir)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), workflow))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", name)
	}
	return f, nil
}

// objectStore returns the S3 backed store, or the local folder store
// when --local is set.
func (a *app) objectStore(ctx context.Context) (*gateway.ObjectStore, error) {
	if a.localDir != "" {
		backend, err := filestore.New(a.localDir)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using local object store", "dir", a.localDir)
		return gateway.NewObjectStore(backend, a.logger), nil
	}
	cfg := a.params.AWS
	backend, err := s3store.New(ctx, s3store.Config{
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return gateway.NewObjectStore(backend, a.logger), nil
}

func (a *app) documentStore(ctx context.Context) (*mongostore.Store, error) {
	docs, err := mongostore.New(ctx, a.params.MongoDB.URL, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, docs.Close)
	return docs, nil
}

func (a *app) tracker(artifacts mlflow.ArtifactStore) (*mlflow.Client, error) {
	p := a.params
	return mlflow.New(mlflow.Config{
		TrackingURI: p.MLflow.RemoteServerURI,
		Timeout:     time.Duration(p.MLflow.TimeoutSeconds) * time.Second,
		ModelBucket: p.S3Bucket.Model,
		TrainedDir:  p.ModelDir.Trained,
		SaveFormat:  p.SaveFormat,
	}, artifacts, a.logger)
}

// close pushes the stage metrics when a Pushgateway is configured and
// releases the resources in reverse order. Failures are logged only.
func (a *app) close(ctx context.Context, inst *pipeline.Instrumenter) {
	if m := a.params.Metrics; m.PushgatewayURL != "" {
		if err := inst.Push(ctx, m.PushgatewayURL, m.Job); err != nil {
			a.logger.Warn("failed to push metrics", log.ErrAttrKey, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("failed to release resource", log.ErrAttrKey, err)
		}
	}
	a.closers = nil
}
