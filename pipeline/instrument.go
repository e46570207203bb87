package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Instrumenter wraps stage calls with entry/exit logs, a structured
// failure record, panic recovery and stage metrics. Every stage error
// leaves it wrapped with "component.operation".
type Instrumenter struct {
	logger   log.Logger
	runID    string
	gatherer prometheus.Gatherer

	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewInstrumenter registers the stage metrics on a fresh registry and
// tags every record with a new run id.
func NewInstrumenter(logger log.Logger, workflow string) *Instrumenter {
	if logger == nil {
		logger = log.Default()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	runID := uuid.NewString()
	return &Instrumenter{
		logger:   logger.With(log.WorkflowKey, workflow, log.RunIDKey, runID),
		runID:    runID,
		gatherer: reg,
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aps",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"component", "operation", "status"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aps",
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Number of failed pipeline stages by error type",
			},
			[]string{"component", "operation", "error_type"},
		),
	}
}

// RunID identifies the workflow invocation.
func (in *Instrumenter) RunID() string { return in.runID }

// Logger returns the run scoped logger.
func (in *Instrumenter) Logger() log.Logger { return in.logger }

// Gatherer exposes the stage metrics.
func (in *Instrumenter) Gatherer() prometheus.Gatherer { return in.gatherer }

// Do runs one stage.
func (in *Instrumenter) Do(ctx context.Context, component, operation string, fn func(context.Context) error) (err error) {
	logger := in.logger.With(log.ComponentKey, component, log.OperationKey, operation)
	logger.Debug("stage started")
	start := time.Now()

	defer func() {
		elapsed := time.Since(start)
		status := log.StatusOK
		if err != nil {
			status = log.StatusError
			kind := ErrorType(err)
			in.failures.WithLabelValues(component, operation, kind).Inc()
			logger.Error("stage failed", err,
				log.ErrorTypeKey, kind,
				log.StatusKey, status,
				log.DurationMsKey, elapsed.Milliseconds())
			err = errors.Wrapf(err, "%s.%s", component, operation)
		} else {
			logger.Info("stage finished",
				log.StatusKey, status,
				log.DurationMsKey, elapsed.Milliseconds())
		}
		in.duration.WithLabelValues(component, operation, status).Observe(elapsed.Seconds())
	}()
	defer errors.Recover(&err, component+"."+operation)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Call runs a stage that produces a value.
func Call[T any](ctx context.Context, in *Instrumenter, component, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := in.Do(ctx, component, operation, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Push sends the stage metrics to a Prometheus Pushgateway.
func (in *Instrumenter) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(in.gatherer).
		Grouping("run_id", in.runID).
		PushContext(ctx)
	if err != nil {
		return errors.NewGatewayError("pushgateway", "Push", url, err)
	}
	in.logger.Debug("pushed stage metrics", "pushgateway", url)
	return nil
}

// ErrorType names the failure class of err for logs and metrics.
func ErrorType(err error) string {
	var (
		schemaErr    *errors.SchemaError
		numericErr   *errors.NumericError
		imbalanceErr *errors.ImbalanceError
		gatewayErr   *errors.GatewayError
		validErr     *errors.ValidationError
		panicErr     *errors.PanicError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "SchemaError"
	case errors.As(err, &numericErr):
		return "NumericError"
	case errors.As(err, &imbalanceErr):
		return "ImbalanceError"
	case errors.As(err, &gatewayErr):
		return "GatewayError"
	case errors.As(err, &validErr):
		return "ValidationError"
	case errors.As(err, &panicErr):
		return "PanicError"
	default:
		return fmt.Sprintf("%T", errors.Cause(err))
	}
}
