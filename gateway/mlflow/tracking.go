package mlflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/YuminosukeSato/airpressure/core/model"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/YuminosukeSato/airpressure/pkg/log"
	"github.com/google/uuid"
)

// KeyValue is an MLflow param or tag.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metric is the latest value of a logged metric.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// RunInfo identifies a run.
type RunInfo struct {
	RunID        string `json:"run_id"`
	RunName      string `json:"run_name"`
	ExperimentID string `json:"experiment_id"`
	Status       string `json:"status"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
}

// RunData holds what was logged to a run.
type RunData struct {
	Metrics []Metric   `json:"metrics"`
	Params  []KeyValue `json:"params"`
	Tags    []KeyValue `json:"tags"`
}

// Run is a tracked run.
type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

// Metric returns the value of the named metric.
func (r Run) Metric(key string) (float64, bool) {
	for _, m := range r.Data.Metrics {
		if m.Key == key {
			return m.Value, true
		}
	}
	return 0, false
}

// Param returns the value of the named param.
func (r Run) Param(key string) (string, bool) {
	for _, p := range r.Data.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SelectExperiment returns the id of the named experiment, creating it
// when it does not exist.
func (c *Client) SelectExperiment(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.call(ctx, http.MethodGet, "experiments/get-by-name",
		url.Values{"experiment_name": {name}}, nil, &got)
	if err == nil {
		c.logger.Info("selected experiment", log.ExperimentKey, name)
		return got.Experiment.ExperimentID, nil
	}
	if !hasCode(err, codeNotFound) {
		return "", c.fail("SelectExperiment", name, err)
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.call(ctx, http.MethodPost, "experiments/create", nil,
		map[string]string{"name": name}, &created); err != nil {
		return "", c.fail("SelectExperiment", name, err)
	}
	c.logger.Info("created experiment", log.ExperimentKey, name)
	return created.ExperimentID, nil
}

// StartRun opens a run in the experiment. The run name gets a short
// unique suffix so grid candidates with the same base name stay apart.
func (c *Client) StartRun(ctx context.Context, experimentID, name string) (RunInfo, error) {
	runName := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
	var out struct {
		Run Run `json:"run"`
	}
	in := map[string]interface{}{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    c.millis(),
	}
	if err := c.call(ctx, http.MethodPost, "runs/create", nil, in, &out); err != nil {
		return RunInfo{}, c.fail("StartRun", runName, err)
	}
	c.logger.Debug("started run", log.TrackerRunKey, out.Run.Info.RunID, "run_name", runName)
	return out.Run.Info, nil
}

// EndRun marks the run FINISHED or FAILED.
func (c *Client) EndRun(ctx context.Context, runID, status string) error {
	in := map[string]interface{}{
		"run_id":   runID,
		"status":   status,
		"end_time": c.millis(),
	}
	if err := c.call(ctx, http.MethodPost, "runs/update", nil, in, nil); err != nil {
		return c.fail("EndRun", runID, err)
	}
	return nil
}

// LogParam records one hyperparameter.
func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	in := map[string]string{"run_id": runID, "key": key, "value": value}
	if err := c.call(ctx, http.MethodPost, "runs/log-parameter", nil, in, nil); err != nil {
		return c.fail("LogParam", runID+"/"+key, err)
	}
	return nil
}

// LogMetric records one metric value at step 0.
func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64) error {
	if err := errors.CheckScalar("LogMetric", value); err != nil {
		return c.fail("LogMetric", runID+"/"+key, err)
	}
	in := map[string]interface{}{
		"run_id":    runID,
		"key":       key,
		"value":     value,
		"timestamp": c.millis(),
		"step":      0,
	}
	if err := c.call(ctx, http.MethodPost, "runs/log-metric", nil, in, nil); err != nil {
		return c.fail("LogMetric", runID+"/"+key, err)
	}
	return nil
}

// ArtifactKey is the object key of a trained model artifact.
func (c *Client) ArtifactKey(name string) string {
	return c.cfg.TrainedDir + "/" + name + c.cfg.SaveFormat
}

// LogModel uploads the bundle to the model bucket, registers it under
// registeredName and returns the new model version.
func (c *Client) LogModel(ctx context.Context, runID string, bundle *model.Bundle, registeredName string) (string, error) {
	data, err := bundle.Encode()
	if err != nil {
		return "", c.fail("LogModel", bundle.Name, err)
	}
	key := c.ArtifactKey(bundle.Name)
	if err := c.artifacts.WriteBytes(ctx, data, c.cfg.ModelBucket, key, "application/octet-stream"); err != nil {
		return "", c.fail("LogModel", bundle.Name, err)
	}

	err = c.call(ctx, http.MethodPost, "registered-models/create", nil,
		map[string]string{"name": registeredName}, nil)
	if err != nil && !hasCode(err, codeAlreadyExists) {
		return "", c.fail("LogModel", registeredName, err)
	}

	var out struct {
		ModelVersion struct {
			Version string `json:"version"`
		} `json:"model_version"`
	}
	in := map[string]string{
		"name":   registeredName,
		"source": fmt.Sprintf("s3://%s/%s", c.cfg.ModelBucket, key),
		"run_id": runID,
	}
	if err := c.call(ctx, http.MethodPost, "model-versions/create", nil, in, &out); err != nil {
		return "", c.fail("LogModel", registeredName, err)
	}
	c.logger.Info("logged model",
		log.ModelNameKey, registeredName,
		log.ModelVersionKey, out.ModelVersion.Version,
		log.TrackerRunKey, runID,
		log.ObjectKeyKey, key)
	return out.ModelVersion.Version, nil
}

// Promote transitions a model version to Staging or Production. Any other
// stage raises a StageWarning and changes nothing.
func (c *Client) Promote(ctx context.Context, name, version, stage string) error {
	if stage != StageStaging && stage != StageProduction {
		errors.Warn(errors.NewStageWarning("MLFlowOperation", "Promote",
			fmt.Sprintf("unsupported stage %q for %s version %s, skipped", stage, name, version)))
		return nil
	}
	in := map[string]interface{}{
		"name":                      name,
		"version":                   version,
		"stage":                     stage,
		"archive_existing_versions": stage == StageProduction,
	}
	if err := c.call(ctx, http.MethodPost, "model-versions/transition-stage", nil, in, nil); err != nil {
		return c.fail("Promote", name+"/"+version, err)
	}
	c.logger.Info("promoted model",
		log.ModelNameKey, name, log.ModelVersionKey, version, log.ModelStageKey, stage)
	return nil
}

// SearchRuns returns every run of the experiment, newest first.
func (c *Client) SearchRuns(ctx context.Context, experimentID string) ([]Run, error) {
	var runs []Run
	token := ""
	for {
		in := map[string]interface{}{
			"experiment_ids": []string{experimentID},
			"order_by":       []string{"attributes.start_time DESC"},
			"max_results":    1000,
		}
		if token != "" {
			in["page_token"] = token
		}
		var out struct {
			Runs          []Run  `json:"runs"`
			NextPageToken string `json:"next_page_token"`
		}
		if err := c.call(ctx, http.MethodPost, "runs/search", nil, in, &out); err != nil {
			return nil, c.fail("SearchRuns", experimentID, err)
		}
		runs = append(runs, out.Runs...)
		if out.NextPageToken == "" {
			break
		}
		token = out.NextPageToken
	}
	c.logger.Debug("searched runs", "experiment_id", experimentID, "runs", len(runs))
	return runs, nil
}
