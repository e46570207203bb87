package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")

	out, err := execute(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	params, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().S3Bucket, params.S3Bucket)
	assert.Equal(t, config.Default().TrainModel, params.TrainModel)

	_, err = execute(t, "init-config", path)
	assert.Error(t, err, "existing file is kept without --force")

	_, err = execute(t, "init-config", "--force", path)
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aps "+version)
}

func TestLoad_InvalidMode(t *testing.T) {
	_, err := execute(t, "load", "--mode", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestPredict_LocalWithoutModel(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "params.yaml")
	require.NoError(t, config.Write(cfg, config.Default(), false))

	_, err := execute(t, "predict", "--config", cfg, "--local", filepath.Join(dir, "buckets"), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DataGetter.GetData")

	_, statErr := os.Stat(filepath.Join(dir, "buckets"))
	assert.NoError(t, statErr)
}
