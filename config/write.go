package config

import (
	"os"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Marshal renders params as YAML in the layout Load expects.
func Marshal(p *Params) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode params")
	}
	return data, nil
}

// Write saves params to path. An existing file is only replaced when
// overwrite is set.
func Write(path string, p *Params, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("config file %s already exists", path)
		}
	}
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}
