package config

import (
	"strings"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. APS_PCA_MODEL_N_COMPONENTS.
const EnvPrefix = "APS"

// DefaultPath is the parameter file looked up when no path is given.
const DefaultPath = "params.yaml"

// Load reads the parameter file at path, applies defaults and environment
// overrides and validates the result. An empty path falls back to
// DefaultPath; a missing default file is not an error.
func Load(path string) (*Params, error) {
	v := newViper()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || isMissingFile(err)) {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper loads parameters using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Params, error) {
	var params Params
	if err := v.Unmarshal(&params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

// Default returns the default parameters without reading any file or
// environment variable.
func Default() *Params {
	v := viper.New()
	SetDefaults(v)
	var params Params
	// デフォルト値は常にデコード可能
	_ = v.Unmarshal(&params)
	return &params
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	return v
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}
