package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the server. It is populated once
// at startup from environment variables and command-line flags and is
// never mutated afterwards.
type Config struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`

	// Model provisioning. RemoteModelURI is the GCS_MODEL_URI variable;
	// when set it is authoritative and its contents are downloaded into
	// LocalModelDir before the captioner loads.
	ModelFamily     string `mapstructure:"model_family"`
	LocalModelDir   string `mapstructure:"local_model_dir"`
	RemoteModelURI  string `mapstructure:"gcs_model_uri"`
	AllowHFFallback bool   `mapstructure:"allow_hf_fallback"`
	HFModelName     string `mapstructure:"hf_model_name"`

	// Decoding parameters handed to the captioner.
	BeamSize     int `mapstructure:"beam_size"`
	MaxNewTokens int `mapstructure:"max_new_tokens"`
}

var config *Config

// envBindings maps viper keys to the exact environment variable names the
// deployment contract uses. These are bound verbatim, without a prefix.
var envBindings = map[string]string{
	"port":              "PORT",
	"host":              "HOST",
	"environment":       "ENVIRONMENT",
	"model_family":      "MODEL_FAMILY",
	"local_model_dir":   "LOCAL_MODEL_DIR",
	"gcs_model_uri":     "GCS_MODEL_URI",
	"allow_hf_fallback": "ALLOW_HF_FALLBACK",
	"hf_model_name":     "HF_MODEL_NAME",
	"beam_size":         "BEAM_SIZE",
	"max_new_tokens":    "MAX_NEW_TOKENS",
}

// LoadEnvFile loads a .env file if one exists at the given path. A missing
// file is not an error; local dev may not have one.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	return nil
}

// BindEnv registers every contract environment variable with viper and
// installs the defaults. Called from the root command before any
// subcommand runs.
func BindEnv() {
	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("host", DefaultHost)
	viper.SetDefault("environment", DefaultEnvironment)
	viper.SetDefault("model_family", DefaultModelFamily)
	viper.SetDefault("local_model_dir", DefaultLocalModelDir)
	viper.SetDefault("hf_model_name", DefaultHFModelName)
	viper.SetDefault("beam_size", DefaultBeamSize)
	viper.SetDefault("max_new_tokens", DefaultMaxNewTokens)
}

// LoadConfig unmarshals the bound settings into the package singleton and
// validates them. Any violation here is a configuration error: the
// process must not start.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	config = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.LocalModelDir == "" {
		return ErrLocalModelDirUnset
	}
	if c.BeamSize < 1 {
		return ErrBadBeamSize
	}
	if c.MaxNewTokens < 1 {
		return ErrBadTokenBudget
	}

	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic(ErrConfigNotLoaded)
	}

	return config
}
