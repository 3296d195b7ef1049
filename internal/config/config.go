package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/csvbot/internal/utils"
)

// Global configuration structure.
type Global struct {
	Provider  string `mapstructure:"provider" yaml:"provider" validate:"oneof=openai ollama"`
	Model     string `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`

	// Web UI
	Addr              string `mapstructure:"addr" yaml:"addr" validate:"required"`
	RequirePassword   bool   `mapstructure:"require_password" yaml:"require_password"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes" yaml:"session_ttl_minutes" validate:"gt=0"`
	MaxUploadBytes    int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"gt=0"`
	MaxAgentSteps     int    `mapstructure:"max_agent_steps" yaml:"max_agent_steps" validate:"gt=0,lte=20"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec" validate:"gte=0"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts" validate:"gte=0"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms" validate:"gte=0"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms" validate:"gte=0"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Logging
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	Env     string `mapstructure:"env" yaml:"env" validate:"oneof=development production"`

	// Secrets never leave the secrets file or environment.
	Secrets Secrets `mapstructure:"-" yaml:"-"`
}

// Secrets holds values read from the secrets file (TOML), .env or the environment.
type Secrets struct {
	OpenAIAPIKey string
	Password     string
}

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is not set", e.Key)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".csvbot"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.csvbot/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return utils.SafeWriteFile(path, b)
}

// Load loads configuration from file, env, and defaults, then reads secrets.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile, secretsFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CSVBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider", "openai")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("addr", ":8501")
	v.SetDefault("require_password", true)
	v.SetDefault("session_ttl_minutes", 60)
	v.SetDefault("max_upload_bytes", 200<<20)
	v.SetDefault("max_agent_steps", 5)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("log_file", "")
	v.SetDefault("env", "development")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read; a present but malformed file is an error
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.LogFile == "" {
		if dir, err := configDir(); err == nil {
			c.LogFile = filepath.Join(dir, "logs", "csvbot.log")
		}
	}
	s, err := LoadSecrets(secretsFile)
	if err != nil {
		return nil, err
	}
	c.Secrets = s
	return &c, nil
}

// LoadSecrets reads OPENAI_API_KEY and password. A non-empty environment
// variable (OPENAI_API_KEY, CSVBOT_PASSWORD, possibly loaded from .env) wins
// over the TOML secrets file; the file supplies whatever the environment
// leaves unset.
func LoadSecrets(secretsFile string) (Secrets, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	if secretsFile != "" {
		v.SetConfigFile(secretsFile)
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return Secrets{}, fmt.Errorf("read secrets: %w", err)
		}
	} else {
		v.SetConfigName("secrets")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(".streamlit")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		_ = v.ReadInConfig()
	}
	_ = v.BindEnv("OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("password", "CSVBOT_PASSWORD")

	return Secrets{
		OpenAIAPIKey: v.GetString("OPENAI_API_KEY"),
		Password:     v.GetString("password"),
	}, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the secrets required by the chosen
// provider and password mode.
func (c *Global) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{Key: fe.Namespace(), Reason: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigurationError{Key: "config", Reason: err.Error()}
	}
	if c.Provider == "openai" && c.Secrets.OpenAIAPIKey == "" {
		return &ConfigurationError{Key: "OPENAI_API_KEY"}
	}
	if c.RequirePassword && c.Secrets.Password == "" {
		return &ConfigurationError{Key: "password"}
	}
	return nil
}
