package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/csvbot/internal/agent"
	"github.com/KaramelBytes/csvbot/internal/ai"
	cfgpkg "github.com/KaramelBytes/csvbot/internal/config"
	"github.com/KaramelBytes/csvbot/internal/csvquery"
	"github.com/KaramelBytes/csvbot/internal/logger"
)

var (
	cfgFile     string
	secretsFile string
	debug       bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration; cfgErr holds the load failure, if any.
	cfg    *cfgpkg.Global
	cfgErr error
	appLog logger.Logger = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "csvbot",
	Short: "CSV Bot: ask questions about a CSV file in plain language",
	Long: `CSV Bot loads a CSV file as a table and answers questions about it with an
LLM agent (OpenAI or a local Ollama). Run "csvbot serve" for the password
protected web UI, or "csvbot ask" from the terminal.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = appLog.Sync()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.csvbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&secretsFile, "secrets", "", "secrets file with OPENAI_API_KEY and password (default: secrets.toml in ., .streamlit or ~/.csvbot)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	cfg, cfgErr = nil, nil
	c, err := cfgpkg.Load(cfgFile, secretsFile)
	if err != nil {
		// Non-fatal: analyze works without config
		cfgErr = err
		appLog = logger.New(logger.Config{Debug: debug})
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}

	appLog = logger.New(logger.Config{
		FilePath:   cfg.LogFile,
		Production: cfg.Env == "production",
		Debug:      debug,
	})
}

// requireConfig returns the loaded config or the reason it is missing.
func requireConfig() (*cfgpkg.Global, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, &cfgpkg.ConfigurationError{Key: "config", Reason: "not loaded"}
	}
	return cfg, nil
}

func newRuntime(c *cfgpkg.Global) (ai.Runtime, error) {
	return ai.MustRuntime(c.Provider, ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.Secrets.OpenAIAPIKey,
		BaseURL:     c.BaseURL,
		Host:        c.OllamaHost,
	})
}

// newQueryService builds the CSV query service backed by the configured LLM.
func newQueryService(c *cfgpkg.Global) (*csvquery.Service, error) {
	rt, err := newRuntime(c)
	if err != nil {
		return nil, err
	}
	factory := agent.NewFactory(rt, agent.Options{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		MaxSteps:  c.MaxAgentSteps,
		Logger:    appLog,
	})
	return csvquery.New(factory, csvquery.WithLogger(appLog)), nil
}
