package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/csvbot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set CSV Bot configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		printConfig(cmd.OutOrStdout(), c)
		return nil
	},
}

func printConfig(w io.Writer, c *cfgpkg.Global) {
	fmt.Fprintf(w, "provider: %s\n", c.Provider)
	fmt.Fprintf(w, "model: %s\n", c.Model)
	if c.BaseURL != "" {
		fmt.Fprintf(w, "base_url: %s\n", c.BaseURL)
	}
	if c.Provider == "ollama" {
		fmt.Fprintf(w, "ollama_host: %s\n", c.OllamaHost)
	}
	fmt.Fprintf(w, "max_tokens: %d\n", c.MaxTokens)
	fmt.Fprintf(w, "max_agent_steps: %d\n", c.MaxAgentSteps)
	fmt.Fprintf(w, "addr: %s\n", c.Addr)
	fmt.Fprintf(w, "require_password: %t\n", c.RequirePassword)
	fmt.Fprintf(w, "session_ttl_minutes: %d\n", c.SessionTTLMinutes)
	fmt.Fprintf(w, "max_upload_bytes: %d\n", c.MaxUploadBytes)
	fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
	fmt.Fprintf(w, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
	fmt.Fprintf(w, "retry_base_delay_ms: %d\n", c.RetryBaseDelayMs)
	fmt.Fprintf(w, "retry_max_delay_ms: %d\n", c.RetryMaxDelayMs)
	fmt.Fprintf(w, "log_file: %s\n", c.LogFile)
	fmt.Fprintf(w, "env: %s\n", c.Env)
	fmt.Fprintf(w, "OPENAI_API_KEY: %s\n", mask(c.Secrets.OpenAIAPIKey))
	if c.Secrets.Password != "" {
		fmt.Fprintln(w, "password: (set)")
	} else {
		fmt.Fprintln(w, "password: (not set)")
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setKey(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "provider":
		switch strings.ToLower(val) {
		case "openai":
			c.Provider = "openai"
		case "ollama", "local":
			c.Provider = "ollama"
		default:
			return fmt.Errorf("invalid provider: %s (use openai or ollama)", val)
		}
	case "model":
		c.Model = val
	case "base_url":
		c.BaseURL = val
	case "ollama_host":
		c.OllamaHost = val
	case "addr":
		c.Addr = val
	case "log_file":
		c.LogFile = val
	case "env":
		if val != "development" && val != "production" {
			return fmt.Errorf("invalid env: %s (use development or production)", val)
		}
		c.Env = val
	case "require_password":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for require_password: %w", perr)
		}
		c.RequirePassword = b
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "max_agent_steps":
		c.MaxAgentSteps, err = atoi()
	case "session_ttl_minutes":
		c.SessionTTLMinutes, err = atoi()
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "max_upload_bytes":
		n, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil || n <= 0 {
			return fmt.Errorf("invalid size for max_upload_bytes: %v", val)
		}
		c.MaxUploadBytes = n
	case "OPENAI_API_KEY", "openai_api_key", "password":
		return fmt.Errorf("%s is a secret: put it in secrets.toml, .env or the environment", key)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
