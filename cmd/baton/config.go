package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sethgrantham/baton/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify baton configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/baton/config.yaml
Project-specific overrides can be placed in .baton.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default user config",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Config already exists at %s\n", path)
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		template := `# baton configuration
# Project-level overrides go in .baton.yaml next to your playbook.

anthropic:
  # api_key: sk-ant-...        # or set ANTHROPIC_API_KEY
  # model: claude-sonnet-4-20250514
  # use_aws_bedrock: false
  # aws_region: us-west-2
  # aws_profile: default

executor:
  # Stop the run after this many subtask failures. 0 = no limit.
  max_failures: 0
  # Ask the configured model for an advisory response when a run
  # cannot complete.
  fallback_enabled: true
  # Write a debug log to .baton/logs/executor-debug.log
  debug_log: false

events:
  buffer_size: 256

state:
  # retain_runs: 720h

tui:
  enabled: true
  refresh_rate: 100ms
`
		if err := os.WriteFile(path, []byte(template), 0600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	apiKey, _ := config.GetAPIKey(cfg)
	fmt.Printf("anthropic.api_key: %s (source: %s)\n",
		config.MaskAPIKey(apiKey), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("executor.max_failures: %d\n", cfg.Executor.MaxFailures)
	fmt.Printf("executor.fallback_enabled: %t\n", cfg.Executor.FallbackEnabled)
	fmt.Printf("executor.debug_log: %t\n", cfg.Executor.DebugLog)
	fmt.Printf("events.buffer_size: %d\n", cfg.Events.BufferSize)
	fmt.Printf("state.db_path: %s\n", cfg.State.DBPath)
	fmt.Printf("state.retain_runs: %s\n", cfg.State.RetainRuns)
	fmt.Printf("tui.enabled: %t\n", cfg.TUI.Enabled)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "executor.max_failures":
		return strconv.Itoa(cfg.Executor.MaxFailures), nil
	case "executor.fallback_enabled":
		return strconv.FormatBool(cfg.Executor.FallbackEnabled), nil
	case "executor.debug_log":
		return strconv.FormatBool(cfg.Executor.DebugLog), nil
	case "events.buffer_size":
		return strconv.Itoa(cfg.Events.BufferSize), nil
	case "state.db_path":
		return cfg.State.DBPath, nil
	case "state.retain_runs":
		return cfg.State.RetainRuns.String(), nil
	case "tui.enabled":
		return strconv.FormatBool(cfg.TUI.Enabled), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "executor.max_failures":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_failures: %w", err)
		}
		cfg.Executor.MaxFailures = n
	case "executor.fallback_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for fallback_enabled: %w", err)
		}
		cfg.Executor.FallbackEnabled = b
	case "executor.debug_log":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for debug_log: %w", err)
		}
		cfg.Executor.DebugLog = b
	case "events.buffer_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for buffer_size: %w", err)
		}
		cfg.Events.BufferSize = n
	case "state.db_path":
		cfg.State.DBPath = value
	case "state.retain_runs":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for retain_runs: %w", err)
		}
		cfg.State.RetainRuns = d
	case "tui.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for tui.enabled: %w", err)
		}
		cfg.TUI.Enabled = b
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
