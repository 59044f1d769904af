// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/events"
	"github.com/sharedrop/sharedrop/internal/realtime"
	"github.com/sharedrop/sharedrop/internal/version"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sharedrop configuration",
		Long: `Configuration management commands for sharedrop.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the server connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for sharedrop.

The configuration is saved to ~/.config/sharedrop/config (or --config).

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			configPath, err := resolvedConfigPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
			}

			cfg, err := runConfigInit(bufio.NewReader(os.Stdin), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if err := config.Save(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			logger.Info().Str("path", configPath).Msg("Configuration saved")

			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration saved to: %s\n", configPath)
			if cfg.ProxyUser != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  The proxy password is never stored: set %s or enter it when asked.\n", config.EnvProxyPassword)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test your configuration with: sharedrop config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigInit asks for each setting, offering the defaults.
func runConfigInit(reader *bufio.Reader, out io.Writer) (*config.Config, error) {
	cfg := config.NewConfig()

	fmt.Fprintln(out, "sharedrop Configuration Setup")
	fmt.Fprintln(out, "=============================")
	fmt.Fprintln(out)

	cfg.ServerURL = promptLine(reader, out, "Server URL", cfg.ServerURL)
	cfg.Device.Name = promptLine(reader, out, "Device name", cfg.Device.Name)

	concurrent := promptLine(reader, out, "Concurrent uploads per batch", strconv.Itoa(cfg.MaxConcurrent))
	if v, err := strconv.Atoi(concurrent); err == nil && v > 0 {
		cfg.MaxConcurrent = v
	}

	fmt.Fprintln(out)
	if answer := promptLine(reader, out, "Configure proxy? [y/N]", ""); isYes(answer) {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.ProxyMode = strings.ToLower(promptLine(reader, out, "Proxy mode", "system"))
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			cfg.ProxyHost = promptLine(reader, out, "Proxy host", "")
			if v, err := strconv.Atoi(promptLine(reader, out, "Proxy port", "8080")); err == nil && v > 0 {
				cfg.ProxyPort = v
			}
			cfg.ProxyUser = promptLine(reader, out, "Proxy user (empty for none)", "")
			cfg.NoProxy = promptLine(reader, out, "Hosts that bypass the proxy", "localhost,127.0.0.1")
		}
	}

	fmt.Fprintln(out)
	if answer := promptLine(reader, out, "Configure S3 drops? [y/N]", ""); isYes(answer) {
		cfg.S3.Region = promptLine(reader, out, "S3 region", "us-east-1")
		cfg.S3.Endpoint = promptLine(reader, out, "Custom endpoint (empty for AWS)", "")
		cfg.S3.Profile = promptLine(reader, out, "AWS profile (empty for default)", "")
	}
	if answer := promptLine(reader, out, "Configure Azure drops? [y/N]", ""); isYes(answer) {
		cfg.Azure.AccountURL = promptLine(reader, out, "Account URL", "")
		cfg.Azure.SASToken = promptLine(reader, out, "SAS token", "")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func isYes(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/sharedrop/config)
  2. Environment variables (SHAREDROP_URL, SHAREDROP_DEVICE_NAME, SHAREDROP_PROXY_PASSWORD)
  3. Command-line flags (--server, --device-name)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolvedConfigPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeWithEnv()
			cfg.MergeWithFlags(serverURL, deviceName, 0)

			printConfig(cmd.OutOrStdout(), cfg)

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file: %s\n", configPath)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist - using defaults)")
			}
			return nil
		},
	}

	return cmd
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  URL:         %s\n", cfg.ServerURL)
	fmt.Fprintf(w, "  Max Retries: %d (GET requests only)\n", cfg.MaxRetries)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Device:")
	fmt.Fprintf(w, "  Name:     %s\n", cfg.Device.Name)
	fmt.Fprintf(w, "  Platform: %s\n", cfg.Device.Platform)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Upload:")
	fmt.Fprintf(w, "  Max Concurrent: %d\n", cfg.MaxConcurrent)
	fmt.Fprintf(w, "  Include Hidden: %t\n", cfg.IncludeHidden)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Port: %d\n", cfg.ProxyPort)
	}
	if cfg.ProxyUser != "" {
		fmt.Fprintf(w, "  User: %s\n", cfg.ProxyUser)
		if cfg.ProxyPassword != "" {
			fmt.Fprintln(w, "  Password: <set>")
		} else {
			fmt.Fprintln(w, "  Password: <not set>")
		}
	}
	fmt.Fprintln(w)

	if cfg.S3 != (config.S3Config{}) {
		fmt.Fprintln(w, "S3:")
		fmt.Fprintf(w, "  Region:   %s\n", cfg.S3.Region)
		if cfg.S3.Endpoint != "" {
			fmt.Fprintf(w, "  Endpoint: %s\n", cfg.S3.Endpoint)
		}
		if cfg.S3.Profile != "" {
			fmt.Fprintf(w, "  Profile:  %s\n", cfg.S3.Profile)
		}
		fmt.Fprintln(w)
	}
	if cfg.Azure.AccountURL != "" {
		fmt.Fprintln(w, "Azure:")
		fmt.Fprintf(w, "  Account URL: %s\n", cfg.Azure.AccountURL)
		if cfg.Azure.SASToken != "" {
			// Never display any portion of the token
			fmt.Fprintf(w, "  SAS Token:   <set (%d chars)>\n", len(cfg.Azure.SASToken))
		}
		fmt.Fprintln(w)
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the server connection",
		Long: `Test HTTP and real-time connectivity with the current configuration.

Use this to verify the server URL and proxy settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Testing Server Connection")
			fmt.Fprintln(out, "=========================")
			fmt.Fprintln(out)

			apiClient, err := getAPIClient()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Server URL: %s\n", apiClient.BaseURL())
			fmt.Fprintln(out, "Testing connection...")
			fmt.Fprintln(out)

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			status, err := pingServer(ctx, apiClient.HTTPClient(), apiClient.BaseURL()+"/")
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ HTTP connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}
			fmt.Fprintf(out, "✓ HTTP connection SUCCESSFUL (status %d)\n", status)

			bus := events.NewEventBus(constants.EventBusDefaultBuffer)
			defer bus.Close()
			rt, err := realtime.NewClient(apiClient.BaseURL(), apiClient.HTTPClient(), bus, logger)
			if err != nil {
				return err
			}
			runCtx, stop := context.WithCancel(ctx)
			defer stop()
			go func() { _ = rt.Run(runCtx) }()

			if err := rt.WaitConnected(ctx); err != nil {
				logger.Error().Err(err).Msg("Real-time test failed")
				fmt.Fprintln(out, "✗ Real-time channel FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}
			fmt.Fprintln(out, "✓ Real-time channel SUCCESSFUL")

			logger.Info().Msg("Connection test successful")
			return nil
		},
	}

	return cmd
}

// pingServer issues a GET against the server root and returns the status code.
// Any response below 500 proves the server is reachable.
func pingServer(ctx context.Context, client *nethttp.Client, url string) (int, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("server returned %s", resp.Status)
	}
	return resp.StatusCode, nil
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			configPath, err := resolvedConfigPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}

			fmt.Fprintf(out, "  %s\n", configPath)
			fmt.Fprintln(out)

			if fileInfo, err := os.Stat(configPath); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", fileInfo.Size())
				fmt.Fprintf(out, "Modified: %s\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: sharedrop config init")
			}

			return nil
		},
	}

	return cmd
}
