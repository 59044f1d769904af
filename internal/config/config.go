// Package config provides configuration management for sharedrop.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/sharedrop/sharedrop/internal/constants"
)

// Config holds everything the client needs to talk to one share server.
//
// Config file location:
//   - Windows: %APPDATA%\sharedrop\config
//   - Unix: ~/.config/sharedrop/config
//
// INI format:
//
//	[server]
//	url = http://localhost:5000
//	max_retries = 0
//
//	[device]
//	name = build-box
//	platform = linux/amd64
//
//	[upload]
//	max_concurrent = 5
//	include_hidden = false
//
//	[proxy]
//	mode = no-proxy
//	host = proxy.corp
//	port = 3128
//	user = alice
//	no_proxy = localhost,127.0.0.1
//
//	[s3]
//	region = us-east-1
//	endpoint =
//	profile =
//
//	[azure]
//	account_url = https://acct.blob.core.windows.net
//	sas_token =
type Config struct {
	// Server settings
	ServerURL  string
	MaxRetries int // GET retries only; uploads and deletes are never retried

	// Device identity reported with uploads and deletes
	Device DeviceInfo

	// Upload settings
	MaxConcurrent int
	IncludeHidden bool

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never persisted; SHAREDROP_PROXY_PASSWORD or prompt
	NoProxy       string // Comma-separated list of hosts to bypass proxy

	// Remote drop sources
	S3    S3Config
	Azure AzureConfig
}

// DeviceInfo identifies this client to the server. It is passed explicitly
// into every request that reports the originating device.
type DeviceInfo struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// S3Config configures the s3:// drop source.
type S3Config struct {
	Region   string
	Endpoint string // custom endpoint for S3-compatible stores (MinIO etc.)
	Profile  string // shared config profile
}

// AzureConfig configures the az:// drop source.
type AzureConfig struct {
	AccountURL string
	SASToken   string
}

// Validation errors
var (
	ErrMissingServerURL     = errors.New("server url is required")
	ErrInvalidServerURL     = errors.New("server url must be an absolute http(s) URL")
	ErrInvalidMaxConcurrent = fmt.Errorf("max_concurrent must be between %d and %d", constants.MinMaxConcurrent, constants.MaxMaxConcurrent)
	ErrInvalidMaxRetries    = fmt.Errorf("max_retries must be between 0 and %d", constants.MaxRetriesLimit)
	ErrInvalidProxyMode     = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
)

// Environment variables consulted by MergeWithEnv.
const (
	EnvServerURL     = "SHAREDROP_URL"
	EnvDeviceName    = "SHAREDROP_DEVICE_NAME"
	EnvProxyPassword = "SHAREDROP_PROXY_PASSWORD"
)

// DefaultDeviceInfo derives a device identity from the host, the way the
// browser client used the user agent and platform.
func DefaultDeviceInfo() DeviceInfo {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = constants.DefaultDeviceName
	}
	return DeviceInfo{
		Name:     name,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// JSON returns the wire form of the device info (the device_info form field).
func (d DeviceInfo) JSON() string {
	data, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		ServerURL:     constants.DefaultServerURL,
		MaxRetries:    constants.DefaultMaxRetries,
		Device:        DefaultDeviceInfo(),
		MaxConcurrent: constants.DefaultMaxConcurrent,
		ProxyMode:     "no-proxy",
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // Return defaults if we can't determine path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	server := iniFile.Section("server")
	cfg.ServerURL = server.Key("url").MustString(cfg.ServerURL)
	cfg.MaxRetries = server.Key("max_retries").MustInt(cfg.MaxRetries)

	device := iniFile.Section("device")
	cfg.Device.Name = device.Key("name").MustString(cfg.Device.Name)
	cfg.Device.Platform = device.Key("platform").MustString(cfg.Device.Platform)

	upload := iniFile.Section("upload")
	cfg.MaxConcurrent = upload.Key("max_concurrent").MustInt(cfg.MaxConcurrent)
	cfg.IncludeHidden = upload.Key("include_hidden").MustBool(false)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = strings.ToLower(proxy.Key("mode").MustString(cfg.ProxyMode))
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	s3 := iniFile.Section("s3")
	cfg.S3.Region = s3.Key("region").String()
	cfg.S3.Endpoint = s3.Key("endpoint").String()
	cfg.S3.Profile = s3.Key("profile").String()

	az := iniFile.Section("azure")
	cfg.Azure.AccountURL = az.Key("account_url").String()
	cfg.Azure.SASToken = az.Key("sas_token").String()

	return cfg, nil
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist. The proxy password is never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sections := []struct {
		name   string
		values [][2]string
	}{
		{"server", [][2]string{
			{"url", cfg.ServerURL},
			{"max_retries", fmt.Sprintf("%d", cfg.MaxRetries)},
		}},
		{"device", [][2]string{
			{"name", cfg.Device.Name},
			{"platform", cfg.Device.Platform},
		}},
		{"upload", [][2]string{
			{"max_concurrent", fmt.Sprintf("%d", cfg.MaxConcurrent)},
			{"include_hidden", fmt.Sprintf("%t", cfg.IncludeHidden)},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", fmt.Sprintf("%d", cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
		}},
		{"s3", [][2]string{
			{"region", cfg.S3.Region},
			{"endpoint", cfg.S3.Endpoint},
			{"profile", cfg.S3.Profile},
		}},
		{"azure", [][2]string{
			{"account_url", cfg.Azure.AccountURL},
			{"sas_token", cfg.Azure.SASToken},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.values {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// The SAS token is sensitive
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// MergeWithEnv applies environment overrides. Priority: flags > environment > file > defaults,
// so callers apply MergeWithFlags after this.
func (cfg *Config) MergeWithEnv() {
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(EnvDeviceName); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv(EnvProxyPassword); v != "" {
		cfg.ProxyPassword = v
	}
}

// MergeWithFlags applies non-empty flag values on top of the configuration.
func (cfg *Config) MergeWithFlags(serverURL, deviceName string, maxConcurrent int) {
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if deviceName != "" {
		cfg.Device.Name = deviceName
	}
	if maxConcurrent > 0 {
		cfg.MaxConcurrent = maxConcurrent
	}
}

// Validate checks if the configuration is usable.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return ErrMissingServerURL
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidServerURL
	}
	if cfg.MaxConcurrent < constants.MinMaxConcurrent || cfg.MaxConcurrent > constants.MaxMaxConcurrent {
		return ErrInvalidMaxConcurrent
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > constants.MaxRetriesLimit {
		return ErrInvalidMaxRetries
	}
	switch cfg.ProxyMode {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	return nil
}
