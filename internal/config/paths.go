package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/sharedrop/sharedrop/internal/constants"
)

// ConfigDirectory returns the directory holding the config file.
//
// Locations:
//   - Windows: %APPDATA%\sharedrop
//   - Unix: ~/.config/sharedrop
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName), nil
		}
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", herr
		}
		return filepath.Join(homeDir, ".config", constants.AppName), nil
	}
	return filepath.Join(configDir, constants.AppName), nil
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DownloadDirectory returns the default directory for downloaded and fetched files.
// Falls back to the working directory when no home directory is available.
func DownloadDirectory() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	dir := filepath.Join(homeDir, "Downloads")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return "."
}
