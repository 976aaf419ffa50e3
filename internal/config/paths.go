package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "gdrive-upload"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	tokenFileName  = "token.json"
	stateFileName  = "uploads.db"
	pidFileName    = "watch.pid"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/gdrive-upload).
// On macOS, uses ~/Library/Application Support/gdrive-upload.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the token, the
// upload state database, and the watch PID file.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/gdrive-upload).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, home, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// TokenPath returns the OAuth2 token file inside dataDir.
func TokenPath(dataDir string) string {
	return filepath.Join(dataDir, tokenFileName)
}

// StatePath returns the upload state database inside dataDir.
func StatePath(dataDir string) string {
	return filepath.Join(dataDir, stateFileName)
}

// PIDPath returns the watch command's PID file inside dataDir.
func PIDPath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}
