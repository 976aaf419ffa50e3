package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "GDRIVE_UPLOAD_CONFIG"
	EnvClientID     = "GDRIVE_UPLOAD_CLIENT_ID"
	EnvClientSecret = "GDRIVE_UPLOAD_CLIENT_SECRET"
	EnvDataDir      = "GDRIVE_UPLOAD_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string
	ClientID     string
	ClientSecret string
	DataDir      string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		DataDir:      os.Getenv(EnvDataDir),
	}
}
