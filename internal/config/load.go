package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the fully merged, parsed, and validated configuration the
// commands consume. Sizes are bytes and durations are parsed.
type Resolved struct {
	ConfigPath string
	DataDir    string

	ClientID     string
	ClientSecret string

	ChunkSize        int64
	ParallelUploads  int
	BandwidthLimit   int64 // bytes/s, 0 = unlimited
	MinFileSize      int64
	UploadEverything bool
	SettleDelay      time.Duration

	ShareEnabled bool
	DirectLink   bool

	FeedAddr string

	LogLevel  string
	LogFormat string

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	UserAgent      string
}

// TokenPath is the token file for this configuration's data directory.
func (r *Resolved) TokenPath() string { return TokenPath(r.DataDir) }

// StatePath is the state database for this configuration's data directory.
func (r *Resolved) StatePath() string { return StatePath(r.DataDir) }

// PIDPath is the watch PID file for this configuration's data directory.
func (r *Resolved) PIDPath() string { return PIDPath(r.DataDir) }

// HasClientCredentials reports whether an OAuth2 client is configured.
func (r *Resolved) HasClientCredentials() bool {
	return r.ClientID != ""
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ClientID != "" {
		cfg.Auth.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.Auth.ClientSecret = env.ClientSecret
	}

	if cli.ChunkSize != "" {
		cfg.Upload.ChunkSize = cli.ChunkSize
	}

	if cli.FeedAddr != "" {
		cfg.Feed.ListenAddr = cli.FeedAddr
	}

	if cli.DirectLink != nil {
		cfg.Share.DirectLink = *cli.DirectLink
	}

	if cli.NoShare != nil && *cli.NoShare {
		cfg.Share.Enabled = false
	}

	// Flags can introduce new invalid values, so validate the merged result.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	dataDir := DefaultDataDir()
	if env.DataDir != "" {
		dataDir = env.DataDir
	}

	if cli.DataDir != "" {
		dataDir = cli.DataDir
	}

	if dataDir == "" {
		return nil, fmt.Errorf("cannot determine data directory; set %s or --data-dir", EnvDataDir)
	}

	return resolve(cfg, cfgPath, dataDir), nil
}

// resolve converts a validated Config. Parse errors are impossible here
// because Validate already accepted every value.
func resolve(cfg *Config, cfgPath, dataDir string) *Resolved {
	chunk, _ := ParseSize(cfg.Upload.ChunkSize)             //nolint:errcheck // validated
	limit, _ := ParseSize(cfg.Upload.BandwidthLimit)        //nolint:errcheck // validated
	minSize, _ := ParseSize(cfg.Upload.MinFileSize)         //nolint:errcheck // validated
	settle, _ := parseDuration(cfg.Upload.SettleDelay)      //nolint:errcheck // validated
	connect, _ := parseDuration(cfg.Network.ConnectTimeout) //nolint:errcheck // validated
	data, _ := parseDuration(cfg.Network.DataTimeout)       //nolint:errcheck // validated

	return &Resolved{
		ConfigPath:       cfgPath,
		DataDir:          dataDir,
		ClientID:         cfg.Auth.ClientID,
		ClientSecret:     cfg.Auth.ClientSecret,
		ChunkSize:        chunk,
		ParallelUploads:  cfg.Upload.ParallelUploads,
		BandwidthLimit:   limit,
		MinFileSize:      minSize,
		UploadEverything: cfg.Upload.UploadEverything,
		SettleDelay:      settle,
		ShareEnabled:     cfg.Share.Enabled,
		DirectLink:       cfg.Share.DirectLink,
		FeedAddr:         cfg.Feed.ListenAddr,
		LogLevel:         cfg.Logging.LogLevel,
		LogFormat:        cfg.Logging.LogFormat,
		ConnectTimeout:   connect,
		DataTimeout:      data,
		UserAgent:        cfg.Network.UserAgent,
	}
}

// parseDuration accepts Go duration syntax; empty and "0" are zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	return time.ParseDuration(s)
}
