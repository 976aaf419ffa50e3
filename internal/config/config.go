// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gdrive-upload. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Upload  UploadConfig  `toml:"upload"`
	Share   ShareConfig   `toml:"share"`
	Feed    FeedConfig    `toml:"feed"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// AuthConfig holds the OAuth2 client registration of the installed app.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// UploadConfig controls chunking, concurrency, and which files are sent.
// chunk_size must be a multiple of 256 KiB per the Drive resumable protocol.
type UploadConfig struct {
	ChunkSize        string `toml:"chunk_size"`
	ParallelUploads  int    `toml:"parallel_uploads"`
	BandwidthLimit   string `toml:"bandwidth_limit"`
	MinFileSize      string `toml:"min_file_size"`
	UploadEverything bool   `toml:"upload_everything"`
	SettleDelay      string `toml:"settle_delay"`
}

// ShareConfig controls the post-upload public link.
type ShareConfig struct {
	Enabled    bool `toml:"enabled"`
	DirectLink bool `toml:"direct_link"`
}

// FeedConfig controls the local WebSocket progress feed.
type FeedConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig controls log output level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags. Empty strings and nil pointers
// mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	DataDir    string // --data-dir
	ChunkSize  string // --chunk-size
	FeedAddr   string // --feed-addr
	DirectLink *bool  // --direct-link
	NoShare    *bool  // --no-share
}
