package config

// Default values for configuration options, the first layer of the override
// chain. They work without any config file.
const (
	defaultChunkSize       = "2560KiB"
	defaultParallelUploads = 4
	defaultBandwidthLimit  = "0"
	defaultMinFileSize     = "8MiB"
	defaultSettleDelay     = "2s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Upload: UploadConfig{
			ChunkSize:       defaultChunkSize,
			ParallelUploads: defaultParallelUploads,
			BandwidthLimit:  defaultBandwidthLimit,
			MinFileSize:     defaultMinFileSize,
			SettleDelay:     defaultSettleDelay,
		},
		Share: ShareConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
