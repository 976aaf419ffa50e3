package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validation range constants.
const (
	chunkAlignBytes    = 256 * kibibyte // Drive resumable chunk granularity
	maxChunkBytes      = 256 * mebibyte
	minParallelUploads = 1
	maxParallelUploads = 16
	maxSettleDelay     = 10 * time.Minute
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns every error found,
// joined, so a user can fix the whole file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateFeed(&cfg.Feed)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	chunk, err := ParseSize(u.ChunkSize)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	case chunk <= 0:
		errs = append(errs, fmt.Errorf("chunk_size: must be positive"))
	case chunk%chunkAlignBytes != 0:
		errs = append(errs, fmt.Errorf("chunk_size: must be a multiple of 256 KiB, got %d bytes", chunk))
	case chunk > maxChunkBytes:
		errs = append(errs, fmt.Errorf("chunk_size: must be at most 256 MiB, got %d bytes", chunk))
	}

	if u.ParallelUploads < minParallelUploads || u.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, u.ParallelUploads))
	}

	if _, err := ParseSize(u.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	if _, err := ParseSize(u.MinFileSize); err != nil {
		errs = append(errs, fmt.Errorf("min_file_size: %w", err))
	}

	if d, err := parseDuration(u.SettleDelay); err != nil {
		errs = append(errs, fmt.Errorf("settle_delay: %w", err))
	} else if d < 0 || d > maxSettleDelay {
		errs = append(errs, fmt.Errorf("settle_delay: must be between 0 and %s, got %s", maxSettleDelay, d))
	}

	return errs
}

func validateFeed(f *FeedConfig) []error {
	if f.ListenAddr == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(f.ListenAddr); err != nil {
		return []error{fmt.Errorf("listen_addr: %w", err)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !oneOf(l.LogLevel, validLogLevels) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !oneOf(l.LogFormat, validLogFormats) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(n.ConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("connect_timeout: %w", err))
	} else if d < minConnectTimeout {
		errs = append(errs, fmt.Errorf("connect_timeout: must be at least %s, got %s", minConnectTimeout, d))
	}

	if d, err := time.ParseDuration(n.DataTimeout); err != nil {
		errs = append(errs, fmt.Errorf("data_timeout: %w", err))
	} else if d < minDataTimeout {
		errs = append(errs, fmt.Errorf("data_timeout: must be at least %s, got %s", minDataTimeout, d))
	}

	return errs
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}

	return false
}
