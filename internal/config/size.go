package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Size multiplier constants (decimal / SI).
const (
	kilobyte = 1000
	megabyte = 1000 * kilobyte
	gigabyte = 1000 * megabyte
	terabyte = 1000 * gigabyte
)

// Size multiplier constants (binary / IEC).
const (
	kibibyte = 1024
	mebibyte = 1024 * kibibyte
	gibibyte = 1024 * mebibyte
	tebibyte = 1024 * gibibyte
)

// sizeSuffixes is ordered longest first so "KIB" wins over "B".
var sizeSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"TIB", tebibyte},
	{"GIB", gibibyte},
	{"MIB", mebibyte},
	{"KIB", kibibyte},
	{"TB", terabyte},
	{"GB", gigabyte},
	{"MB", megabyte},
	{"KB", kilobyte},
	{"B", 1},
}

// ParseSize converts a human-readable size string to bytes. Both SI (KB, MB)
// and IEC (KiB, MiB) suffixes are accepted, case-insensitively. A trailing
// "/s" is ignored so rates like "5MB/s" parse. Empty string and "0" are 0;
// a bare number is raw bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "/s")

	if s == "" || s == "0" {
		return 0, nil
	}

	upper := strings.ToUpper(s)

	for _, sf := range sizeSuffixes {
		if strings.HasSuffix(upper, sf.suffix) {
			numStr := strings.TrimSpace(s[:len(s)-len(sf.suffix)])

			return parseSizeNumber(numStr, sf.multiplier, s)
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return n, nil
}

func parseSizeNumber(numStr string, multiplier int64, original string) (int64, error) {
	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", original, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", original)
	}

	return int64(n * float64(multiplier)), nil
}
