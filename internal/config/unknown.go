package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSectionKeys lists the valid keys of each config section.
var knownSectionKeys = map[string][]string{
	"auth":    {"client_id", "client_secret"},
	"upload":  {"bandwidth_limit", "chunk_size", "min_file_size", "parallel_uploads", "settle_delay", "upload_everything"},
	"share":   {"direct_link", "enabled"},
	"feed":    {"listen_addr"},
	"logging": {"log_format", "log_level"},
	"network": {"connect_timeout", "data_timeout", "user_agent"},
}

// knownSections is the sorted list of section names for suggestions.
var knownSections = func() []string {
	names := make([]string, 0, len(knownSectionKeys))
	for k := range knownSectionKeys {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := make(map[string]bool)

	for _, key := range undecoded {
		err := buildKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key. A top-level key or unknown
// section is matched against section names, anything else against the
// keys of its section.
func buildKeyError(key toml.Key) error {
	section := key[0]

	keys, ok := knownSectionKeys[section]
	if !ok {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config section %q (did you mean %q?)", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	if len(key) < 2 {
		return nil
	}

	field := strings.Join(key[1:], ".")

	if suggestion := closestMatch(field, keys); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s] (did you mean %q?)", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
