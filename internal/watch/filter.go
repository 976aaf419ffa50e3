package watch

import "strings"

// Filter decides which settled files are uploaded.
type Filter struct {
	// MinSize skips smaller files unless Everything is set. Small files are
	// expected to go through whatever the caller's own channel is.
	MinSize    int64
	Everything bool
}

func (f Filter) acceptSize(size int64) bool {
	return f.Everything || size >= f.MinSize
}

// excludedName reports files that are never uploaded: partial downloads,
// editor temporaries, and hidden files.
func (f Filter) excludedName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return true
	}

	lower := strings.ToLower(name)

	for _, ext := range excludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

var excludedSuffixes = []string{
	".partial", ".part", ".tmp", ".swp", ".crdownload", ".download",
}
