// Package tokenfile reads and writes the OAuth2 token file. It is a leaf
// package so both the CLI and the Drive client can use it without an import
// cycle. Encryption at rest is left to the platform (file mode 0600 in a
// 0700 directory).
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// File is the on-disk format.
type File struct {
	Token   *oauth2.Token `json:"token"`
	SavedAt time.Time     `json:"saved_at"`
}

// Load reads a saved token. Returns (nil, nil) if the file does not exist.
func Load(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s has no token (log in again)", path)
	}

	return tf.Token, nil
}

// Save writes the token atomically (temp file, fsync, rename) with 0600
// permissions. Never logs token values.
func Save(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(File{Token: tok, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// A power loss between close and rename must not leave a truncated token.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	committed = true

	return nil
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) (existed bool, err error) {
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}
