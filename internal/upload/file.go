package upload

import (
	"crypto/md5" //nolint:gosec // Drive reports MD5; used for integrity comparison only
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/gdrive-upload/internal/uploadstate"
)

// DescribeFile stats path and sniffs its MIME type for session creation.
// The name is NFC-normalized so decomposed macOS names upload as the same
// string users see elsewhere.
func DescribeFile(path string) (uploadstate.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return uploadstate.FileInfo{}, fmt.Errorf("upload: resolving %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return uploadstate.FileInfo{}, fmt.Errorf("upload: stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return uploadstate.FileInfo{}, fmt.Errorf("upload: %s is not a regular file", path)
	}

	mtype, err := mimetype.DetectFile(abs)
	if err != nil {
		return uploadstate.FileInfo{}, fmt.Errorf("upload: reading %s: %w", path, err)
	}

	return uploadstate.FileInfo{
		Path:     abs,
		Name:     norm.NFC.String(info.Name()),
		Size:     info.Size(),
		MimeType: mtype.String(),
	}, nil
}

// fileMD5 returns the hex MD5 of the file at path.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // see import
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
