package util

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
)

// NewDigest returns the hash the portal catalog publishes checksums in.
func NewDigest() hash.Hash {
	return md5.New()
}

// FileDigest computes the lowercase hex MD5 of the file at path.
// A missing file yields domain.ErrFileNotFound.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.NewDomainError(domain.ErrFileNotFound.Code, path, err, false)
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := NewDigest()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SameDigest compares two hex digests ignoring case and surrounding
// whitespace. An empty digest never matches.
func SameDigest(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
