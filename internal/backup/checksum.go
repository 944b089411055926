package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChecksumFile computes the SHA-256 digest of the file's bytes as stored on
// disk, returning the hex digest and the byte count hashed.
func ChecksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %q for checksum: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("read %q for checksum: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}
