package integrity

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// chunkSize bounds the memory used while hashing arbitrarily large files.
const chunkSize = 64 * 1024

// ChecksumMismatchError is returned when a file's digest differs from the expected one.
type ChecksumMismatchError struct {
	Path     string
	Algo     Algo
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("integrity: %s checksum mismatch for %s: expected %s, got %s", e.Algo, e.Path, e.Expected, e.Actual)
}

// ComputeChecksum streams the file through the algorithm's hash and returns the
// lower-case hex digest.
func ComputeChecksum(path string, algo Algo) (string, error) {
	h, err := algo.NewHash()
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("integrity: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumReader hashes everything read from r.
func ChecksumReader(r io.Reader, algo Algo) (string, error) {
	h, err := algo.NewHash()
	if err != nil {
		return "", err
	}
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the file at path has the expected digest.
// A missing or unreadable file is an error, not a mismatch.
func Verify(path, expected string, algo Algo) (bool, error) {
	actual, err := ComputeChecksum(path, algo)
	if err != nil {
		return false, err
	}
	return Equal(actual, expected), nil
}

// Check is Verify returning a *ChecksumMismatchError on mismatch.
func Check(path, expected string, algo Algo) error {
	actual, err := ComputeChecksum(path, algo)
	if err != nil {
		return err
	}
	if !Equal(actual, expected) {
		return &ChecksumMismatchError{Path: path, Algo: algo, Expected: expected, Actual: actual}
	}
	return nil
}

// Equal compares two hex digests ignoring case.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
