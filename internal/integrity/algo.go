// Package integrity computes and checks content checksums of installed files.
package integrity

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"strings"

	"github.com/zeebo/blake3"
)

// Algo names a checksum algorithm as it appears in manifests and local state.
type Algo string

const (
	SHA256 Algo = "sha256"
	SHA1   Algo = "sha1"
	CRC32  Algo = "crc32"
	BLAKE3 Algo = "blake3"

	DefaultAlgo = SHA256
)

var ErrUnknownAlgo = errors.New("integrity: unknown checksum algorithm")

// ParseAlgo maps a case-insensitive name to an Algo. Empty means DefaultAlgo.
func ParseAlgo(name string) (Algo, error) {
	switch Algo(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return DefaultAlgo, nil
	case SHA256, "sha-256":
		return SHA256, nil
	case SHA1, "sha-1":
		return SHA1, nil
	case CRC32:
		return CRC32, nil
	case BLAKE3:
		return BLAKE3, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgo, name)
}

// NewHash returns a fresh hash.Hash for the algorithm.
func (a Algo) NewHash() (hash.Hash, error) {
	switch a {
	case SHA256, "":
		return sha256.New(), nil
	case SHA1:
		return sha1.New(), nil
	case CRC32:
		return crc32.NewIEEE(), nil
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgo, string(a))
}

// HexLen is the length of a hex encoded digest for the algorithm.
func (a Algo) HexLen() int {
	switch a {
	case SHA1:
		return 40
	case CRC32:
		return 8
	default:
		return 64
	}
}

// ValidHex reports whether s looks like a digest produced by the algorithm.
func (a Algo) ValidHex(s string) bool {
	if len(s) != a.HexLen() {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func (a Algo) String() string {
	if a == "" {
		return string(DefaultAlgo)
	}
	return string(a)
}
