package integrity

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 4096

type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
	algo    Algo
}

// Verifier hashes files and remembers the digest of files whose size and
// modification time did not change since the last computation.
type Verifier struct {
	cache *lru.Cache[cacheKey, string]
}

func NewVerifier(cacheSize int) *Verifier {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, string](cacheSize)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return &Verifier{cache: cache}
}

// Checksum returns the digest of path, served from cache when the file is unchanged.
func (v *Verifier) Checksum(path string, algo Algo) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("integrity: %s is a directory", path)
	}

	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime(), algo: algo}
	if sum, ok := v.cache.Get(key); ok {
		return sum, nil
	}

	sum, err := ComputeChecksum(path, algo)
	if err != nil {
		return "", err
	}
	v.cache.Add(key, sum)
	return sum, nil
}

func (v *Verifier) Verify(path, expected string, algo Algo) (bool, error) {
	sum, err := v.Checksum(path, algo)
	if err != nil {
		return false, err
	}
	return Equal(sum, expected), nil
}

// Check returns a *ChecksumMismatchError when the digest differs.
func (v *Verifier) Check(path, expected string, algo Algo) error {
	sum, err := v.Checksum(path, algo)
	if err != nil {
		return err
	}
	if !Equal(sum, expected) {
		return &ChecksumMismatchError{Path: path, Algo: algo, Expected: expected, Actual: sum}
	}
	return nil
}

// Forget drops every cached digest for path.
func (v *Verifier) Forget(path string) {
	for _, key := range v.cache.Keys() {
		if key.path == path {
			v.cache.Remove(key)
		}
	}
}

func (v *Verifier) Len() int {
	return v.cache.Len()
}
