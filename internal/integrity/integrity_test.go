package integrity

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseAlgo(t *testing.T) {
	tests := []struct {
		in      string
		want    Algo
		wantErr bool
	}{
		{"", SHA256, false},
		{"SHA256", SHA256, false},
		{"sha-1", SHA1, false},
		{"crc32", CRC32, false},
		{"blake3", BLAKE3, false},
		{"md5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgo(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAlgo)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeChecksum_KnownDigests(t *testing.T) {
	path := writeFile(t, "hello")

	tests := []struct {
		algo Algo
		want string
	}{
		{SHA256, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{SHA1, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{CRC32, "3610a686"},
	}

	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			got, err := ComputeChecksum(path, tt.algo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.algo.ValidHex(got))
		})
	}
}

func TestComputeChecksum_Blake3MatchesReader(t *testing.T) {
	content := bytes.Repeat([]byte("yagua"), 50_000)
	path := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fromFile, err := ComputeChecksum(path, BLAKE3)
	require.NoError(t, err)
	fromReader, err := ChecksumReader(bytes.NewReader(content), BLAKE3)
	require.NoError(t, err)

	assert.Equal(t, fromReader, fromFile)
	assert.Len(t, fromFile, BLAKE3.HexLen())
}

func TestVerify(t *testing.T) {
	path := writeFile(t, "hello")

	ok, err := Verify(path, "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", SHA256)
	require.NoError(t, err)
	assert.True(t, ok, "comparison ignores case")

	ok, err = Verify(path, "deadbeef", CRC32)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Verify(filepath.Join(t.TempDir(), "missing"), "x", SHA256)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheck_ReturnsMismatchError(t *testing.T) {
	path := writeFile(t, "hello")

	err := Check(path, "00000000", CRC32)
	var mismatch *ChecksumMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "3610a686", mismatch.Actual)
	assert.Equal(t, path, mismatch.Path)
}

func TestVerifier_CachesUntilFileChanges(t *testing.T) {
	path := writeFile(t, "hello")
	v := NewVerifier(16)

	sum, err := v.Checksum(path, SHA1)
	require.NoError(t, err)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", sum)
	assert.Equal(t, 1, v.Len())

	// same content served from cache
	_, err = v.Checksum(path, SHA1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Len())

	// rewrite with a different size and mtime
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	ok, err := v.Verify(path, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed", SHA1)
	require.NoError(t, err)
	assert.True(t, ok)

	v.Forget(path)
	assert.Equal(t, 0, v.Len())
}
