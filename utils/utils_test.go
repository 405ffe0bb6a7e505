package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()
	stat, err := PathExists(tmpDir)
	require.Equal(t, nil, err)
	require.Equal(t, true, stat)

	stat, err = PathExists(tmpDir + "/non-existent-path")
	require.Equal(t, nil, err)
	require.Equal(t, false, stat)

	subdir := filepath.Join(tmpDir, "unreadable")
	err = os.MkdirAll(subdir, 0700)
	require.Equal(t, nil, err)

	hiddenFile := filepath.Join(subdir, "somefile.tgz")
	fd, err := os.Create(hiddenFile)
	require.Equal(t, nil, err)
	fd.Close()

	stat, err = PathExists(hiddenFile)
	require.Equal(t, nil, err)
	require.Equal(t, true, stat)

	os.Chmod(subdir, 0)

	stat, err = PathExists(hiddenFile)
	require.True(t, os.IsPermission(err))

	os.Chmod(subdir, 0700)
}

func TestMd5Hash(t *testing.T) {
	a := Md5Hash("https://cdn.bsky.app/img/feed_fullsize/plain/did/abc@jpeg")
	b := Md5Hash("https://cdn.bsky.app/img/feed_fullsize/plain/did/abc@jpeg")
	c := Md5Hash("https://cdn.bsky.app/img/feed_fullsize/plain/did/xyz@jpeg")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, 32, len(a))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "exact", Truncate("exact", 5))
	require.Equal(t, "multi line text", Truncate("multi\nline\ttext", 40))

	long := Truncate("the quick brown fox jumps over the lazy dog", 9)
	require.Equal(t, "the quick…", long)

	unicode := Truncate("héllo wörld", 5)
	require.Equal(t, "héllo…", unicode)
}

func TestNormalizeHandle(t *testing.T) {
	require.Equal(t, "alice.bsky.social", NormalizeHandle("@Alice.bsky.social"))
	require.Equal(t, "bob.example.com", NormalizeHandle(" bob.example.com "))
	require.Equal(t, "", NormalizeHandle(""))
}
