package utils

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"strings"
)

func PathExists(path string) (res bool, err error) {
	_, statErr := os.Stat(path)
	if statErr == nil {
		res = true
	} else if !os.IsNotExist(statErr) {
		err = statErr
	}
	return
}

// Md5Hash canonicalizes a URL or other text into a stable hex key.
func Md5Hash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Truncate shortens s to at most n runes, appending an ellipsis when
// anything was cut. Newlines collapse to spaces so excerpts stay one line.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}

// NormalizeHandle lowercases a handle and strips any leading '@'.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
