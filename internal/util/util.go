package util

import (
	"os"
	"path/filepath"
	"strings"
)

// WritablePath returns the cleaned WRITABLE_PATH environment variable when it is set.
// It accepts both uppercase and lowercase variants for compatibility with existing conventions.
func WritablePath() string {
	for _, key := range []string{"WRITABLE_PATH", "writable_path"} {
		if value, ok := os.LookupEnv(key); ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// MaskCredential obscures a bearer credential for logging purposes, showing only
// the first and last few characters.
func MaskCredential(credential string) string {
	if len(credential) > 8 {
		return credential[:4] + "..." + credential[len(credential)-4:]
	} else if len(credential) > 4 {
		return credential[:2] + "..." + credential[len(credential)-2:]
	} else if len(credential) > 2 {
		return credential[:1] + "..." + credential[len(credential)-1:]
	}
	return credential
}
