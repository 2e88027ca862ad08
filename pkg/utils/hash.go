package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// Fingerprint hashes the review fields that decide a reply. The
// underscore-joined layout matches cache files written by earlier releases.
func Fingerprint(content, country, platform string) string {
	return HashString(strings.Join([]string{content, country, platform}, "_"))
}
