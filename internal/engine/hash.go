package engine

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

type HashAlgorithm string

// Boards publish md5 digests (usually base64), so that is the default.
const (
	HashMD5    HashAlgorithm = "md5"
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
)

func NewHash(algo HashAlgorithm) (hash.Hash, error) {
	switch HashAlgorithm(strings.ToLower(string(algo))) {
	case "", HashMD5:
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// hashMatches compares a raw digest with an expected value written as hex
// or as (padded or raw) base64.
func hashMatches(sum []byte, expected string) bool {
	expected = strings.TrimSpace(expected)
	if decoded, err := hex.DecodeString(expected); err == nil && bytes.Equal(decoded, sum) {
		return true
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(expected); err == nil && bytes.Equal(decoded, sum) {
			return true
		}
	}
	return false
}
