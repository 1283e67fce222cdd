package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestHex returns the SHA-256 digest as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}

// ShortDigest returns the first n hex characters of the SHA-256 digest.
func ShortDigest(data []byte, n int) (string, error) {
	if n <= 0 || n > sha256.Size*2 {
		return "", ErrInvalidDigestLen
	}
	return DigestHex(data)[:n], nil
}
