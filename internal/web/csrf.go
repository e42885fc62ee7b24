package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// newToken returns 32 random bytes, hex encoded.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)

	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// tokenMatches compares in constant time. An empty expected token never matches.
func tokenMatches(expected, submitted string) bool {
	if expected == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}
