package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	tokenPrefix      = "st_"
	tokenSecretBytes = 32
)

// GenerateToken mints the raw session credential and its storage hash. The
// raw form is returned to the caller exactly once.
func GenerateToken() (plain, hash string, err error) {
	secret := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}
	plain = tokenPrefix + hex.EncodeToString(secret)
	return plain, HashToken(plain), nil
}

// HashToken hashes the raw token using the same strategy as token creation.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// LooksLikeToken reports whether a credential has the session token shape.
func LooksLikeToken(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), tokenPrefix)
}
