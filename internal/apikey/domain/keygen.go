package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	apiKeyPrefix      = "ak_"
	apiKeySecretBytes = 32
)

// NewKeyID derives the public key identifier from a snowflake ID.
func NewKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

// GenerateAPIKey mints the raw credential and its storage hash for a key id.
// The raw form is returned to the caller exactly once.
func GenerateAPIKey(keyID string) (plain, hash string, err error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain = fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, secretPart)
	return plain, HashAPIKey(plain), nil
}

// LooksLikeAPIKey reports whether a bearer credential has the API key shape.
func LooksLikeAPIKey(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), apiKeyPrefix)
}
