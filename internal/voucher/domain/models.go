package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Claims is the set of facts a voucher asserts. A voucher is valid only for
// the gateway and path it was minted for.
type Claims struct {
	PaymentHash string    `json:"payment_hash"`
	GatewayID   string    `json:"gateway_id"`
	Path        string    `json:"path"`
	Price       int64     `json:"price"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Envelope is the wire form of a voucher before base64 wrapping.
type Envelope struct {
	Claims
	Signature string `json:"signature"`
}

// PreimageMatches reports whether the hex preimage hashes to the claim's
// payment hash.
func (c Claims) PreimageMatches(preimage string) bool {
	raw, err := hex.DecodeString(strings.TrimSpace(preimage))
	if err != nil || len(raw) == 0 {
		return false
	}
	sum := sha256.Sum256(raw)
	return strings.EqualFold(hex.EncodeToString(sum[:]), strings.TrimSpace(c.PaymentHash))
}
