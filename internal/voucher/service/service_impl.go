package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Log    *zap.Logger
}

type service struct {
	secret []byte
	clock  clock.Clock
	log    *zap.Logger
}

func New(p Params) domain.Service {
	secret := []byte(p.Config.VoucherSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("voucher secret generation failed: %v", err))
		}
		p.Log.Warn("VOUCHER_SECRET not set, using ephemeral secret; vouchers will not survive restarts")
	}
	return &service{
		secret: secret,
		clock:  p.Clock,
		log:    p.Log.Named("voucher.service"),
	}
}

func (s *service) Mint(ctx context.Context, claims domain.Claims) (string, error) {
	claims.ExpiresAt = claims.ExpiresAt.UTC().Truncate(time.Second)
	envelope := domain.Envelope{
		Claims:    claims,
		Signature: s.sign(claims),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

func (s *service) Verify(ctx context.Context, token, gatewayID string) (*domain.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrMalformed
	}

	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ErrMalformed
	}

	var envelope domain.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrMalformed
	}

	expected := s.sign(envelope.Claims)
	if !hmac.Equal([]byte(expected), []byte(envelope.Signature)) {
		return nil, domain.ErrBadSignature
	}
	if s.clock.Now().After(envelope.ExpiresAt) {
		return nil, domain.ErrExpired
	}
	if envelope.GatewayID != gatewayID {
		return nil, domain.ErrWrongGateway
	}

	claims := envelope.Claims
	return &claims, nil
}

func (s *service) Redeem(ctx context.Context, token, preimage, gatewayID string) (*domain.Claims, error) {
	claims, err := s.Verify(ctx, token, gatewayID)
	if err != nil {
		return nil, err
	}
	if !claims.PreimageMatches(preimage) {
		return nil, domain.ErrBadPreimage
	}
	return claims, nil
}

func (s *service) sign(claims domain.Claims) string {
	canonical := strings.Join([]string{
		claims.PaymentHash,
		claims.GatewayID,
		claims.Path,
		strconv.FormatInt(claims.Price, 10),
		strconv.FormatInt(claims.ExpiresAt.Unix(), 10),
	}, "\n")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
