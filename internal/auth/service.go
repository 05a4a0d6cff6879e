// Package auth implements phone number sign-in with one-time codes and the
// session tokens issued after a successful verification.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/models"
)

// principalNamespace derives stable principal ids from phone numbers.
var principalNamespace = uuid.MustParse("6f1c3c9e-6a52-4c1e-9d1e-4b0c8c2f7a11")

// Sender delivers a one-time code to a phone.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of sending an SMS. Development only.
type LogSender struct {
	Log logger.Logger
}

func (s LogSender) SendCode(_ context.Context, phone, code string) error {
	s.Log.Info("one-time code issued", logger.String("phone", phone), logger.String("code", code))
	return nil
}

// Config tunes a Service.
type Config struct {
	CodeLength  int
	CodeTTL     time.Duration
	MaxAttempts int
	CountryCode string
}

// Service runs the sign-in flow.
type Service struct {
	codes  CodeStore
	sender Sender
	tokens *TokenIssuer
	cfg    Config
	log    logger.Logger
	code   func(n int) (string, error)
}

// NewService creates a Service. Zero config values take defaults.
func NewService(codes CodeStore, sender Sender, tokens *TokenIssuer, cfg Config, log logger.Logger) *Service {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "+91"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		codes:  codes,
		sender: sender,
		tokens: tokens,
		cfg:    cfg,
		log:    log.With(logger.String("component", "auth")),
		code:   randomCode,
	}
}

// NormalizePhone strips separators and adds the default country code to a
// bare national number.
func NormalizePhone(raw, countryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	plus := strings.HasPrefix(raw, "+")
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || (r == '+' && digits.Len() == 0):
		default:
			return "", ErrInvalidPhone
		}
	}
	d := digits.String()
	if !plus {
		d = strings.TrimPrefix(countryCode, "+") + strings.TrimLeft(d, "0")
	}
	if len(d) < 8 || len(d) > 15 {
		return "", ErrInvalidPhone
	}
	return "+" + d, nil
}

// PrincipalFor returns the principal of a normalized phone number.
func PrincipalFor(phone string) models.Principal {
	return models.Principal{
		ID:    uuid.NewSHA1(principalNamespace, []byte(phone)).String(),
		Phone: phone,
	}
}

// SendOTP issues a code for phone and returns the request id to verify it with.
func (s *Service) SendOTP(ctx context.Context, phone string) (string, error) {
	normalized, err := NormalizePhone(phone, s.cfg.CountryCode)
	if err != nil {
		return "", err
	}
	code, err := s.code(s.cfg.CodeLength)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	requestID := uuid.NewString()
	challenge := Challenge{
		Phone:     normalized,
		CodeHash:  hashCode(requestID, code),
		ExpiresAt: time.Now().Add(s.cfg.CodeTTL),
	}
	if err := s.codes.Put(ctx, requestID, challenge, s.cfg.CodeTTL); err != nil {
		return "", err
	}
	if err := s.sender.SendCode(ctx, normalized, code); err != nil {
		_, _ = s.codes.Consume(ctx, requestID)
		s.log.Error("code delivery failed", logger.String("request", requestID), logger.Error(err))
		return "", fmt.Errorf("deliver code: %w", err)
	}
	s.log.Info("code sent", logger.String("request", requestID))
	return requestID, nil
}

// VerifyOTP checks code against the request and, on success, consumes the
// request and issues a session. A wrong code leaves the request usable until
// the attempt limit is reached.
func (s *Service) VerifyOTP(ctx context.Context, requestID, code string) (*models.Session, error) {
	challenge, err := s.codes.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.codes.Attempt(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if attempts > s.cfg.MaxAttempts {
		_, _ = s.codes.Consume(ctx, requestID)
		s.log.Warn("code attempts exhausted", logger.String("request", requestID))
		return nil, ErrTooManyAttempts
	}

	want := []byte(challenge.CodeHash)
	got := []byte(hashCode(requestID, strings.TrimSpace(code)))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		s.log.Info("code rejected", logger.String("request", requestID), logger.Int("attempt", attempts))
		return nil, ErrInvalidCode
	}

	consumed, err := s.codes.Consume(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrUnknownRequest
	}

	principal := PrincipalFor(challenge.Phone)
	token, claims, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}
	s.log.Info("session issued", logger.String("principal", principal.ID))
	return &models.Session{
		Token:     token,
		Principal: principal,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// CurrentSession validates token and returns its session.
func (s *Service) CurrentSession(ctx context.Context, token string) (*models.Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.codes.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return &models.Session{
		Token:     token,
		Principal: models.Principal{ID: claims.Subject, Phone: claims.Phone},
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if errors.Is(err, ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.codes.Revoke(ctx, claims.ID, ttl); err != nil {
		return err
	}
	s.log.Info("session revoked", logger.String("principal", claims.Subject))
	return nil
}

// hashCode binds the code to its request so equal codes hash differently.
func hashCode(requestID, code string) string {
	sum := sha256.Sum256([]byte(requestID + ":" + code))
	return hex.EncodeToString(sum[:])
}

func randomCode(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
