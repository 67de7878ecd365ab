// Package usertoken issues and verifies the HS256 bearer tokens handed out
// on signin.
package usertoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer = "heritagecoffee"
	defaultTTL    = 24 * time.Hour
	defaultLeeway = 30 * time.Second
)

// Config configures token issuance.
type Config struct {
	// Secret is the HMAC key. A random key is generated when empty.
	Secret []byte
	Issuer string
	TTL    time.Duration
	Leeway time.Duration
	Now    func() time.Time
}

// Signer issues tokens and validates them on the way back in.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewSigner creates a token signer.
func NewSigner(cfg Config) (*Signer, error) {
	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	s := &Signer{
		secret: secret,
		issuer: strings.TrimSpace(cfg.Issuer),
		ttl:    cfg.TTL,
		leeway: cfg.Leeway,
		now:    cfg.Now,
	}
	if s.issuer == "" {
		s.issuer = defaultIssuer
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.leeway <= 0 {
		s.leeway = defaultLeeway
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Issue signs a token for subject.
func (s *Signer) Issue(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject missing")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifySubject validates the token and returns its subject.
func (s *Signer) VerifySubject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("token subject missing")
	}
	return subject, nil
}

// FromAuthorization extracts the bearer token from an Authorization header.
func FromAuthorization(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
