package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	issuer    = "guild-ranker"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrNoSecret     = errors.New("admin secret not configured")
)

type Claims struct {
	Role string `json:"role"`

	jwtlib.RegisteredClaims
}

type Service interface {
	GenerateAdminToken(subject string) (string, error)
	ValidateToken(tokenString string) (Claims, error)
}

// HMACService signs admin bearer tokens with a single shared secret.
type HMACService struct {
	secret    []byte
	expiresIn time.Duration

	now func() time.Time
}

func NewHMACService(secret string, expiresIn time.Duration) *HMACService {
	return &HMACService{
		secret:    []byte(strings.TrimSpace(secret)),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Enabled reports whether tokens can be issued and checked.
func (s *HMACService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

func (s *HMACService) GenerateAdminToken(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	if s.expiresIn <= 0 {
		return "", ErrTokenInvalid
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = RoleAdmin
	}

	now := s.now().UTC()
	c := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.expiresIn)),
		},
	}

	t := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c)
	return t.SignedString(s.secret)
}

func (s *HMACService) ValidateToken(tokenString string) (Claims, error) {
	if !s.Enabled() {
		return Claims{}, ErrNoSecret
	}

	p := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithTimeFunc(s.now),
	)

	var c Claims
	tok, err := p.ParseWithClaims(tokenString, &c, func(token *jwtlib.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if tok == nil || !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if c.Role != RoleAdmin {
		return Claims{}, ErrTokenInvalid
	}

	return c, nil
}
