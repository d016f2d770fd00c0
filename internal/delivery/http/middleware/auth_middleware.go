package middleware

import (
	"errors"
	"strings"

	"guild-ranker/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

const CtxAdminSubjectKey = "admin_subject"

type tokenValidator interface {
	ValidateToken(tokenString string) (jwt.Claims, error)
}

// AdminMiddleware guards write endpoints with an admin bearer token.
type AdminMiddleware struct {
	jwt tokenValidator
}

func NewAdminMiddleware(v tokenValidator) *AdminMiddleware {
	return &AdminMiddleware{jwt: v}
}

func (m *AdminMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m == nil || m.jwt == nil {
			return NewAppError(fiber.StatusForbidden, "Admin API disabled", nil, nil)
		}

		token, ok := bearerTokenFromHeader(c.Get("Authorization"))
		if !ok {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrNoSecret):
				return NewAppError(fiber.StatusForbidden, "Admin API disabled", nil, err)
			case errors.Is(err, jwt.ErrTokenExpired):
				return NewAppError(fiber.StatusUnauthorized, "Token expired", nil, err)
			default:
				return NewAppError(fiber.StatusUnauthorized, "Invalid token", nil, err)
			}
		}

		c.Locals(CtxAdminSubjectKey, claims.RegisteredClaims.Subject)
		return c.Next()
	}
}

func bearerTokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
