package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const ownerIDKey = "owner_id"

// AuthConfig configures Bearer token verification.
type AuthConfig struct {
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
}

// Auth verifies an HS256 Bearer token and stores its subject as the owner id.
func Auth(cfg AuthConfig) fiber.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, err.Error())
		}

		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return cfg.Secret, nil
		})
		if err != nil || !token.Valid {
			return unauthorized(c, "not authorized, token failed")
		}
		if claims.Subject == "" {
			return unauthorized(c, "token has no subject")
		}

		c.Locals(ownerIDKey, claims.Subject)
		return c.Next()
	}
}

// OwnerID returns the authenticated owner id, or "" on public routes.
func OwnerID(c *fiber.Ctx) string {
	id, _ := c.Locals(ownerIDKey).(string)
	return id
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("not authorized, no token")
	}
	return strings.TrimSpace(token), nil
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
	})
}
