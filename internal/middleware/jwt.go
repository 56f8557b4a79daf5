package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v4"

	"github.com/arturoeanton/design-copilot/internal/domain"
)

// JWTConfig holds JWT middleware configuration.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

// JWTMiddleware creates a Fiber middleware that validates JWT tokens
// and injects a UserContext into the request context.
func JWTMiddleware(cfg JWTConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		var token string

		// Try Authorization header first
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}

		// Fallback: ?token= query param (for SSE/EventSource which can't set headers)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization",
			})
		}

		claims, err := ValidateJWT(token, cfg)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// The subject is the owner identity every document operation is scoped to.
		c.Locals("user", &domain.UserContext{
			UserID: claims.Subject,
			Email:  claims.Email,
			Role:   claims.Role,
		})

		return c.Next()
	}
}

// GetUserContext extracts the UserContext from Fiber locals.
func GetUserContext(c fiber.Ctx) *domain.UserContext {
	u, ok := c.Locals("user").(*domain.UserContext)
	if !ok {
		return nil
	}
	return u
}

// --- JWT Claims & Helpers ---

// Claims represents the JWT payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed HS256 token for subject. Used for local and CLI tokens;
// production tokens come from the identity provider.
func GenerateJWT(subject, email, role string, cfg JWTConfig) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ExpiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateJWT verifies signature, expiry, issuer and subject of tokenStr.
func ValidateJWT(tokenStr string, cfg JWTConfig) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}

	if !claims.VerifyExpiresAt(time.Now(), true) {
		return nil, errors.New("token expired")
	}
	if !claims.VerifyIssuer(cfg.Issuer, true) {
		return nil, errors.New("invalid token issuer")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
