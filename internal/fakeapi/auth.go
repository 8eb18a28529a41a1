package fakeapi

import (
	"strings"
	"time"

	"feedsync/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const localViewer = "userID"

func (s *Server) issueToken(user models.UserSummary) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.DisplayName,
		"iss":  s.cfg.Issuer,
		"aud":  "feedsync-client",
		"exp":  now.Add(s.cfg.TokenTTL).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"jti":  uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

// authRequired rejects requests without a valid bearer token and stores the
// token subject in the viewer local.
func (s *Server) authRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
			"code":  models.CodeUnauthorized,
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
			"code":  models.CodeUnauthorized,
		})
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
			"code":  models.CodeUnauthorized,
		})
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token structure - missing subject",
			"code":  models.CodeUnauthorized,
		})
	}

	c.Locals(localViewer, sub)
	return c.Next()
}

func viewerOf(c *fiber.Ctx) string {
	id, _ := c.Locals(localViewer).(string)
	return id
}

func (s *Server) now() time.Time {
	return s.store.now()
}
