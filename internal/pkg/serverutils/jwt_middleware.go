package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// VerifyToken parses an HMAC-signed JWT and returns the principal id carried
// in the "sub" claim ("user_id" is accepted for older token issuers). Shared
// by the websocket handshake and the REST middleware so both sides agree on
// what a valid token is.
func VerifyToken(tokenStr, secret string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// Ensure Signing Method is HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}

	principalStr, ok := claims["sub"].(string)
	if !ok {
		principalStr, ok = claims["user_id"].(string)
	}
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}

	principalId, err := uuid.Parse(principalStr)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return principalId, nil
}

// NewJwtMiddleware guards REST routes. The verified principal id lands in
// ctx.Locals("principal_id") as a uuid.UUID.
func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
		}

		principalId, err := VerifyToken(authHeader[7:], secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}

		ctx.Locals("principal_id", principalId)
		return ctx.Next()
	}
}
