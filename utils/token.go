package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"bandmate-backend/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GenerateToken creates a new JWT session token for a user
func GenerateToken(userID uuid.UUID, email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"email":   email,
		"exp":     time.Now().Add(time.Hour * 24 * 7).Unix(), // Token expires in 7 days
	})

	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ParseToken validates a JWT and returns the user ID and email claims.
func ParseToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}

	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}

	email, _ := claims["email"].(string)
	return userID, email, nil
}

// Invite tokens are 32 random bytes, hex encoded.
var inviteTokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// GenerateInviteToken returns an unguessable invitation token.
func GenerateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ValidInviteToken checks the token shape before any store access.
func ValidInviteToken(token string) bool {
	return inviteTokenPattern.MatchString(token)
}

// NormalizeEmail lowercases and trims an email address so it can be
// used as a case-insensitive compare key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
