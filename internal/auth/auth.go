package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tgdrive/botmanager/pkg/types"
	"golang.org/x/crypto/bcrypt"
)

type authContextKey string

const authKey authContextKey = "authUser"

var ErrInvalidToken = errors.New("invalid token")

func Encode(secret string, claims *types.JWTClaims) (string, error) {

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

func Decode(secret string, token string) (*types.JWTClaims, error) {
	claims := &types.JWTClaims{}

	tkn, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil

}

// NewClaims builds admin session claims valid for ttl.
func NewClaims(username string, now time.Time, ttl time.Duration) *types.JWTClaims {
	return &types.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserName: username,
		IsAdmin:  true,
	}
}

// CheckSecret compares password against the configured admin secret,
// which is either a bcrypt hash or plain text.
func CheckSecret(secret, password string) bool {
	if secret == "" {
		return false
	}
	if isBcrypt(secret) {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
}

func isBcrypt(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func WithClaims(ctx context.Context, claims *types.JWTClaims) context.Context {
	return context.WithValue(ctx, authKey, claims)
}

func GetJWTUser(c context.Context) *types.JWTClaims {
	authUser, _ := c.Value(authKey).(*types.JWTClaims)
	return authUser
}
