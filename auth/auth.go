package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devconnect/chatcore/model"
)

type Client interface {
	// Auth authenticate current user, return uid.
	Auth(r *http.Request) (int64, error)
}

// JWTClient authenticates requests carrying an HS256 bearer token.
type JWTClient struct {
	Secret []byte
}

func (c *JWTClient) Auth(r *http.Request) (int64, error) {
	tokenString := BearerToken(r)
	if tokenString == "" {
		return 0, errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token")
	}
	return userIDFromClaims(claims)
}

// BearerToken extracts the credential from `Authorization` or
// `X-Authorization`, falling back to the `token` query parameter.
func BearerToken(r *http.Request) string {
	for _, h := range []string{"Authorization", "X-Authorization"} {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		parts := strings.SplitN(v, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// IssueToken signs a token for uid, valid for ttl.
func IssueToken(secret []byte, uid int64, ttl time.Duration) (string, error) {
	return IssueRoleToken(secret, uid, "", ttl)
}

// IssueRoleToken signs a token for uid that also carries the account role.
func IssueRoleToken(secret []byte, uid int64, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  uid,
		"sub": fmt.Sprintf("%d", uid),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = string(role)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
