package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devconnect/chatcore/model"
)

// Session is the logged-in user handed to the messaging core at
// construction. The core never looks the user up anywhere else.
type Session struct {
	UserID int64
	// Role is empty when the credential does not name one.
	Role   model.Role
	Tokens TokenSource
}

// SessionFromToken derives the user id from the credential's claims. The
// signature is not verified: only the backend holds the key.
func SessionFromToken(src TokenSource) (*Session, error) {
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("parse token: %v", err)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
		return nil, jwt.ErrTokenExpired
	}
	uid, err := userIDFromClaims(claims)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: uid, Role: roleFromClaims(claims), Tokens: src}, nil
}

func roleFromClaims(claims jwt.MapClaims) model.Role {
	for _, k := range []string{"role", "userRole"} {
		if v, ok := claims[k].(string); ok {
			if r := model.ParseRole(v); r != "" {
				return r
			}
		}
	}
	return ""
}

func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	for _, k := range []string{"id", "userId", "sub"} {
		switch v := claims[k].(type) {
		case float64:
			if v > 0 {
				return int64(v), nil
			}
		case string:
			if uid, err := strconv.ParseInt(v, 10, 64); err == nil && uid > 0 {
				return uid, nil
			}
		}
	}
	return 0, errors.New("token carries no user id")
}
