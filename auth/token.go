package auth

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoToken = errors.New("no authentication token")

// TokenSource yields the bearer credential for REST calls and the realtime
// handshake.
type TokenSource interface {
	Token() (string, error)
}

// Keyring reads the credential from local storage. Keys are checked in
// order and the first non-empty value wins.
type Keyring struct {
	Store Store
	Keys  []string
}

func (k *Keyring) Token() (string, error) {
	for _, key := range k.Keys {
		v, err := k.Store.Get(key)
		if err != nil {
			return "", fmt.Errorf("read %s: %v", key, err)
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", ErrNoToken
}

// StaticToken is a fixed credential.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}
