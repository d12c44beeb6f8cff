package auth

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devconnect/chatcore/model"
)

var testSecret = []byte("devconnect-test-secret")

func TestKeyringPriority(t *testing.T) {
	s := NewMemoryStore()
	k := &Keyring{Store: s, Keys: []string{"accessToken", "devconnect_token", "token"}}

	_, err := k.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Set("token", "generic"))
	tok, err := k.Token()
	require.NoError(t, err)
	assert.Equal(t, "generic", tok)

	require.NoError(t, s.Set("devconnect_token", "app"))
	tok, _ = k.Token()
	assert.Equal(t, "app", tok)

	require.NoError(t, s.Set("accessToken", "backend"))
	tok, _ = k.Token()
	assert.Equal(t, "backend", tok)

	// a blank value does not shadow lower priority keys
	require.NoError(t, s.Set("accessToken", "  "))
	tok, _ = k.Token()
	assert.Equal(t, "app", tok)
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)

	v, err := s.Get("accessToken")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set("accessToken", "abc"))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err = s.Get("accessToken")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete("accessToken"))
	v, _ = s.Get("accessToken")
	assert.Empty(t, v)
}

func TestSessionFromToken(t *testing.T) {
	tok, err := IssueToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	sess, err := SessionFromToken(StaticToken(tok))
	require.NoError(t, err)
	assert.EqualValues(t, 42, sess.UserID)
	assert.Empty(t, sess.Role)

	tok, err = IssueRoleToken(testSecret, 42, model.RoleDeveloper, time.Hour)
	require.NoError(t, err)
	sess, err = SessionFromToken(StaticToken(tok))
	require.NoError(t, err)
	assert.Equal(t, model.RoleDeveloper, sess.Role)

	// string subject only
	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7"}).SignedString(testSecret)
	require.NoError(t, err)
	sess, err = SessionFromToken(StaticToken(tok))
	require.NoError(t, err)
	assert.EqualValues(t, 7, sess.UserID)

	tok, err = IssueToken(testSecret, 42, -time.Minute)
	require.NoError(t, err)
	_, err = SessionFromToken(StaticToken(tok))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = SessionFromToken(StaticToken(""))
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = SessionFromToken(StaticToken("not-a-jwt"))
	assert.Error(t, err)
}

func TestJWTClient(t *testing.T) {
	c := &JWTClient{Secret: testSecret}
	tok, err := IssueToken(testSecret, 9, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/messages/chats/9", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	uid, err := c.Auth(r)
	require.NoError(t, err)
	assert.EqualValues(t, 9, uid)

	r = httptest.NewRequest("GET", "/ws/websocket", nil)
	r.Header.Set("X-Authorization", "Bearer "+tok)
	uid, err = c.Auth(r)
	require.NoError(t, err)
	assert.EqualValues(t, 9, uid)

	r = httptest.NewRequest("GET", "/ws/websocket?token="+tok, nil)
	_, err = c.Auth(r)
	assert.NoError(t, err)

	r = httptest.NewRequest("GET", "/api/messages/chats/9", nil)
	_, err = c.Auth(r)
	assert.Error(t, err)

	other, err := IssueToken([]byte("other"), 9, time.Hour)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+other)
	_, err = c.Auth(r)
	assert.Error(t, err)
}
