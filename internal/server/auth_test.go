package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		url    string
		want   string
	}{
		{"subprotocol", http.Header{"Sec-Websocket-Protocol": {"access_token, abc"}}, "/ws", "abc"},
		{"bearer", http.Header{"Authorization": {"Bearer def"}}, "/ws", "def"},
		{"query", nil, "/ws?token=ghi", "ghi"},
		{"other subprotocol", http.Header{"Sec-Websocket-Protocol": {"chat, abc"}}, "/ws", ""},
		{"empty bearer", http.Header{"Authorization": {"Bearer "}}, "/ws?token=q", "q"},
		{"none", nil, "/ws", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			for k, v := range tt.header {
				r.Header[k] = v
			}
			assert.Equal(t, tt.want, extractTokenFromHeader(r))
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b ", ","))
	assert.Nil(t, splitAndTrim(" , ", ","))
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		UserID:      7,
		Username:    "alice",
		Email:       "alice@example.com",
		AuthMethod:  "password",
		Permissions: 1,
		Activated:   1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "login.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidateToken(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	v := NewStaticJWTValidator(testConfigParsed(t), &key.PublicKey, nil)
	ctx := context.Background()

	player, err := v.ValidateToken(ctx, signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "7", player.ID)
	assert.Equal(t, "alice", player.Username)
	assert.True(t, player.IsAdmin())
	assert.True(t, player.CanModify())

	banned := validClaims()
	banned.Activated = -1
	_, err = v.ValidateToken(ctx, signToken(t, key, banned))
	assert.ErrorIs(t, err, ErrUserBanned)

	inactive := validClaims()
	inactive.Activated = 0
	_, err = v.ValidateToken(ctx, signToken(t, key, inactive))
	assert.ErrorIs(t, err, ErrUserNotActivated)

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "elsewhere"
	_, err = v.ValidateToken(ctx, signToken(t, key, wrongIssuer))
	assert.Error(t, err)

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil
	_, err = v.ValidateToken(ctx, signToken(t, key, noExpiry))
	assert.Error(t, err)

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	_, err = v.ValidateToken(ctx, signToken(t, other, validClaims()))
	assert.Error(t, err)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.ValidateToken(ctx, hmac)
	assert.Error(t, err)
}

func TestValidateTokenBlacklist(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	// nothing listens here, so lookups fail and are let through
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	v := NewStaticJWTValidator(testConfigParsed(t), &key.PublicKey, client)
	ctx := context.Background()
	token := signToken(t, key, validClaims())

	_, err = v.ValidateToken(ctx, token)
	require.NoError(t, err)

	v.blacklist.SetDefault("7", true)
	_, err = v.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrBlacklisted)
}

func TestRefreshPublicKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	keys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pemKey)
	}))
	defer keys.Close()

	cfg := testConfigParsed(t)
	cfg.JWT.PublicKeyURL = keys.URL
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewJWTValidator(ctx, cfg, nil)
	require.NoError(t, err)

	player, err := v.ValidateToken(ctx, signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "7", player.ID)

	_, err = parsePublicKey([]byte("not a key"))
	assert.Error(t, err)
}
