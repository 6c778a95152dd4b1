package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"

	"github.com/gravitas-games/citybuilder/internal/config"
	"github.com/gravitas-games/citybuilder/pkg/models"
)

// Authentication errors
var (
	ErrUserNotActivated = errors.New("user not activated")
	ErrUserBanned       = errors.New("user is banned")
	ErrBlacklisted      = errors.New("token is blacklisted")
)

// TokenValidator turns a bearer token into an authenticated player
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Player, error)
}

// JWTValidator handles JWT token validation
type JWTValidator struct {
	log       *logger.L
	jwt       config.JWTConfig
	prefix    string
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	redis     *redis.Client
	// blacklist lookups are cached so reconnect storms do not hit Redis
	blacklist *cache.Cache
}

// Claims represents JWT token claims from the login server
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// NewJWTValidator creates a validator that fetches the login server's public
// key and refreshes it until ctx is done. A nil redis client disables the
// blacklist check.
func NewJWTValidator(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (*JWTValidator, error) {
	v := newValidator(cfg, nil, redisClient)
	if err := v.RefreshPublicKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	go v.periodicKeyRefresh(ctx)

	v.log.Info("JWT validator initialized")
	return v, nil
}

// NewStaticJWTValidator creates a validator with a fixed public key.
func NewStaticJWTValidator(cfg *config.Config, key *ecdsa.PublicKey, redisClient *redis.Client) *JWTValidator {
	return newValidator(cfg, key, redisClient)
}

func newValidator(cfg *config.Config, key *ecdsa.PublicKey, redisClient *redis.Client) *JWTValidator {
	ttl := time.Duration(cfg.JWT.BlacklistCacheSecs) * time.Second
	return &JWTValidator{
		log:       logger.New("auth"),
		jwt:       cfg.JWT,
		prefix:    cfg.Redis.BlacklistPrefix,
		publicKey: key,
		redis:     redisClient,
		blacklist: cache.New(ttl, 2*ttl),
	}
}

// RefreshPublicKey fetches the public key from the login server
func (v *JWTValidator) RefreshPublicKey(ctx context.Context) error {
	v.log.Debugf("fetching public key from %s", v.jwt.PublicKeyURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwt.PublicKeyURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := parsePublicKey(keyData)
	if err != nil {
		return err
	}

	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()

	v.log.Info("public key refreshed")
	return nil
}

// parsePublicKey decodes a PEM-encoded ECDSA public key
func parsePublicKey(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// periodicKeyRefresh refreshes the public key periodically
func (v *JWTValidator) periodicKeyRefresh(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(v.jwt.PublicKeyRefreshHrs) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(ctx); err != nil {
				v.log.Warnf("failed to refresh public key: %s", err)
			}
		}
	}
}

// ValidateToken validates a JWT token and returns player information
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*models.Player, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		if v.publicKey == nil {
			return nil, errors.New("no public key")
		}
		return v.publicKey, nil
	}, jwt.WithIssuer(v.jwt.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	switch claims.Activated {
	case 0:
		return nil, ErrUserNotActivated
	case -1:
		return nil, ErrUserBanned
	}

	userID := strconv.FormatInt(claims.UserID, 10)
	if v.isBlacklisted(ctx, userID) {
		return nil, ErrBlacklisted
	}

	return &models.Player{
		ID:          userID,
		Username:    claims.Username,
		Email:       claims.Email,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
	}, nil
}

// isBlacklisted checks the Redis blacklist. Authentication does not fail
// when Redis is down.
func (v *JWTValidator) isBlacklisted(ctx context.Context, userID string) bool {
	if v.redis == nil {
		return false
	}
	if hit, ok := v.blacklist.Get(userID); ok {
		return hit.(bool)
	}
	n, err := v.redis.Exists(ctx, v.prefix+userID).Result()
	if err != nil {
		v.log.Warnf("failed to check blacklist: %s", err)
		return false
	}
	v.blacklist.SetDefault(userID, n > 0)
	return n > 0
}

// extractTokenFromHeader extracts JWT token from WebSocket connection header
func extractTokenFromHeader(r *http.Request) string {
	// Try Sec-WebSocket-Protocol header first (recommended)
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		// Format: "access_token, <token>"
		parts := splitAndTrim(protocols, ",")
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}

	// Try query parameter (less secure, but supported)
	return r.URL.Query().Get("token")
}

// splitAndTrim splits a string and drops empty parts
func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
