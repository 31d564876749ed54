package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	// M2MTokenKey is the key used to store the M2M token in Redis
	M2MTokenKey = "booking:m2m_token"
	// TokenExpiryBuffer is how long before expiry a cached token is refreshed
	TokenExpiryBuffer = 60 * time.Second
)

// TokenSource yields a bearer token for service-to-service calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NoToken is used when the collaborators sit on a trusted network.
type NoToken struct{}

func (NoToken) Token(context.Context) (string, error) { return "", nil }

// TokenCache represents a cached token with its expiry time
type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid checks if the token is still valid with a buffer before expiry
func (tc *TokenCache) IsValid(now time.Time) bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// M2MTokenSource performs the client-credentials grant and shares the token
// across replicas through Redis.
type M2MTokenSource struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
	Redis        *redis.Client
}

func (s *M2MTokenSource) Token(ctx context.Context) (string, error) {
	if cached, err := s.cached(ctx); err == nil && cached.IsValid(time.Now()) {
		return cached.Token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", s.ClientID)
	data.Set("client_secret", s.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("failed to get token, status: %s, body: %s", resp.Status, body)
	}

	var tokenResp models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	s.store(ctx, tokenResp)
	return tokenResp.AccessToken, nil
}

func (s *M2MTokenSource) cached(ctx context.Context) (*TokenCache, error) {
	if s.Redis == nil {
		return nil, redis.Nil
	}
	raw, err := s.Redis.Get(ctx, M2MTokenKey).Bytes()
	if err != nil {
		return nil, err
	}
	var tc TokenCache
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

func (s *M2MTokenSource) store(ctx context.Context, tokenResp models.TokenResponse) {
	if s.Redis == nil || tokenResp.ExpiresIn <= 0 {
		return
	}
	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	raw, err := json.Marshal(TokenCache{Token: tokenResp.AccessToken, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return
	}
	s.Redis.Set(ctx, M2MTokenKey, raw, ttl)
}
