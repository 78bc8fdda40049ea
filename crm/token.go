package crm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/secnex/crm-gateway/metrics"
	"github.com/secnex/crm-gateway/models"
)

const (
	// DefaultTokenTTL is how long a login result is trusted. The CRM does not
	// report an expiry of its own.
	DefaultTokenTTL = 60 * time.Minute

	LoginPath = "/api/login/authenticate"
)

// TokenCache holds the single shared CRM session. Concurrent callers that
// find the cell empty or expired wait on one login exchange.
type TokenCache struct {
	httpClient *http.Client
	loginURL   string
	credential models.Credential
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	value     string
	expiresAt time.Time
	epoch     uint64

	flight singleflight.Group
}

type TokenCacheConfig struct {
	// BaseURL of the CRM API, without trailing slash.
	BaseURL    string
	Credential models.Credential
	// TTL defaults to DefaultTokenTTL.
	TTL        time.Duration
	HTTPClient *http.Client
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		httpClient: client,
		loginURL:   strings.TrimRight(cfg.BaseURL, "/") + LoginPath,
		credential: cfg.Credential,
		ttl:        ttl,
		now:        now,
	}
}

// Token returns a bearer credential ("Bearer <value>"), logging in first when
// no unexpired token is cached. A failed login returns *AuthenticationError
// and leaves the cached token as it was.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if value, _, ok := c.cached(); ok {
		return bearer(value), nil
	}

	v, err, shared := c.flight.Do("login", func() (interface{}, error) {
		value, epoch, ok := c.cached()
		if ok {
			return value, nil
		}
		return c.refresh(context.WithoutCancel(ctx), epoch)
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug("joined in-flight login")
	}
	return bearer(v.(string)), nil
}

// ExpiresAt reports the expiry of the cached token, zero when there is none.
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

func (c *TokenCache) cached() (value string, epoch uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != "" && c.expiresAt.After(c.now()) {
		return c.value, c.epoch, true
	}
	return "", c.epoch, false
}

func (c *TokenCache) refresh(ctx context.Context, epoch uint64) (string, error) {
	value, err := c.login(ctx)
	metrics.IncrementLogin(err == nil)
	if err != nil {
		log.WithError(err).Error("CRM login failed")
		return "", &AuthenticationError{Err: err}
	}
	expiresAt := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// Someone stored a newer token while we were logging in.
		if c.value != "" && c.expiresAt.After(c.now()) {
			return c.value, nil
		}
	}
	c.value = value
	c.expiresAt = expiresAt
	c.epoch++
	metrics.SetTokenExpiry(expiresAt)

	log.WithFields(log.Fields{
		"token":      Fingerprint([]byte(value)),
		"expires_at": expiresAt.Format(time.RFC3339),
	}).Info("CRM token refreshed")
	return value, nil
}

func (c *TokenCache) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(c.credential)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debugf("logging in to %s as %s", c.loginURL, c.credential.Username)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: body}
	}

	value := parseLoginBody(body)
	if value == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return value, nil
}

// parseLoginBody extracts the opaque token from a login response. The CRM
// answers with a JSON string; objects with a token field and bare text are
// accepted too.
func parseLoginBody(body []byte) string {
	body = bytes.TrimSpace(body)
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	result := gjson.ParseBytes(body)
	switch {
	case result.Type == gjson.String:
		return result.String()
	case result.IsObject():
		for _, key := range []string{"token", "access_token", "accessToken"} {
			if v := result.Get(key); v.Type == gjson.String {
				return v.String()
			}
		}
		return ""
	default:
		return string(body)
	}
}

func bearer(value string) string {
	return "Bearer " + value
}

// Fingerprint returns a short, non-reversible digest for logging secrets and
// identifying file contents.
func Fingerprint(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
