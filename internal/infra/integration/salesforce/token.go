package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// TokenProvider exchanges the configured credentials for an access token. When caching is
// enabled the token is reused until it is older than ttl or Invalidate is called.
type TokenProvider struct {
	creds Credentials
	http  *http.Client
	cache bool
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	cached *entity.AccessToken
}

type TokenProviderOption func(*TokenProvider)

func WithTokenCache(ttl time.Duration) TokenProviderOption {
	return func(p *TokenProvider) {
		p.cache = true
		p.ttl = ttl
	}
}

func WithClock(now func() time.Time) TokenProviderOption {
	return func(p *TokenProvider) { p.now = now }
}

func NewTokenProvider(creds Credentials, httpClient *http.Client, opts ...TokenProviderOption) *TokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	p := &TokenProvider{
		creds: creds,
		http:  httpClient,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns an access token. Every failure is an *entity.AuthError.
func (p *TokenProvider) Acquire(ctx context.Context) (entity.AccessToken, error) {
	if p.cache {
		p.mu.Lock()
		if p.cached != nil && (p.ttl <= 0 || p.now().Sub(p.cached.IssuedAt) < p.ttl) {
			token := *p.cached
			p.mu.Unlock()
			return token, nil
		}
		p.mu.Unlock()
	}

	token, err := p.requestToken(ctx)
	if err != nil {
		return entity.AccessToken{}, err
	}

	if p.cache {
		p.mu.Lock()
		p.cached = &token
		p.mu.Unlock()
	}
	return token, nil
}

// Invalidate drops the cached token, typically after the CRM answered 401.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *TokenProvider) requestToken(ctx context.Context) (entity.AccessToken, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {p.creds.ClientID},
		"client_secret": {p.creds.ClientSecret},
		"username":      {p.creds.Username},
		"password":      {p.creds.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return entity.AccessToken{}, &entity.AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return entity.AccessToken{}, &entity.AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.AccessToken{}, &entity.AuthError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logrus.WithField("status", resp.StatusCode).Warn("salesforce token request rejected")
		return entity.AccessToken{}, &entity.AuthError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("token endpoint answered %s", snippet(string(body))),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return entity.AccessToken{}, &entity.AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" || tr.InstanceURL == "" {
		return entity.AccessToken{}, &entity.AuthError{StatusCode: resp.StatusCode, Err: errors.New("token response missing access_token or instance_url")}
	}

	return entity.AccessToken{
		AccessToken: tr.AccessToken,
		InstanceURL: strings.TrimRight(tr.InstanceURL, "/"),
		IssuedAt:    p.now(),
	}, nil
}

// snippet shortens a response body for error messages without splitting a character.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 200 {
		return s
	}
	n := 200
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
