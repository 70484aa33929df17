package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nholik/stack-updater/internal/httpx"
	"github.com/rs/zerolog"
)

const (
	// DefaultIAMURL is the public IBM Cloud IAM endpoint.
	DefaultIAMURL = "https://iam.cloud.ibm.com"

	apiKeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"
	tokenPath       = "/identity/token"
	expirySkew      = 60 * time.Second
)

// Token is an IAM access/refresh credential pair.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Expiration   int64  `json:"expiration"`
}

// TokenProvider supplies IAM credentials for catalog requests.
type TokenProvider interface {
	Token(ctx context.Context) (Token, error)
}

// TokenSource exchanges an API key for IAM tokens and reuses them until they
// are close to expiring.
type TokenSource struct {
	logger       zerolog.Logger
	endpoint     *url.URL
	apiKey       string
	clientID     string
	clientSecret string
	transport    *httpx.Client
	now          func() time.Time

	mu      sync.Mutex
	current *Token
}

// NewTokenSource builds a TokenSource for the given IAM base URL.
func NewTokenSource(logger zerolog.Logger, iamURL, apiKey string, opts ...Option) (*TokenSource, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	if strings.TrimSpace(iamURL) == "" {
		iamURL = DefaultIAMURL
	}
	endpoint, err := url.Parse(strings.TrimRight(iamURL, "/") + tokenPath)
	if err != nil {
		return nil, fmt.Errorf("invalid iam url: %w", err)
	}

	o := buildOptions(opts)
	return &TokenSource{
		logger:       logger,
		endpoint:     endpoint,
		apiKey:       apiKey,
		clientID:     o.clientID,
		clientSecret: o.clientSecret,
		transport:    httpx.New(logger, userAgent, o.timing),
		now:          time.Now,
	}, nil
}

// Token returns a cached token or performs a fresh exchange.
func (s *TokenSource) Token(ctx context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.expired(*s.current) {
		return *s.current, nil
	}

	token, err := s.exchange(ctx)
	if err != nil {
		return Token{}, wrapLookup("get iam token", err)
	}
	s.current = &token
	return token, nil
}

func (s *TokenSource) expired(token Token) bool {
	if token.Expiration == 0 {
		return false
	}
	return s.now().Add(expirySkew).Unix() >= token.Expiration
}

func (s *TokenSource) exchange(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", apiKeyGrantType)
	form.Set("apikey", s.apiKey)
	payload := []byte(form.Encode())

	resp, err := s.transport.Do(ctx, s.endpoint, func(ctx context.Context) (*retryablehttp.Request, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.String(), payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if s.clientID != "" {
			req.SetBasicAuth(s.clientID, s.clientSecret)
		}
		return req, nil
	})
	if err != nil {
		return Token{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, httpx.NewStatusError(resp)
	}

	var token Token
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return Token{}, fmt.Errorf("decode iam token: %w", err)
	}
	if token.AccessToken == "" {
		return Token{}, errors.New("iam response missing access_token")
	}

	s.logger.Debug().
		Int64("expires_in", token.ExpiresIn).
		Msg("iam token acquired")

	return token, nil
}
