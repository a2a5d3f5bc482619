package moneyforward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"billsync/internal/config"
	"billsync/internal/services"
)

// TokenManager implements TokenSource over a persisted OAuth token,
// refreshing it transparently when it nears expiry.
type TokenManager struct {
	clientID     string
	clientSecret string
	redirectURI  string
	authBaseURL  string
	store        TokenStore
	httpClient   HTTPDoer

	mu     sync.Mutex
	cached Token
	loaded bool
}

// NewTokenManager constructs a token manager from configuration.
func NewTokenManager(cfg *config.Config, store TokenStore, opts ...TokenManagerOption) *TokenManager {
	manager := &TokenManager{
		clientID:     cfg.MoneyForward.ClientID,
		clientSecret: cfg.MoneyForward.ClientSecret,
		redirectURI:  cfg.MoneyForward.RedirectURI,
		authBaseURL:  strings.TrimRight(cfg.MoneyForward.AuthBaseURL, "/"),
		store:        store,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// TokenManagerOption customizes the token manager.
type TokenManagerOption func(*TokenManager)

// WithAuthHTTPClient overrides the HTTP client used for token requests.
func WithAuthHTTPClient(client HTTPDoer) TokenManagerOption {
	return func(m *TokenManager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// AuthorizeURL builds the browser authorization URL and the state value
// the callback must echo back.
func (m *TokenManager) AuthorizeURL() (string, string) {
	state := uuid.NewString()
	params := url.Values{
		"client_id":     {m.clientID},
		"redirect_uri":  {m.redirectURI},
		"response_type": {"code"},
		"scope":         {"mfc/invoice/data.write"},
		"state":         {state},
	}
	return m.authBaseURL + "/authorize?" + params.Encode(), state
}

// Exchange trades an authorization code for tokens and persists them.
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	token, err := m.requestToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.redirectURI},
	})
	if err != nil {
		return err
	}
	return m.storeToken(token)
}

// Token returns a valid access token, refreshing or failing with an
// auth error when no usable credential exists.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		token, found, err := m.store.Load()
		if err != nil {
			return "", services.Wrap(services.ErrAuth, "moneyforward", "token", "load stored token", err)
		}
		if !found {
			return "", services.Wrap(services.ErrAuth, "moneyforward", "token", "no stored token; run auth first", nil)
		}
		m.cached = token
		m.loaded = true
	}

	if m.cached.Valid() {
		return m.cached.AccessToken, nil
	}
	if m.cached.RefreshToken == "" {
		return "", services.Wrap(services.ErrAuth, "moneyforward", "token", "token expired and no refresh token; run auth again", nil)
	}

	refreshed, err := m.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.cached.RefreshToken},
	})
	if err != nil {
		return "", err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = m.cached.RefreshToken
	}
	if err := m.storeLocked(refreshed); err != nil {
		return "", err
	}
	return m.cached.AccessToken, nil
}

func (m *TokenManager) storeToken(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeLocked(token)
}

func (m *TokenManager) storeLocked(token Token) error {
	if err := m.store.Save(token); err != nil {
		return services.Wrap(services.ErrAuth, "moneyforward", "token", "persist token", err)
	}
	m.cached = token
	m.loaded = true
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *TokenManager) requestToken(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	endpoint := m.authBaseURL + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, services.Wrap(services.ErrAuth, "moneyforward", "token", "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, services.Wrap(services.ErrAuth, "moneyforward", "token", "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, services.Wrap(services.ErrAuth, "moneyforward", "token", "read token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("token endpoint returned http %d: %s", resp.StatusCode, extractErrorMessage(body))
		return Token{}, services.Wrap(services.ErrAuth, "moneyforward", "token", detail, nil)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, services.Wrap(services.ErrAuth, "moneyforward", "token", "decode token response", err)
	}
	if parsed.AccessToken == "" {
		return Token{}, services.Wrap(services.ErrAuth, "moneyforward", "token", "token response missing access_token", nil)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    parsed.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
