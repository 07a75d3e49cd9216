package seedr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/italolelis/seedr_tray/internal/logctx"
	"github.com/italolelis/seedr_tray/internal/storage"
	"golang.org/x/oauth2"
)

// ContextTokenSource is a token source whose exchange follows the caller's
// context, so cancelling an action also cancels its authorize request.
type ContextTokenSource interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// DeviceTokenSource exchanges the persisted device code for an access token.
// Every call performs a fresh round trip; wrap it in a CachingTokenSource to
// keep tokens until they expire.
type DeviceTokenSource struct {
	ctx        context.Context
	httpClient *http.Client
	baseURL    string
	clientID   string
	store      storage.SettingsReader
	ttl        time.Duration
}

// NewDeviceTokenSource returns a token source bound to ctx, in the manner of
// oauth2.Config.TokenSource. ttl is the lifetime assumed when the API does not
// report expires_in; zero means the token never expires locally.
func NewDeviceTokenSource(
	ctx context.Context, httpClient *http.Client, baseURL, clientID string, store storage.SettingsReader, ttl time.Duration,
) *DeviceTokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &DeviceTokenSource{
		ctx:        ctx,
		httpClient: httpClient,
		baseURL:    baseURL,
		clientID:   clientID,
		store:      store,
		ttl:        ttl,
	}
}

type authorizeResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

// Token implements oauth2.TokenSource using the context given at construction.
func (s *DeviceTokenSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(s.ctx)
}

// TokenContext exchanges the stored device code using ctx for the store read
// and the authorize request. A missing device code is sent as an empty string
// and the API decides the outcome.
func (s *DeviceTokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	const op = "authorize"

	logger := logctx.LoggerFromContext(ctx)

	deviceCode, err := s.store.Get(ctx, storage.DeviceTokenKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to read device token: %w", err)
	}

	query := url.Values{}
	query.Set("device_code", deviceCode)
	query.Set("client_id", s.clientID)

	var resp authorizeResponse

	status, err := getJSON(ctx, s.httpClient, s.baseURL+"/api/device/authorize?"+query.Encode(), op, &resp)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) && netErr.StatusCode >= 400 && netErr.StatusCode < 500 {
			return nil, &AuthenticationError{Operation: op, StatusCode: netErr.StatusCode, Err: err}
		}

		return nil, err
	}

	if resp.AccessToken == "" {
		logger.WarnContext(ctx, "device not authorized yet", "status", status, "api_error", resp.Error)

		var cause error
		if resp.Error != "" {
			cause = errors.New(resp.Error)
		}

		return nil, &AuthenticationError{Operation: op, Err: cause}
	}

	token := &oauth2.Token{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
	}

	switch {
	case resp.ExpiresIn > 0:
		token.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	case s.ttl > 0:
		token.Expiry = time.Now().Add(s.ttl)
	}

	logger.DebugContext(ctx, "access token issued", "expiry", token.Expiry)

	return token, nil
}

// CachingTokenSource reuses a token until it expires. Each exchange runs
// under the context of the call that needed it.
type CachingTokenSource struct {
	src ContextTokenSource

	mu    sync.Mutex
	token *oauth2.Token
}

func NewCachingTokenSource(src ContextTokenSource) *CachingTokenSource {
	return &CachingTokenSource{src: src}
}

func (c *CachingTokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := oauth2.ReuseTokenSource(c.token, boundTokenSource{ctx: ctx, src: c.src}).Token()
	if err != nil {
		return nil, err
	}

	c.token = token

	return token, nil
}

// Token implements oauth2.TokenSource without a caller context.
func (c *CachingTokenSource) Token() (*oauth2.Token, error) {
	return c.TokenContext(context.Background())
}

// Reset drops the cached token. The next call exchanges the device code again.
func (c *CachingTokenSource) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = nil
}

type boundTokenSource struct {
	ctx context.Context
	src ContextTokenSource
}

func (b boundTokenSource) Token() (*oauth2.Token, error) {
	return b.src.TokenContext(b.ctx)
}

var (
	_ oauth2.TokenSource = (*DeviceTokenSource)(nil)
	_ oauth2.TokenSource = (*CachingTokenSource)(nil)
	_ ContextTokenSource = (*CachingTokenSource)(nil)
	_ ContextTokenSource = (*DeviceTokenSource)(nil)
)
