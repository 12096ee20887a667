// Package account manages an authenticated session with the VinFast connected-car cloud.
//
// A Session owns the OAuth access and refresh tokens, the vehicle identity used to scope
// requests, and the enveloped request wrapper shared by all higher-level fetchers. The library
// never resends a request after a token refresh: the caller receives
// [protocol.ErrRetryAfterRefresh] and issues the request again itself.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
	"github.com/vinfast-community/ccar-command/pkg/telemetry"
)

const (
	defaultAuthHost = "vinfast-us-prod.us.auth0.com"
	defaultClientID = "xhGY7XKDFSk1Q22rxidvwujfz0EPAbUP"
	defaultAudience = "https://vinfast-us-prod.us.auth0.com/api/v2/"
	defaultAPIHost  = "mobile.connected-car.vinfastauto.us"

	// ReadTimeout bounds authentication and read requests. Commands use a longer budget; see
	// the sign package.
	ReadTimeout = 30 * time.Second

	// MaxResponseLength bounds how much of a response body the client is willing to buffer.
	MaxResponseLength = 1 << 20
)

// DeviceInfo is sent with every API request and identifies the client installation to the
// server. The zero value is filled in with defaults matching the mobile app's header set.
type DeviceInfo struct {
	ServiceName string
	AppVersion  string
	Platform    string
	Family      string
	OSVersion   string
	Locale      string
	Timezone    string
	Identifier  string
}

func (d *DeviceInfo) applyDefaults() {
	if d.ServiceName == "" {
		d.ServiceName = "CAPP"
	}
	if d.AppVersion == "" {
		d.AppVersion = "1.10.3"
	}
	if d.Platform == "" {
		d.Platform = "GoSDK"
	}
	if d.Family == "" {
		d.Family = "Integration"
	}
	if d.OSVersion == "" {
		d.OSVersion = "1.0"
	}
	if d.Locale == "" {
		d.Locale = "en-US"
	}
	if d.Timezone == "" {
		d.Timezone = "America/New_York"
	}
	if d.Identifier == "" {
		d.Identifier = "ccar-command-sdk"
	}
}

// Config collects the endpoints and client identity used by a Session. Zero-value fields fall
// back to the production hosts the mobile app talks to.
type Config struct {
	AuthHost string
	ClientID string
	Audience string
	APIHost  string
	Device   DeviceInfo

	// Client overrides the HTTP client used for reads and authentication. Mostly useful for
	// tests; the default applies ReadTimeout.
	Client *http.Client
}

// Session holds the token state and vehicle identity for one configured account.
type Session struct {
	cfg    Config
	client *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	vin          string
	userID       string

	// refreshMu serializes refresh exchanges so concurrent 401s share a single attempt.
	refreshMu sync.Mutex

	resolverOnce sync.Once
	resolver     *telemetry.Resolver
}

// New returns an unauthenticated Session. Call [Session.Authenticate] before issuing requests.
func New(cfg Config) *Session {
	if cfg.AuthHost == "" {
		cfg.AuthHost = defaultAuthHost
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultAudience
	}
	if cfg.APIHost == "" {
		cfg.APIHost = defaultAPIHost
	}
	cfg.Device.applyDefaults()
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: ReadTimeout}
	}
	return &Session{cfg: cfg, client: client}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticate performs a password-grant exchange with the identity provider. A 401 response
// surfaces as [protocol.AuthError]; any other failure as [protocol.ProtocolError].
func (s *Session) Authenticate(ctx context.Context, email, password string) error {
	payload := map[string]string{
		"client_id":  s.cfg.ClientID,
		"audience":   s.cfg.Audience,
		"grant_type": "password",
		"scope":      "offline_access openid profile email",
		"username":   email,
		"password":   password,
	}
	status, body, err := s.postJSON(ctx, fmt.Sprintf("https://%s/oauth/token", s.cfg.AuthHost), payload, nil)
	if err != nil {
		return protocol.NewProtocolError(err)
	}
	switch status {
	case http.StatusOK:
		var tokens tokenResponse
		if err := json.Unmarshal(body, &tokens); err != nil {
			return protocol.NewProtocolError(fmt.Errorf("malformed token response: %w", err))
		}
		s.mu.Lock()
		s.accessToken = tokens.AccessToken
		s.refreshToken = tokens.RefreshToken
		s.mu.Unlock()
		log.Debug("Authentication successful")
		return nil
	case http.StatusUnauthorized:
		return &protocol.AuthError{Err: fmt.Errorf("invalid credentials")}
	default:
		log.Error("Auth failed: %d - %s", status, body)
		return protocol.NewHTTPError(status, string(body))
	}
}

// Refresh performs a refresh-grant exchange. It returns false, without error, if no refresh
// token is held or the exchange does not succeed; refresh is best-effort by design.
func (s *Session) Refresh(ctx context.Context) bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()
	if refreshToken == "" {
		return false
	}

	payload := map[string]string{
		"client_id":     s.cfg.ClientID,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	status, body, err := s.postJSON(ctx, fmt.Sprintf("https://%s/oauth/token", s.cfg.AuthHost), payload, nil)
	if err != nil || status != http.StatusOK {
		log.Error("Token refresh failed: status %d: %v", status, err)
		return false
	}
	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		log.Error("Token refresh failed: %s", err)
		return false
	}
	s.mu.Lock()
	s.accessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		s.refreshToken = tokens.RefreshToken
	}
	s.mu.Unlock()
	return true
}

// refreshIfStale runs a single refresh exchange unless another caller already replaced the
// token observed by the failed request.
func (s *Session) refreshIfStale(ctx context.Context, usedToken string) bool {
	s.mu.Lock()
	current := s.accessToken
	s.mu.Unlock()
	if current != usedToken {
		return true
	}
	return s.Refresh(ctx)
}

// UseRefreshToken installs a previously saved refresh token. The next [Session.Refresh] call
// exchanges it for a fresh access token.
func (s *Session) UseRefreshToken(token string) {
	s.mu.Lock()
	s.refreshToken = token
	s.mu.Unlock()
}

// RefreshToken returns the current refresh token so callers can persist it.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// AccessToken returns the current bearer token. Pairing and command dispatch authenticate with
// it directly.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// VIN returns the vehicle identifier pinned by the first GetVehicles call, or "".
func (s *Session) VIN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vin
}

// UserID returns the player identifier pinned by the first GetVehicles call, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// TokenExpiresWithin reports whether the access token's exp claim falls inside the window. An
// unparseable or claimless token counts as expiring, so callers refresh conservatively.
func (s *Session) TokenExpiresWithin(window time.Duration) bool {
	s.mu.Lock()
	accessToken := s.accessToken
	s.mu.Unlock()
	if accessToken == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return true
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return true
	}
	return time.Until(expiry.Time) < window
}

// Subject returns the token's sub claim, used only for diagnostics.
func (s *Session) Subject() string {
	s.mu.Lock()
	accessToken := s.accessToken
	s.mu.Unlock()
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return ""
	}
	subject, _ := claims.GetSubject()
	return subject
}

// Headers returns the fixed client-identification header set plus the bearer token. The VIN and
// player identifier headers are included only once known.
func (s *Session) Headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.cfg.Device
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.accessToken)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("x-service-name", d.ServiceName)
	h.Set("x-app-version", d.AppVersion)
	h.Set("x-device-platform", d.Platform)
	h.Set("x-device-family", d.Family)
	h.Set("x-device-os-version", d.OSVersion)
	h.Set("x-device-locale", d.Locale)
	h.Set("x-timezone", d.Timezone)
	h.Set("x-device-identifier", d.Identifier)
	if s.vin != "" {
		h.Set("x-vin-code", s.vin)
	}
	if s.userID != "" {
		h.Set("x-player-identifier", s.userID)
	}
	return h
}

// postJSON issues a bare POST with a JSON body and the optional extra headers, returning status
// and body. Used for the identity provider, which does not speak the API envelope.
func (s *Session) postJSON(ctx context.Context, url string, payload interface{}, headers http.Header) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, values := range headers {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}
	response, err := s.client.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()
	responseBody, err := readBounded(response.Body)
	if err != nil {
		return response.StatusCode, nil, err
	}
	return response.StatusCode, responseBody, nil
}

func readBounded(r io.Reader) ([]byte, error) {
	reader := io.LimitedReader{R: r, N: MaxResponseLength}
	return io.ReadAll(&reader)
}

type envelope struct {
	Code    *int64          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// request wraps a single enveloped API call. On a 401 it attempts exactly one refresh: if the
// refresh succeeds the caller receives protocol.ErrRetryAfterRefresh and must resend; if not,
// protocol.AuthExpiredError. Application-level codes other than 0 and 200000 are rejected.
func (s *Session) request(ctx context.Context, method, endpoint string, payload interface{}) (json.RawMessage, error) {
	url := fmt.Sprintf("https://%s%s", s.cfg.APIHost, endpoint)
	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, protocol.NewProtocolError(err)
		}
		bodyReader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, protocol.NewProtocolError(err)
	}
	usedToken := s.AccessToken()
	request.Header = s.Headers()
	log.Debug("Requesting %s %s", method, url)

	response, err := s.client.Do(request)
	if err != nil {
		log.Error("API request failed: %s", err)
		return nil, protocol.NewProtocolError(err)
	}
	defer response.Body.Close()
	responseBody, err := readBounded(response.Body)
	if err != nil {
		return nil, protocol.NewProtocolError(err)
	}

	if response.StatusCode == http.StatusUnauthorized {
		if s.refreshIfStale(ctx, usedToken) {
			return nil, protocol.ErrRetryAfterRefresh
		}
		return nil, &protocol.AuthExpiredError{}
	}
	if response.StatusCode != http.StatusOK {
		return nil, protocol.NewHTTPError(response.StatusCode, string(responseBody))
	}

	var env envelope
	if err := json.Unmarshal(responseBody, &env); err != nil {
		return nil, protocol.NewProtocolError(fmt.Errorf("malformed response envelope: %w", err))
	}
	if env.Code == nil || (*env.Code != 0 && *env.Code != 200000) {
		message := env.Message
		if message == "" {
			message = "unknown error"
		}
		return nil, &protocol.ProtocolError{Status: http.StatusOK, Body: message}
	}
	return env.Data, nil
}

// Get issues an authenticated GET against the API host and returns the envelope's data field.
func (s *Session) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return s.request(ctx, http.MethodGet, endpoint, nil)
}

// Post issues an authenticated POST against the API host and returns the envelope's data field.
// Slices marshal to bare JSON arrays, which the telemetry read endpoint requires.
func (s *Session) Post(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error) {
	return s.request(ctx, http.MethodPost, endpoint, payload)
}

// RawGet issues an authenticated GET without envelope handling and returns the raw status and
// body. The alias catalog endpoint does not reliably use the envelope, so its fetcher inspects
// the body itself.
func (s *Session) RawGet(ctx context.Context, endpoint string) (int, []byte, error) {
	url := fmt.Sprintf("https://%s%s", s.cfg.APIHost, endpoint)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	request.Header = s.Headers()
	response, err := s.client.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()
	body, err := readBounded(response.Body)
	if err != nil {
		return response.StatusCode, nil, err
	}
	return response.StatusCode, body, nil
}

// retryOnce runs fn, repeating it a single time if the first attempt reported
// protocol.ErrRetryAfterRefresh.
func (s *Session) retryOnce(fn func() error) error {
	err := fn()
	if errors.Is(err, protocol.ErrRetryAfterRefresh) {
		return fn()
	}
	return err
}
