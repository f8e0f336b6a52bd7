package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/opticini/auditwatch/pkg/models"
)

const (
	accessTokenKey  = "auth.access"
	refreshTokenKey = "auth.refresh"

	refreshPath = "/auth/token/refresh/"

	// refreshSkew is how close to expiry an access token may get before a
	// request refreshes it proactively instead of waiting for the 401.
	refreshSkew = 30 * time.Second
)

// ErrNotAuthenticated is returned once the session holds no usable
// credentials. Callers are expected to send the user to a login surface; the
// session itself never navigates.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// StatusError is a non-2xx backend response surfaced as an error.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Session is the token accessor: it reads the persisted access/refresh pair,
// decorates requests with the bearer token, and recovers exactly once from a
// 401 by refreshing through the backend before retrying.
type Session struct {
	baseURL    string
	keystore   Keystore
	httpClient *http.Client
	logger     *logrus.Logger
	refreshing singleflight.Group
	now        func() time.Time
}

func New(baseURL string, keystore Keystore, httpClient *http.Client, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keystore:   keystore,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// AccessToken reads the persisted access token. It never refreshes.
func (s *Session) AccessToken() (string, bool) {
	return s.keystore.Get(accessTokenKey)
}

// SetCredentials stores a new access/refresh pair, replacing whatever was
// persisted before.
func (s *Session) SetCredentials(access, refresh string) error {
	if err := s.keystore.Set(accessTokenKey, access); err != nil {
		return err
	}
	return s.keystore.Set(refreshTokenKey, refresh)
}

// RefreshAccessToken exchanges the persisted refresh token for a new access
// token. Concurrent callers share a single refresh. On any failure both
// credentials are cleared and ErrNotAuthenticated is returned, so the caller
// treats the session as logged out.
func (s *Session) RefreshAccessToken(ctx context.Context) (string, error) {
	token, err, _ := s.refreshing.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	refreshToken, ok := s.keystore.Get(refreshTokenKey)
	if !ok || refreshToken == "" {
		return "", ErrNotAuthenticated
	}

	body, err := json.Marshal(models.TokenRefreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.clearCredentials()
		return "", fmt.Errorf("token refresh: %w", ErrNotAuthenticated)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warnf("Token refresh rejected with status %d", resp.StatusCode)
		s.clearCredentials()
		return "", ErrNotAuthenticated
	}

	var tr models.TokenRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.Access == "" {
		s.clearCredentials()
		return "", ErrNotAuthenticated
	}

	if err := s.keystore.Set(accessTokenKey, tr.Access); err != nil {
		return "", fmt.Errorf("persist access token: %w", err)
	}
	if tr.Refresh != "" {
		if err := s.keystore.Set(refreshTokenKey, tr.Refresh); err != nil {
			return "", fmt.Errorf("persist refresh token: %w", err)
		}
	}
	return tr.Access, nil
}

func (s *Session) clearCredentials() {
	if err := s.keystore.Delete(accessTokenKey, refreshTokenKey); err != nil {
		s.logger.Warnf("Failed to clear credentials: %v", err)
	}
}

// Request issues an authenticated GET and returns the response body.
func (s *Session) Request(ctx context.Context, url string) ([]byte, error) {
	return s.Do(ctx, http.MethodGet, url, nil)
}

// Do issues an authenticated request. On a 401 it refreshes the access token
// once and retries the same request; if the refresh fails, the original 401
// propagates. There is never more than one retry per call.
func (s *Session) Do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	token, ok := s.AccessToken()
	if !ok || token == "" {
		return nil, ErrNotAuthenticated
	}

	if s.expiringSoon(token) {
		if fresh, err := s.RefreshAccessToken(ctx); err == nil {
			token = fresh
		}
		// On refresh failure fall through with the old token; the 401 path
		// below settles it.
	}

	data, status, err := s.send(ctx, method, url, body, token)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return s.settle(data, status)
	}

	original := &StatusError{StatusCode: status, Body: string(data)}
	fresh, err := s.RefreshAccessToken(ctx)
	if err != nil {
		return nil, original
	}

	data, status, err = s.send(ctx, method, url, body, fresh)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, original
	}
	return s.settle(data, status)
}

func (s *Session) send(ctx context.Context, method, url string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func (s *Session) settle(data []byte, status int) ([]byte, error) {
	if status < 200 || status >= 300 {
		return nil, &StatusError{StatusCode: status, Body: string(data)}
	}
	return data, nil
}

// expiringSoon peeks at the JWT exp claim without verifying the signature
// (the backend verifies; the client only schedules refreshes). Tokens that
// are not JWTs or carry no exp are never refreshed proactively.
func (s *Session) expiringSoon(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return s.now().Add(refreshSkew).After(exp.Time)
}
