package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opticini/auditwatch/internal/session"
	"github.com/opticini/auditwatch/pkg/models"
)

const userAgent = "AuditWatch/1.0"

// Client talks to the audit backend's REST surface. All authenticated calls
// go through the session so the 401-refresh-retry behavior applies uniformly.
type Client struct {
	baseURL    string
	session    *session.Session
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPClient builds the hardened transport shared by the session and the
// client.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func NewClient(baseURL string, sess *session.Session, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: sess,
		// Ten requests per second with a small burst keeps a 2-second poll
		// loop comfortably inside the backend's politeness expectations.
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		httpClient: NewHTTPClient(30 * time.Second),
		logger:     logger,
	}
}

// CreateAudit asks the backend to start a new audit against targetURL with
// every scan type enabled. Creation is not idempotent: calling twice creates
// two audit runs; callers guard against double submission.
func (c *Client) CreateAudit(ctx context.Context, targetURL string) (*models.CreateAuditResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(models.CreateAuditRequest{
		TargetURL: targetURL,
		ScanTypes: []string{"all"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode audit request: %w", err)
	}

	data, err := c.session.Do(ctx, http.MethodPost, c.baseURL+"/security/audit/", body)
	if err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}

	var resp models.CreateAuditResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode audit response: %w", err)
	}
	if resp.Audit.ID == 0 {
		return nil, fmt.Errorf("create audit: backend returned no audit id")
	}
	return &resp, nil
}

// GetAudit fetches the full current snapshot of an audit: header, every scan
// row, and findings grouped by category.
func (c *Client) GetAudit(ctx context.Context, auditID int) (*models.AuditSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	data, err := c.session.Request(ctx, fmt.Sprintf("%s/security/audit/%d/", c.baseURL, auditID))
	if err != nil {
		return nil, fmt.Errorf("fetch audit %d: %w", auditID, err)
	}

	var snap models.AuditSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode audit snapshot: %w", err)
	}
	return &snap, nil
}

// ServerVersion reads the backend's advertised version, used by the CLI's
// update check. Unauthenticated.
func (c *Client) ServerVersion(ctx context.Context) (*models.ServerVersion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version/", nil)
	if err != nil {
		return nil, fmt.Errorf("build version request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch server version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server version returned %d", resp.StatusCode)
	}

	var sv models.ServerVersion
	if err := json.NewDecoder(resp.Body).Decode(&sv); err != nil {
		return nil, fmt.Errorf("decode server version: %w", err)
	}
	return &sv, nil
}
