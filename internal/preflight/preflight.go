package preflight

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Checker validates an audit target before the backend is asked to scan it:
// the host must look like a registrable name (or an IP literal) and resolve.
// The backend re-validates on its side; this just keeps obvious typos from
// burning an audit run.
type Checker struct {
	servers   []string
	timeout   time.Duration
	udpClient *mdns.Client
	logger    *logrus.Logger
}

func NewChecker(servers []string, timeout time.Duration, logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}
	if len(servers) == 0 {
		servers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		servers: servers,
		timeout: timeout,
		udpClient: &mdns.Client{
			Net:          "udp",
			Timeout:      timeout,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			UDPSize:      1232,
		},
		logger: logger,
	}
}

// Check validates targetURL (already normalized) and returns an error
// describing why it is not auditable.
func (c *Checker) Check(ctx context.Context, targetURL string) error {
	u, err := url.Parse(targetURL)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("target %q has no host", targetURL)
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	ascii, err := validateHost(host)
	if err != nil {
		return err
	}
	return c.resolves(ctx, ascii)
}

// validateHost checks the name is a syntactically valid, registrable domain
// and returns its ASCII (punycode) form.
func validateHost(host string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(strings.ToLower(host), "."))
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("hostname %q has no registrable suffix", host)
	}
	suffix, icann := publicsuffix.PublicSuffix(ascii)
	if !icann && !strings.Contains(suffix, ".") {
		return "", fmt.Errorf("hostname %q has an unknown public suffix", host)
	}
	if suffix == ascii {
		return "", fmt.Errorf("%q is a bare public suffix, not a host", host)
	}
	return ascii, nil
}

// resolves succeeds when any configured server returns at least one A or
// AAAA record. Servers are tried in order; the last failure is reported.
func (c *Checker) resolves(ctx context.Context, host string) error {
	var lastErr error
	for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		for _, server := range c.servers {
			if err := ctx.Err(); err != nil {
				return err
			}
			msg := new(mdns.Msg)
			msg.SetQuestion(mdns.Fqdn(host), qtype)
			msg.RecursionDesired = true

			resp, _, err := c.udpClient.ExchangeContext(ctx, msg, server)
			if err != nil {
				lastErr = fmt.Errorf("query %s via %s: %w", host, server, err)
				c.logger.Debugf("Preflight DNS query failed: %v", lastErr)
				continue
			}
			if resp.Rcode == mdns.RcodeNameError {
				return fmt.Errorf("host %q does not exist (NXDOMAIN)", host)
			}
			if resp.Rcode != mdns.RcodeSuccess {
				lastErr = fmt.Errorf("query %s via %s: rcode %s", host, server, mdns.RcodeToString[resp.Rcode])
				continue
			}
			if len(resp.Answer) > 0 {
				return nil
			}
		}
	}
	if lastErr != nil {
		return fmt.Errorf("host %q did not resolve: %w", host, lastErr)
	}
	return fmt.Errorf("host %q has no A or AAAA records", host)
}
