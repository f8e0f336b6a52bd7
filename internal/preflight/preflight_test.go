package preflight

import (
	"context"
	"net"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
)

func TestValidateHost(t *testing.T) {
	cases := []struct {
		host    string
		wantErr bool
	}{
		{"example.com", false},
		{"sub.example.co.uk", false},
		{"EXAMPLE.COM.", false},
		{"localhost", true},
		{"com", true},
		{"", true},
		{"exa mple.com", true},
	}
	for _, tc := range cases {
		_, err := validateHost(tc.host)
		if (err != nil) != tc.wantErr {
			t.Errorf("validateHost(%q) error = %v, wantErr %v", tc.host, err, tc.wantErr)
		}
	}
}

func TestValidateHost_Punycode(t *testing.T) {
	ascii, err := validateHost("bücher.example.com")
	if err != nil {
		t.Fatalf("validateHost() error = %v", err)
	}
	if ascii != "xn--bcher-kva.example.com" {
		t.Errorf("validateHost() = %q", ascii)
	}
}

func TestCheck_IPLiteralSkipsDNS(t *testing.T) {
	c := NewChecker([]string{"127.0.0.1:1"}, 100*time.Millisecond, nil)
	if err := c.Check(context.Background(), "https://192.0.2.10"); err != nil {
		t.Fatalf("Check() on IP literal error = %v", err)
	}
}

// testDNSServer answers every A query with one record for answeredHosts and
// NXDOMAIN otherwise.
func testDNSServer(t *testing.T, answered map[string]bool) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := &mdns.Server{PacketConn: pc, Handler: mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
		resp := new(mdns.Msg)
		resp.SetReply(req)
		name := req.Question[0].Name
		if answered[name] && req.Question[0].Qtype == mdns.TypeA {
			rr, _ := mdns.NewRR(name + " 60 IN A 192.0.2.1")
			resp.Answer = append(resp.Answer, rr)
		} else if !answered[name] {
			resp.Rcode = mdns.RcodeNameError
		}
		_ = w.WriteMsg(resp)
	})}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestCheck_ResolvableHost(t *testing.T) {
	addr := testDNSServer(t, map[string]bool{"example.com.": true})
	c := NewChecker([]string{addr}, time.Second, nil)
	if err := c.Check(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestCheck_NXDomainRejected(t *testing.T) {
	addr := testDNSServer(t, map[string]bool{})
	c := NewChecker([]string{addr}, time.Second, nil)
	err := c.Check(context.Background(), "https://no-such-host.example.com")
	if err == nil {
		t.Fatal("Check() error = nil for NXDOMAIN host")
	}
}

func TestCheck_InvalidHostRejectedBeforeDNS(t *testing.T) {
	// Unreachable resolver proves validation rejects without a query.
	c := NewChecker([]string{"127.0.0.1:1"}, 50*time.Millisecond, nil)
	if err := c.Check(context.Background(), "https://localhost"); err == nil {
		t.Fatal("Check() error = nil for single-label host")
	}
}
