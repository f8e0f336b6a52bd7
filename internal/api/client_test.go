package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opticini/auditwatch/internal/session"
)

type memKeystore struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memKeystore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *memKeystore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memKeystore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	ks := &memKeystore{values: map[string]string{
		"auth.access":  "tok-1",
		"auth.refresh": "ref-1",
	}}
	sess := session.New(srv.URL, ks, srv.Client(), nil)
	return NewClient(srv.URL, sess, nil)
}

func TestCreateAudit(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/security/audit/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		fmt.Fprint(w, `{
			"audit": {"id": 7, "total_scans": 3},
			"scans": [
				{"id": 1, "scan_type": "dns_discovery", "status": "pending"},
				{"id": 2, "scan_type": "ssl_check", "status": "pending"},
				{"id": 3, "scan_type": "sql_injection", "status": "pending"}
			]
		}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).CreateAudit(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("CreateAudit() error = %v", err)
	}
	if resp.Audit.ID != 7 || resp.Audit.TotalScans != 3 {
		t.Errorf("CreateAudit() audit = %+v", resp.Audit)
	}
	if len(resp.Scans) != 3 {
		t.Fatalf("CreateAudit() returned %d scans, want 3", len(resp.Scans))
	}
	if gotBody["target_url"] != "https://example.com" {
		t.Errorf("request target_url = %v", gotBody["target_url"])
	}
	types, ok := gotBody["scan_types"].([]interface{})
	if !ok || len(types) != 1 || types[0] != "all" {
		t.Errorf("request scan_types = %v, want [all]", gotBody["scan_types"])
	}
}

func TestCreateAudit_MissingIDRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"audit": {}, "scans": []}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).CreateAudit(context.Background(), "https://example.com"); err == nil {
		t.Fatal("CreateAudit() error = nil for response without audit id")
	}
}

func TestCreateAudit_BackendErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).CreateAudit(context.Background(), "https://example.com"); err == nil {
		t.Fatal("CreateAudit() error = nil for 500 response")
	}
}

func TestGetAudit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/security/audit/7/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"audit": {
				"id": 7, "status": "running", "total_scans": 3,
				"completed_scans": 1, "failed_scans": 0,
				"total_findings": 2, "critical_findings": 1, "high_findings": 1,
				"medium_findings": 0, "low_findings": 0
			},
			"scans": [
				{"id": 1, "scan_type": "dns_discovery", "status": "completed", "findings_count": 2}
			],
			"findings_by_category": {
				"attack_surface": [
					{"id": 10, "scan_id": 1, "title": "Open zone transfer", "severity": "critical"}
				]
			}
		}`)
	}))
	defer srv.Close()

	snap, err := newTestClient(t, srv).GetAudit(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetAudit() error = %v", err)
	}
	if snap.Audit.Status != "running" || snap.Audit.CompletedScans != 1 {
		t.Errorf("GetAudit() audit = %+v", snap.Audit)
	}
	if len(snap.FindingsByCategory["attack_surface"]) != 1 {
		t.Errorf("GetAudit() findings = %v", snap.FindingsByCategory)
	}
}

func TestServerVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"version": "2.4.0", "min_client": "1.0.0"}`)
	}))
	defer srv.Close()

	sv, err := newTestClient(t, srv).ServerVersion(context.Background())
	if err != nil {
		t.Fatalf("ServerVersion() error = %v", err)
	}
	if sv.Version != "2.4.0" || sv.MinClient != "1.0.0" {
		t.Errorf("ServerVersion() = %+v", sv)
	}
}
