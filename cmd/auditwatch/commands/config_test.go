package commands

import (
	"reflect"
	"testing"
)

func TestParseValueForKey(t *testing.T) {
	cases := []struct {
		key  string
		in   string
		want interface{}
	}{
		{"preflight.enabled", "true", true},
		{"max_consecutive_failures", "5", 5},
		{"poll_interval", "30s", "30s"},
		{"preflight.timeout", "2m", "2m0s"},
		{"preflight.dns_servers", "1.1.1.1:53, 9.9.9.9:53", []string{"1.1.1.1:53", "9.9.9.9:53"}},
		{"api_url", "https://api.example.com", "https://api.example.com"},
	}
	for _, tc := range cases {
		got := parseValueForKey(tc.key, tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseValueForKey(%q, %q) = %#v, want %#v", tc.key, tc.in, got, tc.want)
		}
	}
}

func TestSetNested(t *testing.T) {
	cfg := map[string]interface{}{
		"preflight": map[string]interface{}{"enabled": true},
	}
	setNested(cfg, []string{"preflight", "timeout"}, "5s")
	setNested(cfg, []string{"api_url"}, "https://api.example.com")

	pf, ok := cfg["preflight"].(map[string]interface{})
	if !ok {
		t.Fatalf("preflight section = %#v", cfg["preflight"])
	}
	if pf["enabled"] != true || pf["timeout"] != "5s" {
		t.Errorf("preflight = %#v", pf)
	}
	if cfg["api_url"] != "https://api.example.com" {
		t.Errorf("api_url = %#v", cfg["api_url"])
	}
}
