package classify

import (
	"sort"
	"testing"
)

func TestClassify_KnownTypes(t *testing.T) {
	cases := []struct {
		scanType string
		want     Category
	}{
		{"dns_discovery", CategoryAttackSurface},
		{"subdomain_enum", CategoryAttackSurface},
		{"ssl_check", CategoryConfiguration},
		{"header_analysis", CategoryConfiguration},
		{"sql_injection", CategoryExploit},
		{"xss_scan", CategoryExploit},
		{"sensitive_files", CategoryInfoLeak},
	}
	for _, tc := range cases {
		if got := Classify(tc.scanType); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.scanType, got, tc.want)
		}
	}
}

func TestClassify_UnknownFallsBack(t *testing.T) {
	for _, st := range []string{"", "quantum_probe", "DNS DISCOVERY!", "   "} {
		if got := Classify(st); got != CategoryOther {
			t.Errorf("Classify(%q) = %q, want %q", st, got, CategoryOther)
		}
	}
}

func TestClassify_NormalizesCaseAndSpace(t *testing.T) {
	if got := Classify("  SSL_Check "); got != CategoryConfiguration {
		t.Fatalf("Classify normalized = %q, want %q", got, CategoryConfiguration)
	}
}

func TestClassify_AlwaysInTaxonomy(t *testing.T) {
	known := make(map[Category]bool)
	for _, c := range Categories() {
		known[c] = true
	}
	inputs := []string{"dns_discovery", "ssl_check", "sql_injection", "nope", "", "weird-type"}
	for _, st := range inputs {
		if c := Classify(st); !known[c] {
			t.Errorf("Classify(%q) = %q, not in the fixed taxonomy", st, c)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		category Category
		want     string
	}{
		{CategoryAttackSurface, "Attack Surface Discovery"},
		{CategoryConfiguration, "Configuration Analysis"},
		{CategoryExploit, "Exploit Testing"},
		{CategoryOther, "Additional Checks"},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.category); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.category, got, tc.want)
		}
	}
}

func TestDisplayName_UnknownCategoryHumanized(t *testing.T) {
	if got := DisplayName(Category("api_abuse")); got != "Api Abuse" {
		t.Errorf("DisplayName(api_abuse) = %q, want %q", got, "Api Abuse")
	}
	if got := DisplayName(Category("")); got != "Additional Checks" {
		t.Errorf("DisplayName(\"\") = %q, want %q", got, "Additional Checks")
	}
}

func TestScanTypes_CoverWholeMap(t *testing.T) {
	var all []string
	for _, c := range Categories() {
		all = append(all, ScanTypes(c)...)
	}
	sort.Strings(all)
	if len(all) != len(scanTypeCategories) {
		t.Fatalf("ScanTypes over all categories returned %d types, map has %d", len(all), len(scanTypeCategories))
	}
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("duplicate scan type %q across categories", all[i])
		}
	}
}
