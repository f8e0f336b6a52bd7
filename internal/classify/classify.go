package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is a consumer-facing grouping of scan types. Raw engine
// identifiers never reach end users; this package is the boundary that hides
// them, so the set of engines can grow without the visible taxonomy changing.
type Category string

const (
	CategoryAttackSurface Category = "attack_surface"
	CategoryConfiguration Category = "configuration_analysis"
	CategoryExploit       Category = "exploit_testing"
	CategoryInfoLeak      Category = "information_exposure"
	CategoryOther         Category = "other"
)

var scanTypeCategories = map[string]Category{
	"dns_discovery":     CategoryAttackSurface,
	"subdomain_enum":    CategoryAttackSurface,
	"port_scan":         CategoryAttackSurface,
	"tech_fingerprint":  CategoryAttackSurface,
	"ssl_check":         CategoryConfiguration,
	"header_analysis":   CategoryConfiguration,
	"cookie_audit":      CategoryConfiguration,
	"cors_check":        CategoryConfiguration,
	"sql_injection":     CategoryExploit,
	"xss_scan":          CategoryExploit,
	"path_traversal":    CategoryExploit,
	"open_redirect":     CategoryExploit,
	"email_exposure":    CategoryInfoLeak,
	"sensitive_files":   CategoryInfoLeak,
	"directory_listing": CategoryInfoLeak,
}

var categoryNames = map[Category]string{
	CategoryAttackSurface: "Attack Surface Discovery",
	CategoryConfiguration: "Configuration Analysis",
	CategoryExploit:       "Exploit Testing",
	CategoryInfoLeak:      "Information Exposure",
	CategoryOther:         "Additional Checks",
}

var titleCaser = cases.Title(language.English)

// Classify maps a scan-type identifier to its category. It is total: any
// unrecognized scan type lands in CategoryOther so classification can never
// fail a poll.
func Classify(scanType string) Category {
	if c, ok := scanTypeCategories[strings.ToLower(strings.TrimSpace(scanType))]; ok {
		return c
	}
	return CategoryOther
}

// DisplayName returns the user-facing name of a category. Categories minted
// by a newer backend than this client get a humanized form of their raw key
// rather than leaking the identifier verbatim.
func DisplayName(category Category) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	humanized := strings.ReplaceAll(strings.TrimSpace(string(category)), "_", " ")
	if humanized == "" {
		return categoryNames[CategoryOther]
	}
	return titleCaser.String(humanized)
}

// Categories returns the fixed taxonomy in display order.
func Categories() []Category {
	return []Category{
		CategoryAttackSurface,
		CategoryConfiguration,
		CategoryExploit,
		CategoryInfoLeak,
		CategoryOther,
	}
}

// ScanTypes returns the known scan types for a category, for taxonomy
// listings. Order is not significant.
func ScanTypes(category Category) []string {
	var out []string
	for st, c := range scanTypeCategories {
		if c == category {
			out = append(out, st)
		}
	}
	return out
}
