package models

import (
	"fmt"
	"strings"
)

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Finding is one issue reported by a scan, as delivered by the backend.
// The client never creates or mutates findings; it only groups and counts
// what the audit snapshot carries.
type Finding struct {
	ID          int                    `json:"id"`
	ScanID      int                    `json:"scan_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Severity    string                 `json:"severity"`
	Target      string                 `json:"target,omitempty"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Remediation string                 `json:"remediation,omitempty"`
	CVE         string                 `json:"cve,omitempty"`
}

func (f *Finding) Validate() error {
	if f.Title == "" {
		return fmt.Errorf("finding title is required")
	}
	switch f.Severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, "info":
	default:
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	return nil
}

func (f *Finding) GetCVELink() string {
	if f.CVE == "" {
		return ""
	}
	return fmt.Sprintf("https://nvd.nist.gov/vuln/detail/%s", f.CVE)
}

// SeverityRank orders severities for display, highest first. Unknown
// severities sort last.
func SeverityRank(severity string) int {
	switch strings.ToLower(severity) {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}
