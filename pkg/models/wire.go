package models

import "time"

// Wire types for the audit backend's REST payloads. Field names follow the
// backend's snake_case JSON exactly; everything optional on the wire is a
// pointer so absence survives the round trip.

// AuditHeader is the audit object embedded in both the creation response and
// every status snapshot. Aggregate counts are authoritative: the client
// displays them as received and never recomputes them locally.
type AuditHeader struct {
	ID               int         `json:"id"`
	TargetURL        string      `json:"target_url,omitempty"`
	Status           AuditStatus `json:"status,omitempty"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	TotalScans       int         `json:"total_scans"`
	CompletedScans   int         `json:"completed_scans"`
	FailedScans      int         `json:"failed_scans"`
	TotalFindings    int         `json:"total_findings"`
	CriticalFindings int         `json:"critical_findings"`
	HighFindings     int         `json:"high_findings"`
	MediumFindings   int         `json:"medium_findings"`
	LowFindings      int         `json:"low_findings"`
}

// ScanRecord is one scan row as the backend reports it.
type ScanRecord struct {
	ID            int        `json:"id"`
	ScanType      string     `json:"scan_type"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FindingsCount int        `json:"findings_count,omitempty"`
}

// CreateAuditRequest is the body of POST /security/audit/.
type CreateAuditRequest struct {
	TargetURL string   `json:"target_url"`
	ScanTypes []string `json:"scan_types"`
}

// CreateAuditResponse is the backend's acknowledgement of a new audit.
type CreateAuditResponse struct {
	Audit AuditHeader  `json:"audit"`
	Scans []ScanRecord `json:"scans"`
}

// AuditSnapshot is the full state returned by GET /security/audit/{id}/.
// Each snapshot is independently authoritative; the client replaces its
// derived state wholesale on every poll rather than patching.
type AuditSnapshot struct {
	Audit              AuditHeader          `json:"audit"`
	Scans              []ScanRecord         `json:"scans"`
	FindingsByCategory map[string][]Finding `json:"findings_by_category"`
}

// TokenRefreshRequest is the body of POST /auth/token/refresh/.
type TokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

// TokenRefreshResponse carries the new access token and, when the backend
// rotates it, a replacement refresh token.
type TokenRefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// ServerVersion is the backend's advertised version information.
type ServerVersion struct {
	Version   string `json:"version"`
	MinClient string `json:"min_client,omitempty"`
}

// MapScanState normalizes the backend's scan status vocabulary onto the
// client's ScanState. Unknown values are treated as pending so a new backend
// status never breaks a poll.
func MapScanState(status string) ScanState {
	switch status {
	case "running", "in_progress":
		return ScanRunning
	case "completed", "success":
		return ScanCompleted
	case "failed", "error":
		return ScanFailed
	default:
		return ScanPending
	}
}
