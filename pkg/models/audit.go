package models

import "time"

type AuditStatus string

const (
	AuditPending   AuditStatus = "pending"
	AuditRunning   AuditStatus = "running"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// IsTerminal reports whether no further status transitions can occur.
func (s AuditStatus) IsTerminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

type ScanState string

const (
	ScanPending   ScanState = "pending"
	ScanRunning   ScanState = "running"
	ScanCompleted ScanState = "completed"
	ScanFailed    ScanState = "failed"
)

// Progress maps a scan state onto the coarse 0/50/100 indicator shown to
// consumers. It is not a real percentage and must not be interpolated.
func (s ScanState) Progress() int {
	switch s {
	case ScanRunning:
		return 50
	case ScanCompleted:
		return 100
	default:
		return 0
	}
}

type ScanStatus struct {
	ScanID        int        `json:"scan_id"`
	ScanType      string     `json:"scan_type"`
	Category      string     `json:"category"`
	State         ScanState  `json:"state"`
	Progress      int        `json:"progress"`
	FindingsCount int        `json:"findings_count"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Duration      *float64   `json:"duration,omitempty"`
}

// ComputeDuration fills Duration (seconds) from the paired timestamps, or
// leaves it nil when either side is missing. Durations are never estimated.
func (s *ScanStatus) ComputeDuration() {
	if s.StartedAt == nil || s.CompletedAt == nil {
		s.Duration = nil
		return
	}
	d := s.CompletedAt.Sub(*s.StartedAt).Seconds()
	s.Duration = &d
}

type AuditAggregates struct {
	TotalScans       int `json:"total_scans"`
	CompletedScans   int `json:"completed_scans"`
	FailedScans      int `json:"failed_scans"`
	TotalFindings    int `json:"total_findings"`
	CriticalFindings int `json:"critical_findings"`
	HighFindings     int `json:"high_findings"`
	MediumFindings   int `json:"medium_findings"`
	LowFindings      int `json:"low_findings"`
}

// AuditRun is one invocation of the multi-scan workflow against one target.
// The lifecycle controller owns the live value; everything else only ever
// sees serialized copies.
type AuditRun struct {
	AuditID            int                   `json:"audit_id"`
	TargetURL          string                `json:"target_url"`
	Status             AuditStatus           `json:"status"`
	IsRunning          bool                  `json:"is_running"`
	StartTime          *time.Time            `json:"start_time,omitempty"`
	EndTime            *time.Time            `json:"end_time,omitempty"`
	Aggregates         AuditAggregates       `json:"aggregates"`
	Scans              map[string]ScanStatus `json:"scans"`
	FindingsByCategory map[string][]Finding  `json:"findings_by_category"`
}

// NewAuditRun returns the empty initial state: no target, no scans, not
// running.
func NewAuditRun() AuditRun {
	return AuditRun{
		Scans:              make(map[string]ScanStatus),
		FindingsByCategory: make(map[string][]Finding),
	}
}

// Clone deep-copies the run so snapshots handed to stores or printers never
// alias the controller's live maps.
func (r AuditRun) Clone() AuditRun {
	out := r
	out.Scans = make(map[string]ScanStatus, len(r.Scans))
	for k, v := range r.Scans {
		out.Scans[k] = v
	}
	out.FindingsByCategory = make(map[string][]Finding, len(r.FindingsByCategory))
	for k, v := range r.FindingsByCategory {
		fs := make([]Finding, len(v))
		copy(fs, v)
		out.FindingsByCategory[k] = fs
	}
	return out
}
