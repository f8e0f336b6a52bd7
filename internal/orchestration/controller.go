package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opticini/auditwatch/internal/classify"
	"github.com/opticini/auditwatch/pkg/models"
	"github.com/opticini/auditwatch/pkg/utils"
)

// Backend is the slice of the audit API the controller consumes.
type Backend interface {
	CreateAudit(ctx context.Context, targetURL string) (*models.CreateAuditResponse, error)
	GetAudit(ctx context.Context, auditID int) (*models.AuditSnapshot, error)
}

// Persister is the durable snapshot capability. Injected so tests can swap a
// double and the controller never touches storage globals.
type Persister interface {
	Save(run models.AuditRun) error
	Load() (models.AuditRun, bool, error)
	Clear() error
}

type Config struct {
	// PollInterval is the fixed spacing between status polls.
	PollInterval time.Duration
	// MaxConsecutiveFailures stops polling and flags lost contact after that
	// many failed ticks in a row. Zero means poll forever, which matches the
	// product's shipped behavior.
	MaxConsecutiveFailures int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// PollHandle owns the lifetime of one polling loop. Cancel stops the loop
// without discarding state; Done closes once the loop has fully exited.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (h *PollHandle) Cancel() {
	h.once.Do(h.cancel)
}

func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Controller supervises one audit run at a time: it creates the audit,
// synthesizes the initial per-scan state, polls the backend on a fixed
// interval, and reduces every snapshot into fresh derived state. The client
// performs none of the scanning itself.
type Controller struct {
	backend Backend
	store   Persister
	logger  *logrus.Logger
	metrics *utils.MetricsCollector
	cfg     Config

	mu          sync.Mutex
	run         models.AuditRun
	lostContact bool
	seq         uint64
	appliedSeq  uint64
	failures    int
	active      *PollHandle
}

func NewController(backend Backend, store Persister, cfg Config, metrics *utils.MetricsCollector, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Controller{
		backend: backend,
		store:   store,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		run:     models.NewAuditRun(),
	}
	c.registerMetrics()
	return c
}

func (c *Controller) registerMetrics() {
	if c.metrics == nil {
		return
	}
	_ = c.metrics.RegisterCounter("audit_polls_total", "Status polls issued", "outcome")
	_ = c.metrics.RegisterCounter("audits_started_total", "Audit runs created")
	_ = c.metrics.RegisterCounter("audits_finished_total", "Audit runs reaching a terminal state", "status")
	_ = c.metrics.RegisterGauge("audit_active", "Whether an audit is currently being polled")
}

func (c *Controller) countPoll(outcome string) {
	if c.metrics != nil {
		c.metrics.IncCounter("audit_polls_total", 1, prometheus.Labels{"outcome": outcome})
	}
}

func (c *Controller) setActiveGauge(v float64) {
	if c.metrics != nil {
		c.metrics.SetGauge("audit_active", v, nil)
	}
}

// Restore loads the persisted snapshot, if a fresh one exists. The restored
// run is never running: callers must Reconcile before polling resumes, so a
// reload cannot silently revive a loop for an audit that went stale.
func (c *Controller) Restore() (bool, error) {
	run, ok, err := c.store.Load()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	c.mu.Lock()
	c.run = run
	c.lostContact = false
	c.mu.Unlock()
	return true, nil
}

// State returns a deep copy of the current run for display or persistence.
func (c *Controller) State() models.AuditRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.Clone()
}

// LostContact reports whether polling gave up after the configured failure
// budget. It says nothing about the server-side audit, which may well still
// be running.
func (c *Controller) LostContact() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lostContact
}

// StartAudit creates a new audit run for targetURL and begins polling.
// Creation is atomic from the caller's perspective: on any error no state is
// committed and no loop starts. Creation is not idempotent; the surrounding
// UI guards against double submission.
func (c *Controller) StartAudit(ctx context.Context, targetURL string) (*PollHandle, error) {
	c.mu.Lock()
	if c.run.IsRunning {
		c.mu.Unlock()
		return nil, fmt.Errorf("audit %d is still running; clear it first", c.run.AuditID)
	}
	c.mu.Unlock()

	resp, err := c.backend.CreateAudit(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	run := models.NewAuditRun()
	run.AuditID = resp.Audit.ID
	run.TargetURL = targetURL
	run.Status = models.AuditRunning
	run.IsRunning = true
	run.StartTime = &now
	run.Aggregates.TotalScans = resp.Audit.TotalScans
	if run.Aggregates.TotalScans == 0 {
		run.Aggregates.TotalScans = len(resp.Scans)
	}
	for _, sc := range resp.Scans {
		run.Scans[sc.ScanType] = models.ScanStatus{
			ScanID:   sc.ID,
			ScanType: sc.ScanType,
			Category: string(classify.Classify(sc.ScanType)),
			State:    models.ScanPending,
			Progress: models.ScanPending.Progress(),
		}
	}

	c.mu.Lock()
	c.run = run
	c.lostContact = false
	c.failures = 0
	c.appliedSeq = 0
	handle := c.startLoopLocked(ctx)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncCounter("audits_started_total", 1, nil)
	}
	c.persist()
	c.logger.Infof("Audit %d started for %s with %d scans", run.AuditID, targetURL, run.Aggregates.TotalScans)
	return handle, nil
}

// Reconcile issues exactly one poll for a restored run and decides whether
// to resume the loop. A terminal answer is applied and polling stays off; a
// live answer resumes the loop and returns its handle.
func (c *Controller) Reconcile(ctx context.Context) (*PollHandle, error) {
	c.mu.Lock()
	auditID := c.run.AuditID
	running := c.run.IsRunning
	c.mu.Unlock()

	if auditID == 0 {
		return nil, fmt.Errorf("no audit to reconcile")
	}
	if running {
		return nil, fmt.Errorf("audit %d is already being polled", auditID)
	}

	snap, err := c.backend.GetAudit(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("reconcile audit %d: %w", auditID, err)
	}

	c.mu.Lock()
	c.applyLocked(snap)
	if snap.Audit.Status.IsTerminal() {
		c.run.IsRunning = false
		c.mu.Unlock()
		c.persist()
		return nil, nil
	}
	c.run.IsRunning = true
	c.lostContact = false
	c.failures = 0
	handle := c.startLoopLocked(ctx)
	c.mu.Unlock()

	c.persist()
	c.logger.Infof("Audit %d reconciled, resuming polling", auditID)
	return handle, nil
}

// ClearResults cancels any active loop, resets to the initial empty state,
// and removes the persisted snapshot. This is the only way to abandon an
// in-progress audit from the client; there is no server-side cancel.
func (c *Controller) ClearResults() error {
	c.mu.Lock()
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
	c.run = models.NewAuditRun()
	c.lostContact = false
	c.failures = 0
	c.appliedSeq = 0
	c.mu.Unlock()

	c.setActiveGauge(0)
	return c.store.Clear()
}

// startLoopLocked spins up the polling goroutine. Caller holds c.mu.
func (c *Controller) startLoopLocked(ctx context.Context) *PollHandle {
	loopCtx, cancel := context.WithCancel(ctx)
	handle := &PollHandle{cancel: cancel, done: make(chan struct{})}
	c.active = handle
	c.setActiveGauge(1)

	auditID := c.run.AuditID
	go c.pollLoop(loopCtx, handle, auditID)
	return handle
}

func (c *Controller) pollLoop(ctx context.Context, handle *PollHandle, auditID int) {
	defer close(handle.done)
	defer c.setActiveGauge(0)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.active == handle {
				c.run.IsRunning = false
				c.active = nil
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			// Ticks deliberately do not wait for the previous response;
			// overlapping polls are resolved by the sequence guard when
			// applied.
			c.mu.Lock()
			c.seq++
			seq := c.seq
			c.mu.Unlock()
			go c.pollOnce(ctx, handle, auditID, seq)
		}
	}
}

// pollOnce fetches one snapshot and applies it. Every response is checked
// against the audit it was issued for and against the last applied sequence
// number, so a late response from a cleared or superseded tick can never
// corrupt a newer state.
func (c *Controller) pollOnce(ctx context.Context, handle *PollHandle, auditID int, seq uint64) {
	snap, err := c.backend.GetAudit(ctx, auditID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// A single failed tick is logged and swallowed; the next scheduled
		// tick retries naturally.
		c.countPoll("error")
		c.logger.Warnf("Poll for audit %d failed: %v", auditID, err)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.run.AuditID != auditID || !c.run.IsRunning {
			return
		}
		c.failures++
		if c.cfg.MaxConsecutiveFailures > 0 && c.failures >= c.cfg.MaxConsecutiveFailures {
			c.logger.Errorf("Lost contact with audit %d after %d consecutive poll failures", auditID, c.failures)
			c.lostContact = true
			c.run.IsRunning = false
			handle.Cancel()
		}
		return
	}

	c.countPoll("ok")

	c.mu.Lock()
	if c.run.AuditID != auditID || seq <= c.appliedSeq {
		c.mu.Unlock()
		return
	}
	c.appliedSeq = seq
	c.failures = 0
	c.applyLocked(snap)

	terminal := snap.Audit.Status.IsTerminal()
	if terminal {
		// The terminal tick's data is applied first, then the loop stops.
		c.run.IsRunning = false
		status := string(snap.Audit.Status)
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.IncCounter("audits_finished_total", 1, prometheus.Labels{"status": status})
		}
		c.persist()
		c.logger.Infof("Audit %d reached terminal status %s", auditID, status)
		handle.Cancel()
		return
	}
	c.mu.Unlock()
	c.persist()
}

// applyLocked replaces all derived state from one snapshot. Full
// replace-and-recompute, never an incremental patch: each response is
// independently authoritative, so a dropped or reordered poll cannot leave
// partial state behind. Server aggregates win over anything recomputed
// locally. Caller holds c.mu.
func (c *Controller) applyLocked(snap *models.AuditSnapshot) {
	if snap.Audit.Status != "" {
		c.run.Status = snap.Audit.Status
	}
	if snap.Audit.CompletedAt != nil {
		c.run.EndTime = snap.Audit.CompletedAt
	}

	c.run.Aggregates = models.AuditAggregates{
		TotalScans:       snap.Audit.TotalScans,
		CompletedScans:   snap.Audit.CompletedScans,
		FailedScans:      snap.Audit.FailedScans,
		TotalFindings:    snap.Audit.TotalFindings,
		CriticalFindings: snap.Audit.CriticalFindings,
		HighFindings:     snap.Audit.HighFindings,
		MediumFindings:   snap.Audit.MediumFindings,
		LowFindings:      snap.Audit.LowFindings,
	}

	scans := make(map[string]models.ScanStatus, len(snap.Scans))
	for _, sc := range snap.Scans {
		state := models.MapScanState(sc.Status)
		status := models.ScanStatus{
			ScanID:        sc.ID,
			ScanType:      sc.ScanType,
			Category:      string(classify.Classify(sc.ScanType)),
			State:         state,
			Progress:      state.Progress(),
			FindingsCount: sc.FindingsCount,
			StartedAt:     sc.StartedAt,
			CompletedAt:   sc.CompletedAt,
		}
		status.ComputeDuration()
		scans[sc.ScanType] = status
	}
	// Scans the client knows about never disappear mid-run; a snapshot that
	// omits one (partial backend response) keeps the last observed row.
	for k, v := range c.run.Scans {
		if _, ok := scans[k]; !ok {
			scans[k] = v
		}
	}
	c.run.Scans = scans

	findings := make(map[string][]models.Finding, len(snap.FindingsByCategory))
	for cat, fs := range snap.FindingsByCategory {
		list := make([]models.Finding, len(fs))
		copy(list, fs)
		findings[cat] = list
	}
	c.run.FindingsByCategory = findings
}

func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.State()); err != nil {
		c.logger.Warnf("Failed to persist audit snapshot: %v", err)
	}
}
