package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/opticini/auditwatch/pkg/models"
)

// Freshness is how long a persisted snapshot stays usable. Anything older is
// treated as absent on load so a stale run never resurrects.
const Freshness = time.Hour

const snapshotFile = "audit_state.json"

// persistedSnapshot is the on-disk envelope: the serialized run plus the
// write time in epoch milliseconds.
type persistedSnapshot struct {
	State     models.AuditRun `json:"state"`
	Timestamp int64           `json:"timestamp"`
}

// Store persists one AuditRun snapshot to a data directory so a restart
// mid-audit resumes instead of losing progress. It only ever holds
// serialized copies, never a live reference to the controller's state.
type Store struct {
	dir       string
	logger    *logrus.Logger
	mu        sync.Mutex
	lastHash  uint64
	hashValid bool
	now       func() time.Time
}

func New(dir string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir, logger: logger, now: time.Now}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, snapshotFile)
}

// Save writes the run atomically. Runs without a target URL are not worth
// persisting and are skipped; identical consecutive states are deduplicated
// by content hash so a 2-second poll loop does not rewrite an unchanged file.
func (s *Store) Save(run models.AuditRun) error {
	if run.TargetURL == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := persistedSnapshot{State: run, Timestamp: s.now().UnixMilli()}
	payload, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	h := xxh3.Hash(payload)
	if s.hashValid && h == s.lastHash {
		return nil
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".audit_state_*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("atomic rename: %w", err)
	}

	s.lastHash = h
	s.hashValid = true
	return nil
}

// Load reads the persisted snapshot back. The second return is false when no
// usable snapshot exists (missing, unreadable, or older than Freshness).
// IsRunning is always forced off on restore: a reload must never silently
// resume background polling for a run that may have gone stale; callers
// reconcile with the backend first.
func (s *Store) Load() (models.AuditRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NewAuditRun(), false, nil
		}
		return models.NewAuditRun(), false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap persistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warnf("Discarding corrupt audit snapshot: %v", err)
		return models.NewAuditRun(), false, nil
	}

	age := s.now().UnixMilli() - snap.Timestamp
	if age > Freshness.Milliseconds() {
		s.logger.Debugf("Discarding audit snapshot aged %dms", age)
		return models.NewAuditRun(), false, nil
	}

	run := snap.State
	run.IsRunning = false
	if run.Scans == nil {
		run.Scans = make(map[string]models.ScanStatus)
	}
	if run.FindingsByCategory == nil {
		run.FindingsByCategory = make(map[string][]models.Finding)
	}
	return run, true, nil
}

// Clear removes the persisted snapshot, if any.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hashValid = false
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
