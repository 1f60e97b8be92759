package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/scaleformeter/scaleformeter/internal/logging"
	"github.com/scaleformeter/scaleformeter/pkg/core"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = time.Second

// StatsSource supplies registry snapshots.
type StatsSource interface {
	Stats() core.OwnershipStats
}

// SnapshotRecorder persists registry snapshots.
type SnapshotRecorder interface {
	RecordSnapshot(s core.OwnershipStats) error
}

// StatsWriter forwards registry snapshots to a metrics sink.
type StatsWriter interface {
	WriteStats(s core.OwnershipStats)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Registry   StatsSource
	Ledger     SnapshotRecorder // optional
	Metrics    StatsWriter      // optional
	LogManager *logging.SlogManager
	StatusFile string
	Interval   time.Duration
}

// Service samples the registry periodically, rewriting the status file and
// forwarding each snapshot to the ledger and metrics sink.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus samples the registry and renders it for the status file.
func (s *Service) GetStatus() (output []string, stats core.OwnershipStats) {
	stats = s.deps.Registry.Stats()
	if stats.Time.IsZero() {
		stats.Time = time.Now()
	}

	status := struct {
		Time        string `json:"time"`
		Connections int    `json:"connections"`
		Objects     int    `json:"objects"`
		Accepted    uint64 `json:"accepted"`
		Rejected    uint64 `json:"rejected"`
		Deleted     uint64 `json:"deleted"`
	}{
		Time:        stats.Time.UTC().Format(time.RFC3339),
		Connections: stats.Connections,
		Objects:     stats.Objects,
		Accepted:    stats.Accepted,
		Rejected:    stats.Rejected,
		Deleted:     stats.Deleted,
	}

	statusStr, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		statusStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	return append(output, string(statusStr)), stats
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		var statusFile *os.File
		if s.deps.StatusFile != "" {
			var err error
			statusFile, err = os.Create(s.deps.StatusFile)
			if err != nil {
				logger.Error("Error creating status file", "error", err)
			} else {
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				statusStr, stats := s.GetStatus()

				if statusFile != nil {
					_ = statusFile.Truncate(0)
					_, _ = statusFile.Seek(0, 0)
					for _, line := range statusStr {
						_, _ = statusFile.WriteString(line + "\n")
					}
				}

				if s.deps.Ledger != nil {
					if err := s.deps.Ledger.RecordSnapshot(stats); err != nil {
						logger.Error("Error recording registry snapshot", "error", err)
					}
				}
				if s.deps.Metrics != nil {
					s.deps.Metrics.WriteStats(stats)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
