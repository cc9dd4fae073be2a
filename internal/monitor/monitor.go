// Package monitor periodically logs the process's resource use alongside
// session and observer counts.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sessions is the part of the session registry the monitor reads.
type Sessions interface {
	Len() int
	ActiveCount() int
}

// Clients is the part of the websocket hub the monitor reads.
type Clients interface {
	ClientCount() int
}

// Sample is one resource report.
type Sample struct {
	RSS        uint64  // resident set size in bytes
	CPUPercent float64 // since process start
	Threads    int32
	Goroutines int
	Sessions   int
	Active     int
	Clients    int
}

type Monitor struct {
	proc     *process.Process
	sessions Sessions
	clients  Clients
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor inspects the current process.
func NewMonitor(sessions Sessions, clients Clients, interval time.Duration, logger *slog.Logger) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspect own process: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		proc:     proc,
		sessions: sessions,
		clients:  clients,
		interval: interval,
		logger:   logger,
	}, nil
}

// Sample collects one report. Counts are filled even when the process
// metrics cannot be read.
func (m *Monitor) Sample(ctx context.Context) (Sample, error) {
	s := Sample{
		Goroutines: runtime.NumGoroutine(),
		Sessions:   m.sessions.Len(),
		Active:     m.sessions.ActiveCount(),
		Clients:    m.clients.ClientCount(),
	}

	mem, err := m.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("memory info: %w", err)
	}
	s.RSS = mem.RSS

	if s.CPUPercent, err = m.proc.CPUPercentWithContext(ctx); err != nil {
		return s, fmt.Errorf("cpu percent: %w", err)
	}
	if s.Threads, err = m.proc.NumThreadsWithContext(ctx); err != nil {
		return s, fmt.Errorf("thread count: %w", err)
	}
	return s, nil
}

// Start logs a sample every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-ticker.C:
			m.report(ctx)
		}
	}
}

func (m *Monitor) report(ctx context.Context) {
	s, err := m.Sample(ctx)
	if err != nil {
		m.logger.Warn("process stats incomplete", "error", err)
	}
	m.logger.Info("process stats",
		"rss_mb", s.RSS/(1<<20),
		"cpu_pct", fmt.Sprintf("%.1f", s.CPUPercent),
		"threads", s.Threads,
		"goroutines", s.Goroutines,
		"sessions", s.Sessions,
		"active", s.Active,
		"clients", s.Clients,
	)
}
