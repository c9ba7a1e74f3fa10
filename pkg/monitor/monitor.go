// Package monitor samples the resource usage of the running process while a
// federated run executes.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const DefInterval = time.Second

type Sample struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	ThreadCount int32     `json:"thread_count"`
	Timestamp   time.Time `json:"timestamp"`
}

type ProcessMonitor struct {
	proc     *process.Process
	interval time.Duration
	logger   *slog.Logger
}

// New returns a monitor of the current process. A non-positive interval
// falls back to DefInterval.
func New(interval time.Duration, logger *slog.Logger) (*ProcessMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefInterval
	}

	return &ProcessMonitor{
		proc:     proc,
		interval: interval,
		logger:   logger,
	}, nil
}

func (m *ProcessMonitor) Collect(ctx context.Context) Sample {
	s := Sample{Timestamp: time.Now()}
	if cpu, err := m.proc.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := m.proc.MemoryInfoWithContext(ctx); err == nil {
		s.MemoryBytes = mem.RSS
	}
	if n, err := m.proc.NumThreadsWithContext(ctx); err == nil {
		s.ThreadCount = n
	}

	return s
}

// Session collects samples on every tick until Stop is called.
type Session struct {
	mu      sync.Mutex
	samples []Sample
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	once    sync.Once
	usage   map[string]float64
}

func (m *ProcessMonitor) Start(ctx context.Context) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	s.add(m.Collect(ctx))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample := m.Collect(ctx)
				m.logger.Debug("Collected process metrics",
					slog.Float64("cpu_percent", sample.CPUPercent),
					slog.Uint64("memory_bytes", sample.MemoryBytes),
				)
				s.add(sample)
			}
		}
	}()

	return s
}

func (s *Session) add(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
}

// Stop ends sampling and returns the aggregated usage. It is safe to call
// more than once.
func (s *Session) Stop() map[string]float64 {
	s.once.Do(func() {
		s.cancel()
		<-s.done

		s.mu.Lock()
		defer s.mu.Unlock()
		s.usage = Aggregate(s.samples, time.Since(s.started))
	})

	return s.usage
}

// Aggregate summarises samples. It returns nil when there are none.
func Aggregate(samples []Sample, elapsed time.Duration) map[string]float64 {
	if len(samples) == 0 {
		return nil
	}

	var totalCPU, maxCPU float64
	var totalMem, maxMem uint64
	var maxThreads int32
	for _, s := range samples {
		totalCPU += s.CPUPercent
		totalMem += s.MemoryBytes
		maxCPU = max(maxCPU, s.CPUPercent)
		maxMem = max(maxMem, s.MemoryBytes)
		maxThreads = max(maxThreads, s.ThreadCount)
	}
	n := float64(len(samples))

	return map[string]float64{
		"avg_cpu_percent":  totalCPU / n,
		"max_cpu_percent":  maxCPU,
		"avg_memory_bytes": float64(totalMem) / n,
		"max_memory_bytes": float64(maxMem),
		"max_threads":      float64(maxThreads),
		"samples":          n,
		"elapsed_seconds":  elapsed.Seconds(),
	}
}
