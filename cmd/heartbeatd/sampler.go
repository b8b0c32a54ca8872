package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"gopkg.in/natefinch/lumberjack.v2"

	"svckit"
	"svckit/internal/logger"
)

// Beat is one heartbeat sample, written as a single JSON line.
type Beat struct {
	Time           time.Time `json:"Time"`
	Hostname       string    `json:"Hostname"`
	PID            int       `json:"PID"`
	CPUPercent     float64   `json:"CPUPercent"`
	MemUsedPercent float64   `json:"MemUsedPercent"`
	MemUsedBytes   uint64    `json:"MemUsedBytes"`
	MemTotalBytes  uint64    `json:"MemTotalBytes"`
}

// Sampler periodically gathers host vitals and appends them to a rotating
// JSONL file.
type Sampler struct {
	writer   *lumberjack.Logger
	hostname string

	mu       sync.Mutex
	interval time.Duration
	closed   bool
}

// NewSampler creates a Sampler writing to cfg.FilePath.
func NewSampler(cfg SampleConfig) (*Sampler, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sample directory: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Sampler{
		writer: &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		},
		hostname: hostname,
		interval: cfg.Interval,
	}, nil
}

// SetInterval changes the sampling interval. Takes effect on the next tick.
func (s *Sampler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

func (s *Sampler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Run samples until a stop is requested on h. It writes one sample
// immediately so a freshly started service is visible in the output.
func (s *Sampler) Run(h *svckit.Handle) error {
	log := logger.WithComponent("sampler")
	interval := s.currentInterval()
	log.Info().Dur("interval", interval).Msg("sampler started")

	s.sample(context.Background())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.Done():
			log.Info().Msg("sampler stopping")
			return nil
		case <-ticker.C:
			s.sample(context.Background())
			if d := s.currentInterval(); d != interval {
				interval = d
				ticker.Reset(d)
				log.Info().Dur("interval", d).Msg("sampling interval updated")
			}
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	log := logger.WithComponent("sampler")

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	beat := Beat{
		Time:     time.Now(),
		Hostname: s.hostname,
		PID:      os.Getpid(),
	}

	// Percentage since the previous call; the first sample reports zero.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		beat.CPUPercent = percents[0]
	} else if err != nil {
		log.Warn().Err(err).Msg("cpu sample failed")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		beat.MemUsedPercent = vm.UsedPercent
		beat.MemUsedBytes = vm.Used
		beat.MemTotalBytes = vm.Total
	} else {
		log.Warn().Err(err).Msg("memory sample failed")
	}

	if err := s.write(beat); err != nil {
		log.Error().Err(err).Msg("failed to write sample")
	}
}

func (s *Sampler) write(beat Beat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sampler is closed")
	}

	data, err := json.Marshal(beat)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
