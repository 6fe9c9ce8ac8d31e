// Package diskguard monitors free space under a spill directory so
// builders fail fast, with a clear error, instead of mid-write when the
// filesystem backing a spill.Buffer fills up.
package diskguard

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Guard caches a directory's disk usage and rejects writes once usage
// crosses configured thresholds.
type Guard struct {
	dir    string
	logger *zap.Logger

	mu                   sync.RWMutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedAvailableBytes uint64
	checkInterval        time.Duration

	warningThreshold        float64
	throttleThreshold       float64
	circuitBreakerThreshold float64

	isThrottled     bool
	isCircuitBroken bool
}

// Config configures a Guard's thresholds, expressed as percentages of
// total disk capacity.
type Config struct {
	Dir                     string
	CheckInterval           time.Duration
	WarningThreshold        float64
	ThrottleThreshold       float64
	CircuitBreakerThreshold float64
}

// DefaultConfig returns thresholds suitable for a spill directory:
// warn at 80%, throttle large writes at 90%, refuse all writes at 95%.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                     dir,
		CheckInterval:           10 * time.Second,
		WarningThreshold:        80.0,
		ThrottleThreshold:       90.0,
		CircuitBreakerThreshold: 95.0,
	}
}

// New constructs a Guard and performs an initial disk space check.
func New(cfg Config, logger *zap.Logger) (*Guard, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("diskguard: dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		dir:                     cfg.Dir,
		logger:                  logger,
		checkInterval:           cfg.CheckInterval,
		warningThreshold:        cfg.WarningThreshold,
		throttleThreshold:       cfg.ThrottleThreshold,
		circuitBreakerThreshold: cfg.CircuitBreakerThreshold,
	}
	if err := g.checkDiskSpace(); err != nil {
		logger.Warn("initial disk space check failed", zap.Error(err))
	}
	return g, nil
}

// CheckBeforeWrite returns an error if a write of estimatedBytes should
// be rejected: the circuit breaker is engaged, the write is large and
// the guard is throttled, or the write would not fit in available
// space.
func (g *Guard) CheckBeforeWrite(estimatedBytes uint64) error {
	g.mu.RLock()
	stale := time.Since(g.lastCheck) > g.checkInterval
	g.mu.RUnlock()

	if stale {
		g.mu.Lock()
		if err := g.checkDiskSpace(); err != nil {
			g.logger.Warn("disk space check failed", zap.Error(err))
		}
		g.mu.Unlock()
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.isCircuitBroken {
		return fmt.Errorf("diskguard: %s at %.2f%% used, circuit breaker engaged", g.dir, g.cachedUsagePercent)
	}
	if g.isThrottled && estimatedBytes > g.cachedAvailableBytes/10 {
		return fmt.Errorf("diskguard: %s at %.2f%% used, write throttled", g.dir, g.cachedUsagePercent)
	}
	if estimatedBytes > g.cachedAvailableBytes {
		return fmt.Errorf("diskguard: insufficient space in %s: need %d bytes, have %d", g.dir, estimatedBytes, g.cachedAvailableBytes)
	}
	return nil
}

// checkDiskSpace refreshes cached usage. Callers must hold g.mu.
func (g *Guard) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(g.dir, &stat); err != nil {
		return fmt.Errorf("diskguard: statfs %s: %w", g.dir, err)
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize)
	availableBytes := stat.Bavail * uint64(stat.Bsize)
	usagePercent := float64(totalBytes-availableBytes) / float64(totalBytes) * 100.0

	g.cachedUsagePercent = usagePercent
	g.cachedAvailableBytes = availableBytes
	g.lastCheck = time.Now()

	wasBroken := g.isCircuitBroken
	wasThrottled := g.isThrottled
	g.isCircuitBroken = usagePercent >= g.circuitBreakerThreshold
	g.isThrottled = usagePercent >= g.throttleThreshold && !g.isCircuitBroken

	if g.isCircuitBroken && !wasBroken {
		g.logger.Error("spill disk circuit breaker engaged",
			zap.String("dir", g.dir), zap.Float64("usage_percent", usagePercent))
	} else if !g.isCircuitBroken && wasBroken {
		g.logger.Info("spill disk circuit breaker disengaged", zap.String("dir", g.dir))
	}
	if g.isThrottled && !wasThrottled {
		g.logger.Warn("spill disk write throttling enabled",
			zap.String("dir", g.dir), zap.Float64("usage_percent", usagePercent))
	} else if !g.isThrottled && wasThrottled {
		g.logger.Info("spill disk write throttling disabled", zap.String("dir", g.dir))
	} else if usagePercent >= g.warningThreshold && !g.isThrottled {
		g.logger.Warn("spill disk usage warning",
			zap.String("dir", g.dir), zap.Float64("usage_percent", usagePercent))
	}

	return nil
}

// UsagePercent returns the most recently cached usage percentage.
func (g *Guard) UsagePercent() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cachedUsagePercent
}
