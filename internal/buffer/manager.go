// Package buffer implements the adaptive chunk-size controller described
// in spec.md §4.D: a BDP-based, trend-aware, damped power-of-two sizer.
package buffer

import (
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// Bounds, defaults, and tuning constants from spec.md §3/§4.D/§6.
const (
	DefaultMin            = 4 * 1024        // 4 KiB
	DefaultMax            = 16 * 1024 * 1024 // 16 MiB
	DefaultInitial        = 64 * 1024        // 64 KiB
	DefaultHistorySize    = 32
	DefaultCooldown       = 1 * time.Second
	dampingFactor         = 0.25
	trendImprovingFactor  = 1.4
	trendDegradingFactor  = 0.7
	trendStableFactor     = 1.1
	trendImprovingRatio   = 1.05
	trendDegradingRatio   = 0.95
	minSamplesForAdjust   = 3
	minRTTForBDP          = 10 * time.Millisecond
)

// Strategy selects how aggressively suggest_initial biases its guess.
type Strategy int

const (
	Conservative Strategy = iota
	Balanced
	Aggressive
)

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "conservative":
		return Conservative, nil
	case "balanced", "":
		return Balanced, nil
	case "aggressive":
		return Aggressive, nil
	default:
		return Balanced, xerrors.New(xerrors.Config, fmt.Sprintf("invalid adaptation strategy %q", s))
	}
}

// Trend classifies recent throughput direction.
type Trend int

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
)

func (t Trend) String() string {
	switch t {
	case TrendImproving:
		return "improving"
	case TrendDegrading:
		return "degrading"
	default:
		return "stable"
	}
}

// sample is one (timestamp, bytes, duration, rate) history entry.
type sample struct {
	at       time.Time
	bytes    int64
	duration time.Duration
	rate     float64 // bytes/sec
}

// Config bounds and tunes a Manager.
type Config struct {
	Min         int64
	Max         int64
	Initial     int64
	HistorySize int
	Cooldown    time.Duration
}

// Validate checks the bounds invariant (min/max power-of-two, min<=max) and
// returns a Config error on violation — the only error source in the
// Buffer Manager, and only at construction (spec.md §7).
func (c Config) Validate() error {
	if c.Min <= 0 || c.Max <= 0 || c.Min > c.Max {
		return xerrors.New(xerrors.Config, "invalid buffer bounds: min must be positive and <= max")
	}
	if !isPowerOfTwo(c.Min) || !isPowerOfTwo(c.Max) {
		return xerrors.New(xerrors.Config, "invalid buffer bounds: min and max must be powers of two")
	}
	if c.HistorySize <= 0 {
		return xerrors.New(xerrors.Config, "invalid history size: must be positive")
	}
	if c.Cooldown < 0 {
		return xerrors.New(xerrors.Config, "invalid adjust cooldown: must be non-negative")
	}
	return nil
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		Min:         DefaultMin,
		Max:         DefaultMax,
		Initial:     DefaultInitial,
		HistorySize: DefaultHistorySize,
		Cooldown:    DefaultCooldown,
	}
}

// Manager is the adaptive chunk-size controller. A Manager is mutated only
// by its owning session's goroutine and is never shared across sessions
// (spec.md §5).
type Manager struct {
	cfg Config

	current     int64
	history     []sample
	lastAdjust  time.Time
	adjustments int64
	rtt         time.Duration

	// sig is a rolling xxhash fingerprint of the sample history. Metrics
	// keys its memoization cache on sig, so repeated Metrics() calls between
	// Record()s (a render loop polling stats every tick while no chunk
	// completes) skip the mean/variance/stddev pass instead of redoing it.
	sig       uint64
	metricsOK bool
	metrics   Metrics
}

// New creates a Manager with the given Config, validating bounds. If
// cfg.Initial is zero, DefaultInitial (snapped to bounds) is used.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	initial := cfg.Initial
	if initial == 0 {
		initial = DefaultInitial
	}
	m := &Manager{
		cfg:     cfg,
		history: make([]sample, 0, cfg.HistorySize),
	}
	m.current = m.validate(initial)
	return m, nil
}

// CurrentSize returns the current chunk size: always a power of two in
// [min,max].
func (m *Manager) CurrentSize() int64 {
	return m.current
}

// SetRTT supplies an externally measured round-trip time, used as the
// delay term of the BDP target.
func (m *Manager) SetRTT(rtt time.Duration) {
	m.rtt = rtt
}

// Record appends a (bytes, duration) sample to history, evicting the
// oldest entry if at capacity. Duration of zero is floored to 1ns to avoid
// a divide-by-zero rate.
func (m *Manager) Record(bytes int64, duration time.Duration) {
	if duration <= 0 {
		duration = 1
	}
	s := sample{
		at:       timeNow(),
		bytes:    bytes,
		duration: duration,
		rate:     float64(bytes) / duration.Seconds(),
	}
	if len(m.history) >= m.cfg.HistorySize {
		m.history = m.history[1:]
	}
	m.history = append(m.history, s)
	m.sig = xxhash.Sum64(fmt.Appendf(nil, "%d:%d:%d", m.sig, s.bytes, s.duration))
	m.metricsOK = false
}

// timeNow is a seam for tests; production code always uses time.Now.
var timeNow = time.Now

// AdaptiveAdjust records the sample, then (subject to rate-limit and the
// 3-sample minimum) recomputes current via trend classification, a BDP
// target, and damped blending, snapping to the nearest power of two and
// clamping to [min,max]. Returns the (possibly unchanged) current size.
func (m *Manager) AdaptiveAdjust(bytes int64, duration time.Duration) int64 {
	m.Record(bytes, duration)

	now := timeNow()
	if !m.lastAdjust.IsZero() && now.Sub(m.lastAdjust) < m.cfg.Cooldown {
		return m.current
	}
	if len(m.history) < minSamplesForAdjust {
		return m.current
	}

	trend := m.classifyTrend()
	latestRate := m.history[len(m.history)-1].rate

	rtt := m.rtt
	if rtt < minRTTForBDP {
		rtt = minRTTForBDP
	}
	bdp := latestRate * rtt.Seconds()

	var factor float64
	switch trend {
	case TrendImproving:
		factor = trendImprovingFactor
	case TrendDegrading:
		factor = trendDegradingFactor
	default:
		factor = trendStableFactor
	}

	target := m.validateFloat(bdp * factor)
	next := float64(m.current) + (float64(target)-float64(m.current))*dampingFactor
	newSize := m.validate(int64(math.Round(next)))

	m.current = newSize
	m.lastAdjust = now
	m.adjustments++
	return m.current
}

// classifyTrend compares the mean rate of the most recent third of history
// to the mean of the earliest third.
func (m *Manager) classifyTrend() Trend {
	n := len(m.history)
	third := n / 3
	if third == 0 {
		return TrendStable
	}
	older := meanRate(m.history[:third])
	recent := meanRate(m.history[n-third:])

	switch {
	case recent > older*trendImprovingRatio:
		return TrendImproving
	case recent < older*trendDegradingRatio:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func meanRate(samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.rate
	}
	return sum / float64(len(samples))
}

// Validate rounds size to the nearest power of two in [min,max].
func (m *Manager) Validate(size int64) int64 {
	return m.validate(size)
}

func (m *Manager) validate(size int64) int64 {
	return m.validateFloatInt(float64(size))
}

func (m *Manager) validateFloat(size float64) int64 {
	return m.validateFloatInt(size)
}

func (m *Manager) validateFloatInt(size float64) int64 {
	if size < float64(m.cfg.Min) {
		return m.cfg.Min
	}
	if size > float64(m.cfg.Max) {
		return m.cfg.Max
	}
	return nearestPowerOfTwo(size, m.cfg.Min, m.cfg.Max)
}

func nearestPowerOfTwo(v float64, min, max int64) int64 {
	if v <= float64(min) {
		return min
	}
	if v >= float64(max) {
		return max
	}
	lower := int64(1)
	for lower*2 <= int64(v) {
		lower *= 2
	}
	upper := lower * 2
	if v-float64(lower) <= float64(upper)-v {
		if lower < min {
			return min
		}
		return lower
	}
	if upper > max {
		return max
	}
	return upper
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}

// Metrics are derived statistics over the Manager's history.
type Metrics struct {
	MeanRate          float64
	PeakRate          float64
	StabilityScore    float64 // 1 - coefficient of variation, clamped [0,1]
	AdjustmentsPerMin float64
	Signature         uint64
}

// Metrics computes derived stats: mean rate, peak rate, stability score,
// adjustments/minute. Recomputation is skipped when the history hasn't
// changed since the last call (m.sig still matches the cached result).
func (m *Manager) Metrics() Metrics {
	if len(m.history) == 0 {
		return Metrics{Signature: m.sig}
	}
	if m.metricsOK {
		return m.metrics
	}

	var sum, peak float64
	for _, s := range m.history {
		sum += s.rate
		if s.rate > peak {
			peak = s.rate
		}
	}
	mean := sum / float64(len(m.history))

	var variance float64
	for _, s := range m.history {
		d := s.rate - mean
		variance += d * d
	}
	variance /= float64(len(m.history))
	stddev := math.Sqrt(variance)

	stability := 1.0
	if mean > 0 {
		cv := stddev / mean
		stability = 1 - cv
		stability = math.Max(0, math.Min(1, stability))
	}

	elapsed := m.history[len(m.history)-1].at.Sub(m.history[0].at)
	adjPerMin := 0.0
	if elapsed > 0 {
		adjPerMin = float64(m.adjustments) / elapsed.Minutes()
	}

	m.metrics = Metrics{
		MeanRate:          mean,
		PeakRate:          peak,
		StabilityScore:    stability,
		AdjustmentsPerMin: adjPerMin,
		Signature:         m.sig,
	}
	m.metricsOK = true
	return m.metrics
}

// rttBucket classifies an RTT into excellent/good/fair/poor, per spec.md
// §4.D.6 boundaries (excellent <20ms, good <50ms, fair <150ms, poor >=150ms).
func rttBucket(rtt time.Duration) string {
	switch {
	case rtt < 20*time.Millisecond:
		return "excellent"
	case rtt < 50*time.Millisecond:
		return "good"
	case rtt < 150*time.Millisecond:
		return "fair"
	default:
		return "poor"
	}
}

// initialSizeTable resolves spec.md §9's Open Question: a concrete initial
// buffer table, crossing RTT bucket with adaptation strategy. Conservative
// biases toward the 64KiB default cross-bucket (prioritizing stability
// over throughput on an unproven link); aggressive biases up toward max on
// good links. All entries are powers of two in [DefaultMin, DefaultMax].
var initialSizeTable = map[string]map[Strategy]int64{
	"excellent": {Conservative: 64 * 1024, Balanced: 256 * 1024, Aggressive: 1024 * 1024},
	"good":      {Conservative: 64 * 1024, Balanced: 128 * 1024, Aggressive: 512 * 1024},
	"fair":      {Conservative: 32 * 1024, Balanced: 64 * 1024, Aggressive: 128 * 1024},
	"poor":      {Conservative: 16 * 1024, Balanced: 32 * 1024, Aggressive: 64 * 1024},
}

// SuggestInitial returns an initial chunk size based on the RTT bucket
// crossed with strategy, always a power of two, clamped to [min,max].
func SuggestInitial(rtt time.Duration, strategy Strategy, bounds Config) int64 {
	bucket := rttBucket(rtt)
	size := initialSizeTable[bucket][strategy]
	if bounds.Min == 0 && bounds.Max == 0 {
		return size
	}
	min, max := bounds.Min, bounds.Max
	if min == 0 {
		min = DefaultMin
	}
	if max == 0 {
		max = DefaultMax
	}
	return nearestPowerOfTwo(float64(size), min, max)
}
