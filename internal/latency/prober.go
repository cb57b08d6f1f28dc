// Package latency implements the PING/PONG round-trip prober described in
// spec.md §4.C.
package latency

import (
	"context"
	"sort"
	"time"

	"github.com/jumpbeam/jumpbeam/internal/wire"
	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// DefaultRTT is used when probing fails or has not yet run (spec.md §4.C:
// "the engine proceeds with a default RTT of 50 ms").
const DefaultRTT = 50 * time.Millisecond

// DefaultSamples is the number of probe rounds taken per Measure call
// (spec.md §4.C: "default k=3").
const DefaultSamples = 3

// frameWriter and frameReader abstract the minimal send/receive surface a
// Prober needs, satisfied by *netio.Conn in production and a fake in tests.
type frameWriter interface {
	WriteFrame(ctx context.Context, kind wire.Kind, payload []byte) error
}

type frameReader interface {
	ReadFrame(ctx context.Context) (wire.Frame, error)
}

// FrameConn is the minimal ping/pong transport a Prober needs.
type FrameConn interface {
	frameWriter
	frameReader
}

// Prober measures round-trip latency by exchanging PING/PONG frames.
// It keeps the last successful measurement across rounds rather than
// resetting to DefaultRTT on a single transient failure, matching the
// "refine, don't discard" rolling-estimate habit in the reference
// implementation's network monitor.
type Prober struct {
	last time.Duration
}

// NewProber creates a Prober seeded at DefaultRTT.
func NewProber() *Prober {
	return &Prober{last: DefaultRTT}
}

// Last returns the most recently measured (or default) RTT.
func (p *Prober) Last() time.Duration { return p.last }

// MeasureSender runs k PING/PONG rounds as the sending side: send PING,
// start a monotonic clock, await PONG. It discards the slowest sample and
// averages the rest. Failed rounds are skipped; if every round fails,
// MeasureSender returns the Prober's last-known RTT (DefaultRTT on first
// failure). It reports no error to the caller.
func (p *Prober) MeasureSender(ctx context.Context, conn FrameConn, k int) time.Duration {
	if k <= 0 {
		k = DefaultSamples
	}
	samples := make([]time.Duration, 0, k)
	for i := 0; i < k; i++ {
		start := time.Now()
		if err := conn.WriteFrame(ctx, wire.KindPing, nil); err != nil {
			continue
		}
		frame, err := conn.ReadFrame(ctx)
		if err != nil || frame.Kind != wire.KindPong {
			continue
		}
		samples = append(samples, time.Since(start))
	}

	if len(samples) == 0 {
		return p.last
	}
	p.last = averageDiscardingMax(samples)
	return p.last
}

// RespondReceiver answers a single PING with an immediate PONG. The
// receiving side's handshake calls it once per probe round, a fixed number
// of times; any frame other than PING is returned as ErrUnknownKind.
func RespondReceiver(ctx context.Context, conn FrameConn) error {
	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return err
	}
	if frame.Kind != wire.KindPing {
		return xerrors.ErrUnknownKind
	}
	return conn.WriteFrame(ctx, wire.KindPong, nil)
}

// averageDiscardingMax discards the single largest sample (spec.md §4.C:
// "discards the max, averages the remainder") and averages what's left.
// With exactly one sample, the "remainder" is itself.
func averageDiscardingMax(samples []time.Duration) time.Duration {
	if len(samples) == 1 {
		return samples[0]
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	kept := sorted[:len(sorted)-1]

	var sum time.Duration
	for _, d := range kept {
		sum += d
	}
	return sum / time.Duration(len(kept))
}
