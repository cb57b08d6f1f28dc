package transfer

import (
	"context"
	"time"

	"github.com/jumpbeam/jumpbeam/internal/buffer"
	"github.com/jumpbeam/jumpbeam/internal/latency"
	"github.com/jumpbeam/jumpbeam/internal/wire"
	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// Options configures a transfer session end to end.
type Options struct {
	BufferConfig buffer.Config
	Strategy     buffer.Strategy
	ProbeSamples int // default latency.DefaultSamples
}

// handshakeSender performs the sender half of spec.md §6's handshake
// sequence: send HELLO, await READY, run the PING/PONG latency probe, then
// seed a Buffer Manager from the measured RTT.
func handshakeSender(ctx context.Context, conn *Conn, opts Options) (*buffer.Manager, time.Duration, error) {
	if err := conn.WriteFrame(ctx, wire.KindMessage, []byte(wire.MsgHello)); err != nil {
		return nil, 0, xerrors.Wrap(xerrors.Io, "send HELLO", err)
	}

	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return nil, 0, xerrors.Wrap(xerrors.Io, "await READY", err)
	}
	if frame.Kind != wire.KindMessage || string(frame.Payload) != wire.MsgReady {
		return nil, 0, xerrors.New(xerrors.Protocol, "expected READY")
	}

	prober := latency.NewProber()
	rtt := prober.MeasureSender(ctx, conn, opts.ProbeSamples)

	mgr, err := seedBufferManager(opts, rtt)
	if err != nil {
		return nil, 0, err
	}
	return mgr, rtt, nil
}

// handshakeReceiver performs the receiver half: await HELLO, reply READY,
// answer PING/PONG probe rounds, seed a Buffer Manager with the default
// RTT (the receiver does not measure RTT itself — it only echoes pings;
// the sender is the side that derives a value and later conveys chunk
// sizing implicitly via FILE_DATA frame sizes).
func handshakeReceiver(ctx context.Context, conn *Conn, opts Options) (*buffer.Manager, error) {
	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "await HELLO", err)
	}
	if frame.Kind != wire.KindMessage || string(frame.Payload) != wire.MsgHello {
		return nil, xerrors.New(xerrors.Protocol, "expected HELLO")
	}

	if err := conn.WriteFrame(ctx, wire.KindMessage, []byte(wire.MsgReady)); err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "send READY", err)
	}

	samples := opts.ProbeSamples
	if samples <= 0 {
		samples = latency.DefaultSamples
	}
	for i := 0; i < samples; i++ {
		if err := latency.RespondReceiver(ctx, conn); err != nil {
			return nil, xerrors.Wrap(xerrors.Io, "respond to PING", err)
		}
	}

	return seedBufferManager(opts, latency.DefaultRTT)
}

func seedBufferManager(opts Options, rtt time.Duration) (*buffer.Manager, error) {
	cfg := opts.BufferConfig
	if cfg == (buffer.Config{}) {
		cfg = buffer.DefaultConfig()
	}
	if cfg.Initial == 0 {
		cfg.Initial = buffer.SuggestInitial(rtt, opts.Strategy, cfg)
	}
	mgr, err := buffer.New(cfg)
	if err != nil {
		return nil, err
	}
	mgr.SetRTT(rtt)
	return mgr, nil
}
