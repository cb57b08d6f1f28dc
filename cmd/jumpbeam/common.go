package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/term"

	"github.com/jumpbeam/jumpbeam/internal/config"
	"github.com/jumpbeam/jumpbeam/internal/netio"
	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/sshtunnel"
	"github.com/jumpbeam/jumpbeam/internal/transfer"
)

// jumpFlags holds the optional SSH jump-host flags shared by send/receive.
// When jumpHost is empty the commands dial/listen directly, treating the
// already-reachable socket as the "already-established reliable byte
// stream" spec.md §1 hands to the core.
type jumpFlags struct {
	host    string
	user    string
	port    int
	keyFile string
}

func addJumpFlags(fs jumpFlagSet, f *jumpFlags) {
	fs.StringVar(&f.host, "jump-host", "", "SSH jump host to tunnel through (optional)")
	fs.StringVar(&f.user, "jump-user", "", "SSH user on the jump host (default: current user)")
	fs.IntVar(&f.port, "jump-port", 22, "SSH port on the jump host")
	fs.StringVar(&f.keyFile, "jump-key", "", "SSH private key file (default: ~/.ssh/id_ed25519 etc.)")
}

// jumpFlagSet is the subset of *pflag.FlagSet addJumpFlags needs, named so
// both cobra's *pflag.FlagSet and any test double satisfy it.
type jumpFlagSet interface {
	StringVar(p *string, name string, value string, usage string)
	IntVar(p *int, name string, value int, usage string)
}

// dialThroughJump opens a forward SSH tunnel through f.host (ssh -L
// semantics: internal/sshtunnel.Forward) and dials the resulting local
// listener, handing back a plain net.Conn as if addr were directly
// reachable. When f.host is empty it dials addr directly.
func dialThroughJump(ctx context.Context, f jumpFlags, addr string, log *slog.Logger) (net.Conn, error) {
	if f.host == "" {
		return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}

	client, err := sshtunnel.DialJump(sshtunnel.JumpOpts{
		Host: f.host, User: f.user, Port: f.port, KeyFile: f.keyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("dial jump host: %w", err)
	}

	ln, err := sshtunnel.Forward(client, "127.0.0.1:0", addr, log)
	if err != nil {
		return nil, fmt.Errorf("open forward tunnel: %w", err)
	}
	localAddr := ln.Addr().String()
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("dial forward tunnel: %w", err)
	}
	return conn, nil
}

// progressSink builds the observer the CLI attaches to a session's
// progress.Subject, per spec.md §4.G: the Rich Observer driving a TTY HUD
// or plain-line sink when use_rich_progress is set, otherwise the
// stand-alone rate-limited SimpleObserver fallback.
type progressSink struct {
	observer progress.Observer
	closer   io.Closer
}

func newProgressSink(cfg config.TransferConfig, quiet bool) progressSink {
	if quiet {
		return progressSink{observer: progress.NewSimpleObserver(io.Discard)}
	}
	if !cfg.RichProgress() {
		return progressSink{observer: progress.NewSimpleObserver(os.Stderr)}
	}

	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	sink := buildSink(false, false, isTTY)
	obs := progress.NewRichObserver(sink)
	return progressSink{observer: obs, closer: obs}
}

func (p progressSink) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// reaper is implemented by observers that track per-task state and can
// evict terminal entries; currently only *progress.RichObserver.
// SimpleObserver holds no such state, so Reap is a no-op for it.
type reaper interface {
	Reap()
}

// Reap evicts terminal tasks from the underlying observer between sessions,
// the only multi-session CLI path ("jumpbeam serve"). A no-op when the
// observer doesn't track per-task state.
func (p progressSink) Reap() {
	if r, ok := p.observer.(reaper); ok {
		r.Reap()
	}
}

// netioOptions resolves a config.TransferConfig into netio.Options.
func netioOptions(cfg config.TransferConfig) (netio.Options, error) {
	opts := netio.Options{
		ControlDeadline: cfg.ControlDeadline(),
		StallDeadline:   cfg.StallDeadline(),
	}
	if cfg.BandwidthLimit != nil && *cfg.BandwidthLimit != "" {
		n, err := parseByteSize(*cfg.BandwidthLimit)
		if err != nil {
			return opts, fmt.Errorf("bwlimit: %w", err)
		}
		opts.BandwidthLimit = n
	}
	return opts, nil
}

// transferOptions resolves a config.TransferConfig into transfer.Options.
func transferOptions(cfg config.TransferConfig) (transfer.Options, error) {
	strategy, err := cfg.Strategy()
	if err != nil {
		return transfer.Options{}, err
	}
	return transfer.Options{
		BufferConfig: cfg.BufferConfig(),
		Strategy:     strategy,
	}, nil
}

// exitCodeFor implements spec.md §7: "the exit code of the owning process
// is non-zero if any session ended in Failed."
func exitCodeFor(sess *transfer.Session) int {
	switch sess.State {
	case transfer.StateSuccess:
		return 0
	case transfer.StateCancelled:
		return 130
	default:
		return 1
	}
}
