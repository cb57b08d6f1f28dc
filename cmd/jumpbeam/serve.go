package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jumpbeam/jumpbeam/internal/netio"
	"github.com/jumpbeam/jumpbeam/internal/orchestrator"
	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/sshtunnel"
	"github.com/jumpbeam/jumpbeam/internal/transfer"
)

// newServeCmd builds the "jumpbeam serve" subcommand: the Connection
// Orchestrator's server loop (spec.md §4.H), accepting one connection per
// incoming sender and running the receiver state machine on each. Every
// accepted session shares a single Rich Observer, matching spec.md §8's
// "concurrent transfers... sharing one Rich Observer" scenario.
func newServeCmd() *cobra.Command {
	var (
		listenAddr string
		jumpRemote string
		jump       jumpFlags
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "serve <output-dir>",
		Short: "Accept incoming transfers and write received files to output-dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args[0], listenAddr, jumpRemote, jump, verify)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":9000", "local address to bind")
	cmd.Flags().StringVar(&jumpRemote, "jump-remote", "",
		"expose the listener on this host:port on the jump host via a reverse tunnel (optional)")
	cmd.Flags().BoolVar(&verify, "verify", false,
		"log a post-transfer SHA-256/BLAKE3 digest of each received file to stderr")
	addJumpFlags(cmd.Flags(), &jump)
	return cmd
}

func runServe(cmd *cobra.Command, outputDir, listenAddr, jumpRemote string, jump jumpFlags, verify bool) error {
	ctx := cmd.Context()
	cfg := loadConfig()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	netOpts, err := netioOptions(cfg.Transfer)
	if err != nil {
		return err
	}
	xferOpts, err := transferOptions(cfg.Transfer)
	if err != nil {
		return err
	}

	quiet, _ := cmd.Flags().GetBool("quiet") //nolint:errcheck // flag name is hardcoded
	sink := newProgressSink(cfg.Transfer, quiet)
	defer sink.Close() //nolint:errcheck // best-effort sink teardown

	handler := func(hctx context.Context, rawConn net.Conn) error {
		conn := transfer.NewConn(netio.New(rawConn, netOpts))
		defer conn.Close()

		subject := progress.NewSubject()
		subject.Attach(sink.observer)

		sess := transfer.Receive(hctx, conn, outputDir, subject, xferOpts)
		defer sink.Reap()

		if sess.State != transfer.StateSuccess {
			return fmt.Errorf("session %s ended in state %s: %s", sess.ID, sess.State, sess.FailReason)
		}
		slog.Debug("buffer adaptation", "session", sess.ID, "mean_rate", sess.Metrics.MeanRate,
			"peak_rate", sess.Metrics.PeakRate, "stability", sess.Metrics.StabilityScore,
			"signature", sess.Metrics.Signature)
		if verify {
			if sha256Hex, blake3Hex, derr := transfer.Digest(sess.Path); derr != nil {
				slog.Warn("verify: digest failed", "session", sess.ID, "error", derr)
			} else {
				slog.Info("verify", "session", sess.ID, "sha256", sha256Hex, "blake3", blake3Hex)
			}
		}
		return nil
	}

	srv, err := orchestrator.RunServer(ctx, listenAddr, handler, slog.Default())
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("serving", "addr", srv.Addr(), "output_dir", outputDir)

	if jump.host != "" && jumpRemote != "" {
		client, derr := sshtunnel.DialJump(sshtunnel.JumpOpts{
			Host: jump.host, User: jump.user, Port: jump.port, KeyFile: jump.keyFile,
		})
		if derr != nil {
			return fmt.Errorf("dial jump host: %w", derr)
		}
		tcpAddr, ok := srv.Addr().(*net.TCPAddr)
		if !ok {
			return fmt.Errorf("unexpected listener address type %T", srv.Addr())
		}
		dialLocal := fmt.Sprintf("127.0.0.1:%d", tcpAddr.Port)
		if _, rerr := sshtunnel.Reverse(client, jumpRemote, dialLocal, slog.Default()); rerr != nil {
			return fmt.Errorf("open reverse tunnel: %w", rerr)
		}
		slog.Info("exposed via reverse tunnel", "jump_host", jump.host, "remote", jumpRemote)
	}

	waitCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-waitCtx.Done()

	srv.Stop()
	return nil
}
