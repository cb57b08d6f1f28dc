package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jumpbeam/jumpbeam/internal/netio"
	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/transfer"
)

// newReceiveCmd builds the "jumpbeam receive" subcommand: dial addr
// (optionally through an SSH jump-host forward tunnel) and run the
// Transfer Engine's receiver state machine (spec.md §4.E). Dialing out
// (rather than listening) suits a reverse-tunnel deployment where the
// sender already holds an open listener reachable through the jump host;
// "jumpbeam serve" covers the complementary direct-listen case.
func newReceiveCmd() *cobra.Command {
	var (
		jump   jumpFlags
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "receive <output-dir> <host:port>",
		Short: "Receive a single file over an adaptive TCP stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd, args[0], args[1], jump, verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false,
		"log a post-transfer SHA-256/BLAKE3 digest of the received file to stderr")
	addJumpFlags(cmd.Flags(), &jump)
	return cmd
}

func runReceive(cmd *cobra.Command, outputDir, addr string, jump jumpFlags, verify bool) error {
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

	rawConn, err := dialThroughJump(ctx, jump, addr, slog.Default())
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	conn := transfer.NewConn(netio.New(rawConn, netOpts))
	defer conn.Close()

	quiet, _ := cmd.Flags().GetBool("quiet") //nolint:errcheck // flag name is hardcoded
	sink := newProgressSink(cfg.Transfer, quiet)
	defer sink.Close() //nolint:errcheck // best-effort sink teardown

	subject := progress.NewSubject()
	subject.Attach(sink.observer)

	slog.Info("receiving", "dir", outputDir, "addr", addr)
	sess := transfer.Receive(ctx, conn, outputDir, subject, xferOpts)

	if sess.State != transfer.StateSuccess {
		slog.Error("receive failed", "state", sess.State, "reason", sess.FailReason)
	} else {
		slog.Info("receive complete", "bytes", sess.Bytes, "chunk_size", sess.ChunkSize)
		slog.Debug("buffer adaptation", "mean_rate", sess.Metrics.MeanRate,
			"peak_rate", sess.Metrics.PeakRate, "stability", sess.Metrics.StabilityScore,
			"signature", sess.Metrics.Signature)
		if verify {
			if sha256Hex, blake3Hex, derr := transfer.Digest(sess.Path); derr != nil {
				slog.Warn("verify: digest failed", "error", derr)
			} else {
				slog.Info("verify", "sha256", sha256Hex, "blake3", blake3Hex)
			}
		}
	}

	code := exitCodeFor(sess)
	if code != 0 {
		return &exitError{code: code, msg: fmt.Sprintf("transfer ended in state %s", sess.State)}
	}
	return nil
}
