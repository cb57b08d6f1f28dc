package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jumpbeam/jumpbeam/internal/netio"
	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/transfer"
)

// newSendCmd builds the "jumpbeam send" subcommand: dial addr (optionally
// through an SSH jump-host forward tunnel) and run the Transfer Engine's
// sender state machine (spec.md §4.E) over the resulting byte stream.
func newSendCmd() *cobra.Command {
	var (
		jump   jumpFlags
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "send <file> <host:port>",
		Short: "Send a single file over an adaptive TCP stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args[0], args[1], jump, verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false,
		"log a post-transfer SHA-256/BLAKE3 digest of the local file to stderr")
	addJumpFlags(cmd.Flags(), &jump)
	return cmd
}

func runSend(cmd *cobra.Command, filePath, addr string, jump jumpFlags, verify bool) error {
	ctx := cmd.Context()
	cfg := loadConfig()

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

	slog.Info("sending", "file", filePath, "addr", addr)
	sess := transfer.Send(ctx, conn, filePath, subject, xferOpts)

	if sess.State != transfer.StateSuccess {
		slog.Error("send failed", "state", sess.State, "reason", sess.FailReason)
	} else {
		slog.Info("send complete", "bytes", sess.Bytes, "chunk_size", sess.ChunkSize)
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
