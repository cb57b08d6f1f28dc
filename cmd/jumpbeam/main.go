package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jumpbeam/jumpbeam/internal/config"
	"github.com/jumpbeam/jumpbeam/internal/render"
	"github.com/jumpbeam/jumpbeam/internal/xlog"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		verbose  bool
		quiet    bool
		logFile  string
		showVers bool
	)

	rootCmd := &cobra.Command{
		Use:           "jumpbeam",
		Short:         "Move one file over an adaptive TCP stream, optionally via an SSH jump host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if showVers {
				return nil
			}
			logger, closeLog, err := setupLogging(verbose, quiet, logFile)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			logCloser = closeLog
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			if showVers {
				fmt.Fprintf(os.Stdout, "jumpbeam %s\n", version)
				return nil
			}
			return errors.New("no subcommand; try \"jumpbeam send\", \"jumpbeam receive\", or \"jumpbeam serve\"")
		},
	}

	rootCmd.Flags().BoolVar(&showVers, "version", false, "print version and exit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "warn-level logging and no progress display")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "tee structured JSON logs to FILE in addition to stderr")

	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newReceiveCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(docsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logCloser != nil {
		_ = logCloser()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "jumpbeam: %v\n", err)
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return 1
	}
	return 0
}

// logCloser releases the --log file handle, if one was opened. Cobra's
// RunE has no natural "after Execute" hook, so run() closes it directly
// after ExecuteContext returns.
var logCloser func() error

// exitError carries spec.md §7's policy — "the exit code of the owning
// process is non-zero if any session ended in Failed" — through cobra's
// RunE error return, distinguishing a Cancelled session (130, the
// conventional SIGINT code) from any other Failed terminal state (1).
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// setupLogging builds the slog.Logger and log-level scheme spec.md's
// ambient stack calls for: warn-level under --quiet, debug-level under
// --verbose, info-level otherwise, always to stderr as text, additionally
// teed as JSON to --log FILE via xlog.MultiHandler.
func setupLogging(verbose, quiet bool, logFile string) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	var handler slog.Handler = textHandler
	closer := func() error { return nil }

	if logFile != "" {
		f, err := os.Create(logFile) //nolint:gosec // operator-supplied log path
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = xlog.NewMultiHandler(textHandler, jsonHandler)
		closer = f.Close
	}

	return slog.New(handler), closer, nil
}

// buildSink selects the render.Sink the CLI drives, per spec.md §4.G/§9:
// quiet always wins, otherwise a TTY gets the rich HUD unless noRich is
// set, and anything else falls back to the plain line writer.
func buildSink(quiet, noRich, isTTY bool) render.Sink {
	switch {
	case quiet:
		return render.NewQuiet()
	case isTTY && !noRich:
		return render.NewHUD(os.Stderr)
	default:
		return render.NewPlain(os.Stderr)
	}
}

// parseByteSize parses sizes like "1M", "512K", "2G", or a bare byte
// count, the same suffix convention as the teacher's filter.ParseSize.
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	multiplier := int64(1)
	numStr := s
	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
		numStr = s[:len(s)-1]
	case "K":
		multiplier = 1024
		numStr = s[:len(s)-1]
	case "M":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-1]
	case "G":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * multiplier, nil
}

// loadConfig loads the optional TOML config, logging a warning (never
// failing the command) on a malformed file.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	return cfg
}
