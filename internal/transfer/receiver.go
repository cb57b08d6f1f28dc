package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/wire"
	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// partSuffix marks a file left behind by a failed transfer (spec.md §6:
// "a partial file from a failed transfer is left in place with a .part
// suffix").
const partSuffix = ".part"

// Receive runs the receiver state machine described in spec.md §4.E:
// Idle → Handshake → AwaitInfo → Streaming → Finalize → Done | Failed.
func Receive(ctx context.Context, conn *Conn, outputDir string, subject *progress.Subject, opts Options) *Session {
	sess := NewSession(RoleReceiver, "")

	mgr, err := handshakeReceiver(ctx, conn, opts)
	if err != nil {
		sess.fail(err.Error())
		return sess
	}
	sess.ChunkSize = mgr.CurrentSize()

	taskID := uuid.New()
	outPath, partPath, ferr := streamReceive(ctx, conn, outputDir, mgr, subject, taskID, sess)
	if ferr != nil {
		handleReceiveFailure(conn, subject, taskID, sess, ferr)
		return sess
	}

	if err := os.Rename(partPath, outPath); err != nil {
		wrapped := xerrors.Wrap(xerrors.Io, "finalize output file", err)
		handleReceiveFailure(conn, subject, taskID, sess, wrapped)
		return sess
	}

	if err := conn.WriteFrame(ctx, wire.KindMessage, []byte(wire.MsgAck)); err != nil {
		sess.fail(err.Error())
		return sess
	}

	sess.succeed()
	sess.Path = outPath
	sess.Metrics = mgr.Metrics()
	subject.Publish(progress.NewTaskFinished(taskID, true))
	return sess
}

// streamReceive reads FILE_INFO, then FILE_DATA* until FILE_END, writing
// into a .part file in outputDir. It returns the intended final path and
// the .part path on success; on any error the .part file is left in place
// per spec.md §6/§8.
func streamReceive(
	ctx context.Context,
	conn *Conn,
	outputDir string,
	mgr chunkController,
	subject *progress.Subject,
	taskID uuid.UUID,
	sess *Session,
) (outPath, partPath string, err error) {
	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.Io, "await FILE_INFO", err)
	}
	if frame.Kind != wire.KindFileInfo {
		return "", "", xerrors.New(xerrors.Protocol, "expected FILE_INFO")
	}
	fi, err := wire.DecodeFileInfo(frame.Payload)
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.Protocol, "decode FILE_INFO", err)
	}

	outPath = filepath.Join(outputDir, filepath.Base(fi.Name))
	partPath = outPath + partSuffix

	out, err := os.Create(partPath) //nolint:gosec // outputDir is operator-configured
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.Io, "create output file", err)
	}
	defer out.Close()

	subject.Publish(progress.NewTaskStarted(taskID, fi.Name, int64(fi.Size))) //nolint:gosec // fi.Size bounded by realistic file sizes

	var written int64
	for {
		if cerr := checkCancel(ctx); cerr != nil {
			return "", "", cerr
		}

		frame, err = conn.ReadFrame(ctx)
		if err != nil {
			return "", "", xerrors.Wrap(xerrors.Io, "read frame", err)
		}

		switch frame.Kind {
		case wire.KindFileData:
			start := time.Now()
			n, werr := out.Write(frame.Payload)
			if werr != nil {
				return "", "", xerrors.Wrap(xerrors.Io, "write output file", werr)
			}
			elapsed := time.Since(start)

			mgr.AdaptiveAdjust(int64(n), elapsed)
			written += int64(n)
			sess.Bytes = written
			sess.ChunkSize = mgr.CurrentSize()
			subject.Publish(progress.NewProgressAdvanced(taskID, int64(n)))

		case wire.KindFileEnd:
			goto done

		case wire.KindError:
			return "", "", xerrors.Wrap(xerrors.Peer, "peer reported error", fmt.Errorf("%s", string(frame.Payload)))

		default:
			return "", "", xerrors.New(xerrors.Protocol, fmt.Sprintf("unexpected frame kind %s during streaming", frame.Kind))
		}
	}

done:
	if written != int64(fi.Size) { //nolint:gosec // fi.Size bounded by realistic file sizes
		return "", "", xerrors.New(xerrors.Protocol,
			fmt.Sprintf("size mismatch: expected %d, got %d", fi.Size, written))
	}
	return outPath, partPath, nil
}

func handleReceiveFailure(conn *Conn, subject *progress.Subject, taskID uuid.UUID, sess *Session, err error) {
	kind := xerrors.KindOf(err)
	reason := err.Error()

	if kind == xerrors.Cancelled {
		sess.cancel()
		// Best-effort: a second close or write-after-close must be tolerated.
		_ = conn.WriteFrame(context.Background(), wire.KindError, []byte("cancelled"))
	} else {
		sess.fail(reason)
		_ = conn.WriteFrame(context.Background(), wire.KindError, []byte(reason))
	}
	subject.Publish(progress.NewTaskError(taskID, reason))
}
