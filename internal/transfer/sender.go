package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/wire"
	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// Send runs the sender state machine described in spec.md §4.E:
// Idle → Handshake → Negotiate → Streaming → Finalize → Done | Failed.
//
// ctx cancellation is polled between frames (spec.md §5); observing it
// mid-stream flushes a single ERROR "cancelled" frame and transitions the
// session to Cancelled.
func Send(ctx context.Context, conn *Conn, filePath string, subject *progress.Subject, opts Options) *Session {
	sess := NewSession(RoleSender, "")

	f, err := os.Open(filePath)
	if err != nil {
		sess.fail(err.Error())
		return sess
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		sess.fail(err.Error())
		return sess
	}

	mgr, rtt, err := handshakeSender(ctx, conn, opts)
	if err != nil {
		sess.fail(err.Error())
		return sess
	}
	sess.LastRTT = rtt
	sess.ChunkSize = mgr.CurrentSize()

	taskID := uuid.New()
	fileName := info.Name()
	subject.Publish(progress.NewTaskStarted(taskID, fileName, info.Size()))

	if err := streamSend(ctx, conn, f, info, mgr, subject, taskID, sess); err != nil {
		handleSendFailure(conn, subject, taskID, sess, err)
		return sess
	}

	sess.succeed()
	sess.Path = filePath
	sess.Metrics = mgr.Metrics()
	subject.Publish(progress.NewTaskFinished(taskID, true))
	return sess
}

// chunkController is the subset of *buffer.Manager the streaming loops
// need, named here to avoid a direct dependency on buffer's internals.
type chunkController interface {
	CurrentSize() int64
	AdaptiveAdjust(bytes int64, duration time.Duration) int64
}

func streamSend(
	ctx context.Context,
	conn *Conn,
	f *os.File,
	info os.FileInfo,
	mgr chunkController,
	subject *progress.Subject,
	taskID uuid.UUID,
	sess *Session,
) error {
	mtime := uint64(info.ModTime().Unix())
	fi := wire.FileInfo{Name: info.Name(), Size: uint64(info.Size()), MTime: &mtime}
	payload, err := wire.EncodeFileInfo(fi)
	if err != nil {
		return xerrors.Wrap(xerrors.Protocol, "encode FILE_INFO", err)
	}
	if err := conn.WriteFrame(ctx, wire.KindFileInfo, payload); err != nil {
		return xerrors.Wrap(xerrors.Io, "send FILE_INFO", err)
	}

	for {
		if err := checkCancel(ctx); err != nil {
			return err
		}

		n := mgr.CurrentSize()
		buf := make([]byte, n)
		read, rerr := f.Read(buf)
		if read == 0 && rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.EOF {
			return xerrors.Wrap(xerrors.Io, "read source file", rerr)
		}

		start := time.Now()
		if werr := conn.WriteFrame(ctx, wire.KindFileData, buf[:read]); werr != nil {
			return xerrors.Wrap(xerrors.Io, "send FILE_DATA", werr)
		}
		elapsed := time.Since(start)

		mgr.AdaptiveAdjust(int64(read), elapsed)
		sess.Bytes += int64(read)
		sess.ChunkSize = mgr.CurrentSize()
		subject.Publish(progress.NewProgressAdvanced(taskID, int64(read)))

		if rerr == io.EOF {
			break
		}
	}

	if err := conn.WriteFrame(ctx, wire.KindFileEnd, nil); err != nil {
		return xerrors.Wrap(xerrors.Io, "send FILE_END", err)
	}

	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.Io, "await ACK", err)
	}
	if frame.Kind == wire.KindError {
		return xerrors.Wrap(xerrors.Peer, "peer reported error", fmt.Errorf("%s", string(frame.Payload)))
	}
	if frame.Kind != wire.KindMessage || string(frame.Payload) != wire.MsgAck {
		return xerrors.New(xerrors.Protocol, "expected ACK")
	}
	return nil
}

// checkCancel observes ctx.Done() between frames, the cancellation point
// named in spec.md §5.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.Cancelled, "cancelled between frames", ctx.Err())
	default:
		return nil
	}
}

func handleSendFailure(conn *Conn, subject *progress.Subject, taskID uuid.UUID, sess *Session, err error) {
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
