package transfer_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumpbeam/jumpbeam/internal/buffer"
	"github.com/jumpbeam/jumpbeam/internal/netio"
	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/transfer"
	"github.com/jumpbeam/jumpbeam/internal/wire"
)

func sendHello(ctx context.Context, conn *transfer.Conn) error {
	return conn.WriteFrame(ctx, wire.KindMessage, []byte(wire.MsgHello))
}

func requireReady(t *testing.T, ctx context.Context, conn *transfer.Conn) {
	t.Helper()
	frame, err := conn.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.KindMessage, frame.Kind)
	require.Equal(t, wire.MsgReady, string(frame.Payload))
}

func respondPings(t *testing.T, ctx context.Context, conn *transfer.Conn, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, conn.WriteFrame(ctx, wire.KindPing, nil))
		frame, err := conn.ReadFrame(ctx)
		require.NoError(t, err)
		require.Equal(t, wire.KindPong, frame.Kind)
	}
}

func sendFileInfo(t *testing.T, ctx context.Context, conn *transfer.Conn, name string, size uint64) {
	t.Helper()
	payload, err := wire.EncodeFileInfo(wire.FileInfo{Name: name, Size: size})
	require.NoError(t, err)
	require.NoError(t, conn.WriteFrame(ctx, wire.KindFileInfo, payload))
}

func testOptions() transfer.Options {
	cfg := buffer.DefaultConfig()
	cfg.Initial = 4096
	return transfer.Options{BufferConfig: cfg, Strategy: buffer.Balanced, ProbeSamples: 1}
}

func pipeConns() (*transfer.Conn, *transfer.Conn) {
	a, b := net.Pipe()
	return transfer.NewConn(netio.New(a, netio.Options{})), transfer.NewConn(netio.New(b, netio.Options{}))
}

func TestSendReceiveRoundTrip(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "payload.bin")
	content := bytes.Repeat([]byte("jumpbeam-"), 8000) // larger than one default chunk
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	senderConn, receiverConn := pipeConns()

	senderSubject := progress.NewSubject()
	receiverSubject := progress.NewSubject()

	var senderSess, receiverSess *transfer.Session
	done := make(chan struct{})

	go func() {
		receiverSess = transfer.Receive(context.Background(), receiverConn, dstDir, receiverSubject, testOptions())
		close(done)
	}()

	senderSess = transfer.Send(context.Background(), senderConn, srcPath, senderSubject, testOptions())
	<-done

	require.Equal(t, transfer.StateSuccess, senderSess.State)
	require.Equal(t, transfer.StateSuccess, receiverSess.State)
	assert.Equal(t, int64(len(content)), senderSess.Bytes)
	assert.Equal(t, int64(len(content)), receiverSess.Bytes)

	gotPath := filepath.Join(dstDir, "payload.bin")
	got, err := os.ReadFile(gotPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, gotPath, receiverSess.Path)
	assert.Equal(t, srcPath, senderSess.Path)

	// No leftover .part file after a clean finalize.
	_, err = os.Stat(gotPath + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestSendMissingFileFails(t *testing.T) {
	t.Parallel()

	senderConn, _ := pipeConns()
	subject := progress.NewSubject()

	sess := transfer.Send(context.Background(), senderConn, "/nonexistent/path.bin", subject, testOptions())
	assert.Equal(t, transfer.StateFailed, sess.State)
	assert.NotEmpty(t, sess.FailReason)
}

func TestReceiveLeavesPartFileOnMidStreamFailure(t *testing.T) {
	t.Parallel()

	dstDir := t.TempDir()
	a, b := net.Pipe()
	receiverConn := transfer.NewConn(netio.New(a, netio.Options{}))
	rawSender := transfer.NewConn(netio.New(b, netio.Options{}))

	subject := progress.NewSubject()
	done := make(chan *transfer.Session, 1)
	go func() {
		done <- transfer.Receive(context.Background(), receiverConn, dstDir, subject, testOptions())
	}()

	// Speak just enough handshake, then abandon mid-stream by closing.
	ctx := context.Background()
	require.NoError(t, sendHello(ctx, rawSender))
	requireReady(t, ctx, rawSender)
	respondPings(t, ctx, rawSender, 1)
	sendFileInfo(t, ctx, rawSender, "abandoned.bin", 100)
	rawSender.Close()

	sess := <-done
	assert.NotEqual(t, transfer.StateSuccess, sess.State)

	entries, err := os.ReadDir(dstDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abandoned.bin.part", entries[0].Name())
}

func TestSendReceiveRespectsCancellation(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "big.bin")
	require.NoError(t, os.WriteFile(srcPath, bytes.Repeat([]byte("z"), 1<<20), 0o644))

	senderConn, receiverConn := pipeConns()
	senderSubject := progress.NewSubject()
	receiverSubject := progress.NewSubject()

	ctx, cancel := context.WithCancel(context.Background())

	recvDone := make(chan *transfer.Session, 1)
	go func() {
		recvDone <- transfer.Receive(context.Background(), receiverConn, dstDir, receiverSubject, testOptions())
	}()

	go func() {
		time.Sleep(2 * time.Millisecond)
		cancel()
	}()

	sess := transfer.Send(ctx, senderConn, srcPath, senderSubject, testOptions())
	<-recvDone

	assert.Contains(t, []transfer.State{transfer.StateCancelled, transfer.StateSuccess}, sess.State)
}
