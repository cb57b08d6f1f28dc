package sshtunnel

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthMethodsPassword(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	methods := buildAuthMethods(JumpOpts{Password: "hunter2", KeyFile: "/nonexistent/key"})
	assert.Len(t, methods, 1)
}

func TestBuildAuthMethodsEmptyWhenNothingAvailable(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HOME", t.TempDir()) // no ~/.ssh keys present
	methods := buildAuthMethods(JumpOpts{})
	assert.Empty(t, methods)
}

func TestKeyFileAuthRejectsMissingFile(t *testing.T) {
	t.Parallel()
	assert.Nil(t, keyFileAuth("/nonexistent/id_ed25519"))
}

func TestKeyFileAuthRejectsMalformedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad_key")
	require.NoError(t, os.WriteFile(path, []byte("not a real key"), 0o600))
	assert.Nil(t, keyFileAuth(path))
}

func TestSpliceCopiesBothDirectionsUntilClose(t *testing.T) {
	t.Parallel()

	aLeft, aRight := net.Pipe()
	bLeft, bRight := net.Pipe()

	done := make(chan struct{})
	go func() {
		splice(aRight, bRight)
		close(done)
	}()

	go func() { _, _ = aLeft.Write([]byte("to-b")) }()
	buf := make([]byte, 4)
	_, err := io.ReadFull(bLeft, buf)
	require.NoError(t, err)
	assert.Equal(t, "to-b", string(buf))

	go func() { _, _ = bLeft.Write([]byte("to-a")) }()
	_, err = io.ReadFull(aLeft, buf)
	require.NoError(t, err)
	assert.Equal(t, "to-a", string(buf))

	aLeft.Close()
	bLeft.Close()
	<-done
}
