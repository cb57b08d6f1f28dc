// Package sshtunnel sets up the forward or reverse SSH tunnel through a
// jump host that makes the core's TCP socket reachable (spec.md §1: "a TCP
// socket whose reachability is provided by an SSH tunnel... through a jump
// host"). Tunnel setup/teardown is explicitly OUT OF SCOPE for the core
// (spec.md §1) — this package is the external collaborator the core treats
// as opaque, adapted from the teacher's golang.org/x/crypto/ssh dial
// pattern (internal/transport/ssh.go) and from original_source/ssh_utils.py
// and experiments/{forward,reverse}_ssh_tunnel.py.
package sshtunnel

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// JumpOpts configures the SSH connection to the jump host.
type JumpOpts struct {
	Host     string
	User     string
	Port     int    // 0 = default (22)
	KeyFile  string // override key file path; empty = try defaults
	Password string // non-interactive fallback; empty = skip password auth
}

// DialJump establishes an SSH connection to the jump host. Auth methods
// are tried in order: SSH agent, key files (~/.ssh/id_ed25519, id_ecdsa,
// id_rsa, or opts.KeyFile), then password — the same order as the
// teacher's DialSSH.
func DialJump(opts JumpOpts) (*ssh.Client, error) {
	userName := opts.User
	if userName == "" {
		u, err := user.Current()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Config, "determine current user", err)
		}
		userName = u.Username
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}

	authMethods := buildAuthMethods(opts)
	if len(authMethods) == 0 {
		return nil, xerrors.New(xerrors.Config,
			"no SSH auth methods available (set SSH_AUTH_SOCK, provide a key, or password)")
	}

	hostKeyCallback, err := defaultHostKeyCallback()
	if err != nil {
		//nolint:gosec // fallback for systems without a populated known_hosts file
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            userName,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	addr := net.JoinHostPort(opts.Host, fmt.Sprintf("%d", port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, fmt.Sprintf("ssh dial %s", addr), err)
	}
	return client, nil
}

func buildAuthMethods(opts JumpOpts) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentClient := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(agentClient.Signers))
		}
	}

	if opts.KeyFile != "" {
		if m := keyFileAuth(opts.KeyFile); m != nil {
			methods = append(methods, m)
		}
	} else {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			if m := keyFileAuth(filepath.Join(home, ".ssh", name)); m != nil {
				methods = append(methods, m)
			}
		}
	}

	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}

	return methods
}

func keyFileAuth(path string) ssh.AuthMethod {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied key path
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(signer)
}

func defaultHostKeyCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
}

// Forward sets up a forward tunnel: it listens on localAddr and, for each
// accepted local connection, opens a direct-tcpip channel through client to
// remoteAddr (a host:port reachable from the jump host), splicing bytes in
// both directions. Matches experiments/forward_ssh_tunnel.py's
// "Local:local_port -> tunnel -> Jump Server:remote_port" data flow.
func Forward(client *ssh.Client, localAddr, remoteAddr string, log *slog.Logger) (net.Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "listen for forward tunnel", err)
	}

	go func() {
		for {
			local, err := ln.Accept()
			if err != nil {
				return
			}
			go spliceToRemote(client, local, remoteAddr, log)
		}
	}()

	return ln, nil
}

func spliceToRemote(client *ssh.Client, local net.Conn, remoteAddr string, log *slog.Logger) {
	defer local.Close()
	remote, err := client.Dial("tcp", remoteAddr)
	if err != nil {
		log.Warn("forward tunnel: dial remote failed", "remote", remoteAddr, "error", err)
		return
	}
	defer remote.Close()
	splice(local, remote)
}

// Reverse sets up a reverse tunnel: it asks the jump host to listen on
// remoteAddr (from the jump host's perspective) and, for each connection
// the jump host accepts there, dials localAddr on this machine, splicing
// bytes in both directions. Matches
// experiments/reverse_ssh_tunnel.py's "Jump Server:remote_port -> tunnel ->
// Local:local_port" data flow — the mechanism the spec's "reverse" tunnel
// mode in §1 refers to.
func Reverse(client *ssh.Client, remoteAddr, localAddr string, log *slog.Logger) (io.Closer, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := client.Listen("tcp", remoteAddr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "listen on jump host for reverse tunnel", err)
	}

	go func() {
		for {
			remote, err := ln.Accept()
			if err != nil {
				return
			}
			go spliceToLocal(remote, localAddr, log)
		}
	}()

	return ln, nil
}

func spliceToLocal(remote net.Conn, localAddr string, log *slog.Logger) {
	defer remote.Close()
	local, err := net.Dial("tcp", localAddr)
	if err != nil {
		log.Warn("reverse tunnel: dial local failed", "local", localAddr, "error", err)
		return
	}
	defer local.Close()
	splice(local, remote)
}

func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(a, b)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(b, a)
		done <- struct{}{}
	}()
	<-done
}
