package netio

import (
	"net"

	"golang.org/x/sys/unix"
)

// tcpTune disables Nagle's algorithm on the underlying fd when conn is a
// *net.TCPConn, matching the teacher's pattern of reaching for
// golang.org/x/sys/unix for low-level fd tuning (there used for
// fchmod/fchown/xattrs; here for socket options). Disabling Nagle matters
// for the Latency Prober's PING/PONG round trips, which are small and
// latency-sensitive — TCP_NODELAY avoids Nagle/delayed-ACK batching of the
// single-byte-ish control frames.
func tcpTune(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return
	}
	_ = rawConn.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
}
