//go:build linux || darwin

package session

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Raw non-blocking socket helpers, grounded on pkg/rtp/transport_common.go
// and pkg/rtp/transport_socket_linux.go / transport_socket_darwin.go. The
// source manipulates plain file descriptors directly (bind/listen/connect/
// setsockopt) so that a single readiness multiplexer can poll them all;
// net.Conn hides the fd behind an internal poller that this design can't
// share, so the socket factory talks to golang.org/x/sys/unix instead.

const (
	udpSocketBuffer = 262144 // 256 KiB, applied to every Udp session's socket
	listenBacklog   = 4      // backlog for RtspServer / TcpDatagramPassive listeners
)

func resolveIPv4(host string) (ip [4]byte, err error) {
	if host == "" || host == "0.0.0.0" {
		return [4]byte{0, 0, 0, 0}, nil
	}
	// Hostname resolution is blocking and uses the first returned
	// address.
	addrs, err := net.LookupIP(host)
	if err != nil {
		return ip, fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			copy(ip[:], v4)
			return ip, nil
		}
	}
	return ip, fmt.Errorf("resolve %q: no IPv4 address", host)
}

func newNonBlockingSocket(sockType int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, sockType, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set non-blocking: %w", err)
	}
	return fd, nil
}

func setReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setUDPBuffers(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, udpSocketBuffer); err != nil {
		return fmt.Errorf("SO_RCVBUF: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, udpSocketBuffer); err != nil {
		return fmt.Errorf("SO_SNDBUF: %w", err)
	}
	return nil
}

func bindAddr(fd int, ip [4]byte, port int) error {
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	return unix.Bind(fd, sa)
}

func listenSocket(fd int, backlog int) error {
	return unix.Listen(fd, backlog)
}

// connectAddr issues a non-blocking connect(); EINPROGRESS is expected
// and is not an error.
func connectAddr(fd int, ip [4]byte, port int) error {
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	err := unix.Connect(fd, sa)
	if err == nil || err == unix.EINPROGRESS {
		return nil
	}
	return err
}

func localEndpoint(fd int) Endpoint {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Endpoint{}
	}
	return sockaddrToEndpoint(sa)
}

func remoteEndpoint(fd int) Endpoint {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return Endpoint{}
	}
	return sockaddrToEndpoint(sa)
}

func sockaddrToEndpoint(sa unix.Sockaddr) Endpoint {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		ip := in4.Addr
		return Endpoint{
			IP:   fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3]),
			Port: in4.Port,
		}
	}
	return Endpoint{}
}

// socketError reads SO_ERROR off fd, used after a Connecting
// write-readiness to learn how the non-blocking connect() completed.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

func acceptNonBlocking(fd int) (childFD int, remote Endpoint, err error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, Endpoint{}, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, Endpoint{}, err
	}
	return nfd, sockaddrToEndpoint(sa), nil
}

// recvfromNonBlocking wraps a single recvfrom() call for the Datagram
// read path: "loop recvfrom until EAGAIN".
func recvfromNonBlocking(fd int, buf []byte) (n int, from Endpoint, err error) {
	nread, sa, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		return 0, Endpoint{}, err
	}
	if sa == nil {
		return nread, Endpoint{}, nil
	}
	return nread, sockaddrToEndpoint(sa), nil
}

func readRetryEINTR(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func writeRetryEINTR(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
