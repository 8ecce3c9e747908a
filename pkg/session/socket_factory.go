//go:build linux || darwin

package session

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// createParams bundles the arguments of create_client_or_server
// so the control API (control.go) can build one and hand it to
// createSocket without a six-argument call.
type createParams struct {
	Mode       Mode
	LocalAddr  string
	LocalPort  int
	RemoteHost string
	RemotePort int
}

// createdSocket is what the socket factory hands back to the control API
// for it to wrap in a Session and insert into the engine's map.
type createdSocket struct {
	FD      int
	State   State
	IsRTSP  bool
	Local   Endpoint
	Remote  Endpoint
	HasPeer bool
}

// createSocket dispatches on Mode to produce a
// non-blocking socket in the state appropriate to Mode, having already
// performed whatever bind/connect/listen/setsockopt sequence that mode
// requires. Hostname resolution happens here, synchronously, on the
// caller's goroutine.
func createSocket(p createParams) (createdSocket, error) {
	switch p.Mode {
	case ModeRtspClient:
		return dialTCP(p, true)
	case ModeTCPDatagramActive:
		return dialTCP(p, false)
	case ModeRtspServer:
		return listenTCP(p, true)
	case ModeTCPDatagramPassive:
		return listenTCP(p, false)
	case ModeUDP:
		return createUDP(p)
	default:
		return createdSocket{}, newError("create_client_or_server", 0, "unknown mode %v", p.Mode)
	}
}

func dialTCP(p createParams, isRTSP bool) (createdSocket, error) {
	ip, err := resolveIPv4(p.RemoteHost)
	if err != nil {
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}

	fd, err := newNonBlockingSocket(unix.SOCK_STREAM)
	if err != nil {
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}

	if err := connectAddr(fd, ip, p.RemotePort); err != nil {
		unix.Close(fd)
		return createdSocket{}, newError("create_client_or_server", -errnoOf(err), "connect: %v", err)
	}

	return createdSocket{
		FD:     fd,
		State:  StateConnecting,
		IsRTSP: isRTSP,
		Remote: Endpoint{IP: fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3]), Port: p.RemotePort},
	}, nil
}

func listenTCP(p createParams, isRTSP bool) (createdSocket, error) {
	ip, err := resolveIPv4(p.LocalAddr)
	if err != nil {
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}

	fd, err := newNonBlockingSocket(unix.SOCK_STREAM)
	if err != nil {
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}

	if err := setReuseAddr(fd); err != nil {
		unix.Close(fd)
		return createdSocket{}, newError("create_client_or_server", 0, "SO_REUSEADDR: %v", err)
	}
	if err := bindAddr(fd, ip, p.LocalPort); err != nil {
		unix.Close(fd)
		return createdSocket{}, newError("create_client_or_server", -errnoOf(err), "bind: %v", err)
	}
	if err := listenSocket(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return createdSocket{}, newError("create_client_or_server", -errnoOf(err), "listen: %v", err)
	}

	state := StateListeningTCPDatagrams
	if isRTSP {
		state = StateListeningRtsp
	}

	return createdSocket{
		FD:     fd,
		State:  state,
		IsRTSP: isRTSP,
		Local:  localEndpoint(fd),
	}, nil
}

func createUDP(p createParams) (createdSocket, error) {
	localIP, err := resolveIPv4(p.LocalAddr)
	if err != nil {
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}

	fd, err := newNonBlockingSocket(unix.SOCK_DGRAM)
	if err != nil {
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}

	if err := setUDPBuffers(fd); err != nil {
		unix.Close(fd)
		return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
	}
	if err := bindAddr(fd, localIP, p.LocalPort); err != nil {
		unix.Close(fd)
		return createdSocket{}, newError("create_client_or_server", -errnoOf(err), "bind: %v", err)
	}

	out := createdSocket{
		FD:    fd,
		State: StateDatagram,
		Local: localEndpoint(fd),
	}

	if p.RemoteHost != "" {
		remoteIP, err := resolveIPv4(p.RemoteHost)
		if err != nil {
			unix.Close(fd)
			return createdSocket{}, newError("create_client_or_server", 0, "%v", err)
		}
		if err := connectAddr(fd, remoteIP, p.RemotePort); err != nil {
			unix.Close(fd)
			return createdSocket{}, newError("create_client_or_server", -errnoOf(err), "connect: %v", err)
		}
		out.Remote = Endpoint{IP: fmt.Sprintf("%d.%d.%d.%d", remoteIP[0], remoteIP[1], remoteIP[2], remoteIP[3]), Port: p.RemotePort}
		out.HasPeer = true
	}

	return out, nil
}

func errnoOf(err error) int {
	if errno, ok := err.(unix.Errno); ok {
		return int(errno)
	}
	return 0
}
