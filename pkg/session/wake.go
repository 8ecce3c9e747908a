//go:build linux || darwin

package session

import "golang.org/x/sys/unix"

// wakePipe is the self-pipe trick: a pipe whose read
// end sits in the readiness loop's poll set so that any other goroutine
// can interrupt an indefinite Poll() by writing one byte to the write
// end. It is edge-or-level-safe against spurious drains: draining more
// or fewer bytes than were written only changes how many redundant
// wake-ups the loop processes, never correctness.
type wakePipe struct {
	readFD  int
	writeFD int
}

func newWakePipe() (*wakePipe, error) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		return nil, newError("wake_pipe", 0, "pipe: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, newError("wake_pipe", 0, "set non-blocking (read): %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, newError("wake_pipe", 0, "set non-blocking (write): %v", err)
	}
	return &wakePipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// poke writes a single byte, waking a blocked Poll(). A full pipe means
// a wake-up is already pending, which is equally effective, so EAGAIN is
// swallowed.
func (wp *wakePipe) poke() {
	buf := [1]byte{1}
	for {
		_, err := unix.Write(wp.writeFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// drainOne consumes exactly one byte per call, matching the I/O loop's
// "decrement remaining readiness count" step; the loop
// calls it once per detected readiness on the pipe, not in a loop to
// EAGAIN, so that a burst of pokes is drained across successive
// iterations rather than blocking this one.
func (wp *wakePipe) drainOne() {
	var b [1]byte
	for {
		_, err := unix.Read(wp.readFD, b[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (wp *wakePipe) close() {
	unix.Close(wp.readFD)
	unix.Close(wp.writeFD)
}
