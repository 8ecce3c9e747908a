package session

import (
	"context"

	"github.com/looplab/fsm"
)

// Event names for the session state machine. Only the Connecting session
// ever transitions after construction: every other
// state (ListeningRtsp, ListeningTcpDatagrams, Datagram, Connected-by-accept)
// is a fixed point for the lifetime of the session, so the FSM's event
// table only needs to cover the connect-completion edge.
const (
	evConnectOK   = "connect_ok"
	evConnectFail = "connect_fail"
)

// newSessionFSM builds the looplab/fsm state machine for one session,
// grounded on the SIP dialog FSM in pkg/dialog/dialog.go: an initial
// state plus an event table, with an after_event callback that notifies
// the owning Session of the transition so it can log it and post the
// Connected notification.
func newSessionFSM(initial State, onTransition func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: evConnectOK, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: evConnectFail, Src: []string{string(StateConnecting)}, Dst: string(stateFailed)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if onTransition != nil {
					onTransition(State(e.Src), State(e.Dst))
				}
			},
		},
	)
}
