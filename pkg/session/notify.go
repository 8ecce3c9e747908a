package session

// Poster is the asynchronous notification transport: an opaque message
// carrier that the core only duplicates, fills and posts. A
// real Wi-Fi Display stack would back this with the same kind of
// AMessage/looper queue the source used; here it is any sink the
// embedding application supplies — a channel, an event bus, a test spy.
type Poster interface {
	Post(n *Notification)
}

// PosterFunc adapts a plain function to Poster, mirroring the
// http.HandlerFunc idiom used throughout the pack for single-method
// interfaces.
type PosterFunc func(n *Notification)

func (f PosterFunc) Post(n *Notification) { f(n) }

// Template is the per-session notification template: an opaque payload
// that is cloned for every event a session generates. UserData is
// whatever correlation payload the owning application attached at
// session-creation time (a call ID, a *Stream pointer, ...) and survives
// duplication unchanged.
type Template struct {
	Sink     Poster
	UserData any
}

func (t Template) clone(reason NotificationReason, id ID) *Notification {
	return &Notification{
		Reason:    reason,
		SessionID: id,
		UserData:  t.UserData,
	}
}

// Buffer tags a byte payload with its arrival time, matching the
// source's ABuffer + "arrivalTimeUs" metadata convention for BinaryData
// and Datagram notifications.
type Buffer struct {
	Bytes         []byte
	ArrivalTimeUs int64
}

// Notification is the duplicated-and-filled event posted to a Template's
// Sink. Only the fields relevant to Reason are populated; see the field
// comments below for the layout each reason uses.
type Notification struct {
	Reason    NotificationReason
	SessionID ID

	// ClientConnected
	ServerIP   string
	ServerPort int
	ClientIP   string
	ClientPort int

	// Data
	Message any // *rtspmsg.Message

	// BinaryData
	Channel byte

	// BinaryData / Datagram
	Data *Buffer

	// Datagram (UDP only)
	FromAddr string
	FromPort int

	// Error
	Send   bool
	Err    int
	Detail string

	// UserData carries the template's opaque payload through unchanged.
	UserData any
}

func (t Template) post(reason NotificationReason, id ID, fill func(*Notification)) {
	observeNotificationPosted(reason)
	if t.Sink == nil {
		return
	}
	n := t.clone(reason, id)
	if fill != nil {
		fill(n)
	}
	t.Sink.Post(n)
}
