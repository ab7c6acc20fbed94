package ws

// Sink is the write side of one connected session: the narrow capability a
// room hub uses to fan out. The websocket Client implements it; tests use
// in-memory fakes.
type Sink interface {
	// Deliver hands one wire frame to the session. It must not block; a
	// session that cannot accept the frame (buffer full, gone) returns false.
	Deliver(data []byte) bool
}

// member is one session's presence inside a room hub.
type member struct {
	sessionId string
	user      userInfo
	sink      Sink
}

type userInfo struct {
	Id       string
	Username string
}

// noopSink stands in for sessions that have no write side bound (yet).
type noopSink struct{}

func (noopSink) Deliver([]byte) bool { return false }
