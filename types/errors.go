package types

import "errors"

// The error taxonomy surfaced to connected clients. Callers match with
// errors.Is; the registry maps persistence not-found conditions onto these.
var (
	// ErrAuth covers a missing, invalid or expired session token. A call
	// rejected with ErrAuth is never retried automatically.
	ErrAuth = errors.New("authentication failed")

	// ErrRoomNotFound means the target room does not exist (any more).
	ErrRoomNotFound = errors.New("room not found")

	// ErrNotAMember means the user is not authorized for the room in its
	// current membership mode.
	ErrNotAMember = errors.New("not a member of this room")

	// ErrNameTaken is returned to the loser of a concurrent room creation
	// race. The caller may retry with a different name.
	ErrNameTaken = errors.New("room name already taken")

	// ErrNotOwner means a room deletion or member change was requested by
	// someone other than the room owner.
	ErrNotOwner = errors.New("not the room owner")
)

// Code maps an error onto the stable identifier carried in ack payloads.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "AuthError"
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrNotAMember):
		return "NotAMember"
	case errors.Is(err, ErrNameTaken):
		return "NameTaken"
	case errors.Is(err, ErrNotOwner):
		return "NotOwner"
	}
	return "InternalError"
}
