package types

import "time"

// MembershipMode decides how access to a room is governed. It is a property
// of the room record, chosen at creation time, not a deployment-wide switch.
type MembershipMode string

const (
	// MembershipOpenEphemeral: membership is the set of sessions currently
	// joined via the transport. Nothing is recorded durably, anyone holding a
	// valid session may join, and membership vanishes with the last session.
	MembershipOpenEphemeral MembershipMode = "open_ephemeral"

	// MembershipOwnedPersistent: membership is a durable set of user ids. A
	// user must be in the set before they may post or read history, and only
	// the owner may delete the room or change the member set.
	MembershipOwnedPersistent MembershipMode = "owned_persistent"
)

// Room is a named channel into which messages are posted and broadcast.
// The name is globally unique at creation time.
type Room struct {
	Id        string          `json:"id" gorm:"primaryKey"`
	Name      string          `json:"name" gorm:"uniqueIndex"`
	Mode      MembershipMode  `json:"mode"`
	OwnerId   string          `json:"owner_id"` // set iff Mode is owned_persistent
	Members   JSONStringSlice `json:"members"`  // durable member user ids, owned_persistent only
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"-"`
}

// HasMember reports whether userId is in the durable member set. Only
// meaningful for owned_persistent rooms.
func (r *Room) HasMember(userId string) bool {
	for _, id := range r.Members {
		if id == userId {
			return true
		}
	}
	return false
}
