// Package registry owns room records and membership state: the durable
// member sets of owned_persistent rooms and the live session presence of
// open_ephemeral rooms.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/samber/lo"
)

type Registry struct {
	p persistence.Persister

	// serializes room creation so the name-uniqueness race has exactly one
	// winner even when the backend cannot enforce it transactionally
	createMu sync.Mutex

	// live presence per ephemeral room: room name -> user id -> session count
	presMu   sync.RWMutex
	presence map[string]map[string]int
}

func New(p persistence.Persister) *Registry {
	return &Registry{
		p:        p,
		presence: make(map[string]map[string]int),
	}
}

// Create inserts a new room. Name uniqueness is enforced atomically against
// concurrent creators; the loser gets types.ErrNameTaken. In
// owned_persistent mode the owner is the sole initial member.
func (r *Registry) Create(name, ownerId string, mode types.MembershipMode) (*types.Room, error) {
	if name == "" {
		return nil, fmt.Errorf("empty room name")
	}
	now := time.Now()
	room := types.Room{
		Id:        uuid.NewString(),
		Name:      name,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mode == types.MembershipOwnedPersistent {
		if ownerId == "" {
			return nil, fmt.Errorf("owned room needs an owner")
		}
		room.OwnerId = ownerId
		room.Members = types.JSONStringSlice{ownerId}
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	if _, err := r.p.GetRoomByName(name); err == nil {
		return nil, types.ErrNameTaken
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	if err := r.p.CreateRoom(room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Delete removes the room record and with it the durable member set. Only
// the owner may delete. Messages already appended for the room are retained;
// sessions still joined simply stop being able to post.
func (r *Registry) Delete(roomId, requesterId string) error {
	room := types.Room{Id: roomId}
	if err := r.p.GetRoom(&room); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return types.ErrRoomNotFound
		}
		return err
	}
	if room.OwnerId != requesterId {
		return types.ErrNotOwner
	}
	return r.p.DeleteRoom(&room)
}

// Get resolves a room by name, mapping absence to types.ErrRoomNotFound.
func (r *Registry) Get(name string) (*types.Room, error) {
	room, err := r.p.GetRoomByName(name)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, types.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// IsMember reports whether userId may post into room. For owned_persistent
// rooms this reflects the durable member set, for open_ephemeral rooms the
// live session presence.
func (r *Registry) IsMember(room *types.Room, userId string) bool {
	if room == nil {
		return false
	}
	if room.Mode == types.MembershipOwnedPersistent {
		return room.HasMember(userId)
	}
	r.presMu.RLock()
	defer r.presMu.RUnlock()
	return r.presence[room.Name][userId] > 0
}

// AddMember adds userId to the durable member set. Owner only.
func (r *Registry) AddMember(roomId, requesterId, userId string) error {
	return r.updateMembers(roomId, requesterId, func(members types.JSONStringSlice) types.JSONStringSlice {
		if lo.Contains(members, userId) {
			return members
		}
		return append(members, userId)
	})
}

// RemoveMember removes userId from the durable member set. Owner only. A
// removed user immediately loses the ability to join or post.
func (r *Registry) RemoveMember(roomId, requesterId, userId string) error {
	return r.updateMembers(roomId, requesterId, func(members types.JSONStringSlice) types.JSONStringSlice {
		return lo.Without(members, userId)
	})
}

func (r *Registry) updateMembers(roomId, requesterId string, update func(types.JSONStringSlice) types.JSONStringSlice) error {
	room := types.Room{Id: roomId}
	if err := r.p.GetRoom(&room); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return types.ErrRoomNotFound
		}
		return err
	}
	if room.Mode != types.MembershipOwnedPersistent {
		return fmt.Errorf("room %s has no durable member set", room.Name)
	}
	if room.OwnerId != requesterId {
		return types.ErrNotOwner
	}
	room.Members = update(room.Members)
	return r.p.StoreRoom(room)
}

// ListRooms returns all durable room records.
func (r *Registry) ListRooms() ([]*types.Room, error) {
	return r.p.GetRooms()
}

// TrackJoin records a live session of userId in the named room. Called by
// the session hub; one user may hold several sessions.
func (r *Registry) TrackJoin(roomName, userId string) {
	r.presMu.Lock()
	defer r.presMu.Unlock()
	if r.presence[roomName] == nil {
		r.presence[roomName] = make(map[string]int)
	}
	r.presence[roomName][userId]++
}

// TrackLeave removes one live session of userId from the named room.
// Idempotent once the count reaches zero.
func (r *Registry) TrackLeave(roomName, userId string) {
	r.presMu.Lock()
	defer r.presMu.Unlock()
	users := r.presence[roomName]
	if users == nil {
		return
	}
	if users[userId] > 1 {
		users[userId]--
		return
	}
	delete(users, userId)
	if len(users) == 0 {
		delete(r.presence, roomName)
	}
}
