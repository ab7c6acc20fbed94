package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/types"
)

// ErrNotFound is returned by the Get* methods when no record matches.
var ErrNotFound = errors.New("record not found")

// Persister is the durable store behind the chat core: the append-only
// message log plus user and room records.
type Persister interface {
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUserByUsername(username string) (*types.User, error)
	GetUserByEmail(email string) (*types.User, error)
	GetUsers() ([]*types.User, error)
	DeleteUser(*types.User) error

	// CreateRoom inserts a new room record. It fails with types.ErrNameTaken
	// if a room with the same name already exists.
	CreateRoom(types.Room) error
	StoreRoom(types.Room) error
	GetRoom(*types.Room) error
	GetRoomByName(name string) (*types.Room, error)
	GetRooms() ([]*types.Room, error)
	DeleteRoom(*types.Room) error

	// StoreMessage appends one message to the log. Messages are never
	// updated or deleted, not even when their room is.
	StoreMessage(types.Message) error
	// GetMessageHistory returns messages of one room ordered by CreatedAt
	// ascending. The time range is half-open, fromTs inclusive and toTs
	// exclusive; fromIdx/maxCount paginate within it.
	GetMessageHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Message, error)
	// GetRecentMessages returns the newest maxCount messages of one room,
	// still in ascending CreatedAt order. maxCount <= 0 returns everything.
	GetRecentMessages(roomId string, maxCount int) ([]*types.Message, error)

	Close() error
}

// NewPersister builds the backend selected by the persistence configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)

	case "buntdb":
		return NewBuntPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
