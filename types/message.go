package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// Message is one chat message as appended to the log. Messages are immutable
// once appended; there is no update or delete operation.
type Message struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	RoomId     string    `json:"room_id" gorm:"index:idx_room_created,priority:1"`
	AuthorId   string    `json:"author_id"`
	AuthorNick string    `json:"author"`
	Text       string    `json:"message"`
	CreatedAt  time.Time `json:"timestamp" gorm:"index:idx_room_created,priority:2"`
}

// CreateId derives the message id from its content and timestamp.
func (m *Message) CreateId() error {
	m.Id = ""
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = fmt.Sprintf("%016x", hash)
	return nil
}
