package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/samber/lo"
	"github.com/tidwall/buntdb"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		return nil, fmt.Errorf("no dsn configured")
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("messagests", "msg:*", buntdb.IndexJSON("timestamp"))
	if err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buntNotFound(err error) error {
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	u, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set("user:"+user.Id, string(u), nil); err != nil {
			return err
		}
		if _, _, err := tx.Set("idx:username:"+user.Username, user.Id, nil); err != nil {
			return err
		}
		_, _, err := tx.Set("idx:email:"+user.Email, user.Id, nil)
		return err
	})
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return buntNotFound(p.db.View(func(tx *buntdb.Tx) error {
		u, err := tx.Get("user:" + user.Id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(u), user)
	}))
}

func (p *BuntDBPersist) getUserByIndex(key string) (*types.User, error) {
	user := types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get(key)
		if err != nil {
			return err
		}
		u, err := tx.Get("user:" + id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(u), &user)
	})
	if err != nil {
		return nil, buntNotFound(err)
	}
	return &user, nil
}

func (p *BuntDBPersist) GetUserByUsername(username string) (*types.User, error) {
	return p.getUserByIndex("idx:username:" + username)
}

func (p *BuntDBPersist) GetUserByEmail(email string) (*types.User, error) {
	return p.getUserByIndex("idx:email:" + email)
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, val string) bool {
			user := types.User{}
			if err := json.Unmarshal([]byte(val), &user); err == nil {
				users = append(users, &user)
			}
			return true
		})
	})
	return users, err
}

func (p *BuntDBPersist) DeleteUser(user *types.User) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("user:" + user.Id)
		if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		tx.Delete("idx:username:" + user.Username)
		tx.Delete("idx:email:" + user.Email)
		return nil
	})
}

// CreateRoom sets the room record and the name index in one transaction, so
// of two concurrent creators for the same name exactly one wins.
func (p *BuntDBPersist) CreateRoom(room types.Room) error {
	r, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get("idx:roomname:" + room.Name); err == nil {
			return types.ErrNameTaken
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		if _, _, err := tx.Set("room:"+room.Id, string(r), nil); err != nil {
			return err
		}
		_, _, err := tx.Set("idx:roomname:"+room.Name, room.Id, nil)
		return err
	})
}

func (p *BuntDBPersist) StoreRoom(room types.Room) error {
	r, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set("room:"+room.Id, string(r), nil); err != nil {
			return err
		}
		_, _, err := tx.Set("idx:roomname:"+room.Name, room.Id, nil)
		return err
	})
}

func (p *BuntDBPersist) GetRoom(room *types.Room) error {
	if room.Id == "" {
		return fmt.Errorf("no room id")
	}
	return buntNotFound(p.db.View(func(tx *buntdb.Tx) error {
		r, err := tx.Get("room:" + room.Id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(r), room)
	}))
}

func (p *BuntDBPersist) GetRoomByName(name string) (*types.Room, error) {
	room := types.Room{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get("idx:roomname:" + name)
		if err != nil {
			return err
		}
		r, err := tx.Get("room:" + id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(r), &room)
	})
	if err != nil {
		return nil, buntNotFound(err)
	}
	return &room, nil
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := types.Room{}
			if err := json.Unmarshal([]byte(val), &room); err == nil {
				rooms = append(rooms, &room)
			}
			return true
		})
	})
	return rooms, err
}

// DeleteRoom removes the room record and its name index entry. The message
// log of the room is retained.
func (p *BuntDBPersist) DeleteRoom(room *types.Room) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("room:" + room.Id)
		if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		tx.Delete("idx:roomname:" + room.Name)
		return nil
	})
}

func (p *BuntDBPersist) StoreMessage(message types.Message) error {
	m, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("msg:"+message.Id, string(m), nil)
		return err
	})
}

func (p *BuntDBPersist) GetMessageHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)

	fromCond := fmt.Sprintf(`{"timestamp":"%s"}`, fromTs.In(time.UTC).Format(time.RFC3339Nano))
	toCond := fmt.Sprintf(`{"timestamp":"%s"}`, toTs.In(time.UTC).Format(time.RFC3339Nano))

	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.AscendRange("messagests", fromCond, toCond, func(key, val string) bool {
			message := &types.Message{}
			if err := json.Unmarshal([]byte(val), message); err != nil {
				return true
			}
			if message.RoomId != roomId {
				return true
			}
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			messages = append(messages, message)
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return messages, err
}

func (p *BuntDBPersist) GetRecentMessages(roomId string, maxCount int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("messagests", func(key, val string) bool {
			message := &types.Message{}
			if err := json.Unmarshal([]byte(val), message); err != nil {
				return true
			}
			if message.RoomId != roomId {
				return true
			}
			messages = append(messages, message)
			return maxCount <= 0 || len(messages) < maxCount
		})
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
