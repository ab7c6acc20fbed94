package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no dsn configured")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	db.Migrator().AutoMigrate(&types.User{}, &types.Room{}, &types.Message{})
	return db, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	return mapNotFound(p.db.First(user).Error)
}

func (p *GormPersist) GetUserByUsername(username string) (*types.User, error) {
	user := types.User{}
	err := p.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (p *GormPersist) GetUserByEmail(email string) (*types.User, error) {
	user := types.User{}
	err := p.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) DeleteUser(user *types.User) error {
	return p.db.Delete(user).Error
}

// CreateRoom relies on the unique index on the room name: the loser of a
// concurrent insert, even one racing from another process, gets ErrNameTaken.
func (p *GormPersist) CreateRoom(room types.Room) error {
	err := p.db.Create(&room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.ErrNameTaken
	}
	return err
}

func (p *GormPersist) StoreRoom(room types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) GetRoom(room *types.Room) error {
	return mapNotFound(p.db.First(room).Error)
}

func (p *GormPersist) GetRoomByName(name string) (*types.Room, error) {
	room := types.Room{}
	err := p.db.Where("name = ?", name).First(&room).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &room, nil
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) DeleteRoom(room *types.Room) error {
	// messages are retained, only the room record (and member set) goes
	return p.db.Delete(room).Error
}

func (p *GormPersist) StoreMessage(message types.Message) error {
	return p.db.Create(&message).Error
}

func (p *GormPersist) GetMessageHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	q := p.db.Where("room_id = ? AND created_at >= ? AND created_at < ?", roomId, fromTs, toTs).
		Order("created_at ASC").Offset(fromIdx)
	if maxCount > 0 {
		q = q.Limit(maxCount)
	}
	err := q.Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (p *GormPersist) GetRecentMessages(roomId string, maxCount int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	q := p.db.Where("room_id = ?", roomId).Order("created_at DESC")
	if maxCount > 0 {
		q = q.Limit(maxCount)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func (p *GormPersist) Close() error {
	return nil
}
