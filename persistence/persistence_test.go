package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachBackend runs the same suite against every persister implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, p Persister)) {
	t.Helper()
	configs := map[string]config.PersistenceConfig{
		"buntdb": {Type: "buntdb", DSN: ":memory:"},
		"sqlite": {Type: "sqlite", DSN: filepath.Join(t.TempDir(), "chat.db")},
	}
	for name, pc := range configs {
		t.Run(name, func(t *testing.T) {
			p, err := NewPersister(&config.Config{PersistenceConfig: pc})
			require.NoError(t, err)
			defer p.Close()
			fn(t, p)
		})
	}
}

func TestUserRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		alice := types.User{Id: "u-1", Username: "alice", Email: "alice@example.com"}
		require.NoError(t, p.StoreUser(alice))

		got := types.User{Id: "u-1"}
		require.NoError(t, p.GetUser(&got))
		assert.Equal(t, "alice", got.Username)

		byName, err := p.GetUserByUsername("alice")
		require.NoError(t, err)
		assert.Equal(t, "u-1", byName.Id)

		byEmail, err := p.GetUserByEmail("alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-1", byEmail.Id)
	})
}

func TestUserNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		got := types.User{Id: "missing"}
		assert.ErrorIs(t, p.GetUser(&got), ErrNotFound)

		_, err := p.GetUserByUsername("missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = p.GetUserByEmail("missing@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		alice := types.User{Id: "u-1", Username: "alice", Email: "alice@example.com"}
		require.NoError(t, p.StoreUser(alice))
		require.NoError(t, p.DeleteUser(&alice))

		got := types.User{Id: "u-1"}
		assert.ErrorIs(t, p.GetUser(&got), ErrNotFound)
	})
}

func TestCreateRoomEnforcesUniqueName(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		require.NoError(t, p.CreateRoom(types.Room{Id: "r-1", Name: "general", Mode: types.MembershipOpenEphemeral}))

		err := p.CreateRoom(types.Room{Id: "r-2", Name: "general", Mode: types.MembershipOpenEphemeral})
		assert.ErrorIs(t, err, types.ErrNameTaken)

		got, err := p.GetRoomByName("general")
		require.NoError(t, err)
		assert.Equal(t, "r-1", got.Id)
	})
}

func TestStoreRoomUpdatesMemberSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		room := types.Room{
			Id:      "r-1",
			Name:    "private",
			Mode:    types.MembershipOwnedPersistent,
			OwnerId: "u-alice",
			Members: types.JSONStringSlice{"u-alice"},
		}
		require.NoError(t, p.CreateRoom(room))

		room.Members = append(room.Members, "u-bob")
		require.NoError(t, p.StoreRoom(room))

		got, err := p.GetRoomByName("private")
		require.NoError(t, err)
		assert.Equal(t, types.JSONStringSlice{"u-alice", "u-bob"}, got.Members)
	})
}

func TestDeleteRoomRetainsMessages(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		room := types.Room{Id: "r-1", Name: "general", Mode: types.MembershipOpenEphemeral}
		require.NoError(t, p.CreateRoom(room))

		ts := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		require.NoError(t, p.StoreMessage(types.Message{Id: "m-1", RoomId: "r-1", AuthorId: "u-1", Text: "hello", CreatedAt: ts}))

		require.NoError(t, p.DeleteRoom(&room))
		_, err := p.GetRoomByName("general")
		assert.ErrorIs(t, err, ErrNotFound)

		messages, err := p.GetMessageHistory("r-1", ts.Add(-time.Minute), ts.Add(time.Minute), 0, 0)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "hello", messages[0].Text)
	})
}

func storeSequence(t *testing.T, p Persister, roomId string, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg := types.Message{
			RoomId:    roomId,
			AuthorId:  "u-1",
			Text:      string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, msg.CreateId())
		require.NoError(t, p.StoreMessage(msg))
	}
}

func TestMessageHistoryOrderAndRoomFilter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		storeSequence(t, p, "r-1", 5, base)
		storeSequence(t, p, "r-2", 3, base)

		messages, err := p.GetMessageHistory("r-1", base.Add(-time.Minute), base.Add(time.Minute), 0, 0)
		require.NoError(t, err)
		require.Len(t, messages, 5)
		for i, msg := range messages {
			assert.Equal(t, string(rune('a'+i)), msg.Text)
			assert.Equal(t, "r-1", msg.RoomId)
		}
	})
}

func TestMessageHistoryPagination(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		storeSequence(t, p, "r-1", 5, base)

		messages, err := p.GetMessageHistory("r-1", base.Add(-time.Minute), base.Add(time.Minute), 2, 2)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "c", messages[0].Text)
		assert.Equal(t, "d", messages[1].Text)
	})
}

func TestMessageHistoryTimeRange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		storeSequence(t, p, "r-1", 5, base)

		// the window is half-open, so only the middle three qualify
		messages, err := p.GetMessageHistory("r-1", base.Add(time.Second), base.Add(4*time.Second), 0, 0)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "b", messages[0].Text)
		assert.Equal(t, "d", messages[2].Text)
	})
}

func TestRecentMessagesReturnNewestFirstWindow(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p Persister) {
		base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
		storeSequence(t, p, "r-1", 10, base)
		storeSequence(t, p, "r-2", 3, base)

		// the newest 5 of r-1, still oldest-first
		messages, err := p.GetRecentMessages("r-1", 5)
		require.NoError(t, err)
		require.Len(t, messages, 5)
		assert.Equal(t, "f", messages[0].Text)
		assert.Equal(t, "j", messages[4].Text)

		// fewer persisted messages than asked for
		messages, err = p.GetRecentMessages("r-2", 5)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "a", messages[0].Text)
		assert.Equal(t, "c", messages[2].Text)
	})
}

func TestNewPersisterRejectsUnknownType(t *testing.T) {
	_, err := NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "etcd", DSN: "x"}})
	assert.Error(t, err)
}
