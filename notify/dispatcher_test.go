package notify

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/directory"
	"github.com/roomcast-chat/roomcast/mention"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/registry"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *recordingNotifier) Notify(to *types.User, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("transport down")
	}
	n.sent = append(n.sent, to.Username)
	return nil
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type dispatcherFixture struct {
	reg        *registry.Registry
	dispatcher *Dispatcher
	notifier   *recordingNotifier
	room       *types.Room
}

func newFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}}
	p, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	require.NoError(t, p.StoreUser(types.User{Id: "u-alice", Username: "alice", Email: "alice@example.com"}))
	require.NoError(t, p.StoreUser(types.User{Id: "u-bob", Username: "bob", Email: "bob@example.com"}))

	reg := registry.New(p)
	room, err := reg.Create("general", "u-alice", types.MembershipOwnedPersistent)
	require.NoError(t, err)

	mentionCfg := config.MentionConfig{Pattern: "username", CacheSize: 16}
	extractor, err := mention.NewExtractor(mentionCfg)
	require.NoError(t, err)
	resolver, err := mention.NewResolver(directory.NewDirectory(p), extractor.Field(), mentionCfg)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	return &dispatcherFixture{
		reg:        reg,
		dispatcher: NewDispatcher(reg, extractor, resolver, notifier, 16),
		notifier:   notifier,
		room:       room,
	}
}

func message(text string) *types.Message {
	return &types.Message{Id: "m-1", AuthorId: "u-alice", AuthorNick: "alice", Text: text}
}

func TestMentionedNonMemberIsNotifiedOnce(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.process(f.room, message("hello @bob, I said hello @bob"))
	assert.Equal(t, []string{"bob"}, f.notifier.recipients())
}

func TestMentionedMemberIsNotNotified(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.AddMember(f.room.Id, "u-alice", "u-bob"))
	room, err := f.reg.Get("general")
	require.NoError(t, err)

	f.dispatcher.process(room, message("hello @bob"))
	assert.Empty(t, f.notifier.recipients())
}

func TestUnresolvedMentionIsDropped(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.process(f.room, message("hello @nobody"))
	assert.Empty(t, f.notifier.recipients())
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true

	assert.NotPanics(t, func() {
		f.dispatcher.process(f.room, message("hello @bob"))
	})
	assert.Empty(t, f.notifier.recipients())
}

func TestScanIsNonBlockingWhenQueueIsFull(t *testing.T) {
	f := newFixture(t)
	// the dispatcher is not running, so the queue (size 16) fills up
	msg := message("hello @bob")
	for i := 0; i < 100; i++ {
		f.dispatcher.Scan(f.room, msg)
	}
}

func TestRunProcessesQueue(t *testing.T) {
	f := newFixture(t)
	go f.dispatcher.Run()
	defer f.dispatcher.Stop()

	f.dispatcher.Scan(f.room, message("hello @bob"))

	assert.Eventually(t, func() bool {
		return len(f.notifier.recipients()) == 1
	}, time.Second, 10*time.Millisecond)
}
