package ws

import (
	"container/ring"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/notify"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/registry"
	"github.com/roomcast-chat/roomcast/types"
)

const (
	maxMessageSize     = 4096
	pongWait           = 2 * time.Minute
	pingPeriod         = time.Minute
	writeWait          = 10 * time.Second
	defaultHistorySize = 20
	requestChannelSize = 64
	sendChannelSize    = 1000
)

// errHubStopped signals that the hub's Run loop has terminated, f.e. because
// the reaper closed an idle hub. The session hub replaces such hubs
// transparently; the error never reaches a client.
var errHubStopped = errors.New("room hub stopped")

type joinRequest struct {
	m     *member
	reply chan error
}

type leaveRequest struct {
	sessionId string
	userId    string
	reply     chan struct{}
}

type postRequest struct {
	m          *member
	text       string
	filterExpr string
	reply      chan error
}

// RoomHub is the per-room serialization point. There is one hub per room and
// one Run goroutine per hub; membership check, durable append and fan-out of
// a post happen inside a single loop iteration, so two posts to the same
// room can never interleave, while different rooms proceed independently.
type RoomHub struct {
	roomName string

	// synthetic is set for open_ephemeral rooms joined without a durable
	// record (require_existing_room = false); such rooms exist only while
	// their hub does.
	synthetic *types.Room

	// joined sessions, keyed by session id. Owned by the Run goroutine.
	members map[string]*member

	joinCh  chan joinRequest
	leaveCh chan leaveRequest
	postCh  chan postRequest
	stopCh  chan struct{}

	// keep the recent chat history in a ring buffer
	historyStart, historyEnd *ring.Ring

	// CreatedAt high-water mark: timestamps never move backwards within a room
	lastTs time.Time

	reg        *registry.Registry
	persister  persistence.Persister
	dispatcher *notify.Dispatcher

	clientCount int32
}

func NewRoomHub(roomName string, synthetic *types.Room, reg *registry.Registry, persister persistence.Persister, dispatcher *notify.Dispatcher, historySize int) *RoomHub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	// one spare slot: with start/end as a half-open window, a ring of exactly
	// historySize would only ever replay historySize-1 messages
	history := ring.New(historySize + 1)
	hub := &RoomHub{
		roomName:     roomName,
		synthetic:    synthetic,
		members:      make(map[string]*member),
		joinCh:       make(chan joinRequest, requestChannelSize),
		leaveCh:      make(chan leaveRequest, requestChannelSize),
		postCh:       make(chan postRequest, requestChannelSize),
		stopCh:       make(chan struct{}),
		historyStart: history,
		historyEnd:   history,
		reg:          reg,
		persister:    persister,
		dispatcher:   dispatcher,
	}
	if synthetic == nil && persister != nil {
		if room, err := reg.Get(roomName); err == nil {
			messages, err := persister.GetRecentMessages(room.Id, historySize)
			if err != nil {
				globals.AppLogger.Error("could not load persisted messages", "room", roomName, "error", err)
			}
			for _, m := range messages {
				hub.appendHistory(*m)
				if m.CreatedAt.After(hub.lastTs) {
					hub.lastTs = m.CreatedAt
				}
			}
		}
	}
	return hub
}

// NoClients returns the number of sessions currently joined.
func (h *RoomHub) NoClients() int {
	return int(atomic.LoadInt32(&h.clientCount))
}

// Join registers a session with the room after the mode-dependent membership
// check. On success the recent history is replayed to the session.
func (h *RoomHub) Join(m *member) error {
	req := joinRequest{m: m, reply: make(chan error, 1)}
	select {
	case h.joinCh <- req:
	case <-h.stopCh:
		return errHubStopped
	}
	select {
	case err := <-req.reply:
		return err
	case <-h.stopCh:
		return errHubStopped
	}
}

// Leave removes a session from the room. Idempotent.
func (h *RoomHub) Leave(sessionId, userId string) {
	req := leaveRequest{sessionId: sessionId, userId: userId, reply: make(chan struct{}, 1)}
	select {
	case h.leaveCh <- req:
	case <-h.stopCh:
		return
	}
	select {
	case <-req.reply:
	case <-h.stopCh:
	}
}

// Post re-validates membership, appends the message to the log and fans it
// out, in that order, inside the room's serialization point. The error (or
// nil acceptance) returns once the message has been appended and handed to
// every joined session; mention processing continues detached.
func (h *RoomHub) Post(m *member, text, filterExpr string) error {
	req := postRequest{m: m, text: text, filterExpr: filterExpr, reply: make(chan error, 1)}
	select {
	case h.postCh <- req:
	case <-h.stopCh:
		return errHubStopped
	}
	select {
	case err := <-req.reply:
		return err
	case <-h.stopCh:
		return errHubStopped
	}
}

// Stop terminates the Run loop. Pending and future calls fail with
// errHubStopped.
func (h *RoomHub) Stop() {
	close(h.stopCh)
}

func (h *RoomHub) stopped() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

// Run is the main hub event loop handling join, leave and post requests.
func (h *RoomHub) Run() {
	for {
		select {
		case req := <-h.joinCh:
			req.reply <- h.handleJoin(req.m)

		case req := <-h.leaveCh:
			h.handleLeave(req.sessionId, req.userId)
			req.reply <- struct{}{}

		case req := <-h.postCh:
			req.reply <- h.handlePost(req.m, req.text, req.filterExpr)

		case <-h.stopCh:
			return
		}
	}
}

// currentRoom re-reads the room record so that a deletion is visible to the
// very next operation, even for sessions that joined long ago.
func (h *RoomHub) currentRoom() (*types.Room, error) {
	if h.synthetic != nil {
		return h.synthetic, nil
	}
	return h.reg.Get(h.roomName)
}

func (h *RoomHub) handleJoin(m *member) error {
	room, err := h.currentRoom()
	if err != nil {
		return err
	}
	if room.Mode == types.MembershipOwnedPersistent && !room.HasMember(m.user.Id) {
		return types.ErrNotAMember
	}
	if _, ok := h.members[m.sessionId]; ok {
		return nil
	}
	h.members[m.sessionId] = m
	atomic.AddInt32(&h.clientCount, 1)
	h.reg.TrackJoin(h.roomName, m.user.Id)
	h.sendHistory(m)
	h.broadcastInfo()
	return nil
}

func (h *RoomHub) handleLeave(sessionId, userId string) {
	if _, ok := h.members[sessionId]; !ok {
		return
	}
	delete(h.members, sessionId)
	atomic.AddInt32(&h.clientCount, -1)
	h.reg.TrackLeave(h.roomName, userId)
	h.broadcastInfo()
}

func (h *RoomHub) handlePost(m *member, text, filterExpr string) error {
	room, err := h.currentRoom()
	if err != nil {
		return err
	}
	if !h.reg.IsMember(room, m.user.Id) {
		return types.ErrNotAMember
	}
	msg := types.Message{
		RoomId:     room.Id,
		AuthorId:   m.user.Id,
		AuthorNick: m.user.Username,
		Text:       text,
		CreatedAt:  h.tick(),
	}
	if err := msg.CreateId(); err != nil {
		return fmt.Errorf("could not hash message: %w", err)
	}
	// no broadcast without a successful append
	if err := h.persister.StoreMessage(msg); err != nil {
		return fmt.Errorf("could not persist message: %w", err)
	}
	h.appendHistory(msg)
	h.fanout(room, &msg, filterExpr)
	if h.dispatcher != nil {
		h.dispatcher.Scan(room, &msg)
	}
	return nil
}

// tick returns a timestamp that never precedes the room's last appended one.
func (h *RoomHub) tick() time.Time {
	now := time.Now()
	if now.Before(h.lastTs) {
		now = h.lastTs
	}
	h.lastTs = now
	return now
}

func (h *RoomHub) appendHistory(msg types.Message) {
	h.historyEnd.Value = msg
	h.historyEnd = h.historyEnd.Next()
	if h.historyEnd == h.historyStart {
		h.historyStart = h.historyStart.Next()
	}
}

// fanout delivers one appended message to every joined session, sequentially
// from the Run goroutine, so every session observes the append order.
func (h *RoomHub) fanout(room *types.Room, msg *types.Message, filterExpr string) {
	prog := compileFilter(filterExpr)
	data, err := types.NewWireMessage(types.WireEventChat, msg.Outbound(room.Name))
	if err != nil {
		globals.AppLogger.Error("could not marshal message", "error", err)
		return
	}
	for _, m := range h.members {
		if !runFilter(prog, room, msg, m) {
			continue
		}
		if !m.sink.Deliver(data) {
			globals.AppLogger.Warn("session did not accept broadcast", "room", h.roomName, "session", m.sessionId)
		}
	}
}

func (h *RoomHub) sendHistory(m *member) {
	messages := make([]types.OutboundChat, 0)
	for current := h.historyStart; current != h.historyEnd; current = current.Next() {
		msg := current.Value.(types.Message)
		messages = append(messages, msg.Outbound(h.roomName))
	}
	data, err := types.NewWireMessage(types.WireEventHistory, types.HistoryPayload{Room: h.roomName, Messages: messages})
	if err != nil {
		globals.AppLogger.Error("could not marshal history", "error", err)
		return
	}
	m.sink.Deliver(data)
}

func (h *RoomHub) broadcastInfo() {
	data, err := types.NewWireMessage(types.WireEventInfo, types.InfoPayload{Room: h.roomName, Connections: len(h.members)})
	if err != nil {
		globals.AppLogger.Error("could not marshal room info", "error", err)
		return
	}
	for _, m := range h.members {
		m.sink.Deliver(data)
	}
}
