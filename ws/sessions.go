package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/roomcast-chat/roomcast/auth"
	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/directory"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/notify"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/registry"
	"github.com/roomcast-chat/roomcast/types"
)

// Session is the transient state of one authenticated connection: the bound
// identity plus the set of rooms the connection has joined. It is never
// persisted; a reconnect authenticates from scratch.
type Session struct {
	Id   string
	User *types.User
	sink Sink

	mu    sync.Mutex
	rooms map[string]struct{}
	gone  bool
}

// SessionHub owns the live sessions and the room hubs, binds connections to
// directory identities and routes join/post/leave to the per-room
// serialization points.
type SessionHub struct {
	cfg        *config.Config
	reg        *registry.Registry
	persister  persistence.Persister
	dispatcher *notify.Dispatcher
	verifier   auth.TokenVerifier
	dir        directory.Directory

	mu       sync.RWMutex
	hubs     map[string]*RoomHub
	sessions map[string]*Session

	reaper *cron.Cron
}

func NewSessionHub(cfg *config.Config, reg *registry.Registry, persister persistence.Persister, dispatcher *notify.Dispatcher, verifier auth.TokenVerifier, dir directory.Directory) (*SessionHub, error) {
	s := &SessionHub{
		cfg:        cfg,
		reg:        reg,
		persister:  persister,
		dispatcher: dispatcher,
		verifier:   verifier,
		dir:        dir,
		hubs:       make(map[string]*RoomHub),
		sessions:   make(map[string]*Session),
	}
	s.reaper = cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	schedule := cfg.EphemeralConfig.ReapSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := s.reaper.AddFunc(schedule, s.reapIdleHubs); err != nil {
		return nil, err
	}
	s.reaper.Start()
	return s, nil
}

// Close stops the reaper and all room hubs.
func (s *SessionHub) Close() {
	s.reaper.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, hub := range s.hubs {
		hub.Stop()
		delete(s.hubs, name)
	}
}

// Authenticate verifies the session token, binds a new session to the
// resolved identity and registers the sink for fan-out. It must be the first
// operation on any connection; everything else requires the returned session.
func (s *SessionHub) Authenticate(ctx context.Context, token, provider string, sink Sink) (*Session, error) {
	subject, err := s.verifier.Verify(ctx, token, provider)
	if err != nil {
		if errors.Is(err, types.ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", err, types.ErrAuth)
	}
	user, err := s.dir.UserById(subject)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			// OIDC subjects are e-mail claims
			user, err = s.dir.UserByEmail(subject)
		}
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return nil, fmt.Errorf("unknown subject %q: %w", subject, types.ErrAuth)
			}
			return nil, err
		}
	}
	user.LastOnline = time.Now()
	if err := s.persister.StoreUser(*user); err != nil {
		globals.AppLogger.Error("could not update user", "user", user.Id, "error", err)
	}
	session := &Session{
		Id:    uuid.NewString(),
		User:  user,
		sink:  sink,
		rooms: make(map[string]struct{}),
	}
	s.mu.Lock()
	s.sessions[session.Id] = session
	s.mu.Unlock()
	globals.AppLogger.Info("session authenticated", "session", session.Id, "user", user.Username)
	return session, nil
}

// BindSink attaches the connection's write side to the session. It must be
// called before the session joins its first room.
func (s *SessionHub) BindSink(session *Session, sink Sink) {
	session.mu.Lock()
	session.sink = sink
	session.mu.Unlock()
}

// Join adds the session to the named room, subject to the room's membership
// mode. In ephemeral deployments with require_existing_room disabled, a room
// without a durable record is synthesized on the fly.
func (s *SessionHub) Join(session *Session, roomName string) error {
	if session == nil {
		return types.ErrAuth
	}
	for {
		hub, err := s.hubFor(roomName, true)
		if err != nil {
			return err
		}
		err = hub.Join(s.memberOf(session))
		if errors.Is(err, errHubStopped) {
			// lost the race against the reaper, get a fresh hub
			continue
		}
		if err != nil {
			return err
		}
		break
	}
	session.mu.Lock()
	session.rooms[roomName] = struct{}{}
	session.mu.Unlock()
	return nil
}

// Leave removes the session from the named room. Idempotent.
func (s *SessionHub) Leave(session *Session, roomName string) {
	if session == nil {
		return
	}
	session.mu.Lock()
	_, joined := session.rooms[roomName]
	delete(session.rooms, roomName)
	session.mu.Unlock()
	if !joined {
		return
	}
	s.mu.RLock()
	hub := s.hubs[roomName]
	s.mu.RUnlock()
	if hub != nil {
		hub.Leave(session.Id, session.User.Id)
	}
}

// Post routes a message through the room's serialization point: membership
// is re-validated there, the message is appended and fanned out, and the
// mention side effect is triggered without blocking this call's return.
func (s *SessionHub) Post(session *Session, roomName, text, filterExpr string) error {
	if session == nil {
		return types.ErrAuth
	}
	if text == "" {
		return fmt.Errorf("empty message")
	}
	for {
		hub, err := s.hubFor(roomName, false)
		if err != nil {
			return err
		}
		err = hub.Post(s.memberOf(session), text, filterExpr)
		if !errors.Is(err, errHubStopped) {
			return err
		}
	}
}

func (s *SessionHub) memberOf(session *Session) *member {
	session.mu.Lock()
	sink := session.sink
	session.mu.Unlock()
	if sink == nil {
		sink = noopSink{}
	}
	return &member{
		sessionId: session.Id,
		user:      userInfo{Id: session.User.Id, Username: session.User.Username},
		sink:      sink,
	}
}

// Disconnect removes the session from every room it had joined and releases
// it. Idempotent; a message the session already submitted still completes.
func (s *SessionHub) Disconnect(session *Session) {
	if session == nil {
		return
	}
	session.mu.Lock()
	if session.gone {
		session.mu.Unlock()
		return
	}
	session.gone = true
	rooms := make([]string, 0, len(session.rooms))
	for roomName := range session.rooms {
		rooms = append(rooms, roomName)
	}
	session.rooms = make(map[string]struct{})
	session.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, session.Id)
	s.mu.Unlock()

	for _, roomName := range rooms {
		s.mu.RLock()
		hub := s.hubs[roomName]
		s.mu.RUnlock()
		if hub != nil {
			hub.Leave(session.Id, session.User.Id)
		}
	}
	globals.AppLogger.Info("session disconnected", "session", session.Id, "user", session.User.Username)
}

// NoSessions returns the number of live sessions.
func (s *SessionHub) NoSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// hubFor returns the hub of the named room, creating it on demand. forJoin
// decides whether a missing durable record may be satisfied by synthesizing
// an ephemeral room (posting into a never-joined, recordless room is not).
func (s *SessionHub) hubFor(roomName string, forJoin bool) (*RoomHub, error) {
	s.mu.RLock()
	hub := s.hubs[roomName]
	s.mu.RUnlock()
	if hub != nil && !hub.stopped() {
		return hub, nil
	}

	var synthetic *types.Room
	if _, err := s.reg.Get(roomName); err != nil {
		if !errors.Is(err, types.ErrRoomNotFound) {
			return nil, err
		}
		if !forJoin || s.cfg.EphemeralConfig.RequireExistingRoom {
			return nil, types.ErrRoomNotFound
		}
		synthetic = &types.Room{
			Id:   uuid.NewString(),
			Name: roomName,
			Mode: types.MembershipOpenEphemeral,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if hub := s.hubs[roomName]; hub != nil && !hub.stopped() {
		return hub, nil
	}
	hub = NewRoomHub(roomName, synthetic, s.reg, s.persister, s.dispatcher, s.cfg.HistoryConfig.HistorySize)
	s.hubs[roomName] = hub
	go hub.Run()
	globals.AppLogger.Debug("room hub started", "room", roomName, "synthetic", synthetic != nil)
	return hub, nil
}

// reapIdleHubs shuts down hubs with no joined sessions. For synthesized
// ephemeral rooms this is what makes the room itself vanish.
func (s *SessionHub) reapIdleHubs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, hub := range s.hubs {
		if hub.NoClients() == 0 {
			hub.Stop()
			delete(s.hubs, name)
			globals.AppLogger.Debug("reaped idle room hub", "room", name)
		}
	}
}
