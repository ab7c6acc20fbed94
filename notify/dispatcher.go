// Package notify dispatches best-effort mention notifications off the chat
// critical path.
package notify

import (
	"fmt"

	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/mention"
	"github.com/roomcast-chat/roomcast/registry"
	"github.com/roomcast-chat/roomcast/types"
)

// Dispatcher scans appended messages for mentions and notifies resolved
// identities that are not members of the room. It runs detached from the
// posting path: Scan only enqueues, a single worker goroutine does the
// lookups and sends. Every failure is logged and swallowed.
type Dispatcher struct {
	reg       *registry.Registry
	extractor *mention.Extractor
	resolver  *mention.Resolver
	notifier  Notifier

	queue chan scanTask
	done  chan struct{}
}

type scanTask struct {
	room    types.Room
	message types.Message
}

func NewDispatcher(reg *registry.Registry, extractor *mention.Extractor, resolver *mention.Resolver, notifier Notifier, queueSize int) *Dispatcher {
	return &Dispatcher{
		reg:       reg,
		extractor: extractor,
		resolver:  resolver,
		notifier:  notifier,
		queue:     make(chan scanTask, queueSize),
		done:      make(chan struct{}),
	}
}

// Scan enqueues a message for mention processing. It never blocks: when the
// queue is full the scan is dropped and logged, notification delivery is
// best-effort.
func (d *Dispatcher) Scan(room *types.Room, message *types.Message) {
	select {
	case d.queue <- scanTask{room: *room, message: *message}:
	default:
		globals.AppLogger.Warn("notification queue full, dropping scan", "room", room.Name, "message", message.Id)
	}
}

// Run processes the queue until Stop is called.
func (d *Dispatcher) Run() {
	for {
		select {
		case task := <-d.queue:
			d.process(&task.room, &task.message)

		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) Stop() {
	close(d.done)
}

func (d *Dispatcher) process(room *types.Room, message *types.Message) {
	notified := make(map[string]struct{})
	for _, token := range d.extractor.Extract(message.Text) {
		user := d.resolver.Resolve(token)
		if user == nil {
			continue
		}
		// at most one notification per resolved identity per message
		if _, ok := notified[user.Id]; ok {
			continue
		}
		notified[user.Id] = struct{}{}
		d.NotifyIfAbsent(room, message, user)
	}
}

// NotifyIfAbsent sends a notification unless the mentioned identity is
// currently a member of the room. The membership check is best-effort: a
// race against a concurrent join is acceptable.
func (d *Dispatcher) NotifyIfAbsent(room *types.Room, message *types.Message, mentioned *types.User) {
	if d.reg.IsMember(room, mentioned.Id) {
		return
	}
	subject := fmt.Sprintf("%s mentioned you in %s", message.AuthorNick, room.Name)
	if err := d.notifier.Notify(mentioned, subject, message.Text); err != nil {
		globals.AppLogger.Error("could not deliver notification", "to", mentioned.Username, "room", room.Name, "error", err)
	}
}
