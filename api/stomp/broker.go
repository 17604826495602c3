package stomp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/models"
)

type subscription struct {
	id          string
	destination string
	userID      uint
	conn        *conn
}

// Broker is the in-process subscription index. It implements chat.Broadcaster and
// chat.SubscriptionEvictor for the chat core and notify.UserSender for the live
// notification sink.
type Broker struct {
	registry *chat.Registry

	mu     sync.RWMutex
	conns  map[string]*conn
	byDest map[string]map[*subscription]struct{}
}

// NewBroker creates an empty broker resolving users through registry
func NewBroker(registry *chat.Registry) *Broker {
	return &Broker{
		registry: registry,
		conns:    make(map[string]*conn),
		byDest:   make(map[string]map[*subscription]struct{}),
	}
}

func (b *Broker) register(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[c.id] = c
}

// unregister drops the connection and every subscription it holds
func (b *Broker) unregister(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range c.subs {
		b.removeLocked(s)
	}
	delete(b.conns, c.id)
}

func (b *Broker) subscribe(c *conn, id, destination string, userID uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := c.subs[id]; ok {
		return fmt.Errorf("%w: subscription id %q is already in use", chat.ErrConflict, id)
	}
	s := &subscription{id: id, destination: destination, userID: userID, conn: c}
	c.subs[id] = s
	subs, ok := b.byDest[destination]
	if !ok {
		subs = make(map[*subscription]struct{})
		b.byDest[destination] = subs
	}
	subs[s] = struct{}{}
	return nil
}

// unsubscribe ignores unknown ids
func (b *Broker) unsubscribe(c *conn, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := c.subs[id]; ok {
		b.removeLocked(s)
	}
}

func (b *Broker) removeLocked(s *subscription) {
	delete(s.conn.subs, s.id)
	if subs, ok := b.byDest[s.destination]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.byDest, s.destination)
		}
	}
}

// Publish sends body to every subscriber of destination and returns the number of
// deliveries
func (b *Broker) Publish(destination string, body []byte) int {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.byDest[destination]))
	for s := range b.byDest[destination] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	n := 0
	for _, s := range subs {
		if s.conn.sendFrame(messageFrame(s, body)) {
			n++
		}
	}
	return n
}

// sendToConn delivers to one connection's subscriptions of destination
func (b *Broker) sendToConn(c *conn, destination string, body []byte) int {
	b.mu.RLock()
	var subs []*subscription
	for _, s := range c.subs {
		if s.destination == destination {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	n := 0
	for _, s := range subs {
		if c.sendFrame(messageFrame(s, body)) {
			n++
		}
	}
	return n
}

// SendToUser delivers to every live connection of the user subscribed to destination
func (b *Broker) SendToUser(userID uint, destination string, body []byte) int {
	if !isUserDestination(destination) {
		return 0
	}
	n := 0
	for _, id := range b.registry.ConnectionsOf(userID) {
		b.mu.RLock()
		c := b.conns[id]
		b.mu.RUnlock()
		if c != nil {
			n += b.sendToConn(c, destination, body)
		}
	}
	return n
}

// BroadcastMessage implements chat.Broadcaster
func (b *Broker) BroadcastMessage(roomID uint, msg models.ChatMessageResponse) {
	body, err := json.Marshal(msg)
	if err != nil {
		zap.S().Errorw("failed to marshal chat message", "roomId", roomID, "error", err)
		return
	}
	b.Publish(RoomTopic(roomID), body)
}

// EvictUser implements chat.SubscriptionEvictor
func (b *Broker) EvictUser(roomID, userID uint) {
	dest := RoomTopic(roomID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.byDest[dest] {
		if s.userID == userID {
			b.removeLocked(s)
		}
	}
}

// EvictRoom implements chat.SubscriptionEvictor
func (b *Broker) EvictRoom(roomID uint) {
	dest := RoomTopic(roomID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.byDest[dest] {
		b.removeLocked(s)
	}
}

// Subscribers is the number of subscriptions on destination
func (b *Broker) Subscribers(destination string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byDest[destination])
}

// Connections is the number of open connections
func (b *Broker) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// ReapIdle closes connections that have shown no activity within timeout. Closing runs the
// normal disconnect cleanup from the read loop.
func (b *Broker) ReapIdle(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	b.mu.RLock()
	var idle []*conn
	for _, c := range b.conns {
		if c.idleSince().Before(cutoff) {
			idle = append(idle, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range idle {
		zap.S().Infow("closing idle connection", "connectionId", c.id, "lastSeen", c.idleSince())
		c.abort()
	}
	return len(idle)
}

func messageFrame(s *subscription, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		frame.Destination, s.destination,
		frame.Subscription, s.id,
		frame.MessageId, uuid.NewString(),
		frame.ContentType, "application/json",
	)
	f.Body = body
	return f
}
