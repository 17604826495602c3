package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

type recorder struct {
	mu            sync.Mutex
	notifications map[uint][]models.NotificationEvent
	broadcasts    map[uint][]models.ChatMessageResponse
	evictedUsers  [][2]uint
	evictedRooms  []uint
}

func newRecorder() *recorder {
	return &recorder{
		notifications: make(map[uint][]models.NotificationEvent),
		broadcasts:    make(map[uint][]models.ChatMessageResponse),
	}
}

func (r *recorder) Dispatch(_ context.Context, userID uint, ev models.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[userID] = append(r.notifications[userID], ev)
}

func (r *recorder) BroadcastMessage(roomID uint, msg models.ChatMessageResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts[roomID] = append(r.broadcasts[roomID], msg)
}

func (r *recorder) EvictUser(roomID, userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictedUsers = append(r.evictedUsers, [2]uint{roomID, userID})
}

func (r *recorder) EvictRoom(roomID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictedRooms = append(r.evictedRooms, roomID)
}

func (r *recorder) notificationsFor(userID uint) []models.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.NotificationEvent(nil), r.notifications[userID]...)
}

func (r *recorder) broadcastsTo(roomID uint) []models.ChatMessageResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChatMessageResponse(nil), r.broadcasts[roomID]...)
}

type fixture struct {
	store    databases.ChatStore
	rec      *recorder
	rooms    *chat.RoomManager
	blocks   *chat.BlockService
	messages *chat.MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := databases.OpenSQL("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, databases.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := databases.NewChatStore(db)
	rec := newRecorder()
	blocks := chat.NewBlockService(store)
	return &fixture{
		store:    store,
		rec:      rec,
		rooms:    chat.NewRoomManager(store, rec, rec),
		blocks:   blocks,
		messages: chat.NewMessageService(store, blocks, rec, rec),
	}
}

func (f *fixture) user(t *testing.T, nickname string) *models.User {
	t.Helper()
	u := &models.User{Email: fmt.Sprintf("%s@sleeprism.test", nickname), Nickname: nickname}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) send(t *testing.T, roomID, senderID uint, content string) *models.ChatMessageResponse {
	t.Helper()
	msg, err := f.messages.SendMessage(context.Background(), senderID, chat.SendRequest{RoomID: roomID, Content: content})
	require.NoError(t, err)
	return msg
}

func (f *fixture) participant(t *testing.T, roomID, userID uint) *models.ChatParticipant {
	t.Helper()
	p, err := f.store.Participants().Find(context.Background(), roomID, userID)
	require.NoError(t, err)
	return p
}
