package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

const (
	// DefaultHistorySize is the page size when the caller does not ask for one
	DefaultHistorySize = 50
	// MaxHistorySize caps a history page
	MaxHistorySize = 100

	notificationPreviewRunes = 50
)

// SendRequest is the body of /app/chat.sendMessage
type SendRequest struct {
	RoomID      uint   `json:"chatRoomId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

// MessageService authorises, stores and fans out chat messages
type MessageService struct {
	store       databases.ChatStore
	blocks      *BlockService
	broadcaster Broadcaster
	notifier    Notifier
}

// NewMessageService wires the pipeline. broadcaster and notifier may be nil.
func NewMessageService(store databases.ChatStore, blocks *BlockService, broadcaster Broadcaster, notifier Notifier) *MessageService {
	if broadcaster == nil {
		broadcaster = nopFanout{}
	}
	if notifier == nil {
		notifier = nopFanout{}
	}
	return &MessageService{
		store:       store,
		blocks:      blocks,
		broadcaster: broadcaster,
		notifier:    notifier,
	}
}

// SendMessage stores a message from senderID and fans it out. The checks are repeated inside
// the write transaction with the sender's row locked, so a failed send leaves nothing behind.
func (s *MessageService) SendMessage(ctx context.Context, senderID uint, req SendRequest) (*models.ChatMessageResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", ErrInvalidState)
	}
	msgType, err := models.ParseMessageType(req.MessageType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	room, err := activeRoom(ctx, s.store, req.RoomID)
	if err != nil {
		return nil, err
	}
	sender, err := s.store.Users().FindByID(ctx, senderID)
	if err != nil {
		return nil, notFound(err, "user", senderID)
	}
	participants, err := s.store.Participants().FindByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants of chat room %d: %w", room.ID, err)
	}
	if err := authorizeSend(ctx, s.store, room, senderID, participants); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ChatRoomID:  room.ID,
		SenderID:    senderID,
		Content:     req.Content,
		MessageType: msgType,
	}
	err = s.store.Transaction(ctx, func(tx databases.ChatStore) error {
		// membership or blocks may have changed since the first check
		if _, err := tx.Participants().FindForUpdate(ctx, room.ID, senderID); err != nil && !errors.Is(err, databases.ErrNotFound) {
			return err
		}
		current, err := tx.Participants().FindByRoom(ctx, room.ID)
		if err != nil {
			return err
		}
		if err := authorizeSend(ctx, tx, room, senderID, current); err != nil {
			return err
		}
		participants = current

		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		_, err = tx.Participants().AdvanceLastRead(ctx, room.ID, senderID, msg.ID)
		return err
	})
	if err != nil && Kind(err) != "internal" {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	msg.Sender = *sender
	resp := models.NewChatMessageResponse(*msg)

	s.broadcaster.BroadcastMessage(room.ID, resp)
	s.notifyRecipients(ctx, room, sender, participants, msg.Content)

	zap.S().Debugw("chat message sent", "roomId", room.ID, "userId", senderID, "messageId", msg.ID, "length", len(msg.Content))
	return &resp, nil
}

// notifyRecipients skips the sender, members who left, and members who blocked the sender
func (s *MessageService) notifyRecipients(ctx context.Context, room *models.ChatRoom, sender *models.User, participants []models.ChatParticipant, content string) {
	ev := messageEvent(room.ID, sender, content)
	for _, p := range participants {
		if p.UserID == sender.ID || p.IsLeft {
			continue
		}
		blocked, err := s.blocks.HasBlocked(ctx, p.UserID, sender.ID)
		if err != nil {
			zap.S().Warnw("skipping notification, block lookup failed", "roomId", room.ID, "userId", p.UserID, "error", err)
			continue
		}
		if blocked {
			continue
		}
		s.notifier.Dispatch(ctx, p.UserID, ev)
	}
}

// GetHistory returns one page of a room's messages, newest first, and moves the caller's
// read marker to the newest message on the page.
func (s *MessageService) GetHistory(ctx context.Context, roomID, userID uint, page, size int) ([]models.ChatMessageResponse, error) {
	if _, _, err := requireActiveMember(ctx, s.store, roomID, userID); err != nil {
		return nil, err
	}
	messages, err := s.store.Messages().FindPage(ctx, roomID, databases.NewPagination(page, size, DefaultHistorySize, MaxHistorySize))
	if err != nil {
		return nil, fmt.Errorf("failed to load history of chat room %d: %w", roomID, err)
	}

	out := make([]models.ChatMessageResponse, 0, len(messages))
	var newest uint
	for _, m := range messages {
		out = append(out, models.NewChatMessageResponse(m))
		if m.ID > newest {
			newest = m.ID
		}
	}
	if newest > 0 {
		if _, err := s.store.Participants().AdvanceLastRead(ctx, roomID, userID, newest); err != nil {
			zap.S().Warnw("failed to advance read marker", "roomId", roomID, "userId", userID, "error", err)
		}
	}
	return out, nil
}

// MarkRead flags a message as read and moves the caller's marker forward, never back
func (s *MessageService) MarkRead(ctx context.Context, messageID, userID uint) (*models.ChatMessageResponse, error) {
	msg, err := s.store.Messages().FindByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message", messageID)
	}
	if _, _, err := requireActiveMember(ctx, s.store, msg.ChatRoomID, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx databases.ChatStore) error {
		if _, err := tx.Messages().MarkRead(ctx, messageID); err != nil {
			return err
		}
		_, err := tx.Participants().AdvanceLastRead(ctx, msg.ChatRoomID, userID, messageID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark message %d read: %w", messageID, err)
	}
	msg.IsRead = true
	resp := models.NewChatMessageResponse(*msg)
	return &resp, nil
}

// JoinNotice builds the unpersisted system message announcing a member on the room topic
func (s *MessageService) JoinNotice(ctx context.Context, roomID uint, id Identity) error {
	if _, _, err := requireActiveMember(ctx, s.store, roomID, id.UserID); err != nil {
		return err
	}
	nickname := id.Nickname
	if nickname == "" {
		if u, err := s.store.Users().FindByID(ctx, id.UserID); err == nil {
			nickname = u.Nickname
		}
	}
	s.broadcaster.BroadcastMessage(roomID, models.ChatMessageResponse{
		ChatRoomID:     roomID,
		SenderID:       0,
		SenderNickname: "System",
		Content:        fmt.Sprintf("%s joined the chat.", nickname),
		SentAt:         time.Now(),
		MessageType:    models.MessageTypeText,
	})
	return nil
}

// authorizeSend requires senderID to be an active member and, in a SINGLE room, that
// neither side has blocked the other
func authorizeSend(ctx context.Context, store databases.ChatStore, room *models.ChatRoom, senderID uint, participants []models.ChatParticipant) error {
	if !isActiveIn(participants, senderID) {
		return fmt.Errorf("%w: user %d is not an active participant of chat room %d", ErrPermission, senderID, room.ID)
	}
	if room.Type != models.RoomTypeSingle {
		return nil
	}
	for _, p := range participants {
		if p.UserID == senderID || p.IsLeft {
			continue
		}
		blocked, err := store.Blocks().ExistsEitherWay(ctx, senderID, p.UserID)
		if err != nil {
			return fmt.Errorf("failed to check blocks: %w", err)
		}
		if blocked {
			return fmt.Errorf("%w: messaging is blocked between these users", ErrPermission)
		}
	}
	return nil
}

func isActiveIn(participants []models.ChatParticipant, userID uint) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return !p.IsLeft
		}
	}
	return false
}

func messageEvent(roomID uint, sender *models.User, content string) models.NotificationEvent {
	return models.NotificationEvent{
		Type:         models.NotificationChatMessage,
		Message:      fmt.Sprintf("'%s' sent a new message: '%s...'", sender.Nickname, preview(content)),
		ActorID:      sender.ID,
		TargetType:   models.NotificationTargetChatRoom,
		TargetID:     roomID,
		RedirectPath: fmt.Sprintf("/chatrooms/%d", roomID),
		CreatedAt:    time.Now(),
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= notificationPreviewRunes {
		return content
	}
	return string([]rune(content)[:notificationPreviewRunes])
}
