package models

import (
	"sort"
	"strings"
	"time"
)

// ChatMessageResponse is the wire shape of a message on both REST and frame paths
type ChatMessageResponse struct {
	ID             uint        `json:"id"`
	ChatRoomID     uint        `json:"chatRoomId"`
	SenderID       uint        `json:"senderId"`
	SenderNickname string      `json:"senderNickname"`
	Content        string      `json:"content"`
	SentAt         time.Time   `json:"sentAt"`
	IsRead         bool        `json:"isRead"`
	MessageType    MessageType `json:"messageType"`
}

// ChatParticipantResponse is the wire shape of a room membership
type ChatParticipantResponse struct {
	ID                uint      `json:"id"`
	UserID            uint      `json:"userId"`
	UserNickname      string    `json:"userNickname"`
	ChatRoomID        uint      `json:"chatRoomId"`
	JoinedAt          time.Time `json:"joinedAt"`
	IsLeft            bool      `json:"isLeft"`
	LastReadMessageID *uint     `json:"lastReadMessageId"`
}

// ChatRoomResponse is the wire shape of a room with its active participants and latest
// message
type ChatRoomResponse struct {
	ID              uint                      `json:"id"`
	Name            string                    `json:"name"`
	Type            RoomType                  `json:"type"`
	CreatorID       *uint                     `json:"creatorId"`
	CreatorNickname string                    `json:"creatorNickname,omitempty"`
	IsDeleted       bool                      `json:"isDeleted"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
	LastMessage     *ChatMessageResponse      `json:"lastMessage"`
	Participants    []ChatParticipantResponse `json:"participants"`
}

// ChatBlockResponse is the wire shape of a block
type ChatBlockResponse struct {
	ID              uint      `json:"id"`
	BlockerID       uint      `json:"blockerId"`
	BlockerNickname string    `json:"blockerNickname"`
	BlockedID       uint      `json:"blockedId"`
	BlockedNickname string    `json:"blockedNickname"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewChatMessageResponse expects Sender to be loaded
func NewChatMessageResponse(m ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:             m.ID,
		ChatRoomID:     m.ChatRoomID,
		SenderID:       m.SenderID,
		SenderNickname: m.Sender.Nickname,
		Content:        m.Content,
		SentAt:         m.CreatedAt,
		IsRead:         m.IsRead,
		MessageType:    m.MessageType,
	}
}

// NewChatParticipantResponse expects User to be loaded
func NewChatParticipantResponse(p ChatParticipant) ChatParticipantResponse {
	return ChatParticipantResponse{
		ID:                p.ID,
		UserID:            p.UserID,
		UserNickname:      p.User.Nickname,
		ChatRoomID:        p.ChatRoomID,
		JoinedAt:          p.JoinedAt,
		IsLeft:            p.IsLeft,
		LastReadMessageID: p.LastReadMessageID,
	}
}

// NewChatBlockResponse expects Blocker and Blocked to be loaded
func NewChatBlockResponse(b ChatBlock) ChatBlockResponse {
	return ChatBlockResponse{
		ID:              b.ID,
		BlockerID:       b.BlockerID,
		BlockerNickname: b.Blocker.Nickname,
		BlockedID:       b.BlockedID,
		BlockedNickname: b.Blocked.Nickname,
		CreatedAt:       b.CreatedAt,
	}
}

// NewChatRoomResponse builds the room view from every participant row of the room (left
// ones included) and its latest message, which may be nil. Only active participants are
// listed. SINGLE rooms have no stored name so it is derived from both nicknames.
func NewChatRoomResponse(room ChatRoom, participants []ChatParticipant, last *ChatMessage) ChatRoomResponse {
	resp := ChatRoomResponse{
		ID:           room.ID,
		Type:         room.Type,
		CreatorID:    room.CreatorID,
		IsDeleted:    room.IsDeleted(),
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
		Participants: []ChatParticipantResponse{},
	}
	if room.Creator != nil {
		resp.CreatorNickname = room.Creator.Nickname
	}
	if room.Name != nil {
		resp.Name = *room.Name
	}
	if room.Type == RoomTypeSingle {
		resp.Name = SingleRoomName(participants)
	}
	for _, p := range participants {
		if !p.IsLeft {
			resp.Participants = append(resp.Participants, NewChatParticipantResponse(p))
		}
	}
	if last != nil {
		m := NewChatMessageResponse(*last)
		resp.LastMessage = &m
	}
	return resp
}

// SingleRoomName joins the participants' nicknames in user id order
func SingleRoomName(participants []ChatParticipant) string {
	sorted := make([]ChatParticipant, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	names := make([]string, 0, len(sorted))
	for _, p := range sorted {
		names = append(names, p.User.Nickname)
	}
	return strings.Join(names, ", ")
}
