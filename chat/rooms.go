package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

// RoomManager runs the room and participant lifecycle. Check-then-set transitions on one
// room are serialised by a per-room stripe lock; single room creation is serialised per
// user pair and backed by the pair_key unique index across processes.
type RoomManager struct {
	store    databases.ChatStore
	notifier Notifier
	evictor  SubscriptionEvictor

	rooms   stripedMutex
	pairs   stripedMutex
	singles singleflight.Group
	now     func() time.Time
}

// NewRoomManager wires the manager to its store. notifier and evictor may be nil.
func NewRoomManager(store databases.ChatStore, notifier Notifier, evictor SubscriptionEvictor) *RoomManager {
	if notifier == nil {
		notifier = nopFanout{}
	}
	if evictor == nil {
		evictor = nopFanout{}
	}
	return &RoomManager{
		store:    store,
		notifier: notifier,
		evictor:  evictor,
		now:      time.Now,
	}
}

func pairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateOrGetSingleRoom returns the one SINGLE room of the pair, creating it on first use.
// A deleted room is reactivated and participants who left are rejoined.
func (m *RoomManager) CreateOrGetSingleRoom(ctx context.Context, userID, otherUserID uint) (*models.ChatRoomResponse, error) {
	if userID == otherUserID {
		return nil, fmt.Errorf("%w: cannot open a chat with yourself", ErrInvalidState)
	}
	key := pairKey(userID, otherUserID)

	v, err, _ := m.singles.Do(key, func() (interface{}, error) {
		unlock := m.pairs.lockKey(key)
		defer unlock()
		return m.createOrGetSingle(ctx, userID, otherUserID, key)
	})
	if err != nil {
		return nil, err
	}
	return m.roomResponse(ctx, v.(uint))
}

func (m *RoomManager) createOrGetSingle(ctx context.Context, a, b uint, key string) (uint, error) {
	users, err := m.store.Users().FindByIDs(ctx, []uint{a, b})
	if err != nil {
		return 0, fmt.Errorf("failed to load users %s: %w", key, err)
	}
	if len(users) != 2 {
		return 0, fmt.Errorf("%w: user %d or %d", ErrNotFound, a, b)
	}

	room, err := m.store.Rooms().FindByPairKey(ctx, key)
	if err == nil {
		return room.ID, m.reuseSingle(ctx, room.ID, a, b)
	}
	if !errors.Is(err, databases.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up single room %s: %w", key, err)
	}

	var roomID uint
	err = m.store.Transaction(ctx, func(tx databases.ChatStore) error {
		room := &models.ChatRoom{
			Type:    models.RoomTypeSingle,
			Status:  models.RoomStatusActive,
			PairKey: &key,
		}
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return err
		}
		now := m.now()
		for _, uid := range []uint{a, b} {
			p := &models.ChatParticipant{ChatRoomID: room.ID, UserID: uid, JoinedAt: now}
			if err := tx.Participants().Create(ctx, p); err != nil {
				return err
			}
		}
		roomID = room.ID
		return nil
	})
	if errors.Is(err, databases.ErrDuplicate) {
		// lost the insert race to another process; use its room
		room, ferr := m.store.Rooms().FindByPairKey(ctx, key)
		if ferr != nil {
			return 0, fmt.Errorf("failed to reload single room %s: %w", key, ferr)
		}
		return room.ID, m.reuseSingle(ctx, room.ID, a, b)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create single room %s: %w", key, err)
	}

	zap.S().Infow("single chat room created", "roomId", roomID, "userId", a, "otherUserId", b)
	return roomID, nil
}

func (m *RoomManager) reuseSingle(ctx context.Context, roomID, a, b uint) error {
	unlock := m.rooms.lock(roomID)
	defer unlock()

	return m.store.Transaction(ctx, func(tx databases.ChatStore) error {
		room, err := tx.Rooms().FindByID(ctx, roomID)
		if err != nil {
			return notFound(err, "chat room", roomID)
		}
		if room.Reactivate() {
			if err := tx.Rooms().UpdateStatus(ctx, roomID, room.Status); err != nil {
				return err
			}
			zap.S().Infow("single chat room reactivated", "roomId", roomID)
		}

		now := m.now()
		for _, uid := range []uint{a, b} {
			p, err := tx.Participants().Find(ctx, roomID, uid)
			switch {
			case errors.Is(err, databases.ErrNotFound):
				p = &models.ChatParticipant{ChatRoomID: roomID, UserID: uid, JoinedAt: now}
				if err := tx.Participants().Create(ctx, p); err != nil {
					return err
				}
			case err != nil:
				return err
			case p.IsLeft:
				p.Rejoin(now)
				if err := tx.Participants().Save(ctx, p); err != nil {
					return err
				}
				zap.S().Infow("participant rejoined chat room", "roomId", roomID, "userId", uid)
			}
		}
		return nil
	})
}

// CreateGroupRoom creates a named room owned by creatorID. Every requested participant
// must exist; duplicates and the creator are dropped from the list.
func (m *RoomManager) CreateGroupRoom(ctx context.Context, creatorID uint, name string, participantIDs []uint) (*models.ChatRoomResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group room name is required", ErrInvalidState)
	}

	seen := map[uint]bool{creatorID: true}
	invitees := make([]uint, 0, len(participantIDs))
	for _, id := range participantIDs {
		if !seen[id] {
			seen[id] = true
			invitees = append(invitees, id)
		}
	}

	users, err := m.store.Users().FindByIDs(ctx, append([]uint{creatorID}, invitees...))
	if err != nil {
		return nil, fmt.Errorf("failed to load group participants: %w", err)
	}
	if len(users) != len(invitees)+1 {
		return nil, fmt.Errorf("%w: one or more participants do not exist", ErrNotFound)
	}
	var creator models.User
	for _, u := range users {
		if u.ID == creatorID {
			creator = u
		}
	}

	room := &models.ChatRoom{
		Name:      &name,
		Type:      models.RoomTypeGroup,
		CreatorID: &creatorID,
		Status:    models.RoomStatusActive,
	}
	err = m.store.Transaction(ctx, func(tx databases.ChatStore) error {
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return err
		}
		now := m.now()
		for _, uid := range append([]uint{creatorID}, invitees...) {
			p := &models.ChatParticipant{ChatRoomID: room.ID, UserID: uid, JoinedAt: now}
			if err := tx.Participants().Create(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group room: %w", err)
	}
	zap.S().Infow("group chat room created", "roomId", room.ID, "userId", creatorID, "participants", len(invitees)+1)

	for _, uid := range invitees {
		m.notifier.Dispatch(ctx, uid, inviteEvent(room, creator))
	}
	return m.roomResponse(ctx, room.ID)
}

// AddParticipant lets a group's creator add or re-add a user
func (m *RoomManager) AddParticipant(ctx context.Context, roomID, requesterID, userID uint) (*models.ChatParticipantResponse, error) {
	var (
		room        *models.ChatRoom
		participant *models.ChatParticipant
		requester   *models.User
	)
	err := m.withRoomLock(roomID, func() error {
		var err error
		room, err = activeRoom(ctx, m.store, roomID)
		if err != nil {
			return err
		}
		if room.Type != models.RoomTypeGroup {
			return fmt.Errorf("%w: participants can only be added to group rooms", ErrInvalidState)
		}
		if !room.IsCreator(requesterID) {
			return fmt.Errorf("%w: only the room creator can add participants", ErrPermission)
		}
		user, err := m.store.Users().FindByID(ctx, userID)
		if err != nil {
			return notFound(err, "user", userID)
		}
		requester = room.Creator

		participant, err = m.store.Participants().Find(ctx, roomID, userID)
		switch {
		case err == nil && !participant.IsLeft:
			return fmt.Errorf("%w: user %d is already a member of chat room %d", ErrInvalidState, userID, roomID)
		case err == nil:
			participant.Rejoin(m.now())
			if err := m.store.Participants().Save(ctx, participant); err != nil {
				return fmt.Errorf("failed to rejoin participant: %w", err)
			}
			zap.S().Infow("participant rejoined chat room", "roomId", roomID, "userId", userID)
		case errors.Is(err, databases.ErrNotFound):
			participant = &models.ChatParticipant{ChatRoomID: roomID, UserID: userID, JoinedAt: m.now()}
			if err := m.store.Participants().Create(ctx, participant); err != nil {
				return fmt.Errorf("failed to add participant: %w", err)
			}
			zap.S().Infow("participant added to chat room", "roomId", roomID, "userId", userID)
		default:
			return fmt.Errorf("failed to load participant: %w", err)
		}
		participant.User = *user
		return nil
	})
	if err != nil {
		return nil, err
	}

	var inviter models.User
	if requester != nil {
		inviter = *requester
	}
	m.notifier.Dispatch(ctx, userID, inviteEvent(room, inviter))
	resp := models.NewChatParticipantResponse(*participant)
	return &resp, nil
}

// RemoveParticipant lets a group's creator mark another active member as left
func (m *RoomManager) RemoveParticipant(ctx context.Context, roomID, requesterID, targetID uint) error {
	err := m.withRoomLock(roomID, func() error {
		room, err := activeRoom(ctx, m.store, roomID)
		if err != nil {
			return err
		}
		if room.Type != models.RoomTypeGroup {
			return fmt.Errorf("%w: participants can only be removed from group rooms", ErrInvalidState)
		}
		if !room.IsCreator(requesterID) {
			return fmt.Errorf("%w: only the room creator can remove participants", ErrPermission)
		}
		if room.IsCreator(targetID) {
			return fmt.Errorf("%w: the room creator cannot be removed", ErrInvalidState)
		}
		p, err := m.store.Participants().Find(ctx, roomID, targetID)
		if err != nil {
			return notFound(err, "participant", targetID)
		}
		if p.IsLeft {
			return fmt.Errorf("%w: user %d is not an active participant", ErrInvalidState, targetID)
		}
		p.Leave(m.now())
		if err := m.store.Participants().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to remove participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	zap.S().Infow("participant removed from chat room", "roomId", roomID, "userId", targetID, "removedBy", requesterID)
	m.evictor.EvictUser(roomID, targetID)
	return nil
}

// Leave marks the caller as left. A group creator cannot leave. A group with at most one
// active member left is soft-deleted; a single room is soft-deleted once both have left.
func (m *RoomManager) Leave(ctx context.Context, roomID, userID uint) error {
	var deleted bool
	err := m.withRoomLock(roomID, func() error {
		room, _, err := requireActiveMember(ctx, m.store, roomID, userID)
		if err != nil {
			return err
		}
		if room.Type == models.RoomTypeGroup && room.IsCreator(userID) {
			return fmt.Errorf("%w: the room creator cannot leave; delete the room instead", ErrInvalidState)
		}
		deleted, err = m.leaveLocked(ctx, room, userID)
		return err
	})
	if err != nil {
		return err
	}
	m.afterLeave(roomID, userID, deleted)
	return nil
}

// Delete soft-deletes a group room (creator only). For a single room the caller leaves and
// the room is deleted once nobody is left in it.
func (m *RoomManager) Delete(ctx context.Context, roomID, userID uint) error {
	var deleted, left bool
	err := m.withRoomLock(roomID, func() error {
		room, err := activeRoom(ctx, m.store, roomID)
		if err != nil {
			return err
		}
		if room.Type == models.RoomTypeSingle {
			if _, err := activeParticipant(ctx, m.store, roomID, userID); err != nil {
				return err
			}
			left = true
			deleted, err = m.leaveLocked(ctx, room, userID)
			return err
		}
		if !room.IsCreator(userID) {
			return fmt.Errorf("%w: only the room creator can delete a group room", ErrPermission)
		}
		if err := m.store.Rooms().UpdateStatus(ctx, roomID, models.RoomStatusDeleted); err != nil {
			return fmt.Errorf("failed to delete chat room %d: %w", roomID, err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return err
	}
	if left {
		m.afterLeave(roomID, userID, deleted)
		return nil
	}
	zap.S().Infow("chat room deleted", "roomId", roomID, "userId", userID)
	m.evictor.EvictRoom(roomID)
	return nil
}

// leaveLocked must run under the room lock. It reports whether the room was soft-deleted.
func (m *RoomManager) leaveLocked(ctx context.Context, room *models.ChatRoom, userID uint) (bool, error) {
	deleted := false
	err := m.store.Transaction(ctx, func(tx databases.ChatStore) error {
		p, err := tx.Participants().Find(ctx, room.ID, userID)
		if err != nil {
			return err
		}
		p.Leave(m.now())
		if err := tx.Participants().Save(ctx, p); err != nil {
			return err
		}

		remaining, err := tx.Participants().CountActive(ctx, room.ID)
		if err != nil {
			return err
		}
		threshold := int64(1)
		if room.Type == models.RoomTypeSingle {
			threshold = 0
		}
		if remaining <= threshold && room.SoftDelete() {
			if err := tx.Rooms().UpdateStatus(ctx, room.ID, room.Status); err != nil {
				return err
			}
			deleted = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to leave chat room %d: %w", room.ID, err)
	}
	return deleted, nil
}

func (m *RoomManager) afterLeave(roomID, userID uint, deleted bool) {
	zap.S().Infow("participant left chat room", "roomId", roomID, "userId", userID)
	m.evictor.EvictUser(roomID, userID)
	if deleted {
		zap.S().Infow("chat room soft-deleted", "roomId", roomID)
		m.evictor.EvictRoom(roomID)
	}
}

// ListRoomsForUser returns the caller's active rooms, newest first
func (m *RoomManager) ListRoomsForUser(ctx context.Context, userID uint) ([]models.ChatRoomResponse, error) {
	rooms, err := m.store.Rooms().FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat rooms of user %d: %w", userID, err)
	}
	out := make([]models.ChatRoomResponse, 0, len(rooms))
	for i := range rooms {
		resp, err := buildRoomResponse(ctx, m.store, &rooms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// GetRoomDetails returns one room to an active participant
func (m *RoomManager) GetRoomDetails(ctx context.Context, roomID, userID uint) (*models.ChatRoomResponse, error) {
	room, _, err := requireActiveMember(ctx, m.store, roomID, userID)
	if err != nil {
		return nil, err
	}
	resp, err := buildRoomResponse(ctx, m.store, room)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequireActiveMember fails unless userID is an active participant of a live room
func (m *RoomManager) RequireActiveMember(ctx context.Context, roomID, userID uint) error {
	_, _, err := requireActiveMember(ctx, m.store, roomID, userID)
	return err
}

func (m *RoomManager) roomResponse(ctx context.Context, roomID uint) (*models.ChatRoomResponse, error) {
	room, err := m.store.Rooms().FindByID(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "chat room", roomID)
	}
	resp, err := buildRoomResponse(ctx, m.store, room)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (m *RoomManager) withRoomLock(roomID uint, fn func() error) error {
	unlock := m.rooms.lock(roomID)
	defer unlock()
	return fn()
}

func inviteEvent(room *models.ChatRoom, inviter models.User) models.NotificationEvent {
	name := ""
	if room.Name != nil {
		name = *room.Name
	}
	return models.NotificationEvent{
		Type:         models.NotificationChatInvite,
		Message:      fmt.Sprintf("'%s' invited you to the chat room '%s'", inviter.Nickname, name),
		ActorID:      inviter.ID,
		TargetType:   models.NotificationTargetChatRoom,
		TargetID:     room.ID,
		RedirectPath: fmt.Sprintf("/chatrooms/%d", room.ID),
		CreatedAt:    time.Now(),
	}
}
