package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/models"
)

func TestCreateOrGetSingleRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, err := f.rooms.CreateOrGetSingleRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomTypeSingle, room.Type)
	assert.Equal(t, "alice, bob", room.Name)
	assert.Len(t, room.Participants, 2)
	assert.Nil(t, room.CreatorID)
	assert.Nil(t, room.LastMessage)

	again, err := f.rooms.CreateOrGetSingleRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
}

func TestCreateOrGetSingleRoomRejectsSelf(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.rooms.CreateOrGetSingleRoom(context.Background(), alice.ID, alice.ID)
	assert.ErrorIs(t, err, chat.ErrInvalidState)
}

func TestCreateOrGetSingleRoomUnknownUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.rooms.CreateOrGetSingleRoom(context.Background(), alice.ID, 404)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestCreateOrGetSingleRoomConcurrent(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	const callers = 16
	ids := make([]uint, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 0 {
				a, b = b, a
			}
			room, err := f.rooms.CreateOrGetSingleRoom(context.Background(), a, b)
			errs[i] = err
			if err == nil {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	rooms, err := f.rooms.ListRoomsForUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestSingleRoomDeletedWhenBothLeaveThenReactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, err := f.rooms.CreateOrGetSingleRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	f.send(t, room.ID, alice.ID, "hello")

	require.NoError(t, f.rooms.Leave(ctx, room.ID, alice.ID))
	stored, err := f.store.Rooms().FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted())

	require.NoError(t, f.rooms.Delete(ctx, room.ID, bob.ID))
	stored, err = f.store.Rooms().FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
	assert.Contains(t, f.rec.evictedRooms, room.ID)

	_, err = f.rooms.GetRoomDetails(ctx, room.ID, alice.ID)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	reopened, err := f.rooms.CreateOrGetSingleRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, reopened.ID)
	assert.False(t, reopened.IsDeleted)
	assert.Len(t, reopened.Participants, 2)
	require.NotNil(t, reopened.LastMessage)
	assert.Equal(t, "hello", reopened.LastMessage.Content)

	participants, err := f.store.Participants().FindByRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}

func TestCreateGroupRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, " dreamers ", []uint{bob.ID, carol.ID, bob.ID, alice.ID})
	require.NoError(t, err)
	assert.Equal(t, "dreamers", room.Name)
	assert.Equal(t, models.RoomTypeGroup, room.Type)
	require.NotNil(t, room.CreatorID)
	assert.Equal(t, alice.ID, *room.CreatorID)
	assert.Equal(t, "alice", room.CreatorNickname)
	assert.Len(t, room.Participants, 3)

	assert.Empty(t, f.rec.notificationsFor(alice.ID))
	invites := f.rec.notificationsFor(bob.ID)
	require.Len(t, invites, 1)
	assert.Equal(t, models.NotificationChatInvite, invites[0].Type)
	assert.Equal(t, "'alice' invited you to the chat room 'dreamers'", invites[0].Message)
	assert.Len(t, f.rec.notificationsFor(carol.ID), 1)
}

func TestCreateGroupRoomValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.rooms.CreateGroupRoom(context.Background(), alice.ID, "  ", nil)
	assert.ErrorIs(t, err, chat.ErrInvalidState)

	_, err = f.rooms.CreateGroupRoom(context.Background(), alice.ID, "room", []uint{404})
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestAddParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, "dreamers", []uint{bob.ID})
	require.NoError(t, err)

	_, err = f.rooms.AddParticipant(ctx, room.ID, bob.ID, carol.ID)
	assert.ErrorIs(t, err, chat.ErrPermission)

	p, err := f.rooms.AddParticipant(ctx, room.ID, alice.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, carol.ID, p.UserID)
	assert.Equal(t, "carol", p.UserNickname)
	assert.Len(t, f.rec.notificationsFor(carol.ID), 1)

	_, err = f.rooms.AddParticipant(ctx, room.ID, alice.ID, carol.ID)
	assert.ErrorIs(t, err, chat.ErrInvalidState)

	_, err = f.rooms.AddParticipant(ctx, room.ID, alice.ID, 404)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestAddParticipantToSingleRoom(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	room, err := f.rooms.CreateOrGetSingleRoom(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = f.rooms.AddParticipant(context.Background(), room.ID, alice.ID, carol.ID)
	assert.ErrorIs(t, err, chat.ErrInvalidState)
}

func TestLeaveAndRejoinKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, "dreamers", []uint{bob.ID, carol.ID})
	require.NoError(t, err)
	first := f.participant(t, room.ID, bob.ID)

	require.NoError(t, f.rooms.Leave(ctx, room.ID, bob.ID))
	left := f.participant(t, room.ID, bob.ID)
	assert.True(t, left.IsLeft)
	assert.NotNil(t, left.LeftAt)
	assert.Contains(t, f.rec.evictedUsers, [2]uint{room.ID, bob.ID})

	err = f.rooms.Leave(ctx, room.ID, bob.ID)
	assert.ErrorIs(t, err, chat.ErrPermission)

	_, err = f.rooms.AddParticipant(ctx, room.ID, alice.ID, bob.ID)
	require.NoError(t, err)
	rejoined := f.participant(t, room.ID, bob.ID)
	assert.Equal(t, first.ID, rejoined.ID)
	assert.False(t, rejoined.IsLeft)
	assert.Nil(t, rejoined.LeftAt)

	participants, err := f.store.Participants().FindByRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 3)
}

func TestGroupDeletedWhenOneMemberRemains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, "pair", []uint{bob.ID})
	require.NoError(t, err)

	require.NoError(t, f.rooms.Leave(ctx, room.ID, bob.ID))
	stored, err := f.store.Rooms().FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestCreatorCannotLeaveGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, "dreamers", []uint{bob.ID})
	require.NoError(t, err)

	err = f.rooms.Leave(ctx, room.ID, alice.ID)
	assert.ErrorIs(t, err, chat.ErrInvalidState)
	assert.False(t, f.participant(t, room.ID, alice.ID).IsLeft)
}

func TestRemoveParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, "dreamers", []uint{bob.ID, carol.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.rooms.RemoveParticipant(ctx, room.ID, bob.ID, carol.ID), chat.ErrPermission)
	assert.ErrorIs(t, f.rooms.RemoveParticipant(ctx, room.ID, alice.ID, alice.ID), chat.ErrInvalidState)
	assert.ErrorIs(t, f.rooms.RemoveParticipant(ctx, room.ID, alice.ID, 404), chat.ErrNotFound)

	require.NoError(t, f.rooms.RemoveParticipant(ctx, room.ID, alice.ID, carol.ID))
	assert.True(t, f.participant(t, room.ID, carol.ID).IsLeft)
	assert.Contains(t, f.rec.evictedUsers, [2]uint{room.ID, carol.ID})

	assert.ErrorIs(t, f.rooms.RemoveParticipant(ctx, room.ID, alice.ID, carol.ID), chat.ErrInvalidState)

	_, err = f.messages.SendMessage(ctx, carol.ID, chat.SendRequest{RoomID: room.ID, Content: "still here?"})
	assert.ErrorIs(t, err, chat.ErrPermission)
}

func TestDeleteGroupRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	room, err := f.rooms.CreateGroupRoom(ctx, alice.ID, "dreamers", []uint{bob.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.rooms.Delete(ctx, room.ID, bob.ID), chat.ErrPermission)
	require.NoError(t, f.rooms.Delete(ctx, room.ID, alice.ID))
	assert.Contains(t, f.rec.evictedRooms, room.ID)

	assert.ErrorIs(t, f.rooms.Delete(ctx, room.ID, alice.ID), chat.ErrNotFound)
	_, err = f.messages.SendMessage(ctx, alice.ID, chat.SendRequest{RoomID: room.ID, Content: "hi"})
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestListRoomsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	single, err := f.rooms.CreateOrGetSingleRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	group, err := f.rooms.CreateGroupRoom(ctx, carol.ID, "dreamers", []uint{alice.ID, bob.ID})
	require.NoError(t, err)
	f.send(t, group.ID, carol.ID, "welcome")

	rooms, err := f.rooms.ListRoomsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, group.ID, rooms[0].ID)
	assert.Equal(t, single.ID, rooms[1].ID)
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "welcome", rooms[0].LastMessage.Content)

	require.NoError(t, f.rooms.Leave(ctx, group.ID, alice.ID))
	rooms, err = f.rooms.ListRoomsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, single.ID, rooms[0].ID)
}

func TestGetRoomDetailsRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	mallory := f.user(t, "mallory")

	room, err := f.rooms.CreateOrGetSingleRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = f.rooms.GetRoomDetails(ctx, room.ID, mallory.ID)
	assert.ErrorIs(t, err, chat.ErrPermission)
	assert.ErrorIs(t, f.rooms.RequireActiveMember(ctx, room.ID, mallory.ID), chat.ErrPermission)
	assert.NoError(t, f.rooms.RequireActiveMember(ctx, room.ID, bob.ID))

	_, err = f.rooms.GetRoomDetails(ctx, 404, alice.ID)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}
