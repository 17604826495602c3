package stomp

import (
	"fmt"
	"strconv"
	"strings"
)

// Destinations understood by the frame server
const (
	RoomTopicPrefix     = "/topic/chat/room/"
	HistoryQueuePrefix  = "/user/queue/chat/history/"
	ErrorsQueue         = "/user/queue/errors"
	NotificationsQueue  = "/user/queue/notifications"
	SendMessageDest     = "/app/chat.sendMessage"
	HistoryRequestDest  = "/app/chat.history"
	AddUserDest         = "/app/chat.addUser"
	historyRequestLimit = 100
)

// RoomTopic is the broadcast destination of a room
func RoomTopic(roomID uint) string {
	return RoomTopicPrefix + strconv.FormatUint(uint64(roomID), 10)
}

// HistoryQueue is the per-connection destination history replies go to
func HistoryQueue(roomID uint) string {
	return HistoryQueuePrefix + strconv.FormatUint(uint64(roomID), 10)
}

// parseRoomID reads the trailing room id of a destination with the given prefix
func parseRoomID(dest, prefix string) (uint, bool) {
	if !strings.HasPrefix(dest, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(dest, prefix), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// isUserDestination is true for per-connection queues, which are never shared between
// connections
func isUserDestination(dest string) bool {
	return strings.HasPrefix(dest, "/user/")
}

func unknownDestination(dest string) error {
	return fmt.Errorf("unknown destination %q", dest)
}
