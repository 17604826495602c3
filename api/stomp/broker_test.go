package stomp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-like/sleeprism-chat/api"
	"github.com/h-like/sleeprism-chat/chat"
)

// socketPair returns the server side of a live websocket whose write loop is not running
func socketPair(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return <-accepted
}

func TestSlowConsumerIsClosed(t *testing.T) {
	c := newConn("slow", socketPair(t), 1)
	before := testutil.ToFloat64(api.SlowConsumers)

	assert.True(t, c.enqueue([]byte("first")))
	assert.False(t, c.enqueue([]byte("second")))
	assert.Equal(t, before+1, testutil.ToFloat64(api.SlowConsumers))

	select {
	case <-c.done:
	default:
		t.Fatal("slow consumer was not aborted")
	}
	assert.False(t, c.enqueue([]byte("third")))
}

func TestBrokerSubscriptions(t *testing.T) {
	registry := chat.NewRegistry()
	b := NewBroker(registry)
	c := newConn("c1", socketPair(t), 16)
	b.register(c)
	require.NoError(t, registry.Bind(c.id, chat.Identity{UserID: 7}))

	require.NoError(t, b.subscribe(c, "0", RoomTopic(1), 7))
	require.NoError(t, b.subscribe(c, "1", ErrorsQueue, 7))
	err := b.subscribe(c, "0", RoomTopic(2), 7)
	assert.ErrorIs(t, err, chat.ErrConflict)

	assert.Equal(t, 1, b.Publish(RoomTopic(1), []byte(`{}`)))
	assert.Zero(t, b.Publish(RoomTopic(2), []byte(`{}`)))
	assert.Equal(t, 1, b.SendToUser(7, ErrorsQueue, []byte(`{}`)))
	assert.Zero(t, b.SendToUser(7, RoomTopic(1), []byte(`{}`)), "room topics are not user queues")
	assert.Zero(t, b.SendToUser(8, ErrorsQueue, []byte(`{}`)))

	b.EvictUser(1, 8)
	assert.Equal(t, 1, b.Subscribers(RoomTopic(1)))
	b.EvictUser(1, 7)
	assert.Zero(t, b.Subscribers(RoomTopic(1)))

	b.unregister(c)
	assert.Zero(t, b.Subscribers(ErrorsQueue))
	assert.Zero(t, b.Connections())
}

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		dest   string
		prefix string
		id     uint
		ok     bool
	}{
		{RoomTopic(42), RoomTopicPrefix, 42, true},
		{HistoryQueue(3), HistoryQueuePrefix, 3, true},
		{"/topic/chat/room/0", RoomTopicPrefix, 0, false},
		{"/topic/chat/room/abc", RoomTopicPrefix, 0, false},
		{"/topic/chat/room/", RoomTopicPrefix, 0, false},
		{"/topic/other/1", RoomTopicPrefix, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			id, ok := parseRoomID(tt.dest, tt.prefix)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}
