package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/h-like/sleeprism-chat/databases/mocks"
	"github.com/h-like/sleeprism-chat/models"
)

type recordingSink struct {
	name  string
	err   error
	mu    sync.Mutex
	users []uint
	block chan struct{}
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Deliver(_ context.Context, userID uint, _ models.NotificationEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return r.err
}

func (r *recordingSink) delivered() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.users...)
}

func event() models.NotificationEvent {
	return models.NotificationEvent{
		Type:         models.NotificationChatMessage,
		Message:      "'alice' sent a new message: 'hi...'",
		ActorID:      1,
		TargetType:   models.NotificationTargetChatRoom,
		TargetID:     9,
		RedirectPath: "/chatrooms/9",
		CreatedAt:    time.Now(),
	}
}

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}

	Fanout{failing, ok}.Deliver(context.Background(), 2, event())

	assert.Equal(t, []uint{2}, failing.delivered())
	assert.Equal(t, []uint{2}, ok.delivered())
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d := NewDispatcher(Fanout{sink}, 2, 16)
	d.Start()

	for i := uint(1); i <= 5; i++ {
		d.Dispatch(context.Background(), i, event())
	}
	d.Stop()

	assert.ElementsMatch(t, []uint{1, 2, 3, 4, 5}, sink.delivered())
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{name: "rec", block: make(chan struct{})}
	d := NewDispatcher(Fanout{sink}, 1, 1)
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := uint(1); i <= 10; i++ {
			d.Dispatch(context.Background(), i, event())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}

	close(sink.block)
	d.Stop()
	assert.Less(t, len(sink.delivered()), 10)
}

func TestDispatcherIgnoresEventsAfterStop(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d := NewDispatcher(Fanout{sink}, 1, 4)
	d.Start()
	d.Stop()
	d.Stop()

	d.Dispatch(context.Background(), 1, event())
	assert.Empty(t, sink.delivered())
}

type hangingSink struct {
	calls int32
}

func (*hangingSink) Name() string { return "hanging" }

func (h *hangingSink) Deliver(ctx context.Context, _ uint, _ models.NotificationEvent) error {
	atomic.AddInt32(&h.calls, 1)
	<-ctx.Done()
	return ctx.Err()
}

func TestBreakerFailsFastOnceOpen(t *testing.T) {
	remote := &hangingSink{}
	b := NewBreaker(remote, BreakerSettings{CallTimeout: 20 * time.Millisecond, MaxFailures: 2, OpenTimeout: time.Minute})
	assert.Equal(t, "hanging", b.Name())

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Deliver(context.Background(), 1, event()), context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	start := time.Now()
	assert.ErrorIs(t, b.Deliver(context.Background(), 1, event()), gobreaker.ErrOpenState)
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&remote.calls))
}

func TestHungRemoteSinkDoesNotStallLiveQueue(t *testing.T) {
	live := &recordingSink{name: "live"}
	remote := &hangingSink{}
	guarded := NewBreaker(remote, BreakerSettings{CallTimeout: 20 * time.Millisecond, MaxFailures: 2, OpenTimeout: time.Minute})
	d := NewDispatcher(Fanout{live, guarded}, 1, 64)
	d.Start()
	defer d.Stop()

	for i := uint(1); i <= 30; i++ {
		d.Dispatch(context.Background(), i, event())
	}

	// unguarded, thirty hung calls would take 600ms on the single worker
	assert.Eventually(t, func() bool { return len(live.delivered()) == 30 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&remote.calls))
	assert.Equal(t, gobreaker.StateOpen, guarded.State())
}

type fakeSender struct {
	userID      uint
	destination string
	body        []byte
}

func (f *fakeSender) SendToUser(userID uint, destination string, body []byte) int {
	f.userID, f.destination, f.body = userID, destination, body
	return 1
}

func TestUserQueueSink(t *testing.T) {
	sender := &fakeSender{}
	require.NoError(t, UserQueueSink{Sender: sender}.Deliver(context.Background(), 3, event()))

	assert.Equal(t, uint(3), sender.userID)
	assert.Equal(t, NotificationsDestination, sender.destination)
	var got models.NotificationEvent
	require.NoError(t, json.Unmarshal(sender.body, &got))
	assert.Equal(t, "/chatrooms/9", got.RedirectPath)
}

func TestInboxSink(t *testing.T) {
	db := &mocks.NotificationDatabase{}
	db.On("InsertOne", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.UserID == 3 && n.Type == models.NotificationChatMessage && !n.IsRead
	})).Return(nil)

	require.NoError(t, InboxSink{DB: db}.Deliver(context.Background(), 3, event()))
	db.AssertExpectations(t)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, KafkaSink{Writer: w}.Deliver(context.Background(), 12, event()))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "12", string(w.msgs[0].Key))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, float64(12), body["recipientId"])
	assert.Equal(t, models.NotificationChatMessage, body["type"])

	w.err = errors.New("leader not available")
	assert.Error(t, KafkaSink{Writer: w}.Deliver(context.Background(), 12, event()))
}

func TestExpoSinkBatches(t *testing.T) {
	var batches int32
	var sizes []int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msgs []ExpoPushMessage
		_ = json.NewDecoder(r.Body).Decode(&msgs)
		atomic.AddInt32(&batches, 1)
		mu.Lock()
		sizes = append(sizes, len(msgs))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := make([]models.PushToken, 150)
	for i := range tokens {
		tokens[i] = models.PushToken{UserID: 5, Token: fmt.Sprintf("ExponentPushToken[%d]", i)}
	}
	db := &mocks.PushTokenDatabase{}
	db.On("FindByUser", mock.Anything, uint(5)).Return(tokens, nil)

	sink := NewExpoSink(db)
	sink.URL = srv.URL
	require.NoError(t, sink.Deliver(context.Background(), 5, event()))

	assert.Equal(t, int32(2), atomic.LoadInt32(&batches))
	assert.ElementsMatch(t, []int{100, 50}, sizes)
}

func TestExpoSinkNoTokens(t *testing.T) {
	db := &mocks.PushTokenDatabase{}
	db.On("FindByUser", mock.Anything, uint(5)).Return(nil, nil)

	sink := NewExpoSink(db)
	sink.URL = "http://127.0.0.1:1"
	assert.NoError(t, sink.Deliver(context.Background(), 5, event()))
}

func TestExpoSinkReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	db := &mocks.PushTokenDatabase{}
	db.On("FindByUser", mock.Anything, uint(5)).Return([]models.PushToken{{Token: "ExponentPushToken[a]"}}, nil)

	sink := NewExpoSink(db)
	sink.URL = srv.URL
	assert.Error(t, sink.Deliver(context.Background(), 5, event()))
}
