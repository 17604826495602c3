// Package stomp is the STOMP 1.2 over WebSocket frame server: CONNECT authentication,
// room topic subscriptions, per-user queues and the /app send destinations.
package stomp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/api"
	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/logging"
	"github.com/h-like/sleeprism-chat/models"
)

const (
	serverName      = "sleeprism-chat/1.0"
	protocolVersion = "1.2"
	kindRateLimited = "rate_limited"
)

// Membership is the room check made at subscribe time
type Membership interface {
	RequireActiveMember(ctx context.Context, roomID, userID uint) error
}

// Messages is the message pipeline behind the /app destinations
type Messages interface {
	SendMessage(ctx context.Context, senderID uint, req chat.SendRequest) (*models.ChatMessageResponse, error)
	GetHistory(ctx context.Context, roomID, userID uint, page, size int) ([]models.ChatMessageResponse, error)
	JoinNotice(ctx context.Context, roomID uint, id chat.Identity) error
}

// Limiter decides whether a user may send another message
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Options tune the transport
type Options struct {
	Heartbeat     time.Duration
	MaxFrameBytes int64
	SendBuffer    int
}

// Server accepts websocket connections on /ws and speaks STOMP on them
type Server struct {
	registry   *chat.Registry
	verifier   chat.Verifier
	broker     *Broker
	membership Membership
	messages   Messages
	limiter    Limiter
	opts       Options
	upgrader   websocket.Upgrader
}

// NewServer wires the frame server. limiter may be nil.
func NewServer(registry *chat.Registry, verifier chat.Verifier, broker *Broker, membership Membership, messages Messages, limiter Limiter, opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 10 * time.Second
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 * 1024
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Server{
		registry:   registry,
		verifier:   verifier,
		broker:     broker,
		membership: membership,
		messages:   messages,
		limiter:    limiter,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			// credentials travel in the CONNECT frame, not in cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Debugw("websocket upgrade failed", "error", err)
		return
	}
	c := newConn(uuid.NewString(), ws, s.opts.SendBuffer)
	s.broker.register(c)
	api.ActiveConnections.Inc()
	zap.S().Debugw("websocket connection opened", "connectionId", c.id, "remote", r.RemoteAddr)

	go c.writeLoop(s.opts.Heartbeat)
	s.readLoop(c)
}

func (s *Server) readLoop(c *conn) {
	defer func() {
		s.disconnect(c)
		c.finish()
	}()

	c.ws.SetReadLimit(s.opts.MaxFrameBytes)
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		reader := frame.NewReader(bytes.NewReader(data))
		for {
			f, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				api.FramesRejected.WithLabelValues("malformed").Inc()
				c.sendFrame(errorFrame("malformed frame", err.Error()))
				return
			}
			if f == nil {
				// heart-beat
				continue
			}
			if !s.handle(c, f) {
				return
			}
		}
	}
}

// disconnect is the cleanup shared by DISCONNECT, socket loss and the idle reaper. It never
// fails and is safe to run once per connection.
func (s *Server) disconnect(c *conn) {
	s.broker.unregister(c)
	api.ActiveConnections.Dec()
	if id, ok := s.registry.Unbind(c.id); ok {
		api.BoundSessions.Dec()
		logging.New("stomp").Infow("session disconnected", "connectionId", c.id, "userId", id.UserID)
	}
}

// handle processes one frame and reports whether the connection stays open
func (s *Server) handle(c *conn, f *frame.Frame) bool {
	api.FramesReceived.WithLabelValues(f.Command).Inc()
	ctx, cancel := api.WithFrameTimeout(context.Background())
	defer cancel()

	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return s.onConnect(ctx, c, f)
	case frame.DISCONNECT:
		s.receipt(c, f)
		return false
	}

	id, ok := s.registry.Resolve(c.id)
	if !ok {
		api.FramesRejected.WithLabelValues("unauthenticated").Inc()
		zap.S().Warnw("frame before CONNECT", "connectionId", c.id, "command", f.Command)
		c.sendFrame(errorFrame("unauthenticated", "CONNECT with a bearer token first"))
		return false
	}
	ctx = chat.WithIdentity(ctx, id)

	switch f.Command {
	case frame.SUBSCRIBE:
		s.onSubscribe(ctx, c, id, f)
	case frame.UNSUBSCRIBE:
		s.broker.unsubscribe(c, f.Header.Get(frame.Id))
	case frame.SEND:
		s.onSend(ctx, c, id, f)
	case frame.ACK, frame.NACK:
		// subscriptions are auto-ack
	default:
		s.privateError(c, "frame rejected", chat.Kind(chat.ErrInvalidState),
			fmt.Sprintf("unsupported command %s", f.Command))
	}
	s.receipt(c, f)
	return true
}

func (s *Server) onConnect(ctx context.Context, c *conn, f *frame.Frame) bool {
	authorization := f.Header.Get("Authorization")
	if authorization == "" {
		authorization = f.Header.Get("authorization")
	}

	id, err := s.registry.Connect(ctx, s.verifier, c.id, authorization)
	if errors.Is(err, chat.ErrConflict) {
		s.privateError(c, "connect rejected", chat.Kind(err), chat.Reason(err))
		s.receipt(c, f)
		return true
	}
	if err != nil {
		api.FramesRejected.WithLabelValues(chat.Kind(err)).Inc()
		logging.New("stomp").Warnw("connect rejected", "connectionId", c.id, "error", err)
		c.sendFrame(errorFrame("unauthenticated", chat.Reason(err)))
		return false
	}

	api.BoundSessions.Inc()
	logging.New("stomp").Infow("session connected", "connectionId", c.id, "userId", id.UserID)
	hb := strconv.FormatInt(s.opts.Heartbeat.Milliseconds(), 10)
	c.sendFrame(frame.New(frame.CONNECTED,
		frame.Version, protocolVersion,
		frame.HeartBeat, hb+","+hb,
		frame.Server, serverName,
		"user-name", strconv.FormatUint(uint64(id.UserID), 10),
	))
	s.receipt(c, f)
	return true
}

func (s *Server) onSubscribe(ctx context.Context, c *conn, id chat.Identity, f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	subID := f.Header.Get(frame.Id)
	if subID == "" {
		s.privateError(c, "subscribe failed", chat.Kind(chat.ErrInvalidState), "subscription id is required")
		return
	}

	roomID, isRoom := parseRoomID(dest, RoomTopicPrefix)
	_, isHistory := parseRoomID(dest, HistoryQueuePrefix)
	switch {
	case isRoom:
		if err := s.membership.RequireActiveMember(ctx, roomID, id.UserID); err != nil {
			s.privateError(c, "subscribe failed", chat.Kind(err), chat.Reason(err))
			return
		}
	case isHistory, dest == ErrorsQueue, dest == NotificationsQueue:
	default:
		s.privateError(c, "subscribe failed", chat.Kind(chat.ErrInvalidState), unknownDestination(dest).Error())
		return
	}

	if err := s.broker.subscribe(c, subID, dest, id.UserID); err != nil {
		s.privateError(c, "subscribe failed", chat.Kind(err), chat.Reason(err))
		return
	}
	if isRoom {
		// a leave may have evicted the room between the check and the subscribe
		if err := s.membership.RequireActiveMember(ctx, roomID, id.UserID); err != nil {
			s.broker.unsubscribe(c, subID)
			s.privateError(c, "subscribe failed", chat.Kind(err), chat.Reason(err))
			return
		}
	}
	zap.S().Debugw("subscribed", "connectionId", c.id, "userId", id.UserID, "destination", dest)
}

type roomRequest struct {
	RoomID uint `json:"chatRoomId"`
}

func (s *Server) onSend(ctx context.Context, c *conn, id chat.Identity, f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	switch dest {
	case SendMessageDest:
		s.sendMessage(ctx, c, id, f.Body)
	case HistoryRequestDest:
		var req roomRequest
		if err := json.Unmarshal(f.Body, &req); err != nil || req.RoomID == 0 {
			s.privateError(c, "history request failed", chat.Kind(chat.ErrInvalidState), "chatRoomId is required")
			return
		}
		history, err := s.messages.GetHistory(ctx, req.RoomID, id.UserID, 0, historyRequestLimit)
		if err != nil {
			s.privateError(c, "history request failed", chat.Kind(err), chat.Reason(err))
			return
		}
		body, err := json.Marshal(history)
		if err != nil {
			s.privateError(c, "history request failed", "internal", "internal error")
			return
		}
		s.broker.sendToConn(c, HistoryQueue(req.RoomID), body)
	case AddUserDest:
		var req roomRequest
		if err := json.Unmarshal(f.Body, &req); err != nil || req.RoomID == 0 {
			s.privateError(c, "join notice failed", chat.Kind(chat.ErrInvalidState), "chatRoomId is required")
			return
		}
		if err := s.messages.JoinNotice(ctx, req.RoomID, id); err != nil {
			s.privateError(c, "join notice failed", chat.Kind(err), chat.Reason(err))
		}
	default:
		s.privateError(c, "message send failed", chat.Kind(chat.ErrInvalidState), unknownDestination(dest).Error())
	}
}

func (s *Server) sendMessage(ctx context.Context, c *conn, id chat.Identity, body []byte) {
	if s.limiter != nil {
		ok, _ := s.limiter.Allow(ctx, "user:"+strconv.FormatUint(uint64(id.UserID), 10))
		if !ok {
			api.RateLimited.Inc()
			s.privateError(c, "message send failed", kindRateLimited, "rate limit exceeded")
			return
		}
	}

	var req chat.SendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.privateError(c, "message send failed", chat.Kind(chat.ErrInvalidState), "malformed message body")
		return
	}
	if _, err := s.messages.SendMessage(ctx, id.UserID, req); err != nil {
		if chat.Kind(err) == "internal" {
			zap.S().Errorw("message send failed", "connectionId", c.id, "userId", id.UserID, "roomId", req.RoomID, "error", err)
		}
		s.privateError(c, "message send failed", chat.Kind(err), chat.Reason(err))
		return
	}
	api.MessagesSent.Inc()
}

// privateError goes only to the offending connection, and only if it listens on the errors
// queue
func (s *Server) privateError(c *conn, prefix, kind, reason string) {
	api.FramesRejected.WithLabelValues(kind).Inc()
	body, _ := json.Marshal(models.PrivateError{
		Error:   kind,
		Message: prefix + ": " + reason,
	})
	s.broker.sendToConn(c, ErrorsQueue, body)
}

func (s *Server) receipt(c *conn, f *frame.Frame) {
	if r := f.Header.Get(frame.Receipt); r != "" {
		c.sendFrame(frame.New(frame.RECEIPT, frame.ReceiptId, r))
	}
}

func errorFrame(message, detail string) *frame.Frame {
	f := frame.New(frame.ERROR,
		frame.Message, message,
		frame.ContentType, "text/plain",
	)
	f.Body = []byte(detail)
	return f
}
