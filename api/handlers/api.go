package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/h-like/sleeprism-chat/api"
	"github.com/h-like/sleeprism-chat/api/scheduler"
	"github.com/h-like/sleeprism-chat/api/stomp"
	"github.com/h-like/sleeprism-chat/auth"
	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/config"
	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/notify"
)

// App stores the router and every long lived collaborator, so it can be reused
type App struct {
	Router *mux.Router
	Config config.Config

	// storage and optional backends, set by Initialize or by tests before Build
	DB            *gorm.DB
	Store         databases.ChatStore
	Verifier      chat.Verifier
	Notifications databases.NotificationDatabase
	PushTokens    databases.PushTokenDatabase
	Redis         *redis.Client
	Kafka         *kafka.Writer

	Registry   *chat.Registry
	Broker     *stomp.Broker
	Dispatcher *notify.Dispatcher
	Rooms      *chat.RoomManager
	Messages   *chat.MessageService
	Blocks     *chat.BlockService
	Frames     *stomp.Server
	Scheduler  *scheduler.Scheduler

	mongoClient databases.ClientHelper
	cancel      context.CancelFunc
}

// Initialize opens the relational store and whichever optional backends are configured,
// then builds the services and the router
func (a *App) Initialize() error {
	db, err := databases.OpenSQL(a.Config.DBDriver, a.Config.DBDSN)
	if err != nil {
		zap.S().With(err).Error("failed to open relational database")
		return err
	}
	if err := databases.Migrate(db); err != nil {
		return err
	}
	a.DB = db
	a.Store = databases.NewChatStore(db)
	a.Verifier = auth.NewVerifier(a.Config.JWTSecret, a.Config.JWTIssuer, a.Store.Users())
	zap.S().Infow("sleeprism-chat has connected to the relational database", "driver", a.Config.DBDriver)

	if a.Config.MongoURI != "" {
		if err := a.connectMongo(); err != nil {
			return err
		}
	}

	if a.Config.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.RedisAddr,
			Password: a.Config.RedisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			// the limiter fails open, so a missing redis only disables it
			zap.S().Warnw("redis is unreachable, send rate limiting is degraded", "addr", a.Config.RedisAddr, "error", err)
		}
	}

	if len(a.Config.KafkaBrokers) > 0 {
		a.Kafka = notify.NewKafkaWriter(a.Config.KafkaBrokers, a.Config.KafkaTopic)
		zap.S().Infow("publishing notifications to kafka", "brokers", a.Config.KafkaBrokers, "topic", a.Config.KafkaTopic)
	}

	a.Build()
	a.Router = a.New()
	return nil
}

func (a *App) connectMongo() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, dbHelper, err := databases.ConnectMongo(ctx, &a.Config)
	if err != nil {
		zap.S().With(err).Error("failed to connect to mongo")
		return err
	}
	a.mongoClient = client
	if err := databases.EnsureIndexes(ctx, dbHelper); err != nil {
		zap.S().Warnw("failed to ensure mongo indexes", "error", err)
	}
	a.Notifications = databases.NewNotificationDatabase(dbHelper)
	a.PushTokens = databases.NewPushTokenDatabase(dbHelper)
	zap.S().Info("sleeprism-chat has connected to mongo, notification inbox and push enabled")
	return nil
}

// Build wires the chat services from the storage collaborators already set on a
func (a *App) Build() {
	a.Registry = chat.NewRegistry()
	a.Broker = stomp.NewBroker(a.Registry)

	// remote sinks sit behind breakers so a hung endpoint cannot stall the live queue
	breaker := notify.BreakerSettings{
		CallTimeout: a.Config.NotifySinkTimeout,
		MaxFailures: a.Config.NotifyBreakerFailures,
		OpenTimeout: a.Config.NotifyBreakerOpen,
	}
	sinks := notify.Fanout{notify.UserQueueSink{Sender: a.Broker}}
	if a.Notifications != nil {
		sinks = append(sinks, notify.InboxSink{DB: a.Notifications})
	}
	if a.PushTokens != nil {
		sinks = append(sinks, notify.NewBreaker(notify.NewExpoSink(a.PushTokens), breaker))
	}
	if a.Kafka != nil {
		sinks = append(sinks, notify.NewBreaker(notify.KafkaSink{Writer: a.Kafka}, breaker))
	}
	a.Dispatcher = notify.NewDispatcher(sinks, a.Config.NotifyWorkers, a.Config.NotifyQueueSize)

	a.Blocks = chat.NewBlockService(a.Store)
	a.Rooms = chat.NewRoomManager(a.Store, a.Dispatcher, a.Broker)
	a.Messages = chat.NewMessageService(a.Store, a.Blocks, a.Broker, a.Dispatcher)

	var limiter stomp.Limiter
	var locker scheduler.Locker
	if a.Redis != nil {
		limiter = api.NewSendLimiter(a.Redis, "sleeprism:send:", a.Config.SendRateLimit, a.Config.SendRateWindow)
		locker = scheduler.NewRedisLock(a.Redis)
	}
	a.Frames = stomp.NewServer(a.Registry, a.Verifier, a.Broker, a.Rooms, a.Messages, limiter, stomp.Options{
		Heartbeat:     a.Config.WSHeartbeat,
		MaxFrameBytes: a.Config.WSMaxFrameBytes,
		SendBuffer:    a.Config.WSSendBuffer,
	})

	var pruner scheduler.Pruner
	if a.Notifications != nil {
		pruner = a.Notifications
	}
	a.Scheduler = scheduler.NewScheduler(a.Broker, pruner, locker, a.Config.WSIdleTimeout, a.Config.NotificationRetention)
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	m := api.NewAuthenticator(ctx, a.Verifier, a.Config.TokenCacheTTL)

	c := Chat{Rooms: a.Rooms, Messages: a.Messages, Blocks: a.Blocks}
	n := Notification{DB: a.Notifications, Tokens: a.PushTokens}

	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware)

	// healthchex
	r.HandleFunc("/health", api.HealthCheckHandler).Methods("GET")
	r.Handle("/metrics", api.MetricsHandler()).Methods("GET")
	r.Handle("/ws", a.Frames).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(m.Middleware, api.TimeoutMiddleware(a.Config.RequestTimeout))

	apiCreate.HandleFunc("/chats", c.ListRoomsHandler).Methods("GET")
	apiCreate.HandleFunc("/chats/single", c.CreateSingleRoomHandler).Methods("POST")
	apiCreate.HandleFunc("/chats/group", c.CreateGroupRoomHandler).Methods("POST")
	apiCreate.HandleFunc("/chats/blocks", c.ListBlockedHandler).Methods("GET")
	apiCreate.HandleFunc("/chats/blocks", c.BlockHandler).Methods("POST")
	apiCreate.HandleFunc("/chats/blocks/{blockedUserId:[0-9]+}", c.UnblockHandler).Methods("DELETE")
	apiCreate.HandleFunc("/chats/messages/{messageId:[0-9]+}/read", c.MarkReadHandler).Methods("PATCH")
	apiCreate.HandleFunc("/chats/{roomId:[0-9]+}", c.RoomDetailsHandler).Methods("GET")
	apiCreate.HandleFunc("/chats/{roomId:[0-9]+}", c.DeleteRoomHandler).Methods("DELETE")
	apiCreate.HandleFunc("/chats/{roomId:[0-9]+}/leave", c.LeaveRoomHandler).Methods("POST")
	apiCreate.HandleFunc("/chats/{roomId:[0-9]+}/participants", c.AddParticipantHandler).Methods("POST")
	apiCreate.HandleFunc("/chats/{roomId:[0-9]+}/participants/{userId:[0-9]+}", c.RemoveParticipantHandler).Methods("DELETE")
	apiCreate.HandleFunc("/chats/{roomId:[0-9]+}/messages", c.HistoryHandler).Methods("GET")

	apiCreate.HandleFunc("/notifications", n.InboxHandler).Methods("GET")
	apiCreate.HandleFunc("/push-tokens", n.RegisterPushTokenHandler).Methods("POST")

	return r
}

// Start runs the background workers
func (a *App) Start() error {
	a.Dispatcher.Start()
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close stops the background workers and releases every backend connection
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Kafka != nil {
		if err := a.Kafka.Close(); err != nil {
			zap.S().Warnw("failed to close kafka writer", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongoClient.Disconnect(ctx)
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
