package databases

// go generate: mockery --name NotificationDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/h-like/sleeprism-chat/models"
)

const notificationCollectionName = "notifications"

// NotificationDatabase contains the methods to use with the notification inbox
type NotificationDatabase interface {
	InsertOne(ctx context.Context, n models.Notification) error
	FindForUser(ctx context.Context, userID uint, page Pagination) ([]models.Notification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationDatabase struct {
	db DatabaseHelper
}

// NewNotificationDatabase initializes a new instance of notification database with the provided db connection
func NewNotificationDatabase(db DatabaseHelper) NotificationDatabase {
	return &notificationDatabase{
		db: db,
	}
}

func (n *notificationDatabase) InsertOne(ctx context.Context, notification models.Notification) error {
	_, err := n.db.Collection(notificationCollectionName).InsertOne(ctx, notification)
	return err
}

func (n *notificationDatabase) FindForUser(ctx context.Context, userID uint, page Pagination) ([]models.Notification, error) {
	opts := page.getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cur, err := n.db.Collection(notificationCollectionName).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	notifications := []models.Notification{}
	if err = cur.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (n *notificationDatabase) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return n.db.Collection(notificationCollectionName).DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
}
