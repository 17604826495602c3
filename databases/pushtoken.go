package databases

// go generate: mockery --name PushTokenDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/h-like/sleeprism-chat/models"
)

const pushTokenCollectionName = "pushtokens"

// PushTokenDatabase contains the methods to use with the push token database
type PushTokenDatabase interface {
	Upsert(ctx context.Context, token models.PushToken) error
	FindByUser(ctx context.Context, userID uint) ([]models.PushToken, error)
}

type pushTokenDatabase struct {
	db DatabaseHelper
}

// NewPushTokenDatabase initializes a new instance of push token database with the provided db connection
func NewPushTokenDatabase(db DatabaseHelper) PushTokenDatabase {
	return &pushTokenDatabase{
		db: db,
	}
}

// Upsert keys on the device token, so a device that changes hands moves to the new user
func (pt *pushTokenDatabase) Upsert(ctx context.Context, token models.PushToken) error {
	now := primitive.NewDateTimeFromTime(time.Now())
	update := bson.M{
		"$set": bson.M{
			"userId":    token.UserID,
			"platform":  token.Platform,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := pt.db.Collection(pushTokenCollectionName).UpdateOne(ctx, bson.M{"token": token.Token}, update, options.Update().SetUpsert(true))
	return err
}

func (pt *pushTokenDatabase) FindByUser(ctx context.Context, userID uint) ([]models.PushToken, error) {
	cur, err := pt.db.Collection(pushTokenCollectionName).Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	var tokens []models.PushToken
	if err = cur.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
