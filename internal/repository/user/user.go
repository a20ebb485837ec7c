package user

import (
	"context"
	"time"

	"lrnchat/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	UserRepo struct {
		collection *mongo.Collection
	}
)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		collection: db.Collection("users"),
	}
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	filter := bson.M{
		"user_id": userID,
	}

	var user model.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &user, nil
}

// TouchLastSeen updates the identity's last-seen marker. Callers treat a
// failure as non-fatal; the user document may not even exist yet.
func (r *UserRepo) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	filter := bson.M{
		"user_id": userID,
	}
	update := bson.M{
		"$set": bson.M{"last_seen": at},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	return err
}
