package membership

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	MembershipRepo struct {
		collection *mongo.Collection
	}
)

func NewMembershipRepo(db *mongo.Database) *MembershipRepo {
	return &MembershipRepo{
		collection: db.Collection("conversation_members"),
	}
}

// IsMember reports whether the identity is currently a member of the
// conversation. The membership collection is owned by the conversation CRUD
// service; the relay only ever reads it.
func (r *MembershipRepo) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"user_id":         userID,
	}

	err := r.collection.FindOne(ctx, filter).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
