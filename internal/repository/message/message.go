package message

import (
	"context"
	"errors"
	"time"

	"lrnchat/internal/model"
	"lrnchat/internal/utils/log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("message not found")

type (
	MessageRepo struct {
		messages      *mongo.Collection
		conversations *mongo.Collection
	}

	storedMessage struct {
		ID             primitive.ObjectID `bson:"_id,omitempty"`
		ConversationID string             `bson:"conversation_id"`
		SenderID       string             `bson:"sender_id"`
		SenderName     string             `bson:"sender_name"`
		Ciphertext     string             `bson:"ciphertext"`
		IV             string             `bson:"iv"`
		Timestamp      time.Time          `bson:"timestamp"`
		ReadAt         *time.Time         `bson:"read_at,omitempty"`
	}
)

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		messages:      db.Collection("messages"),
		conversations: db.Collection("conversations"),
	}
}

// Append durably stores one envelope, assigning the canonical id and server
// timestamp, and bumps the conversation's last-activity marker. The marker
// update is best-effort: the message is already persisted at that point.
func (r *MessageRepo) Append(ctx context.Context, conversationID string, sender model.Identity, ciphertext, iv string) (*model.Envelope, error) {
	now := time.Now().UTC()
	doc := &storedMessage{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Ciphertext:     ciphertext,
		IV:             iv,
		Timestamp:      now,
	}

	res, err := r.messages.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	id := res.InsertedID.(primitive.ObjectID)

	_, err = r.conversations.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$set": bson.M{"updated_at": now}},
	)
	if err != nil {
		log.Warn("update conversation activity failed",
			zap.String("conversationID", conversationID), zap.Error(err))
	}

	return &model.Envelope{
		ID:             id.Hex(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Ciphertext:     ciphertext,
		IV:             iv,
		Timestamp:      now,
	}, nil
}

// SetReadTimestamp records when a message was first read. The write is
// conditional on read_at being unset, so the first mark wins; the returned
// time is the one actually stored.
func (r *MessageRepo) SetReadTimestamp(ctx context.Context, messageID string, at time.Time) (time.Time, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return time.Time{}, ErrNotFound
	}

	res, err := r.messages.UpdateOne(ctx,
		bson.M{"_id": oid, "read_at": nil},
		bson.M{"$set": bson.M{"read_at": at}},
	)
	if err != nil {
		return time.Time{}, err
	}
	if res.ModifiedCount == 1 {
		return at, nil
	}

	var doc storedMessage
	err = r.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if doc.ReadAt == nil {
		return at, nil
	}
	return *doc.ReadAt, nil
}

// ListRecent returns up to limit envelopes for a conversation, newest first.
func (r *MessageRepo) ListRecent(ctx context.Context, conversationID string, limit int64) ([]*model.Envelope, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var envelopes []*model.Envelope
	for cursor.Next(ctx) {
		var doc storedMessage
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		envelopes = append(envelopes, &model.Envelope{
			ID:             doc.ID.Hex(),
			ConversationID: doc.ConversationID,
			SenderID:       doc.SenderID,
			SenderName:     doc.SenderName,
			Ciphertext:     doc.Ciphertext,
			IV:             doc.IV,
			Timestamp:      doc.Timestamp,
			ReadAt:         doc.ReadAt,
		})
	}
	return envelopes, cursor.Err()
}
