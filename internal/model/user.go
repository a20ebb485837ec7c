package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	User struct {
		ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
		UserID      string             `bson:"user_id" json:"id"`
		Username    string             `bson:"username" json:"username"`
		DisplayName string             `bson:"display_name" json:"displayName"`
		LastSeen    time.Time          `bson:"last_seen" json:"lastSeen"`
	}
)
