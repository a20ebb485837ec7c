package model

import "time"

type (
	// Identity is the authenticated principal bound to a connection.
	Identity struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}

	PresenceUpdate struct {
		UserID   string     `json:"userId"`
		Status   string     `json:"status"`
		LastSeen *time.Time `json:"lastSeen,omitempty"`
	}
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
