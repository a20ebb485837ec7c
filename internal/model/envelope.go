package model

import "time"

type (
	// Envelope is a relayed message record. Ciphertext and IV are opaque
	// base64 strings; the relay never interprets them.
	Envelope struct {
		ID             string     `json:"id"`
		ConversationID string     `json:"conversationId"`
		SenderID       string     `json:"senderId"`
		SenderName     string     `json:"senderName"`
		Ciphertext     string     `json:"ciphertext"`
		IV             string     `json:"iv"`
		Timestamp      time.Time  `json:"timestamp"`
		ReadAt         *time.Time `json:"readAt,omitempty"`
	}

	TypingUpdate struct {
		UserID         string `json:"userId"`
		DisplayName    string `json:"displayName"`
		ConversationID string `json:"conversationId"`
		IsTyping       bool   `json:"isTyping"`
	}

	ReadUpdate struct {
		MessageID string    `json:"messageId"`
		UserID    string    `json:"userId"`
		ReadAt    time.Time `json:"readAt"`
	}
)
