package protocol

import (
	"encoding/json"
	"fmt"

	"lrnchat/internal/model"
)

// Event names are fixed for interoperability with existing clients.
const (
	// Inbound (client -> relay).
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventReadMark    = "read:mark"

	// Outbound (relay -> client).
	EventPresenceUpdate = "presence:update"
	EventMessageNew     = "message:new"
	EventMessageAck     = "message:ack"
	EventMessageError   = "message:error"
	EventTypingUpdate   = "typing:update"
	EventReadUpdate     = "read:update"
)

type (
	// Frame is the wire unit: an event name plus its JSON payload.
	Frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}

	RoomRequest struct {
		ConversationID string `json:"conversationId"`
	}

	SendRequest struct {
		ConversationID string `json:"conversationId"`
		Ciphertext     string `json:"ciphertext"`
		IV             string `json:"iv"`
		CorrelationID  string `json:"correlationId"`
	}

	ReadMarkRequest struct {
		MessageID      string `json:"messageId"`
		ConversationID string `json:"conversationId"`
	}

	Ack struct {
		CorrelationID string          `json:"correlationId"`
		Envelope      *model.Envelope `json:"envelope"`
	}

	SendError struct {
		CorrelationID string `json:"correlationId,omitempty"`
		Reason        string `json:"reason"`
	}
)

// Error reasons carried by message:error frames.
const (
	ReasonNotMember     = "not_a_member"
	ReasonPersistFailed = "persist_failed"
	ReasonBadRequest    = "bad_request"
	ReasonInternal      = "internal_error"
)

func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("protocol: frame without event")
	}
	return &f, nil
}

// Encode marshals an outbound frame. Marshalling of the known payload types
// cannot fail, so the error is surfaced only for caller bugs.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s payload: %w", event, err)
	}
	return json.Marshal(&Frame{Event: event, Data: data})
}

func (f *Frame) Unmarshal(into any) error {
	if err := json.Unmarshal(f.Data, into); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", f.Event, err)
	}
	return nil
}
