package hub

import (
	"context"
	"time"

	"lrnchat/internal/model"
	"lrnchat/internal/protocol"
	"lrnchat/internal/utils/log"

	"go.uber.org/zap"
)

// Typing relays a typing-state transition to the other connections in the
// room. Nothing is persisted and there is no acknowledgement; the only gate
// is that the sender is currently joined.
func (h *Hub) Typing(c *Client, conversationID string, isTyping bool) {
	if !h.inRoom(c, conversationID) {
		return
	}

	data, err := protocol.Encode(protocol.EventTypingUpdate, &model.TypingUpdate{
		UserID:         c.identity.ID,
		DisplayName:    c.identity.DisplayName,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
	if err != nil {
		log.Error("encode typing update failed", zap.Error(err))
		return
	}
	h.broadcastRoom(conversationID, data, c)
}

// MarkRead records when a message was first read and relays the receipt to
// the other room members. Fire-and-forget: failures are logged, never
// surfaced to the reader.
func (h *Hub) MarkRead(c *Client, req *protocol.ReadMarkRequest) {
	if !h.inRoom(c, req.ConversationID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	readAt, err := h.messages.SetReadTimestamp(ctx, req.MessageID, time.Now().UTC())
	if err != nil {
		log.Warn("set read timestamp failed",
			zap.String("messageID", req.MessageID),
			zap.String("userID", c.identity.ID),
			zap.Error(err),
		)
		return
	}

	data, err := protocol.Encode(protocol.EventReadUpdate, &model.ReadUpdate{
		MessageID: req.MessageID,
		UserID:    c.identity.ID,
		ReadAt:    readAt,
	})
	if err != nil {
		log.Error("encode read update failed", zap.Error(err))
		return
	}
	h.broadcastRoom(req.ConversationID, data, c)
}
