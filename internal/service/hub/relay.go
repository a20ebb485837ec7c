package hub

import (
	"context"

	"lrnchat/internal/protocol"
	"lrnchat/internal/utils/log"

	"go.uber.org/zap"
)

// Relay drives one envelope through received -> authorized -> persisted ->
// broadcast -> acknowledged. Any failure before persistence surfaces to the
// sender only; nothing is ever broadcast unpersisted, and a failed persist is
// not retried (the client resends if it wants another attempt).
func (h *Hub) Relay(c *Client, req *protocol.SendRequest) {
	if req.ConversationID == "" || req.Ciphertext == "" || req.IV == "" {
		c.sendError(req.CorrelationID, protocol.ReasonBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	// authorized: always against the external store, never the in-memory
	// room state, so a connection removed from a conversation after joining
	// cannot keep sending.
	member, err := h.membership.IsMember(ctx, req.ConversationID, c.identity.ID)
	if err != nil {
		log.Error("send authorization check failed",
			zap.String("conversationID", req.ConversationID),
			zap.String("userID", c.identity.ID),
			zap.Error(err),
		)
		c.sendError(req.CorrelationID, protocol.ReasonInternal)
		return
	}
	if !member {
		c.sendError(req.CorrelationID, protocol.ReasonNotMember)
		return
	}

	// Serialize persist + broadcast per conversation so broadcast order
	// matches persistence order within a room.
	lock := h.convLock(req.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	// persisted
	envelope, err := h.messages.Append(ctx, req.ConversationID, c.identity, req.Ciphertext, req.IV)
	if err != nil {
		log.Error("persist message failed",
			zap.String("conversationID", req.ConversationID),
			zap.String("userID", c.identity.ID),
			zap.Error(err),
		)
		c.sendError(req.CorrelationID, protocol.ReasonPersistFailed)
		return
	}

	// broadcast: every connection joined to the room, the sender's other
	// connections included.
	data, err := protocol.Encode(protocol.EventMessageNew, envelope)
	if err != nil {
		log.Error("encode envelope failed", zap.Error(err))
		return
	}
	h.broadcastRoom(req.ConversationID, data, nil)

	// acknowledged: sender only, carrying the correlation id so the client
	// can reconcile its optimistic copy with the canonical record.
	c.sendEvent(protocol.EventMessageAck, &protocol.Ack{
		CorrelationID: req.CorrelationID,
		Envelope:      envelope,
	})
}
