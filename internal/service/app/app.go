package app

import (
	"fmt"
	"sync"

	"lrnchat/internal/cryptographic/encryption"
	"lrnchat/internal/keystore"
	"lrnchat/internal/model"
	"lrnchat/internal/protocol"
	"lrnchat/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UndecryptablePlaceholder is rendered for any envelope this device cannot
// decrypt, typically one encrypted under another device's key.
const UndecryptablePlaceholder = "[unable to decrypt message]"

type (
	// Handlers receive inbound relay events. Nil handlers are skipped.
	Handlers struct {
		OnMessage  func(envelope *model.Envelope, plaintext string)
		OnAck      func(ack *protocol.Ack)
		OnError    func(sendErr *protocol.SendError)
		OnPresence func(update *model.PresenceUpdate)
		OnTyping   func(update *model.TypingUpdate)
		OnRead     func(update *model.ReadUpdate)
	}

	// Session is one authenticated relay connection plus this device's
	// keystore. Message text is encrypted before it leaves the session and
	// decrypted on arrival; the relay only ever sees ciphertext.
	Session struct {
		host     string
		token    string
		keys     *keystore.Keystore
		handlers Handlers

		mu   sync.Mutex
		conn *websocket.Conn
	}
)

// Dial connects and authenticates, then starts the receive loop.
func Dial(host, token string, keys *keystore.Keystore, handlers Handlers) (*Session, error) {
	s := &Session{
		host:     host,
		token:    token,
		keys:     keys,
		handlers: handlers,
	}

	conn, err := s.dialRelay()
	if err != nil {
		return nil, fmt.Errorf("app: dial relay: %w", err)
	}
	s.conn = conn

	go s.listen()
	return s, nil
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) Join(conversationID string) error {
	return s.writeFrame(protocol.EventRoomJoin, &protocol.RoomRequest{ConversationID: conversationID})
}

func (s *Session) Leave(conversationID string) error {
	return s.writeFrame(protocol.EventRoomLeave, &protocol.RoomRequest{ConversationID: conversationID})
}

// Send encrypts text under the conversation's key and ships the envelope.
// The returned correlation id matches the eventual message:ack.
func (s *Session) Send(conversationID, text string) (string, error) {
	key, err := s.keys.KeyFor(conversationID)
	if err != nil {
		return "", fmt.Errorf("app: key for %s: %w", conversationID, err)
	}
	ciphertext, iv, err := encryption.Encrypt(text, key)
	if err != nil {
		return "", fmt.Errorf("app: encrypt: %w", err)
	}

	correlationID := uuid.NewString()
	err = s.writeFrame(protocol.EventMessageSend, &protocol.SendRequest{
		ConversationID: conversationID,
		Ciphertext:     ciphertext,
		IV:             iv,
		CorrelationID:  correlationID,
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

func (s *Session) Typing(conversationID string, isTyping bool) error {
	event := protocol.EventTypingStop
	if isTyping {
		event = protocol.EventTypingStart
	}
	return s.writeFrame(event, &protocol.RoomRequest{ConversationID: conversationID})
}

func (s *Session) MarkRead(messageID, conversationID string) error {
	return s.writeFrame(protocol.EventReadMark, &protocol.ReadMarkRequest{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

// Decrypt resolves an envelope to readable text, or the placeholder when the
// local key cannot open it.
func (s *Session) Decrypt(envelope *model.Envelope) string {
	key, err := s.keys.KeyFor(envelope.ConversationID)
	if err != nil {
		log.Warn("load conversation key failed",
			zap.String("conversationID", envelope.ConversationID), zap.Error(err))
		return UndecryptablePlaceholder
	}
	plaintext, err := encryption.Decrypt(envelope.Ciphertext, envelope.IV, key)
	if err != nil {
		return UndecryptablePlaceholder
	}
	return plaintext
}

func (s *Session) writeFrame(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) listen() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Debug("session closed", zap.Error(err))
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			log.Debug("bad frame from relay", zap.Error(err))
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(frame *protocol.Frame) {
	switch frame.Event {
	case protocol.EventMessageNew:
		var envelope model.Envelope
		if err := frame.Unmarshal(&envelope); err != nil {
			log.Debug("bad envelope payload", zap.Error(err))
			return
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(&envelope, s.Decrypt(&envelope))
		}

	case protocol.EventMessageAck:
		var ack protocol.Ack
		if err := frame.Unmarshal(&ack); err != nil {
			return
		}
		if s.handlers.OnAck != nil {
			s.handlers.OnAck(&ack)
		}

	case protocol.EventMessageError:
		var sendErr protocol.SendError
		if err := frame.Unmarshal(&sendErr); err != nil {
			return
		}
		if s.handlers.OnError != nil {
			s.handlers.OnError(&sendErr)
		}

	case protocol.EventPresenceUpdate:
		var update model.PresenceUpdate
		if err := frame.Unmarshal(&update); err != nil {
			return
		}
		if s.handlers.OnPresence != nil {
			s.handlers.OnPresence(&update)
		}

	case protocol.EventTypingUpdate:
		var update model.TypingUpdate
		if err := frame.Unmarshal(&update); err != nil {
			return
		}
		if s.handlers.OnTyping != nil {
			s.handlers.OnTyping(&update)
		}

	case protocol.EventReadUpdate:
		var update model.ReadUpdate
		if err := frame.Unmarshal(&update); err != nil {
			return
		}
		if s.handlers.OnRead != nil {
			s.handlers.OnRead(&update)
		}

	default:
		log.Debug("unknown event from relay", zap.String("event", frame.Event))
	}
}
