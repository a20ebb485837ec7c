package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lrnchat/internal/model"
	"lrnchat/internal/service/auth"
	"lrnchat/internal/service/hub"
	"lrnchat/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type (
	// MessageLister serves the reconnect-fetch: recent envelopes for a
	// conversation, newest first.
	MessageLister interface {
		ListRecent(ctx context.Context, conversationID string, limit int64) ([]*model.Envelope, error)
	}

	// LastSeenSource answers presence lookups for offline identities.
	LastSeenSource interface {
		LastSeen(ctx context.Context, userID string) (time.Time, error)
	}

	HttpServer struct {
		hub          *hub.Hub
		verifier     *auth.Verifier
		membership   hub.MembershipStore
		messages     MessageLister
		lastSeen     LastSeenSource
		listen       string
		storeTimeout time.Duration
	}
)

func NewHttpServer(h *hub.Hub, verifier *auth.Verifier, membership hub.MembershipStore, messages MessageLister, lastSeen LastSeenSource, listen string, storeTimeout time.Duration) *HttpServer {
	return &HttpServer{
		hub:          h,
		verifier:     verifier,
		membership:   membership,
		messages:     messages,
		lastSeen:     lastSeen,
		listen:       listen,
		storeTimeout: storeTimeout,
	}
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.HandleConnect()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", s.HandleHistory()).Methods(http.MethodGet)
	r.HandleFunc("/presence/{userID}", s.HandlePresence()).Methods(http.MethodGet)
	return r
}

func (s *HttpServer) Run() error {
	log.Info("relay listening", zap.String("addr", s.listen))
	return http.ListenAndServe(s.listen, s.Router())
}

// bearerToken pulls the credential from the query string (the websocket
// handshake path) or the Authorization header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// HandleConnect is the single authentication gate: the credential is checked
// before the upgrade, and a failed check refuses the connection with no state
// created anywhere.
func (s *HttpServer) HandleConnect() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing credential", http.StatusUnauthorized)
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid credential", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("upgrade failed", zap.Error(err))
			return
		}

		client := hub.NewClient(s.hub, conn, identity)
		go client.Run()
	}
}

func (s *HttpServer) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleHistory is the reconnect-fetch: recent envelopes for members of the
// conversation, newest first.
func (s *HttpServer) HandleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.verifier.Verify(bearerToken(r))
		if err != nil {
			http.Error(w, "invalid credential", http.StatusUnauthorized)
			return
		}

		conversationID := mux.Vars(r)["id"]

		ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout)
		defer cancel()

		member, err := s.membership.IsMember(ctx, conversationID, identity.ID)
		if err != nil {
			log.Error("history membership check failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !member {
			http.Error(w, "not a member", http.StatusForbidden)
			return
		}

		limit := int64(defaultHistoryLimit)
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 && n <= maxHistoryLimit {
				limit = n
			}
		}

		envelopes, err := s.messages.ListRecent(ctx, conversationID, limit)
		if err != nil {
			log.Error("list messages failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if envelopes == nil {
			envelopes = []*model.Envelope{}
		}

		writeJSON(w, http.StatusOK, envelopes)
	}
}

// HandlePresence reports an identity's status from live connection counts,
// with the last-seen mark for offline identities.
func (s *HttpServer) HandlePresence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.verifier.Verify(bearerToken(r)); err != nil {
			http.Error(w, "invalid credential", http.StatusUnauthorized)
			return
		}

		userID := mux.Vars(r)["userID"]

		update := &model.PresenceUpdate{
			UserID: userID,
			Status: model.StatusOffline,
		}
		if s.hub.IsOnline(userID) {
			update.Status = model.StatusOnline
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout)
			defer cancel()
			if t, err := s.lastSeen.LastSeen(ctx, userID); err == nil && !t.IsZero() {
				update.LastSeen = &t
			}
		}

		writeJSON(w, http.StatusOK, update)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("write response failed", zap.Error(err))
	}
}
