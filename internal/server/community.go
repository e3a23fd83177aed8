package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/notify"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

func (s *Server) handleDiscussion(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		messages, err := s.app.Discussion(r.Context())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": messages,
			"count": len(messages),
		})
	case http.MethodPost:
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req discussionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := s.app.PostDiscussion(r.Context(), user, req.BookID, req.Message)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := s.app.Notifications(r.Context(), user.ID, unreadOnly)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": notifications,
		"count": len(notifications),
	})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "read" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.MarkNotificationRead(r.Context(), user.ID, parts[0]); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket upgrades the connection and registers the client with
// the hub. Browsers cannot set headers on WebSocket requests, so the
// token is also accepted as a query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications not configured")
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	user, authed := s.app.UserFromToken(token)
	if token == "" || !authed {
		s.audit(r, "api.ws.authorize", "fail")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.audit(r, "api.ws.upgrade", "fail", "user_id", user.ID, "reason", err.Error())
		return
	}
	s.audit(r, "api.ws.connect", "success", "user_id", user.ID)
	notify.NewClient(s.hub, conn, user.ID).Start()
}

type discussionRequest struct {
	BookID  string `json:"bookId,omitempty"`
	Message string `json:"message"`
}
