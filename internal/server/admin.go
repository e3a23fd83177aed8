package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"bibliotrack/internal/app"
	"bibliotrack/pkg/domain"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": users,
		"count": len(users),
	})
}

func (s *Server) handleAdminUserByID(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req adminUserUpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Role == "" && req.Status == "" {
		writeError(w, http.StatusBadRequest, "role or status is required")
		return
	}
	if req.Role != "" {
		role, ok := parseUserRole(req.Role)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		if err := s.app.SetUserRole(r.Context(), actor, id, role); err != nil {
			writeAppError(w, err)
			return
		}
	}
	if req.Status != "" {
		status, ok := parseUserStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if err := s.app.SetUserStatus(r.Context(), actor, id, status); err != nil {
			writeAppError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request, _ domain.User) {
	switch r.Method {
	case http.MethodGet:
		// coverless books included so admins can finish incomplete entries
		books, err := s.app.ListBooks(r.Context(), bookFilterFromQuery(r), true)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
	case http.MethodPost:
		var req adminBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.CreateBook(r.Context(), req.input())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req adminBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.UpdateBook(r.Context(), id, req.input())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	orders, err := s.app.AllOrders(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": orders,
		"count": len(orders),
	})
}

func (s *Server) handleAdminOrderByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/orders/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req adminOrderUpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if err := s.app.UpdateOrderStatus(r.Context(), id, status, req.TrackingID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminPaymentEvents(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	events, err := s.app.PaymentEvents(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"count": len(events),
	})
}

func (s *Server) handleAdminRetrain(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RetrainModel(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.admin.retrain", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "retrained"})
}

type adminOrderUpdateRequest struct {
	Status     string `json:"status"`
	TrackingID string `json:"trackingId,omitempty"`
}

type adminUserUpdateRequest struct {
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

type adminBookRequest struct {
	Title         string       `json:"title"`
	Author        string       `json:"author"`
	Genre         string       `json:"genre"`
	Category      string       `json:"category"`
	Price         domain.Paise `json:"price"`
	Stock         int          `json:"stock"`
	CoverImageURL string       `json:"coverImageUrl"`
	Description   string       `json:"description"`
}

func (req adminBookRequest) input() app.BookInput {
	return app.BookInput{
		Title:         req.Title,
		Author:        req.Author,
		Genre:         req.Genre,
		Category:      req.Category,
		Price:         req.Price,
		Stock:         req.Stock,
		CoverImageURL: req.CoverImageURL,
		Description:   req.Description,
	}
}
