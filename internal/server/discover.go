package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"bibliotrack/pkg/domain"
)

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.Wishlist(r.Context(), user.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
	case http.MethodPost:
		var req wishlistRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.BookID == "" {
			writeError(w, http.StatusBadRequest, "bookId is required")
			return
		}
		item, err := s.app.AddToWishlist(r.Context(), user.ID, req.BookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWishlistItem(w http.ResponseWriter, r *http.Request, user domain.User) {
	bookID := strings.TrimPrefix(r.URL.Path, "/api/wishlist/")
	if bookID == "" || strings.Contains(bookID, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveFromWishlist(r.Context(), user.ID, bookID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	results, err := s.app.SemanticSearch(r.Context(), query, queryInt(r, "limit"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": results,
		"count": len(results),
	})
}

func (s *Server) handleVisualSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many visual search requests") {
		s.audit(r, "api.search.visual", "rate_limited")
		return
	}
	image, ok := s.imageUpload(w, r)
	if !ok {
		return
	}
	results, err := s.app.VisualSearch(r.Context(), image, queryInt(r, "limit"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": results,
		"count": len(results),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	scored, err := s.app.Personalized(r.Context(), user.ID, queryInt(r, "limit"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": scored,
		"count": len(scored),
	})
}

// handleChat accepts either a JSON body or a multipart form when the user
// attaches a cover photo.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many chat messages") {
		s.audit(r, "api.chat", "rate_limited", "user_id", user.ID)
		return
	}
	var message string
	var image []byte
	if isMultipart(r) {
		if s.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		message = r.FormValue("message")
		file, header, err := r.FormFile("image")
		if err == nil {
			defer file.Close()
			if !s.isExtensionAllowed(header.Filename) {
				writeError(w, http.StatusBadRequest, "unsupported image type")
				return
			}
			image, err = io.ReadAll(file)
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read image upload")
				return
			}
		} else if err != http.ErrMissingFile {
			writeError(w, http.StatusBadRequest, "invalid image upload")
			return
		}
	} else {
		var req chatRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		message = req.Message
	}
	reply, err := s.app.Chat(r.Context(), user.ID, message, image)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// imageUpload reads the "image" file from a multipart form.
func (s *Server) imageUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return nil, false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required (field: image)")
		return nil, false
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported image type")
		return nil, false
	}
	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image upload")
		return nil, false
	}
	return image, true
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "multipart/")
}

type wishlistRequest struct {
	BookID string `json:"bookId"`
}

type chatRequest struct {
	Message string `json:"message"`
}
