package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := bookFilterFromQuery(r)
	books, err := s.app.ListBooks(r.Context(), filter, false)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "reviews":
			s.handleBookReviews(w, r, id)
		case "similar":
			s.handleSimilarBooks(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.GetBookDetail(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleBookReviews(w http.ResponseWriter, r *http.Request, bookID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	user, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	review, err := s.app.AddReview(r.Context(), user, bookID, req.Rating, req.Comment)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) handleSimilarBooks(w http.ResponseWriter, r *http.Request, bookID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := queryInt(r, "limit")
	scored, err := s.app.SimilarBooks(r.Context(), bookID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": scored,
		"count": len(scored),
	})
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	genres, err := s.app.Genres(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": genres})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	categories, err := s.app.Categories(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": categories})
}

func bookFilterFromQuery(r *http.Request) store.BookFilter {
	q := r.URL.Query()
	return store.BookFilter{
		Genre:    strings.TrimSpace(q.Get("genre")),
		Category: strings.TrimSpace(q.Get("category")),
		Author:   strings.TrimSpace(q.Get("author")),
		Query:    strings.TrimSpace(q.Get("q")),
		MinPrice: queryPaise(r, "minPrice"),
		MaxPrice: queryPaise(r, "maxPrice"),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
}

func queryInt(r *http.Request, name string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryPaise(r *http.Request, name string) domain.Paise {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	p, err := domain.ParsePaise(raw)
	if err != nil || p < 0 {
		return 0
	}
	return p
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
