package server

import (
	"io"
	"net/http"
	"strings"

	"bibliotrack/internal/app"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

func (s *Server) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.UserBookFilter{
			Query: strings.TrimSpace(r.URL.Query().Get("q")),
			Limit: queryInt(r, "limit"),
		}
		listings, err := s.app.ListMarketplace(r.Context(), filter)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": listings,
			"count": len(listings),
		})
	case http.MethodPost:
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		in, cover, coverType, ok := s.listingForm(w, r)
		if !ok {
			return
		}
		listing, err := s.app.CreateListing(r.Context(), user, in, cover, coverType)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, listing)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListingByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/marketplace/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || id == "mine" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		if parts[1] != "cover" {
			http.NotFound(w, r)
			return
		}
		s.handleListingCover(w, r, id)
		return
	}

	user, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch r.Method {
	case http.MethodPut:
		in, cover, coverType, ok := s.listingForm(w, r)
		if !ok {
			return
		}
		listing, err := s.app.UpdateListing(r.Context(), user, id, in, cover, coverType)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	case http.MethodDelete:
		if err := s.app.RemoveListing(r.Context(), user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListingCover(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, err := s.app.CoverURL(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleMyListings(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	listings, err := s.app.MyListings(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": listings,
		"count": len(listings),
	})
}

// listingForm parses the multipart listing form. The cover file is
// optional; when present its extension must be on the image allowlist.
func (s *Server) listingForm(w http.ResponseWriter, r *http.Request) (app.ListingInput, []byte, string, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return app.ListingInput{}, nil, "", false
	}
	price, err := domain.ParsePaise(r.FormValue("price"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "price must be a decimal rupee amount")
		return app.ListingInput{}, nil, "", false
	}
	in := app.ListingInput{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Genre:       r.FormValue("genre"),
		Category:    r.FormValue("category"),
		Price:       price,
		Condition:   r.FormValue("condition"),
		Description: r.FormValue("description"),
	}
	file, header, err := r.FormFile("cover")
	if err == http.ErrMissingFile {
		return in, nil, "", true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cover upload")
		return app.ListingInput{}, nil, "", false
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported cover image type")
		return app.ListingInput{}, nil, "", false
	}
	cover, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read cover upload")
		return app.ListingInput{}, nil, "", false
	}
	return in, cover, header.Header.Get("Content-Type"), true
}
