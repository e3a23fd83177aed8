// Package server exposes the storefront's HTTP API on a stdlib ServeMux.
// Handlers translate requests into app calls and app sentinels into HTTP
// statuses.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bibliotrack/internal/app"
	"bibliotrack/internal/ratelimit"
	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/notify"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                     *app.App
	Hub                     *notify.Hub
	RedisAddr               string
	RedisPassword           string
	LoginRateLimitPerMinute int
	OTPRateLimitPerMinute   int
	ChatRateLimitPerMinute  int
	MaxUploadBytes          int64
	AllowedExtensions       []string
	TrustedProxyCIDRs       []string
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app               *app.App
	hub               *notify.Hub
	mux               *http.ServeMux
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	loginLimiter      *ratelimit.FixedWindowLimiter
	otpLimiter        *ratelimit.FixedWindowLimiter
	chatLimiter       *ratelimit.FixedWindowLimiter
	trustedProxies    *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	otpLimit := cfg.OTPRateLimitPerMinute
	if otpLimit <= 0 {
		otpLimit = 5
	}
	chatLimit := cfg.ChatRateLimitPerMinute
	if chatLimit <= 0 {
		chatLimit = 30
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "bibliotrack:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	otpLimiter, err := newLimiter("otp", otpLimit)
	if err != nil {
		return nil, err
	}
	chatLimiter, err := newLimiter("chat", chatLimit)
	if err != nil {
		return nil, err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:               cfg.App,
		hub:               cfg.Hub,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
		loginLimiter:      loginLimiter,
		otpLimiter:        otpLimiter,
		chatLimiter:       chatLimiter,
		trustedProxies:    trusted,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/password-reset", s.handlePasswordResetRequest)
	s.mux.HandleFunc("/api/auth/password-reset/confirm", s.handlePasswordResetConfirm)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	// catalog (public browse)
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.HandleFunc("/api/genres", s.handleGenres)
	s.mux.HandleFunc("/api/categories", s.handleCategories)

	// marketplace
	s.mux.HandleFunc("/api/marketplace", s.handleMarketplace)
	s.mux.HandleFunc("/api/marketplace/", s.handleListingByID)
	s.mux.Handle("/api/marketplace/mine", s.authenticated(s.handleMyListings))

	// cart, checkout & payments
	s.mux.Handle("/api/cart", s.authenticated(s.handleCart))
	s.mux.Handle("/api/cart/listings", s.authenticated(s.handleCartListings))
	s.mux.Handle("/api/cart/", s.authenticated(s.handleCartLine))
	s.mux.Handle("/api/checkout", s.authenticated(s.handleCheckout))
	s.mux.Handle("/api/buy-now", s.authenticated(s.handleBuyNow))
	s.mux.Handle("/api/payment/capture", s.authenticated(s.handleCapturePayment))
	s.mux.HandleFunc("/api/payment/webhook", s.handleWebhook)
	s.mux.Handle("/api/orders", s.authenticated(s.handleMyOrders))

	// wishlist
	s.mux.Handle("/api/wishlist", s.authenticated(s.handleWishlist))
	s.mux.Handle("/api/wishlist/", s.authenticated(s.handleWishlistItem))

	// discovery
	s.mux.HandleFunc("/api/search", s.handleSemanticSearch)
	s.mux.HandleFunc("/api/search/visual", s.handleVisualSearch)
	s.mux.Handle("/api/recommendations", s.authenticated(s.handleRecommendations))
	s.mux.Handle("/api/chat", s.authenticated(s.handleChat))

	// community
	s.mux.HandleFunc("/api/discussion", s.handleDiscussion)
	s.mux.Handle("/api/notifications", s.authenticated(s.handleNotifications))
	s.mux.Handle("/api/notifications/", s.authenticated(s.handleNotificationRead))
	s.mux.HandleFunc("/ws", s.handleWebSocket)

	// admin
	s.mux.Handle("/api/admin/users", s.adminOnly(s.handleAdminUsers))
	s.mux.Handle("/api/admin/users/", s.adminOnly(s.handleAdminUserByID))
	s.mux.Handle("/api/admin/books", s.adminOnly(s.handleAdminBooks))
	s.mux.Handle("/api/admin/books/", s.adminOnly(s.handleAdminBookByID))
	s.mux.Handle("/api/admin/orders", s.adminOnly(s.handleAdminOrders))
	s.mux.Handle("/api/admin/orders/", s.adminOnly(s.handleAdminOrderByID))
	s.mux.Handle("/api/admin/payment-events", s.adminOnly(s.handleAdminPaymentEvents))
	s.mux.Handle("/api/admin/recommend/retrain", s.adminOnly(s.handleAdminRetrain))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "api.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "api.admin.authorize", "fail", "reason", "missing_or_invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Role != domain.RoleAdmin {
			s.audit(r, "api.admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.audit(r, "api.admin.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps app sentinels to HTTP statuses. Anything unmapped is
// an internal error and must not leak details to the client.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalid), errors.Is(err, app.ErrCartEmpty):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict),
		errors.Is(err, app.ErrWishlistDuplicate),
		errors.Is(err, app.ErrOutOfStock),
		errors.Is(err, app.ErrListingSold),
		errors.Is(err, app.ErrOwnListing):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrContentRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrPaymentSignature):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrPaymentGateway):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, app.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	_, ok := s.allowedExtensions[ext]
	return ok
}

func parseUserRole(role string) (domain.UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(domain.RoleUser):
		return domain.RoleUser, true
	case string(domain.RoleAdmin):
		return domain.RoleAdmin, true
	default:
		return "", false
	}
}

func parseUserStatus(status string) (domain.UserStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(domain.StatusActive):
		return domain.StatusActive, true
	case string(domain.StatusDisabled):
		return domain.StatusDisabled, true
	default:
		return "", false
	}
}
