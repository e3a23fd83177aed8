package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"bibliotrack/pkg/domain"
)

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		cart, err := s.app.GetCart(r.Context(), user.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cart)
	case http.MethodPost:
		var req addToCartRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.BookID == "" {
			writeError(w, http.StatusBadRequest, "bookId is required")
			return
		}
		quantity := req.Quantity
		if quantity == 0 {
			quantity = 1
		}
		line, err := s.app.AddToCart(r.Context(), user.ID, req.BookID, quantity)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, line)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCartListings(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addListingToCartRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ListingID == "" {
		writeError(w, http.StatusBadRequest, "listingId is required")
		return
	}
	line, err := s.app.AddListingToCart(r.Context(), user.ID, req.ListingID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (s *Server) handleCartLine(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/cart/")
	if id == "" || id == "listings" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req updateCartRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.UpdateCartQuantity(r.Context(), user.ID, id, req.Quantity); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.app.RemoveFromCart(r.Context(), user.ID, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.Checkout(r.Context(), user.ID, req.ShippingAddress)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBuyNow(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req buyNowRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "bookId is required")
		return
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	result, err := s.app.BuyNow(r.Context(), user.ID, req.BookID, quantity, req.ShippingAddress)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCapturePayment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req capturePaymentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "orderId, paymentId and signature are required")
		return
	}
	orders, err := s.app.CapturePayment(r.Context(), user, req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		s.audit(r, "api.payment.capture", "fail", "user_id", user.ID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.payment.capture", "success", "user_id", user.ID, "gateway_order_id", req.GatewayOrderID)
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
	})
}

// handleWebhook receives gateway callbacks. The raw body is needed for
// signature verification, so it must be read before any JSON decoding.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	signature := r.Header.Get("X-Razorpay-Signature")
	eventID := r.Header.Get("X-Razorpay-Event-Id")
	if err := s.app.HandleWebhook(r.Context(), body, signature, eventID); err != nil {
		s.audit(r, "api.payment.webhook", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "api.payment.webhook", "success", "event_id", eventID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	orders, err := s.app.MyOrders(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": orders,
		"count": len(orders),
	})
}

type addToCartRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

type addListingToCartRequest struct {
	ListingID string `json:"listingId"`
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

type buyNowRequest struct {
	BookID          string `json:"bookId"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shippingAddress"`
}

type capturePaymentRequest struct {
	GatewayOrderID string `json:"orderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
}
