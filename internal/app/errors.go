package app

import "errors"

// Sentinel errors mapped to HTTP statuses by the server package.
var (
	ErrInvalid           = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrOutOfStock        = errors.New("out of stock")
	ErrPaymentGateway    = errors.New("payment gateway error")
	ErrPaymentSignature  = errors.New("payment signature mismatch")
	ErrContentRejected   = errors.New("content rejected by moderation")
	ErrOwnListing        = errors.New("cannot buy your own listing")
	ErrListingSold       = errors.New("listing no longer available")
	ErrCartEmpty         = errors.New("cart is empty")
	ErrNotConfigured     = errors.New("feature not configured")
	ErrWishlistDuplicate = errors.New("book already on wishlist")
)

func invalidf(format string, args ...any) error {
	return wrapf(ErrInvalid, format, args...)
}
