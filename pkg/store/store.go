package store

import (
	"bibliotrack/pkg/domain"
)

// BookFilter narrows catalog listings. Zero values mean "no constraint".
type BookFilter struct {
	Genre    string
	Category string
	Author   string
	Query    string // matches title or author, case-insensitive
	MinPrice domain.Paise
	MaxPrice domain.Paise
	Sort     string // price_asc, price_desc, rating, newest
	Limit    int
	Offset   int
}

// UserBookFilter narrows marketplace listings.
type UserBookFilter struct {
	SellerID      string
	OnlyAvailable bool
	Query         string
	Limit         int
}

// Store defines persistence operations for the storefront.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	HasUsername(username string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)

	// catalog
	SaveBook(domain.Book) error
	DeleteBook(id string) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks(filter BookFilter) ([]domain.Book, error)
	ListGenres() ([]string, error)
	ListCategories() ([]string, error)
	SetBookVectors(id string, embedding, imageFeatures []float32, imageHash string) error
	SearchBooksByEmbedding(embedding []float32, limit int) ([]domain.Book, error)
	RefreshBookRating(bookID string) error

	// marketplace
	SaveUserBook(domain.UserBook) error
	GetUserBook(id string) (domain.UserBook, bool, error)
	ListUserBooks(filter UserBookFilter) ([]domain.UserBook, error)
	SetUserBookAvailable(id string, available bool) error
	SetUserBookVectors(id string, embedding, imageFeatures []float32, imageHash string) error
	SearchUserBooksByEmbedding(embedding []float32, limit int) ([]domain.UserBook, error)

	// reviews
	SaveReview(domain.Review) error
	GetReview(bookID, userID string) (domain.Review, bool, error)
	ListReviewsByBook(bookID string) ([]domain.Review, error)

	// orders and cart
	SaveOrder(domain.Order) error
	GetOrder(id string) (domain.Order, bool, error)
	GetCartOrder(userID, bookID, userBookID string) (domain.Order, bool, error)
	ListOrdersByUser(userID string, statuses ...domain.OrderStatus) ([]domain.Order, error)
	ListOrders(statuses ...domain.OrderStatus) ([]domain.Order, error)
	ListOrdersByGatewayOrderID(gatewayOrderID string) ([]domain.Order, error)
	MarkOrdersPending(orderIDs []string, gatewayOrderID string) error
	ConfirmOrders(gatewayOrderID, paymentRef string) ([]domain.Order, error)
	UpdateOrderStatus(id string, status domain.OrderStatus, trackingID string) error
	OrderCountsByBook() (map[string]int, error)

	// wishlist
	AddWishlistItem(item domain.WishlistItem) error
	RemoveWishlistItem(userID, bookID string) error
	ListWishlist(userID string) ([]domain.WishlistItem, error)

	// payment events
	SavePaymentEvent(event domain.PaymentEvent) (bool, error)
	ListPaymentEvents(limit int) ([]domain.PaymentEvent, error)

	// discussion feed
	SaveDiscussionMessage(domain.DiscussionMessage) error
	ListDiscussionMessages(limit int) ([]domain.DiscussionMessage, error)

	// notifications
	SaveNotification(domain.Notification) error
	ListNotificationsByUser(userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkNotificationRead(userID, id string) error
}

// SessionStore issues and validates access tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
