package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Paise is a money amount in hundredths of a rupee. It marshals to the
// decimal string format the storefront expects ("29.99").
type Paise int64

func (p Paise) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

func (p *Paise) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		// Bare numbers are accepted too (rupees).
		s = string(data)
	}
	v, err := ParsePaise(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Paise) String() string {
	neg := ""
	v := int64(p)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}

// ParsePaise parses a decimal rupee string ("29.99") into paise.
func ParsePaise(s string) (Paise, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	whole, frac, _ := strings.Cut(s, ".")
	v, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	neg := strings.HasPrefix(whole, "-")
	var cents int64
	if frac != "" {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price %q", s)
		}
	}
	if neg {
		return Paise(v*100 - cents), nil
	}
	return Paise(v*100 + cents), nil
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	Role         UserRole          `json:"role"`
	Status       UserStatus        `json:"status"`
	Preferences  map[string]string `json:"preferences,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Book is a catalog title sold by the store itself.
type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Genre         string    `json:"genre"`
	Category      string    `json:"category"`
	Price         Paise     `json:"price"`
	Rating        float64   `json:"rating"`
	Stock         int       `json:"stock"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	Description   string    `json:"description,omitempty"`
	ImageHash     string    `json:"-"`
	ImageFeatures []float32 `json:"-"`
	Embedding     []float32 `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// EmbeddingText is the text document embedded for semantic search.
func (b Book) EmbeddingText() string {
	return strings.TrimSpace(strings.Join([]string{b.Title, b.Author, b.Genre, b.Category, b.Description}, " "))
}

// ContentText is the shorter document used by the content recommendation model.
func (b Book) ContentText() string {
	return strings.TrimSpace(strings.Join([]string{b.Category, b.Genre, b.Author}, " "))
}

type BookCondition string

const (
	ConditionNew        BookCondition = "new"
	ConditionLikeNew    BookCondition = "like_new"
	ConditionVeryGood   BookCondition = "very_good"
	ConditionGood       BookCondition = "good"
	ConditionAcceptable BookCondition = "acceptable"
)

// ParseCondition validates a marketplace listing condition.
func ParseCondition(s string) (BookCondition, bool) {
	switch BookCondition(strings.ToLower(strings.TrimSpace(s))) {
	case ConditionNew:
		return ConditionNew, true
	case ConditionLikeNew:
		return ConditionLikeNew, true
	case ConditionVeryGood:
		return ConditionVeryGood, true
	case ConditionGood:
		return ConditionGood, true
	case ConditionAcceptable:
		return ConditionAcceptable, true
	default:
		return "", false
	}
}

// UserBook is a second-hand listing offered by a user in the marketplace.
type UserBook struct {
	ID            string        `json:"id"`
	SellerID      string        `json:"sellerId"`
	SellerName    string        `json:"sellerName,omitempty"`
	Title         string        `json:"title"`
	Author        string        `json:"author"`
	Genre         string        `json:"genre"`
	Category      string        `json:"category"`
	Price         Paise         `json:"price"`
	Condition     BookCondition `json:"condition"`
	Description   string        `json:"description,omitempty"`
	CoverKey      string        `json:"-"`
	ImageHash     string        `json:"-"`
	ImageFeatures []float32     `json:"-"`
	Embedding     []float32     `json:"-"`
	Available     bool          `json:"available"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (u UserBook) EmbeddingText() string {
	return strings.TrimSpace(strings.Join([]string{u.Title, u.Author, u.Genre, u.Category, u.Description}, " "))
}

type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	BookID    string    `json:"bookId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type OrderStatus string

const (
	OrderCart      OrderStatus = "cart"
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus validates admin-supplied status transitions.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case OrderCart:
		return OrderCart, true
	case OrderPending:
		return OrderPending, true
	case OrderConfirmed:
		return OrderConfirmed, true
	case OrderShipped:
		return OrderShipped, true
	case OrderDelivered:
		return OrderDelivered, true
	case OrderCancelled:
		return OrderCancelled, true
	default:
		return "", false
	}
}

// Order references either a catalog book or a marketplace listing, never both.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	BookID          string      `json:"bookId,omitempty"`
	UserBookID      string      `json:"userBookId,omitempty"`
	Quantity        int         `json:"quantity"`
	Status          OrderStatus `json:"status"`
	TotalPrice      Paise       `json:"totalPrice"`
	GatewayOrderID  string      `json:"gatewayOrderId,omitempty"`
	GatewayPayment  string      `json:"gatewayPaymentId,omitempty"`
	TrackingID      string      `json:"trackingId,omitempty"`
	ShippingAddress string      `json:"shippingAddress,omitempty"`
	OrderedAt       time.Time   `json:"orderedAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type WishlistItem struct {
	ID      string    `json:"id"`
	UserID  string    `json:"userId"`
	BookID  string    `json:"bookId"`
	AddedAt time.Time `json:"addedAt"`
}

// PaymentEvent is one webhook delivery from the payment gateway.
type PaymentEvent struct {
	ID             string    `json:"id"`
	GatewayEventID string    `json:"gatewayEventId"`
	Event          string    `json:"event"`
	GatewayOrderID string    `json:"gatewayOrderId,omitempty"`
	GatewayPayment string    `json:"gatewayPaymentId,omitempty"`
	Amount         Paise     `json:"amount"`
	Payload        []byte    `json:"-"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// DiscussionMessage is one post in the book-club feed.
type DiscussionMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	BookID    string    `json:"bookId,omitempty"`
	BookTitle string    `json:"bookTitle,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationKind string

const (
	NotifyOrderStatus NotificationKind = "order_status"
	NotifyDiscussion  NotificationKind = "discussion"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ScoredBook pairs a catalog book or marketplace listing with a similarity
// score. Exactly one of Book/UserBook is set.
type ScoredBook struct {
	Book     *Book     `json:"book,omitempty"`
	UserBook *UserBook `json:"userBook,omitempty"`
	Score    float64   `json:"score"`
}

// Title returns the title of whichever record is present.
func (s ScoredBook) Title() string {
	if s.Book != nil {
		return s.Book.Title
	}
	if s.UserBook != nil {
		return s.UserBook.Title
	}
	return ""
}
