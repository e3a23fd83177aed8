package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string
	Preferences  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null;index"`
	Author        string `gorm:"not null;index"`
	Genre         string `gorm:"index"`
	Category      string `gorm:"index"`
	PricePaise    int64  `gorm:"not null"`
	Rating        float64
	Stock         int `gorm:"not null"`
	CoverImageURL string
	Description   string           `gorm:"type:text"`
	ImageHash     string           `gorm:"index"`
	ImageFeatures datatypes.JSON   `gorm:"type:jsonb"`
	Embedding     *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt     time.Time        `gorm:"not null"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

type UserBookModel struct {
	ID            string `gorm:"primaryKey"`
	SellerID      string `gorm:"not null;index"`
	Title         string `gorm:"not null"`
	Author        string `gorm:"not null"`
	Genre         string
	Category      string
	Condition     string `gorm:"not null"`
	PricePaise    int64  `gorm:"not null"`
	CoverKey      string
	Description   string `gorm:"type:text"`
	Available     bool   `gorm:"not null;index"`
	ImageHash     string
	ImageFeatures datatypes.JSON   `gorm:"type:jsonb"`
	Embedding     *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt     time.Time        `gorm:"not null"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

type ReviewModel struct {
	ID        string    `gorm:"primaryKey"`
	BookID    string    `gorm:"not null;index;uniqueIndex:idx_review_user_book"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_review_user_book"`
	Username  string    `gorm:"not null"`
	Rating    int       `gorm:"not null"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type OrderModel struct {
	ID              string  `gorm:"primaryKey"`
	UserID          string  `gorm:"not null;index"`
	BookID          *string `gorm:"index"`
	UserBookID      *string `gorm:"index"`
	Quantity        int     `gorm:"not null"`
	TotalPricePaise int64   `gorm:"not null"`
	Status          string  `gorm:"not null;index"`
	GatewayOrderID  string  `gorm:"index"`
	GatewayPayment  string
	TrackingID      string
	ShippingAddress string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type WishlistModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index;uniqueIndex:idx_wishlist_user_book"`
	BookID    string    `gorm:"not null;uniqueIndex:idx_wishlist_user_book"`
	CreatedAt time.Time `gorm:"not null"`
}

type PaymentEventModel struct {
	ID             string         `gorm:"primaryKey"`
	GatewayEventID string         `gorm:"uniqueIndex;not null"`
	Event          string         `gorm:"not null;index"`
	GatewayOrderID string         `gorm:"index"`
	GatewayPayment string         `gorm:"index"`
	AmountPaise    int64          `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt     time.Time      `gorm:"not null;index"`
}

type DiscussionMessageModel struct {
	ID        string  `gorm:"primaryKey"`
	UserID    string  `gorm:"not null;index"`
	Username  string  `gorm:"not null"`
	BookID    *string `gorm:"index"`
	BookTitle string
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type NotificationModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Kind      string    `gorm:"not null"`
	Message   string    `gorm:"type:text;not null"`
	Read      bool      `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}
