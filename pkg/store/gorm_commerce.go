package store

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bibliotrack/pkg/domain"
)

// SaveOrder inserts or updates an order row.
func (s *GormStore) SaveOrder(o domain.Order) error {
	model := orderToModel(o)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "total_price_paise", "status", "gateway_order_id", "gateway_payment", "tracking_id", "shipping_address", "updated_at"}),
	}).Create(&model).Error
}

// GetOrder retrieves one order.
func (s *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return orderFromModel(model), true, nil
}

// GetCartOrder finds the caller's open cart line for a book or listing.
func (s *GormStore) GetCartOrder(userID, bookID, userBookID string) (domain.Order, bool, error) {
	tx := s.db.Where("user_id = ? AND status = ?", userID, string(domain.OrderCart))
	switch {
	case bookID != "":
		tx = tx.Where("book_id = ?", bookID)
	case userBookID != "":
		tx = tx.Where("user_book_id = ?", userBookID)
	default:
		return domain.Order{}, false, nil
	}
	var model OrderModel
	if err := tx.First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return orderFromModel(model), true, nil
}

// ListOrdersByUser returns a user's orders newest first, optionally
// restricted to the given statuses.
func (s *GormStore) ListOrdersByUser(userID string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	tx := s.db.Where("user_id = ?", userID)
	return s.listOrders(tx, statuses...)
}

// ListOrders returns all orders newest first, optionally by status.
func (s *GormStore) ListOrders(statuses ...domain.OrderStatus) ([]domain.Order, error) {
	return s.listOrders(s.db, statuses...)
}

func (s *GormStore) listOrders(tx *gorm.DB, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}
		tx = tx.Where("status IN ?", values)
	}
	var models []OrderModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Order, 0, len(models))
	for _, m := range models {
		res = append(res, orderFromModel(m))
	}
	return res, nil
}

// ListOrdersByGatewayOrderID returns orders attached to one gateway order.
func (s *GormStore) ListOrdersByGatewayOrderID(gatewayOrderID string) ([]domain.Order, error) {
	var models []OrderModel
	if err := s.db.Where("gateway_order_id = ?", gatewayOrderID).
		Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Order, 0, len(models))
	for _, m := range models {
		res = append(res, orderFromModel(m))
	}
	return res, nil
}

// MarkOrdersPending attaches the gateway order and moves cart lines to
// pending in one transaction.
func (s *GormStore) MarkOrdersPending(orderIDs []string, gatewayOrderID string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return s.db.Model(&OrderModel{}).
		Where("id IN ?", orderIDs).
		Updates(map[string]any{
			"status":           string(domain.OrderPending),
			"gateway_order_id": gatewayOrderID,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// ConfirmOrders atomically confirms all pending orders of a gateway order:
// catalog stock is decremented and marketplace listings are marked sold.
// Nothing is applied if any line cannot be fulfilled.
func (s *GormStore) ConfirmOrders(gatewayOrderID, paymentRef string) ([]domain.Order, error) {
	var confirmed []domain.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var models []OrderModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("gateway_order_id = ? AND status = ?", gatewayOrderID, string(domain.OrderPending)).
			Find(&models).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return ErrNoPendingOrders
		}
		now := time.Now().UTC()
		for i := range models {
			m := &models[i]
			if m.BookID != nil {
				res := tx.Model(&BookModel{}).
					Where("id = ? AND stock >= ?", *m.BookID, m.Quantity).
					Updates(map[string]any{
						"stock":      gorm.Expr("stock - ?", m.Quantity),
						"updated_at": now,
					})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return fmt.Errorf("%w: book %s", ErrInsufficientStock, *m.BookID)
				}
			}
			if m.UserBookID != nil {
				res := tx.Model(&UserBookModel{}).
					Where("id = ? AND available", *m.UserBookID).
					Updates(map[string]any{"available": false, "updated_at": now})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return fmt.Errorf("%w: listing %s", ErrListingUnavailable, *m.UserBookID)
				}
			}
			if err := tx.Model(&OrderModel{}).Where("id = ?", m.ID).Updates(map[string]any{
				"status":          string(domain.OrderConfirmed),
				"gateway_payment": paymentRef,
				"updated_at":      now,
			}).Error; err != nil {
				return err
			}
			m.Status = string(domain.OrderConfirmed)
			m.GatewayPayment = paymentRef
			m.UpdatedAt = now
			confirmed = append(confirmed, orderFromModel(*m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// UpdateOrderStatus sets order status and optional tracking id.
func (s *GormStore) UpdateOrderStatus(id string, status domain.OrderStatus, trackingID string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if strings.TrimSpace(trackingID) != "" {
		updates["tracking_id"] = strings.TrimSpace(trackingID)
	}
	return s.db.Model(&OrderModel{}).Where("id = ?", id).Updates(updates).Error
}

// OrderCountsByBook returns how many orders reference each catalog book.
func (s *GormStore) OrderCountsByBook() (map[string]int, error) {
	type row struct {
		BookID string
		N      int
	}
	var rows []row
	if err := s.db.Model(&OrderModel{}).
		Select("book_id, COUNT(*) AS n").
		Where("book_id IS NOT NULL").
		Group("book_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.BookID] = r.N
	}
	return counts, nil
}

// AddWishlistItem inserts a wishlist row; duplicates are ignored.
func (s *GormStore) AddWishlistItem(item domain.WishlistItem) error {
	model := WishlistModel{
		ID:        item.ID,
		UserID:    item.UserID,
		BookID:    item.BookID,
		CreatedAt: item.AddedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoNothing: true,
	}).Create(&model).Error
}

// RemoveWishlistItem deletes a wishlist row.
func (s *GormStore) RemoveWishlistItem(userID, bookID string) error {
	return s.db.Delete(&WishlistModel{}, "user_id = ? AND book_id = ?", userID, bookID).Error
}

// ListWishlist returns a user's wishlist oldest first.
func (s *GormStore) ListWishlist(userID string) ([]domain.WishlistItem, error) {
	var models []WishlistModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.WishlistItem, 0, len(models))
	for _, m := range models {
		res = append(res, domain.WishlistItem{
			ID:      m.ID,
			UserID:  m.UserID,
			BookID:  m.BookID,
			AddedAt: m.CreatedAt,
		})
	}
	return res, nil
}

// SavePaymentEvent persists one webhook delivery. It reports false when the
// gateway event id was already recorded.
func (s *GormStore) SavePaymentEvent(event domain.PaymentEvent) (bool, error) {
	model := PaymentEventModel{
		ID:             event.ID,
		GatewayEventID: event.GatewayEventID,
		Event:          event.Event,
		GatewayOrderID: event.GatewayOrderID,
		GatewayPayment: event.GatewayPayment,
		AmountPaise:    int64(event.Amount),
		Payload:        event.Payload,
		ReceivedAt:     event.ReceivedAt,
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_event_id"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListPaymentEvents returns recent webhook deliveries, newest first.
func (s *GormStore) ListPaymentEvents(limit int) ([]domain.PaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []PaymentEventModel
	if err := s.db.Order("received_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PaymentEvent, 0, len(models))
	for _, m := range models {
		res = append(res, domain.PaymentEvent{
			ID:             m.ID,
			GatewayEventID: m.GatewayEventID,
			Event:          m.Event,
			GatewayOrderID: m.GatewayOrderID,
			GatewayPayment: m.GatewayPayment,
			Amount:         domain.Paise(m.AmountPaise),
			Payload:        m.Payload,
			ReceivedAt:     m.ReceivedAt,
		})
	}
	return res, nil
}

// SaveDiscussionMessage records an accepted feed post.
func (s *GormStore) SaveDiscussionMessage(msg domain.DiscussionMessage) error {
	model := discussionToModel(msg)
	return s.db.Create(&model).Error
}

// ListDiscussionMessages returns the latest feed posts in chronological order.
func (s *GormStore) ListDiscussionMessages(limit int) ([]domain.DiscussionMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []DiscussionMessageModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.DiscussionMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		res = append(res, discussionFromModel(models[i]))
	}
	return res, nil
}

// SaveNotification records a notification.
func (s *GormStore) SaveNotification(n domain.Notification) error {
	model := NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// ListNotificationsByUser returns notifications newest first.
func (s *GormStore) ListNotificationsByUser(userID string, unreadOnly bool) ([]domain.Notification, error) {
	tx := s.db.Where("user_id = ?", userID)
	if unreadOnly {
		tx = tx.Where("NOT read")
	}
	var models []NotificationModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Notification{
			ID:        m.ID,
			UserID:    m.UserID,
			Kind:      domain.NotificationKind(m.Kind),
			Message:   m.Message,
			Read:      m.Read,
			CreatedAt: m.CreatedAt,
		})
	}
	return res, nil
}

// MarkNotificationRead marks one of the user's notifications as read.
func (s *GormStore) MarkNotificationRead(userID, id string) error {
	return s.db.Model(&NotificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true).Error
}

func orderToModel(o domain.Order) OrderModel {
	var bookID, userBookID *string
	if strings.TrimSpace(o.BookID) != "" {
		value := strings.TrimSpace(o.BookID)
		bookID = &value
	}
	if strings.TrimSpace(o.UserBookID) != "" {
		value := strings.TrimSpace(o.UserBookID)
		userBookID = &value
	}
	return OrderModel{
		ID:              o.ID,
		UserID:          o.UserID,
		BookID:          bookID,
		UserBookID:      userBookID,
		Quantity:        o.Quantity,
		TotalPricePaise: int64(o.TotalPrice),
		Status:          string(o.Status),
		GatewayOrderID:  o.GatewayOrderID,
		GatewayPayment:  o.GatewayPayment,
		TrackingID:      o.TrackingID,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.OrderedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) domain.Order {
	bookID := ""
	if m.BookID != nil {
		bookID = *m.BookID
	}
	userBookID := ""
	if m.UserBookID != nil {
		userBookID = *m.UserBookID
	}
	return domain.Order{
		ID:              m.ID,
		UserID:          m.UserID,
		BookID:          bookID,
		UserBookID:      userBookID,
		Quantity:        m.Quantity,
		TotalPrice:      domain.Paise(m.TotalPricePaise),
		Status:          domain.OrderStatus(m.Status),
		GatewayOrderID:  m.GatewayOrderID,
		GatewayPayment:  m.GatewayPayment,
		TrackingID:      m.TrackingID,
		ShippingAddress: m.ShippingAddress,
		OrderedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func discussionToModel(msg domain.DiscussionMessage) DiscussionMessageModel {
	var bookID *string
	if strings.TrimSpace(msg.BookID) != "" {
		value := strings.TrimSpace(msg.BookID)
		bookID = &value
	}
	return DiscussionMessageModel{
		ID:        msg.ID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		BookID:    bookID,
		BookTitle: msg.BookTitle,
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt,
	}
}

func discussionFromModel(m DiscussionMessageModel) domain.DiscussionMessage {
	bookID := ""
	if m.BookID != nil {
		bookID = *m.BookID
	}
	return domain.DiscussionMessage{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		BookID:    bookID,
		BookTitle: m.BookTitle,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}
