package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"bibliotrack/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	books         map[string]domain.Book
	userBooks     map[string]domain.UserBook
	reviews       map[string]domain.Review // key: bookID+"/"+userID
	orders        map[string]domain.Order
	wishlist      map[string]domain.WishlistItem // key: userID+"/"+bookID
	paymentEvents map[string]domain.PaymentEvent // key: gateway event id
	discussion    []domain.DiscussionMessage
	notifications map[string]domain.Notification
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		books:         make(map[string]domain.Book),
		userBooks:     make(map[string]domain.UserBook),
		reviews:       make(map[string]domain.Review),
		orders:        make(map[string]domain.Order),
		wishlist:      make(map[string]domain.WishlistItem),
		paymentEvents: make(map[string]domain.PaymentEvent),
		notifications: make(map[string]domain.Notification),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) HasUsername(username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *MemoryStore) UserCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) SaveBook(b domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.books[b.ID]; ok {
		b.ImageHash = existing.ImageHash
		b.ImageFeatures = existing.ImageFeatures
		b.Embedding = existing.Embedding
		b.Rating = existing.Rating
	}
	s.books[b.ID] = b
	return nil
}

func (s *MemoryStore) DeleteBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	return nil
}

func (s *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) ListBooks(filter BookFilter) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Book, 0, len(s.books))
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, b := range s.books {
		if filter.Genre != "" && b.Genre != filter.Genre {
			continue
		}
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		if filter.Author != "" && b.Author != filter.Author {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Title), q) && !strings.Contains(strings.ToLower(b.Author), q) {
			continue
		}
		if filter.MinPrice > 0 && b.Price < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && b.Price > filter.MaxPrice {
			continue
		}
		res = append(res, b)
	}
	switch filter.Sort {
	case "price_asc":
		sort.Slice(res, func(i, j int) bool { return res[i].Price < res[j].Price })
	case "price_desc":
		sort.Slice(res, func(i, j int) bool { return res[i].Price > res[j].Price })
	case "rating":
		sort.Slice(res, func(i, j int) bool { return res[i].Rating > res[j].Rating })
	case "newest":
		sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	default:
		sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(res) {
			return []domain.Book{}, nil
		}
		res = res[filter.Offset:]
	}
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}
	return res, nil
}

func (s *MemoryStore) ListGenres() ([]string, error) {
	return s.distinct(func(b domain.Book) string { return b.Genre })
}

func (s *MemoryStore) ListCategories() ([]string, error) {
	return s.distinct(func(b domain.Book) string { return b.Category })
}

func (s *MemoryStore) distinct(pick func(domain.Book) string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, b := range s.books {
		if v := pick(b); v != "" {
			seen[v] = true
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

func (s *MemoryStore) SetBookVectors(id string, embedding, imageFeatures []float32, imageHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return fmt.Errorf("book %s not found", id)
	}
	if len(embedding) > 0 {
		b.Embedding = embedding
	}
	if len(imageFeatures) > 0 {
		b.ImageFeatures = imageFeatures
	}
	if imageHash != "" {
		b.ImageHash = imageHash
	}
	s.books[id] = b
	return nil
}

func (s *MemoryStore) SearchBooksByEmbedding(embedding []float32, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		return []domain.Book{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		book domain.Book
		dist float64
	}
	var hits []scored
	for _, b := range s.books {
		if len(b.Embedding) == 0 {
			continue
		}
		hits = append(hits, scored{book: b, dist: cosineDistance(embedding, b.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	res := make([]domain.Book, 0, len(hits))
	for _, h := range hits {
		res = append(res, h.book)
	}
	return res, nil
}

func (s *MemoryStore) RefreshBookRating(bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return nil
	}
	var sum, n float64
	for _, r := range s.reviews {
		if r.BookID == bookID {
			sum += float64(r.Rating)
			n++
		}
	}
	if n == 0 {
		b.Rating = 0
	} else {
		b.Rating = sum / n
	}
	s.books[bookID] = b
	return nil
}

func (s *MemoryStore) SaveUserBook(b domain.UserBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.userBooks[b.ID]; ok {
		b.ImageHash = existing.ImageHash
		b.ImageFeatures = existing.ImageFeatures
		b.Embedding = existing.Embedding
	}
	s.userBooks[b.ID] = b
	return nil
}

func (s *MemoryStore) GetUserBook(id string) (domain.UserBook, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.userBooks[id]
	return b, ok, nil
}

func (s *MemoryStore) ListUserBooks(filter UserBookFilter) ([]domain.UserBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	res := make([]domain.UserBook, 0, len(s.userBooks))
	for _, b := range s.userBooks {
		if filter.SellerID != "" && b.SellerID != filter.SellerID {
			continue
		}
		if filter.OnlyAvailable && !b.Available {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Title), q) && !strings.Contains(strings.ToLower(b.Author), q) {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}
	return res, nil
}

func (s *MemoryStore) SetUserBookAvailable(id string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.userBooks[id]
	if !ok {
		return fmt.Errorf("listing %s not found", id)
	}
	b.Available = available
	b.UpdatedAt = time.Now().UTC()
	s.userBooks[id] = b
	return nil
}

func (s *MemoryStore) SetUserBookVectors(id string, embedding, imageFeatures []float32, imageHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.userBooks[id]
	if !ok {
		return fmt.Errorf("listing %s not found", id)
	}
	if len(embedding) > 0 {
		b.Embedding = embedding
	}
	if len(imageFeatures) > 0 {
		b.ImageFeatures = imageFeatures
	}
	if imageHash != "" {
		b.ImageHash = imageHash
	}
	s.userBooks[id] = b
	return nil
}

func (s *MemoryStore) SearchUserBooksByEmbedding(embedding []float32, limit int) ([]domain.UserBook, error) {
	if limit <= 0 {
		return []domain.UserBook{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		listing domain.UserBook
		dist    float64
	}
	var hits []scored
	for _, b := range s.userBooks {
		if !b.Available || len(b.Embedding) == 0 {
			continue
		}
		hits = append(hits, scored{listing: b, dist: cosineDistance(embedding, b.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	res := make([]domain.UserBook, 0, len(hits))
	for _, h := range hits {
		res = append(res, h.listing)
	}
	return res, nil
}

func (s *MemoryStore) SaveReview(r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.BookID+"/"+r.UserID] = r
	return nil
}

func (s *MemoryStore) GetReview(bookID, userID string) (domain.Review, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[bookID+"/"+userID]
	return r, ok, nil
}

func (s *MemoryStore) ListReviewsByBook(bookID string) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Review
	for _, r := range s.reviews {
		if r.BookID == bookID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) SaveOrder(o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) GetOrder(id string) (domain.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok, nil
}

func (s *MemoryStore) GetCartOrder(userID, bookID, userBookID string) (domain.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.UserID != userID || o.Status != domain.OrderCart {
			continue
		}
		if bookID != "" && o.BookID == bookID {
			return o, true, nil
		}
		if userBookID != "" && o.UserBookID == userBookID {
			return o, true, nil
		}
	}
	return domain.Order{}, false, nil
}

func (s *MemoryStore) ListOrdersByUser(userID string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID && matchStatus(o.Status, statuses) {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderedAt.After(res[j].OrderedAt) })
	return res, nil
}

func (s *MemoryStore) ListOrders(statuses ...domain.OrderStatus) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Order
	for _, o := range s.orders {
		if matchStatus(o.Status, statuses) {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderedAt.After(res[j].OrderedAt) })
	return res, nil
}

func (s *MemoryStore) ListOrdersByGatewayOrderID(gatewayOrderID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Order
	for _, o := range s.orders {
		if o.GatewayOrderID == gatewayOrderID {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderedAt.Before(res[j].OrderedAt) })
	return res, nil
}

func (s *MemoryStore) MarkOrdersPending(orderIDs []string, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range orderIDs {
		o, ok := s.orders[id]
		if !ok {
			continue
		}
		o.Status = domain.OrderPending
		o.GatewayOrderID = gatewayOrderID
		o.UpdatedAt = time.Now().UTC()
		s.orders[id] = o
	}
	return nil
}

func (s *MemoryStore) ConfirmOrders(gatewayOrderID, paymentRef string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.orders {
		if o.GatewayOrderID == gatewayOrderID && o.Status == domain.OrderPending {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoPendingOrders
	}
	sort.Strings(ids)
	// Validate every line before mutating anything.
	for _, id := range ids {
		o := s.orders[id]
		if o.BookID != "" {
			b, ok := s.books[o.BookID]
			if !ok || b.Stock < o.Quantity {
				return nil, fmt.Errorf("%w: book %s", ErrInsufficientStock, o.BookID)
			}
		}
		if o.UserBookID != "" {
			ub, ok := s.userBooks[o.UserBookID]
			if !ok || !ub.Available {
				return nil, fmt.Errorf("%w: listing %s", ErrListingUnavailable, o.UserBookID)
			}
		}
	}
	now := time.Now().UTC()
	confirmed := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o := s.orders[id]
		if o.BookID != "" {
			b := s.books[o.BookID]
			b.Stock -= o.Quantity
			s.books[o.BookID] = b
		}
		if o.UserBookID != "" {
			ub := s.userBooks[o.UserBookID]
			ub.Available = false
			s.userBooks[o.UserBookID] = ub
		}
		o.Status = domain.OrderConfirmed
		o.GatewayPayment = paymentRef
		o.UpdatedAt = now
		s.orders[id] = o
		confirmed = append(confirmed, o)
	}
	return confirmed, nil
}

func (s *MemoryStore) UpdateOrderStatus(id string, status domain.OrderStatus, trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	o.Status = status
	if strings.TrimSpace(trackingID) != "" {
		o.TrackingID = strings.TrimSpace(trackingID)
	}
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

func (s *MemoryStore) OrderCountsByBook() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, o := range s.orders {
		if o.BookID != "" {
			counts[o.BookID]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) AddWishlistItem(item domain.WishlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := item.UserID + "/" + item.BookID
	if _, ok := s.wishlist[key]; ok {
		return nil
	}
	s.wishlist[key] = item
	return nil
}

func (s *MemoryStore) RemoveWishlistItem(userID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wishlist, userID+"/"+bookID)
	return nil
}

func (s *MemoryStore) ListWishlist(userID string) ([]domain.WishlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.WishlistItem
	for _, item := range s.wishlist {
		if item.UserID == userID {
			res = append(res, item)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AddedAt.Before(res[j].AddedAt) })
	return res, nil
}

func (s *MemoryStore) SavePaymentEvent(event domain.PaymentEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paymentEvents[event.GatewayEventID]; ok {
		return false, nil
	}
	s.paymentEvents[event.GatewayEventID] = event
	return true, nil
}

func (s *MemoryStore) ListPaymentEvents(limit int) ([]domain.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.PaymentEvent, 0, len(s.paymentEvents))
	for _, e := range s.paymentEvents {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ReceivedAt.After(res[j].ReceivedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) SaveDiscussionMessage(msg domain.DiscussionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discussion = append(s.discussion, msg)
	return nil
}

func (s *MemoryStore) ListDiscussionMessages(limit int) ([]domain.DiscussionMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	start := 0
	if len(s.discussion) > limit {
		start = len(s.discussion) - limit
	}
	res := make([]domain.DiscussionMessage, len(s.discussion)-start)
	copy(res, s.discussion[start:])
	return res, nil
}

func (s *MemoryStore) SaveNotification(n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	return nil
}

func (s *MemoryStore) ListNotificationsByUser(userID string, unreadOnly bool) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Notification
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) MarkNotificationRead(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return nil
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func matchStatus(status domain.OrderStatus, statuses []domain.OrderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
