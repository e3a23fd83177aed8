package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bibliotrack/pkg/domain"
)

const migrateLockID int64 = 84218421

const (
	defaultEmbeddingDim      = 768
	canonicalEmbeddingDimEnv = "BIBLIOTRACK_EMBEDDING_DIM"
)

// Sentinel errors surfaced by transactional order operations.
var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrListingUnavailable = errors.New("listing no longer available")
	ErrNoPendingOrders    = errors.New("no pending orders for gateway order")
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(
			&UserModel{}, &BookModel{}, &UserBookModel{}, &ReviewModel{},
			&OrderModel{}, &WishlistModel{}, &PaymentEventModel{},
			&DiscussionMessageModel{}, &NotificationModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		for _, table := range []string{"book_models", "user_book_models"} {
			if err := tx.Exec(fmt.Sprintf(`
				DO $$
				BEGIN
				IF EXISTS (
					SELECT 1 FROM information_schema.columns
					WHERE table_name = '%s' AND column_name = 'embedding'
				) THEN
					ALTER TABLE %s ALTER COLUMN embedding TYPE vector(%d);
				END IF;
				END $$;
			`, table, table, embeddingDim)).Error; err != nil {
				return fmt.Errorf("alter %s embedding type: %w", table, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "password_hash", "role", "status", "preferences", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasUsername checks if username exists.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users, oldest account first.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, len(models))
	for i, m := range models {
		users[i] = userFromModel(m)
	}
	return users, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveBook stores or updates a catalog book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "author", "genre", "category", "price_paise", "stock", "cover_image_url", "description", "updated_at"}),
	}).Create(&model).Error
}

// DeleteBook removes a catalog book.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

// GetBook retrieves a catalog book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns catalog books matching the filter.
func (s *GormStore) ListBooks(filter BookFilter) ([]domain.Book, error) {
	tx := s.db.Model(&BookModel{})
	if filter.Genre != "" {
		tx = tx.Where("genre = ?", filter.Genre)
	}
	if filter.Category != "" {
		tx = tx.Where("category = ?", filter.Category)
	}
	if filter.Author != "" {
		tx = tx.Where("author = ?", filter.Author)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + q + "%"
		tx = tx.Where("title ILIKE ? OR author ILIKE ?", like, like)
	}
	if filter.MinPrice > 0 {
		tx = tx.Where("price_paise >= ?", int64(filter.MinPrice))
	}
	if filter.MaxPrice > 0 {
		tx = tx.Where("price_paise <= ?", int64(filter.MaxPrice))
	}
	switch filter.Sort {
	case "price_asc":
		tx = tx.Order("price_paise ASC")
	case "price_desc":
		tx = tx.Order("price_paise DESC")
	case "rating":
		tx = tx.Order("rating DESC")
	case "newest":
		tx = tx.Order("created_at DESC")
	default:
		tx = tx.Order("title ASC")
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	var models []BookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// ListGenres returns distinct non-empty genres.
func (s *GormStore) ListGenres() ([]string, error) {
	return s.distinctColumn("genre")
}

// ListCategories returns distinct non-empty categories.
func (s *GormStore) ListCategories() ([]string, error) {
	return s.distinctColumn("category")
}

func (s *GormStore) distinctColumn(column string) ([]string, error) {
	var values []string
	if err := s.db.Model(&BookModel{}).
		Distinct(column).
		Where(column+" <> ''", nil).
		Order(column + " ASC").
		Pluck(column, &values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

// SetBookVectors updates the search artifacts for a catalog book.
func (s *GormStore) SetBookVectors(id string, embedding, imageFeatures []float32, imageHash string) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if len(embedding) > 0 {
		if err := s.validateEmbeddingDim(embedding); err != nil {
			return err
		}
		updates["embedding"] = pgvector.NewVector(embedding)
	}
	if len(imageFeatures) > 0 {
		raw, err := json.Marshal(imageFeatures)
		if err != nil {
			return err
		}
		updates["image_features"] = raw
	}
	if imageHash != "" {
		updates["image_hash"] = imageHash
	}
	return s.db.Model(&BookModel{}).Where("id = ?", id).Updates(updates).Error
}

// SearchBooksByEmbedding finds catalog books by cosine distance, nearest first.
func (s *GormStore) SearchBooksByEmbedding(embedding []float32, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		return []domain.Book{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var models []BookModel
	if err := s.db.Model(&BookModel{}).
		Where("embedding IS NOT NULL").
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// RefreshBookRating recomputes the denormalized average review rating.
func (s *GormStore) RefreshBookRating(bookID string) error {
	return s.db.Exec(`
		UPDATE book_models SET
			rating = COALESCE((SELECT AVG(rating)::float FROM review_models WHERE book_id = ?), 0),
			updated_at = ?
		WHERE id = ?
	`, bookID, time.Now().UTC(), bookID).Error
}

// SaveUserBook stores or updates a marketplace listing.
func (s *GormStore) SaveUserBook(b domain.UserBook) error {
	model := userBookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "author", "genre", "category", "condition", "price_paise", "cover_key", "description", "available", "updated_at"}),
	}).Create(&model).Error
}

// GetUserBook retrieves one marketplace listing.
func (s *GormStore) GetUserBook(id string) (domain.UserBook, bool, error) {
	var model UserBookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserBook{}, false, nil
		}
		return domain.UserBook{}, false, err
	}
	return userBookFromModel(model), true, nil
}

// ListUserBooks returns marketplace listings matching the filter.
func (s *GormStore) ListUserBooks(filter UserBookFilter) ([]domain.UserBook, error) {
	tx := s.db.Model(&UserBookModel{}).Order("created_at DESC")
	if filter.SellerID != "" {
		tx = tx.Where("seller_id = ?", filter.SellerID)
	}
	if filter.OnlyAvailable {
		tx = tx.Where("available")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + q + "%"
		tx = tx.Where("title ILIKE ? OR author ILIKE ?", like, like)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	var models []UserBookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.UserBook, 0, len(models))
	for _, m := range models {
		res = append(res, userBookFromModel(m))
	}
	return res, nil
}

// SetUserBookAvailable toggles listing availability.
func (s *GormStore) SetUserBookAvailable(id string, available bool) error {
	return s.db.Model(&UserBookModel{}).Where("id = ?", id).Updates(map[string]any{
		"available":  available,
		"updated_at": time.Now().UTC(),
	}).Error
}

// SetUserBookVectors updates the search artifacts for a listing.
func (s *GormStore) SetUserBookVectors(id string, embedding, imageFeatures []float32, imageHash string) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if len(embedding) > 0 {
		if err := s.validateEmbeddingDim(embedding); err != nil {
			return err
		}
		updates["embedding"] = pgvector.NewVector(embedding)
	}
	if len(imageFeatures) > 0 {
		raw, err := json.Marshal(imageFeatures)
		if err != nil {
			return err
		}
		updates["image_features"] = raw
	}
	if imageHash != "" {
		updates["image_hash"] = imageHash
	}
	return s.db.Model(&UserBookModel{}).Where("id = ?", id).Updates(updates).Error
}

// SearchUserBooksByEmbedding finds available listings by cosine distance,
// nearest first.
func (s *GormStore) SearchUserBooksByEmbedding(embedding []float32, limit int) ([]domain.UserBook, error) {
	if limit <= 0 {
		return []domain.UserBook{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var models []UserBookModel
	if err := s.db.Model(&UserBookModel{}).
		Where("available AND embedding IS NOT NULL").
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.UserBook, 0, len(models))
	for _, m := range models {
		res = append(res, userBookFromModel(m))
	}
	return res, nil
}

// SaveReview inserts or replaces the caller's review of a book.
func (s *GormStore) SaveReview(r domain.Review) error {
	model := reviewToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "created_at"}),
	}).Create(&model).Error
}

// GetReview returns one user's review of one book.
func (s *GormStore) GetReview(bookID, userID string) (domain.Review, bool, error) {
	var model ReviewModel
	if err := s.db.Where("book_id = ? AND user_id = ?", bookID, userID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

// ListReviewsByBook returns reviews newest first.
func (s *GormStore) ListReviewsByBook(bookID string) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("book_id = ?", bookID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	var prefs []byte
	if len(u.Preferences) > 0 {
		prefs, _ = json.Marshal(u.Preferences)
	}
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		Preferences:  prefs,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	var prefs map[string]string
	if len(m.Preferences) > 0 {
		_ = json.Unmarshal(m.Preferences, &prefs)
	}
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		Preferences:  prefs,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Genre:         b.Genre,
		Category:      b.Category,
		PricePaise:    int64(b.Price),
		Rating:        b.Rating,
		Stock:         b.Stock,
		CoverImageURL: b.CoverImageURL,
		Description:   b.Description,
		ImageHash:     b.ImageHash,
		ImageFeatures: marshalFeatures(b.ImageFeatures),
		Embedding:     vectorOrNil(b.Embedding),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:            m.ID,
		Title:         m.Title,
		Author:        m.Author,
		Genre:         m.Genre,
		Category:      m.Category,
		Price:         domain.Paise(m.PricePaise),
		Rating:        m.Rating,
		Stock:         m.Stock,
		CoverImageURL: m.CoverImageURL,
		Description:   m.Description,
		ImageHash:     m.ImageHash,
		ImageFeatures: unmarshalFeatures(m.ImageFeatures),
		Embedding:     vectorSlice(m.Embedding),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func userBookToModel(b domain.UserBook) UserBookModel {
	return UserBookModel{
		ID:            b.ID,
		SellerID:      b.SellerID,
		Title:         b.Title,
		Author:        b.Author,
		Genre:         b.Genre,
		Category:      b.Category,
		Condition:     string(b.Condition),
		PricePaise:    int64(b.Price),
		CoverKey:      b.CoverKey,
		Description:   b.Description,
		Available:     b.Available,
		ImageHash:     b.ImageHash,
		ImageFeatures: marshalFeatures(b.ImageFeatures),
		Embedding:     vectorOrNil(b.Embedding),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func userBookFromModel(m UserBookModel) domain.UserBook {
	return domain.UserBook{
		ID:            m.ID,
		SellerID:      m.SellerID,
		Title:         m.Title,
		Author:        m.Author,
		Genre:         m.Genre,
		Category:      m.Category,
		Condition:     domain.BookCondition(m.Condition),
		Price:         domain.Paise(m.PricePaise),
		CoverKey:      m.CoverKey,
		Description:   m.Description,
		Available:     m.Available,
		ImageHash:     m.ImageHash,
		ImageFeatures: unmarshalFeatures(m.ImageFeatures),
		Embedding:     vectorSlice(m.Embedding),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:        r.ID,
		BookID:    r.BookID,
		UserID:    r.UserID,
		Username:  r.Username,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:        m.ID,
		BookID:    m.BookID,
		UserID:    m.UserID,
		Username:  m.Username,
		Rating:    m.Rating,
		Comment:   m.Comment,
		CreatedAt: m.CreatedAt,
	}
}

func marshalFeatures(features []float32) []byte {
	if len(features) == 0 {
		return nil
	}
	raw, _ := json.Marshal(features)
	return raw
}

func unmarshalFeatures(raw []byte) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var features []float32
	_ = json.Unmarshal(raw, &features)
	return features
}

func vectorOrNil(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	vec := pgvector.NewVector(embedding)
	return &vec
}

func vectorSlice(vec *pgvector.Vector) []float32 {
	if vec == nil {
		return nil
	}
	return vec.Slice()
}
