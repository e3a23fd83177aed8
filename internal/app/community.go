package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/notify"
)

const discussionFeedLimit = 50

// PostDiscussion moderates and publishes a book-club message, fanning it
// out to every connected reader.
func (a *App) PostDiscussion(ctx context.Context, user domain.User, bookID, message string) (domain.DiscussionMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.DiscussionMessage{}, invalidf("message is required")
	}
	if a.moderator != nil {
		result := a.moderator.Moderate(message)
		if result.Flagged {
			a.logger.Info("discussion post flagged",
				"user_id", user.ID, "confidence", result.Confidence, "reason", result.Reason)
			return domain.DiscussionMessage{}, wrapf(ErrContentRejected, "%s", result.Reason)
		}
	}

	msg := domain.DiscussionMessage{
		ID:        util.NewID(),
		UserID:    user.ID,
		Username:  user.Username,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if bookID != "" {
		book, ok, err := a.store.GetBook(bookID)
		if err != nil {
			return domain.DiscussionMessage{}, fmt.Errorf("fetch book: %w", err)
		}
		if !ok {
			return domain.DiscussionMessage{}, wrapf(ErrNotFound, "book %s", bookID)
		}
		msg.BookID = book.ID
		msg.BookTitle = book.Title
	}
	if err := a.store.SaveDiscussionMessage(msg); err != nil {
		return domain.DiscussionMessage{}, fmt.Errorf("save discussion message: %w", err)
	}
	a.emit(ctx, notify.Message{Type: notify.TypeDiscussion, Data: msg})
	return msg, nil
}

// Discussion returns the latest feed messages in chronological order.
func (a *App) Discussion(ctx context.Context) ([]domain.DiscussionMessage, error) {
	messages, err := a.store.ListDiscussionMessages(discussionFeedLimit)
	if err != nil {
		return nil, fmt.Errorf("list discussion: %w", err)
	}
	return messages, nil
}

// Notifications lists the caller's notifications, optionally unread only.
func (a *App) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	items, err := a.store.ListNotificationsByUser(userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (a *App) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := a.store.MarkNotificationRead(userID, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
