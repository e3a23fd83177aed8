package chatbot

import (
	"strings"
	"testing"

	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	for _, b := range []domain.Book{
		{ID: "b1", Title: "The Silent Patient", Author: "Alex Michaelides", Genre: "Thriller", Category: "Fiction", Rating: 4.5},
		{ID: "b2", Title: "Atomic Habits", Author: "James Clear", Genre: "Self-Help", Category: "Non-Fiction", Description: "Build better habits", Rating: 4.8},
		{ID: "b3", Title: "Dune", Author: "Frank Herbert", Genre: "Fantasy", Category: "Fiction", Rating: 4.2},
	} {
		if err := st.SaveBook(b); err != nil {
			t.Fatalf("SaveBook: %v", err)
		}
	}
	return st
}

func TestClassifyIntents(t *testing.T) {
	bot := New(seededStore(t), 1)
	cases := []struct {
		message string
		want    Intent
	}{
		{"Can you recommend a book for me?", IntentRecommendation},
		{"search for mystery novels", IntentSearch},
		{"what can you do?", IntentHelp},
		{"hello there", IntentGreeting},
		{"goodbye", IntentFarewell},
		{"quantum flux capacitor", IntentUnknown},
	}
	for _, tc := range cases {
		if got := bot.classify(tc.message); got != tc.want {
			t.Errorf("classify(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestReplyRecommendsByGenreKeyword(t *testing.T) {
	bot := New(seededStore(t), 1)
	reply, err := bot.Reply("", "recommend a good thriller book")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Intent != IntentRecommendation {
		t.Fatalf("intent = %s, want recommendation", reply.Intent)
	}
	if !strings.Contains(reply.Message, "The Silent Patient") {
		t.Fatalf("message %q missing thriller title", reply.Message)
	}
	if strings.Contains(reply.Message, "Dune") {
		t.Fatalf("message %q includes non-thriller title", reply.Message)
	}
}

func TestReplySearchByTopic(t *testing.T) {
	bot := New(seededStore(t), 1)
	reply, err := bot.Reply("", "search for books about habit building")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Intent != IntentSearch {
		t.Fatalf("intent = %s, want search", reply.Intent)
	}
	if !strings.Contains(reply.Message, "Atomic Habits") {
		t.Fatalf("message %q missing topic match", reply.Message)
	}
}

func TestReplyRecommendationFallsBackToTopRated(t *testing.T) {
	bot := New(seededStore(t), 1)
	reply, err := bot.Reply("", "what should I read next?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	// No lexicon keywords in the message: highest rated books are offered.
	if !strings.Contains(reply.Message, "Atomic Habits") {
		t.Fatalf("message %q missing top-rated title", reply.Message)
	}
}

func TestReplyPersonalizesFromOrderHistory(t *testing.T) {
	st := seededStore(t)
	if err := st.SaveBook(domain.Book{ID: "b4", Title: "Gone Girl", Author: "Gillian Flynn", Genre: "Thriller", Rating: 4.0}); err != nil {
		t.Fatalf("SaveBook: %v", err)
	}
	if err := st.SaveOrder(domain.Order{ID: "o1", UserID: "u1", BookID: "b1", Quantity: 1, Status: domain.OrderConfirmed}); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	bot := New(st, 1)
	reply, err := bot.Reply("u1", "what should I read next?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !strings.Contains(reply.Message, "Gone Girl") {
		t.Fatalf("message %q missing same-genre suggestion", reply.Message)
	}
	if strings.Contains(reply.Message, "The Silent Patient") {
		t.Fatalf("message %q recommends an already-purchased book", reply.Message)
	}
}

func TestReplySearchIncludesAvailableListings(t *testing.T) {
	st := seededStore(t)
	if err := st.SaveUserBook(domain.UserBook{ID: "l1", Title: "Old Mystery Omnibus", Author: "Various", Genre: "Mystery", SellerID: "u2", Available: true}); err != nil {
		t.Fatalf("SaveUserBook: %v", err)
	}
	bot := New(st, 1)
	reply, err := bot.Reply("", "search for mystery books about detectives")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !strings.Contains(reply.Message, "Old Mystery Omnibus") {
		t.Fatalf("message %q missing marketplace listing", reply.Message)
	}
}

func TestReplyRejectsEmptyMessage(t *testing.T) {
	bot := New(seededStore(t), 1)
	if _, err := bot.Reply("", "  "); err == nil {
		t.Fatal("expected error for blank message")
	}
}
