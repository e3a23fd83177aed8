package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bibliotrack/pkg/chatbot"
)

func TestChatAnswersGreeting(t *testing.T) {
	a, _ := newTestApp(t, nil)
	reply, err := a.Chat(context.Background(), "u1", "hello there", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Intent != chatbot.IntentGreeting || reply.Message == "" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	a, _ := newTestApp(t, nil)
	if _, err := a.Chat(context.Background(), "u1", "   ", nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestChatWithImageRunsVisualSearch(t *testing.T) {
	extractor := &countingExtractor{vec: []float32{1, 0, 0, 0}}
	a, st := newTestApp(t, func(cfg *Config) { cfg.Vision = extractor })
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	if err := st.SetBookVectors("b1", nil, []float32{1, 0, 0, 0}, "h"); err != nil {
		t.Fatalf("set vectors: %v", err)
	}

	reply, err := a.Chat(context.Background(), "u1", "what book is this?", []byte("cover-photo"))
	if err != nil {
		t.Fatalf("chat with image: %v", err)
	}
	if reply.Intent != chatbot.IntentSearch || !strings.Contains(reply.Message, "Dune") {
		t.Fatalf("reply = %+v, want Dune match", reply)
	}
}

func TestChatWithUnmatchedImage(t *testing.T) {
	extractor := &countingExtractor{vec: []float32{0, 1, 0, 0}}
	a, st := newTestApp(t, func(cfg *Config) { cfg.Vision = extractor })
	seedCatalogBook(t, st, "b1", "Dune", 29900, 5)
	// Orthogonal stored features: below the match threshold.
	if err := st.SetBookVectors("b1", nil, []float32{1, 0, 0, 0}, "h"); err != nil {
		t.Fatalf("set vectors: %v", err)
	}

	reply, err := a.Chat(context.Background(), "u1", "", []byte("cover-photo"))
	if err != nil {
		t.Fatalf("chat with image: %v", err)
	}
	if !strings.Contains(reply.Message, "couldn't match") {
		t.Fatalf("reply = %+v, want no-match message", reply)
	}
}
