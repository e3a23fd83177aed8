package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func attachClient(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	client := &Client{hub: hub, userID: userID, send: make(chan Message, 8), logger: hub.logger}
	hub.register <- client
	return client
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestPublishReachesAllClients(t *testing.T) {
	hub := startHub(t)
	c1 := attachClient(t, hub, "u1")
	c2 := attachClient(t, hub, "u2")

	hub.Publish(Message{Type: TypeDiscussion, Data: "new post"})

	for _, c := range []*Client{c1, c2} {
		if msg := receive(t, c); msg.Type != TypeDiscussion {
			t.Fatalf("got type %q, want %q", msg.Type, TypeDiscussion)
		}
	}
}

func TestPublishTargetsSingleUser(t *testing.T) {
	hub := startHub(t)
	c1 := attachClient(t, hub, "u1")
	c2 := attachClient(t, hub, "u2")

	hub.Publish(Message{Type: TypeNotification, UserID: "u1", Data: "order shipped"})

	if msg := receive(t, c1); msg.Type != TypeNotification {
		t.Fatalf("got type %q, want %q", msg.Type, TypeNotification)
	}
	select {
	case msg := <-c2.send:
		t.Fatalf("unintended recipient got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub, "u1")

	hub.unregister <- client

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-client.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel never closed")
		}
	}
}

func TestRunCancelClosesClients(t *testing.T) {
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	client := &Client{hub: hub, userID: "u1", send: make(chan Message, 8), logger: hub.logger}
	hub.register <- client

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("clients remain after shutdown: %d", hub.ClientCount())
	}
}

func TestUnregisterAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	client := &Client{hub: hub, userID: "u1", send: make(chan Message, 8), logger: hub.logger}
	hub.register <- client

	cancel()
	<-done

	released := make(chan struct{})
	go func() {
		select {
		case hub.unregister <- client:
		case <-hub.done:
		}
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after hub shutdown")
	}
}
