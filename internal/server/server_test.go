package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()

	s := New("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	// Wait for the listener to come up.
	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == "127.0.0.1:0" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ListenAndServe: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return s, cancel
}

func TestPublishReachesClient(t *testing.T) {
	s, _ := startTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Publishing may race the connect handshake; retry briefly until the
	// client is registered.
	received := make(chan []byte, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- data
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Publish("service-found", map[string]string{"name": "test"})

		select {
		case data := <-received:
			var event Event
			if err := json.Unmarshal(data, &event); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if event.Kind != "service-found" {
				t.Errorf("kind = %q, want service-found", event.Kind)
			}
			payload, ok := event.Payload.(map[string]any)
			if !ok || payload["name"] != "test" {
				t.Errorf("payload = %v", event.Payload)
			}
			return

		case <-time.After(100 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("event never arrived")
			}
		}
	}
}

func TestPublishWithoutClients(t *testing.T) {
	s := New("127.0.0.1:0")

	// Publishing with no clients and no listener must not block or panic.
	s.Publish("host-found", map[string]string{"host": "alpha"})
}
