package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"tutorhub/internal/config"
	"tutorhub/internal/presence"
	"tutorhub/internal/relay"
	"tutorhub/internal/session"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

type mockStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*types.Session)}
}

func (m *mockStore) Find(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, exists := m.sessions[sessionID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := *found
	return &copied, nil
}

func (m *mockStore) Save(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *mockStore) FindCurrent(ctx context.Context, userID, role string) (*types.Session, error) {
	return nil, interfaces.ErrSessionNotFound
}

func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

type mockNotifier struct{}

func (mockNotifier) SessionWaiting(ctx context.Context, sessionType, subTopic string) error {
	return nil
}

func testConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		PingInterval: time.Minute,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Second,
	}
}

type stack struct {
	registry    *presence.Registry
	coordinator *session.Coordinator
	server      *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	registry := presence.NewRegistry()
	coordinator := session.NewCoordinator(newMockStore(), registry, mockNotifier{}, []string{"Math", "College"})
	eventRelay := relay.NewRelay(coordinator, registry)
	if err := eventRelay.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start relay: %v", err)
	}
	t.Cleanup(func() { _ = eventRelay.Stop() })

	handler := NewHandler(eventRelay, testConfig())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return &stack{registry: registry, coordinator: coordinator, server: server}
}

func (s *stack) dial(t *testing.T) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *gws.Conn, eventType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)

	for time.Now().Before(deadline) {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed while waiting for %q: %v", eventType, err)
		}
		if msg["type"] == eventType {
			return msg
		}
	}
	t.Fatalf("Never received a %q frame", eventType)
	return nil
}

func TestHandler_JoinOverWebSocket(t *testing.T) {
	s := newStack(t)

	created, err := s.coordinator.Create(context.Background(), types.User{ID: "s1", Role: types.RoleStudent, TestUser: true}, "Math", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	conn := s.dial(t)
	err = conn.WriteJSON(map[string]interface{}{
		"type":      "join",
		"sessionId": created.ID,
		"user":      map[string]interface{}{"id": "s1", "role": "student"},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	change := readUntil(t, conn, "session-change")
	joined := change["session"].(map[string]interface{})
	if joined["id"] != created.ID {
		t.Errorf("session-change should carry the joined session, got %v", joined["id"])
	}
}

func TestHandler_JoinUnknownSessionGetsError(t *testing.T) {
	s := newStack(t)
	conn := s.dial(t)

	err := conn.WriteJSON(map[string]interface{}{
		"type":      "join",
		"sessionId": "missing",
		"user":      map[string]interface{}{"id": "s1", "role": "student"},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	readUntil(t, conn, "error")
}

func TestHandler_DisconnectUnbinds(t *testing.T) {
	s := newStack(t)

	created, err := s.coordinator.Create(context.Background(), types.User{ID: "s1", Role: types.RoleStudent, TestUser: true}, "Math", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	conn := s.dial(t)
	_ = conn.WriteJSON(map[string]interface{}{
		"type":      "join",
		"sessionId": created.ID,
		"user":      map[string]interface{}{"id": "s1", "role": "student"},
	})
	readUntil(t, conn, "session-change")

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.registry.Stats()["live_connections"] == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Connection should be unbound after the client drops")
}

func TestConnection_WriteJSONDelivers(t *testing.T) {
	connCh := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- NewConnection(raw)
	}))
	defer server.Close()

	client, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	serverConn := <-connCh
	defer func() { _ = serverConn.Close() }()

	if err := serverConn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	if err := client.ReadJSON(&msg); err != nil {
		t.Fatalf("Client read failed: %v", err)
	}
	if msg["type"] != "ping" {
		t.Errorf("Expected ping frame, got %v", msg)
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	connCh := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- NewConnection(raw)
	}))
	defer server.Close()

	client, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	serverConn := <-connCh
	if err := serverConn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := serverConn.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	if err := serverConn.WriteJSON(map[string]string{"type": "ping"}); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_WriteJSONUnencodable(t *testing.T) {
	connCh := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- NewConnection(raw)
	}))
	defer server.Close()

	client, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	serverConn := <-connCh
	defer func() { _ = serverConn.Close() }()

	if err := serverConn.WriteJSON(func() {}); err != ErrInvalidJSON {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}
