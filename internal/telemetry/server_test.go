package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type snapshot struct {
	Frame    int `json:"frame"`
	Resident int `json:"resident"`
}

func TestPublishReachesClient(t *testing.T) {
	s := NewServer(zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stats"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Publish(snapshot{Frame: 7, Resident: 42}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	var got snapshot
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("bad payload %q: %v", msg, err)
	}
	if got.Frame != 7 || got.Resident != 42 {
		t.Errorf("expected frame 7 resident 42, got %+v", got)
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := NewServer(zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats.json")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 before any publish, got %d", resp.StatusCode)
	}

	_ = s.Publish(snapshot{Frame: 1})
	resp, err = http.Get(ts.URL + "/stats.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Frame != 1 {
		t.Errorf("expected frame 1, got %d", got.Frame)
	}
}

func TestCancelClosesClients(t *testing.T) {
	s := NewServer(zap.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/stats", nil)
	if err != nil {
		cancel()
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != 1 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected a going-away close from the server, got %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for s.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected client handler to exit, %d still registered", s.Clients())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSlowClientDropsSnapshots(t *testing.T) {
	s := NewServer(zap.NewNop())
	stuck := &client{out: make(chan []byte)}
	s.clients[stuck] = struct{}{}

	for i := range 3 {
		if err := s.Publish(snapshot{Frame: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if got := s.Dropped(); got != 3 {
		t.Errorf("expected 3 dropped snapshots, got %d", got)
	}
	if stuck.dropped != 3 {
		t.Errorf("expected the client to count 3 drops, got %d", stuck.dropped)
	}
}

func TestRejectsRemotePeers(t *testing.T) {
	s := NewServer(zap.NewNop())
	for _, path := range []string{"/stats", "/stats.json"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, rec.Code)
		}
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:80", true},
		{"[::1]:80", true},
		{"192.168.1.5:80", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopbackRemote(tt.addr); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.addr, tt.want, got)
		}
	}
}
