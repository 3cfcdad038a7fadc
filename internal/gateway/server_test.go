package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chorus/internal/bus"
	"github.com/nextlevelbuilder/chorus/internal/config"
	"github.com/nextlevelbuilder/chorus/internal/disposition"
	"github.com/nextlevelbuilder/chorus/internal/facts"
	"github.com/nextlevelbuilder/chorus/internal/orchestrator"
	"github.com/nextlevelbuilder/chorus/internal/state"
	"github.com/nextlevelbuilder/chorus/internal/store/memory"
)

type noFacts struct{}

func (noFacts) Relationship(ctx context.Context, agentID, userID string) (facts.Relationship, error) {
	return facts.Relationship{}, facts.ErrNotFound
}

func (noFacts) Bond(ctx context.Context, agentID, userID string) (facts.Bond, error) {
	return facts.Bond{}, facts.ErrNotFound
}

func (noFacts) Personality(ctx context.Context, agentID string) (facts.Personality, error) {
	return facts.Personality{}, facts.ErrNotFound
}

func (noFacts) RecentMessageCount(ctx context.Context, groupID, agentID string, window time.Duration) (int, error) {
	return 0, nil
}

func (noFacts) GroupEligible(ctx context.Context, groupID string) (bool, error) { return true, nil }

func (noFacts) ListAgents(ctx context.Context, groupID string) ([]facts.Agent, error) {
	return nil, nil
}

func newTestGateway(t *testing.T, cfg *config.Config) (*Server, *bus.MemoryBus) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })

	sources := facts.Sources{
		Relationships: noFacts{},
		Bonds:         noFacts{},
		Personalities: noFacts{},
		Availability:  facts.AlwaysAvailable{},
		Participation: noFacts{},
		Members:       noFacts{},
	}
	states := state.NewService(st, state.Options{})
	scorer := disposition.NewScorer(sources, disposition.ScorerOptions{})
	selector := disposition.NewSelector(disposition.SelectorOptions{})
	events := bus.NewMemoryBus()
	orch := orchestrator.New(states, scorer, selector, sources, events, nil,
		orchestrator.Options{Pacing: orchestrator.Zero()})

	return NewServer(cfg, events, orch), events
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestGateway(t, config.Default())
	mux := srv.BuildMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no allowlist allows all", nil, "https://evil.example", true},
		{"empty origin always allowed", []string{"https://app.example"}, "", true},
		{"listed origin", []string{"https://app.example"}, "https://app.example", true},
		{"wildcard", []string{"*"}, "https://anywhere.example", true},
		{"unlisted origin", []string{"https://app.example"}, "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Gateway.AllowedOrigins = tt.allowed
			srv, _ := newTestGateway(t, cfg)

			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := srv.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebSocketAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Token = "hunter2"
	srv, _ := newTestGateway(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, start := StartTestServer(srv, ctx)
	go start()
	time.Sleep(50 * time.Millisecond)

	// Wrong token is rejected before upgrade.
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token=nope", nil)
	if err == nil {
		t.Fatal("dial succeeded with a bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}

	// Right token connects.
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token=hunter2", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}

func TestWebSocketReceivesEvents(t *testing.T) {
	srv, events := newTestGateway(t, config.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, start := StartTestServer(srv, ctx)
	go start()
	time.Sleep(50 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond) // client registration

	events.Broadcast(bus.Event{ID: "e1", Name: bus.EventTypingStart, GroupID: "g1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got bus.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Name != bus.EventTypingStart || got.GroupID != "g1" {
		t.Errorf("event = %+v, want typing.start for g1", got)
	}
}
