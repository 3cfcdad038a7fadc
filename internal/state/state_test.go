package state

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chorus/internal/store/memory"
)

// testService returns a service on a fresh memory store with a controllable
// clock. The returned advance func moves the service clock only — the
// store's own TTLs run on real time, which the long RecordTTL keeps out of
// the way.
func testService(t *testing.T, opts Options) (*Service, func(d time.Duration)) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })

	now := time.Now()
	svc := NewService(st, opts)
	svc.now = func() time.Time { return now }
	return svc, func(d time.Duration) { now = now.Add(d) }
}

func TestSetStateGetState(t *testing.T) {
	tests := []struct {
		name string
		set  AgentState
	}{
		{"idle", StateIdle},
		{"reading", StateReading},
		{"typing", StateTyping},
		{"cooldown", StateCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := testService(t, Options{})
			ctx := context.Background()

			if err := svc.SetState(ctx, "g1", "a1", tt.set); err != nil {
				t.Fatal(err)
			}
			got, err := svc.GetState(ctx, "g1", "a1")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.set {
				t.Errorf("GetState = %s, want %s", got, tt.set)
			}
		})
	}
}

func TestGetState_MissingIsIdle(t *testing.T) {
	svc, _ := testService(t, Options{})
	got, err := svc.GetState(context.Background(), "g1", "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if got != StateIdle {
		t.Errorf("GetState = %s, want idle for missing record", got)
	}
}

func TestGetState_CorruptRecordIsIdle(t *testing.T) {
	st := memory.New()
	defer st.Close()
	svc := NewService(st, Options{})
	ctx := context.Background()

	if err := st.Set(ctx, "group:g1:agent:a1:state", "{not json", time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetState(ctx, "g1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got != StateIdle {
		t.Errorf("GetState = %s, want idle for corrupt record", got)
	}
}

func TestGetState_ExpirySelfHeals(t *testing.T) {
	svc, advance := testService(t, Options{TypingTTL: 5 * time.Second})
	ctx := context.Background()

	if err := svc.SetState(ctx, "g1", "a1", StateTyping); err != nil {
		t.Fatal(err)
	}

	advance(4999 * time.Millisecond)
	if got, _ := svc.GetState(ctx, "g1", "a1"); got != StateTyping {
		t.Fatalf("GetState at 4999ms = %s, want typing", got)
	}

	advance(2 * time.Millisecond)
	if got, _ := svc.GetState(ctx, "g1", "a1"); got != StateIdle {
		t.Fatalf("GetState at 5001ms = %s, want idle", got)
	}

	// The expired read must have written idle back, clearing the typing
	// entry as a side effect.
	typing, err := svc.ListTyping(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(typing) != 0 {
		t.Errorf("typing set after self-heal = %v, want empty", typing)
	}
}

func TestSetState_ExplicitTTLOverride(t *testing.T) {
	svc, advance := testService(t, Options{CooldownTTL: 5 * time.Second})
	ctx := context.Background()

	if err := svc.SetState(ctx, "g1", "a1", StateCooldown, 30*time.Second); err != nil {
		t.Fatal(err)
	}

	advance(10 * time.Second)
	if got, _ := svc.GetState(ctx, "g1", "a1"); got != StateCooldown {
		t.Fatalf("GetState = %s, want cooldown to outlive the default TTL", got)
	}

	advance(25 * time.Second)
	if got, _ := svc.GetState(ctx, "g1", "a1"); got != StateIdle {
		t.Fatalf("GetState = %s, want idle after explicit TTL", got)
	}
}

func TestTypingSetLifecycle(t *testing.T) {
	svc, advance := testService(t, Options{TypingTTL: 5 * time.Second})
	ctx := context.Background()

	if err := svc.SetState(ctx, "g1", "a1", StateTyping); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetState(ctx, "g1", "a2", StateTyping); err != nil {
		t.Fatal(err)
	}

	typing, err := svc.ListTyping(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(typing) != 2 {
		t.Fatalf("typing = %v, want both agents", typing)
	}

	// Leaving typing back-dates the member rather than deleting it.
	if err := svc.SetState(ctx, "g1", "a1", StateIdle); err != nil {
		t.Fatal(err)
	}
	typing, _ = svc.ListTyping(ctx, "g1")
	if len(typing) != 1 || typing[0] != "a2" {
		t.Fatalf("typing after a1 left = %v, want [a2]", typing)
	}

	// Expired entries drop out of the listing on their own.
	advance(6 * time.Second)
	typing, _ = svc.ListTyping(ctx, "g1")
	if len(typing) != 0 {
		t.Fatalf("typing after TTL = %v, want empty", typing)
	}
}

func TestCanRespond(t *testing.T) {
	ctx := context.Background()

	t.Run("idle agent under cap", func(t *testing.T) {
		svc, _ := testService(t, Options{})
		d, err := svc.CanRespond(ctx, "g1", "a1")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Reason != "" {
			t.Errorf("decision = %+v, want allowed", d)
		}
	})

	t.Run("cooldown blocks", func(t *testing.T) {
		svc, _ := testService(t, Options{})
		if err := svc.SetState(ctx, "g1", "a1", StateCooldown); err != nil {
			t.Fatal(err)
		}
		d, _ := svc.CanRespond(ctx, "g1", "a1")
		if d.Allowed || d.Reason != ReasonInCooldown {
			t.Errorf("decision = %+v, want %s", d, ReasonInCooldown)
		}
	})

	t.Run("already typing blocks", func(t *testing.T) {
		svc, _ := testService(t, Options{})
		if err := svc.SetState(ctx, "g1", "a1", StateTyping); err != nil {
			t.Fatal(err)
		}
		d, _ := svc.CanRespond(ctx, "g1", "a1")
		if d.Allowed || d.Reason != ReasonAlreadyTyping {
			t.Errorf("decision = %+v, want %s", d, ReasonAlreadyTyping)
		}
	})

	t.Run("typing cap blocks a third agent", func(t *testing.T) {
		svc, _ := testService(t, Options{MaxTyping: 2})
		for _, id := range []string{"a1", "a2"} {
			if err := svc.SetState(ctx, "g1", id, StateTyping); err != nil {
				t.Fatal(err)
			}
		}
		d, _ := svc.CanRespond(ctx, "g1", "a3")
		if d.Allowed || d.Reason != ReasonTooManyTyping {
			t.Errorf("decision = %+v, want %s", d, ReasonTooManyTyping)
		}
	})

	t.Run("cap frees up when a typer expires", func(t *testing.T) {
		svc, advance := testService(t, Options{MaxTyping: 2, TypingTTL: 5 * time.Second})
		for _, id := range []string{"a1", "a2"} {
			if err := svc.SetState(ctx, "g1", id, StateTyping); err != nil {
				t.Fatal(err)
			}
		}
		advance(6 * time.Second)
		d, _ := svc.CanRespond(ctx, "g1", "a3")
		if !d.Allowed {
			t.Errorf("decision = %+v, want allowed after typers expired", d)
		}
	})
}

func TestClearGroupStates(t *testing.T) {
	svc, _ := testService(t, Options{})
	ctx := context.Background()

	if err := svc.SetState(ctx, "g1", "a1", StateTyping); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetState(ctx, "g1", "a2", StateCooldown); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetState(ctx, "g2", "a1", StateTyping); err != nil {
		t.Fatal(err)
	}

	if err := svc.ClearGroupStates(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	if got, _ := svc.GetState(ctx, "g1", "a1"); got != StateIdle {
		t.Errorf("g1/a1 after clear = %s, want idle", got)
	}
	if got, _ := svc.GetState(ctx, "g1", "a2"); got != StateIdle {
		t.Errorf("g1/a2 after clear = %s, want idle", got)
	}
	if typing, _ := svc.ListTyping(ctx, "g1"); len(typing) != 0 {
		t.Errorf("g1 typing after clear = %v, want empty", typing)
	}

	// Other groups are untouched.
	if got, _ := svc.GetState(ctx, "g2", "a1"); got != StateTyping {
		t.Errorf("g2/a1 after clearing g1 = %s, want typing", got)
	}
}
