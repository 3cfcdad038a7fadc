// Package state owns the per-(group, agent) conversational activity state
// machine and the typing concurrency gate. All state lives in the expiring
// store; expiry is lazy, so reads treat an elapsed expiresAt as idle and
// self-heal by writing the idle transition back. A crashed writer can never
// leave an agent stuck in typing or cooldown.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chorus/internal/store"
)

// AgentState is one of the four activity states.
type AgentState string

const (
	StateIdle     AgentState = "idle"
	StateReading  AgentState = "reading"
	StateTyping   AgentState = "typing"
	StateCooldown AgentState = "cooldown"
)

// Options holds the tunable durations and caps.
type Options struct {
	TypingTTL   time.Duration // how long a typing entry lives (default 5s)
	CooldownTTL time.Duration // how long cooldown lasts (default 5s)
	RecordTTL   time.Duration // bounded lifetime of any stored record (default 60s)
	MaxTyping   int           // simultaneous-typing cap per group (default 2)
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TypingTTL:   5 * time.Second,
		CooldownTTL: 5 * time.Second,
		RecordTTL:   60 * time.Second,
		MaxTyping:   2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TypingTTL <= 0 {
		o.TypingTTL = d.TypingTTL
	}
	if o.CooldownTTL <= 0 {
		o.CooldownTTL = d.CooldownTTL
	}
	if o.RecordTTL <= 0 {
		o.RecordTTL = d.RecordTTL
	}
	if o.MaxTyping <= 0 {
		o.MaxTyping = d.MaxTyping
	}
	return o
}

// record is the stored form of one agent's state. Timestamps are unix ms.
type record struct {
	State     AgentState `json:"state"`
	UpdatedAt int64      `json:"updated_at"`
	ExpiresAt int64      `json:"expires_at,omitempty"`
}

// Service is the activity state machine plus the typing gate, bound to one
// store backend. Safe for concurrent use; correctness across instances
// depends on the store, not on in-process locking.
type Service struct {
	store store.Store
	now   func() time.Time

	mu   sync.RWMutex
	opts Options
}

func NewService(st store.Store, opts Options) *Service {
	return &Service{store: st, opts: opts.withDefaults(), now: time.Now}
}

// SetOptions swaps the tunables. Used by config hot reload.
func (s *Service) SetOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts.withDefaults()
}

func (s *Service) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func stateKey(groupID, agentID string) string {
	return fmt.Sprintf("group:%s:agent:%s:state", groupID, agentID)
}

func groupPrefix(groupID string) string {
	return fmt.Sprintf("group:%s:", groupID)
}

// SetState transitions an agent to newState. Entering typing or cooldown
// computes expiresAt from ttl (per-state default when omitted); entering
// idle or reading clears it. Entering typing also registers the agent in
// the group's typing set, and leaving typing removes it — callers never
// touch the gate directly.
func (s *Service) SetState(ctx context.Context, groupID, agentID string, newState AgentState, ttl ...time.Duration) error {
	now := s.now()
	rec := record{State: newState, UpdatedAt: now.UnixMilli()}

	switch newState {
	case StateTyping, StateCooldown:
		d := s.stateTTL(newState)
		if len(ttl) > 0 && ttl[0] > 0 {
			d = ttl[0]
		}
		rec.ExpiresAt = now.Add(d).UnixMilli()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal state record: %w", err)
	}
	if err := s.store.Set(ctx, stateKey(groupID, agentID), string(data), s.options().RecordTTL); err != nil {
		return fmt.Errorf("write state %s/%s: %w", groupID, agentID, err)
	}

	if newState == StateTyping {
		return s.AddTyping(ctx, groupID, agentID)
	}
	return s.RemoveTyping(ctx, groupID, agentID)
}

// GetState returns the effective state of an agent. A missing or corrupt
// record reads as idle. An elapsed expiresAt reads as idle and triggers a
// self-healing idle write-back (idempotent).
func (s *Service) GetState(ctx context.Context, groupID, agentID string) (AgentState, error) {
	raw, ok, err := s.store.Get(ctx, stateKey(groupID, agentID))
	if err != nil {
		return StateIdle, fmt.Errorf("read state %s/%s: %w", groupID, agentID, err)
	}
	if !ok {
		return StateIdle, nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("state: corrupt record, treating as idle", "group", groupID, "agent", agentID, "error", err)
		return StateIdle, nil
	}

	if rec.ExpiresAt > 0 && rec.ExpiresAt <= s.now().UnixMilli() {
		if err := s.SetState(ctx, groupID, agentID, StateIdle); err != nil {
			slog.Warn("state: self-heal write-back failed", "group", groupID, "agent", agentID, "error", err)
		}
		return StateIdle, nil
	}
	return rec.State, nil
}

// ClearGroupStates removes every state record and the typing set for a
// group. Called when a group is deactivated.
func (s *Service) ClearGroupStates(ctx context.Context, groupID string) error {
	if err := s.store.DeleteByPrefix(ctx, groupPrefix(groupID)); err != nil {
		return fmt.Errorf("clear group %s: %w", groupID, err)
	}
	return nil
}

func (s *Service) stateTTL(st AgentState) time.Duration {
	opts := s.options()
	if st == StateCooldown {
		return opts.CooldownTTL
	}
	return opts.TypingTTL
}
