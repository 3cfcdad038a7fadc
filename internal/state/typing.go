package state

import (
	"context"
	"fmt"
	"time"
)

// Typing gate: the per-group scored set of agents currently typing.
// Member score is the entry's expiry in unix ms. The set is lazy-expiry —
// ListTyping filters out past scores, and removal back-dates the score
// instead of deleting (the store contract has no per-member remove).

// Reasons returned by CanRespond when an agent may not respond this turn.
const (
	ReasonInCooldown    = "agent_in_cooldown"
	ReasonAlreadyTyping = "agent_already_typing"
	ReasonTooManyTyping = "too_many_ais_typing"
)

// backdateOffset pushes a removed member's score far enough into the past
// that no reader window can consider it live.
const backdateOffset = 24 * time.Hour

// Decision is the answer of CanRespond.
type Decision struct {
	Allowed bool
	Reason  string
}

func typingKey(groupID string) string {
	return fmt.Sprintf("group:%s:typing", groupID)
}

// AddTyping inserts or refreshes an agent in the group's typing set and
// refreshes the set's own TTL so abandoned sets cannot accumulate.
func (s *Service) AddTyping(ctx context.Context, groupID, agentID string) error {
	key := typingKey(groupID)
	score := float64(s.now().Add(s.options().TypingTTL).UnixMilli())
	if err := s.store.ZAdd(ctx, key, agentID, score); err != nil {
		return fmt.Errorf("typing add %s/%s: %w", groupID, agentID, err)
	}
	if err := s.store.Expire(ctx, key, s.options().RecordTTL); err != nil {
		return fmt.Errorf("typing expire %s: %w", groupID, err)
	}
	return nil
}

// RemoveTyping logically removes an agent by rewriting its score to an
// already-expired value. Idempotent.
func (s *Service) RemoveTyping(ctx context.Context, groupID, agentID string) error {
	score := float64(s.now().Add(-backdateOffset).UnixMilli())
	if err := s.store.ZAdd(ctx, typingKey(groupID), agentID, score); err != nil {
		return fmt.Errorf("typing remove %s/%s: %w", groupID, agentID, err)
	}
	return nil
}

// ListTyping returns the agents whose typing entry has not yet expired.
func (s *Service) ListTyping(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.store.ZRangeWithScores(ctx, typingKey(groupID))
	if err != nil {
		return nil, fmt.Errorf("typing list %s: %w", groupID, err)
	}
	nowMs := float64(s.now().UnixMilli())
	var live []string
	for _, m := range members {
		if m.Score > nowMs {
			live = append(live, m.Member)
		}
	}
	return live, nil
}

// CanRespond checks whether an agent may start responding in a group:
// not in cooldown, not already typing, and the group under its
// simultaneous-typing cap. The cap is advisory — a best-effort "don't let
// five bots all type at once", not a transactional guarantee.
func (s *Service) CanRespond(ctx context.Context, groupID, agentID string) (Decision, error) {
	current, err := s.GetState(ctx, groupID, agentID)
	if err != nil {
		return Decision{}, err
	}
	switch current {
	case StateCooldown:
		return Decision{Reason: ReasonInCooldown}, nil
	case StateTyping:
		return Decision{Reason: ReasonAlreadyTyping}, nil
	}

	typing, err := s.ListTyping(ctx, groupID)
	if err != nil {
		return Decision{}, err
	}
	if len(typing) >= s.options().MaxTyping {
		return Decision{Reason: ReasonTooManyTyping}, nil
	}
	return Decision{Allowed: true}, nil
}
