// Package orchestrator composes the disposition scorer, the activity state
// machine, and the typing gate into the per-message entry point: score all
// candidates, filter by eligibility, select responders, and drive each
// selected agent through reading → typing → cooldown around the
// caller-supplied responder.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/chorus/internal/bus"
	"github.com/nextlevelbuilder/chorus/internal/disposition"
	"github.com/nextlevelbuilder/chorus/internal/facts"
	"github.com/nextlevelbuilder/chorus/internal/state"
)

// Responder produces an agent's reply for a message. It is supplied by the
// caller (the generation pipeline is outside this core); the returned text
// only drives the typing-duration pacing. A nil Responder is valid — the
// orchestrator still walks the full state cycle.
type Responder func(ctx context.Context, agent facts.Agent, msg bus.InboundGroupMessage) (string, error)

// Options tunes the facade.
type Options struct {
	Pacing        PacingOptions
	RespondBudget time.Duration // per-agent budget for the whole respond cycle (default 60s)
}

func (o Options) withDefaults() Options {
	o.Pacing = o.Pacing.withDefaults()
	if o.RespondBudget <= 0 {
		o.RespondBudget = 60 * time.Second
	}
	return o
}

// Orchestrator is the per-message facade. All degradation paths end in
// "fewer or different agents respond", never an error to the caller.
type Orchestrator struct {
	states    *state.Service
	scorer    *disposition.Scorer
	selector  *disposition.Selector
	sources   facts.Sources
	events    bus.EventPublisher
	responder Responder
	opts      Options

	wg sync.WaitGroup
}

func New(states *state.Service, scorer *disposition.Scorer, selector *disposition.Selector, sources facts.Sources, events bus.EventPublisher, responder Responder, opts Options) *Orchestrator {
	return &Orchestrator{
		states:    states,
		scorer:    scorer,
		selector:  selector,
		sources:   sources,
		events:    events,
		responder: responder,
		opts:      opts.withDefaults(),
	}
}

// States exposes the activity state machine for callers that need direct
// getState/setState/canRespond access (gateway handlers, admin reset).
func (o *Orchestrator) States() *state.Service { return o.states }

// HandleMessage runs one full orchestration pass and returns the selected
// responders. Respond cycles for the selected agents continue in the
// background (they pace out over seconds); Wait blocks until they finish.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg bus.InboundGroupMessage) ([]disposition.Score, error) {
	if msg.GroupID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("orchestrator: group and user IDs are required")
	}

	ctx, span := otel.Tracer("chorus/orchestrator").Start(ctx, "orchestrator.handle_message",
		trace.WithAttributes(attribute.String("group.id", msg.GroupID)))
	defer span.End()

	eligible, err := o.sources.Members.GroupEligible(ctx, msg.GroupID)
	if err != nil {
		slog.Warn("orchestrator: group eligibility check failed", "group", msg.GroupID, "error", err)
		return nil, nil
	}
	if !eligible {
		slog.Debug("orchestrator: group not eligible for auto responses", "group", msg.GroupID)
		return nil, nil
	}

	scores, err := o.scorer.CalculateGroupScores(ctx, msg.GroupID, msg.UserID, msg.Content, msg.MentionedAgents)
	if err != nil {
		slog.Warn("orchestrator: scoring pass failed", "group", msg.GroupID, "error", err)
		return nil, nil
	}
	span.SetAttributes(attribute.Int("candidates", len(scores)))
	if len(scores) == 0 {
		return nil, nil
	}

	// Eligibility filter: the state machine and typing gate veto candidates
	// before selection. Mentioned agents are exempt from the gate veto — a
	// mention guarantees participation; the respond cycle waits its turn.
	filtered := scores[:0]
	for _, sc := range scores {
		if sc.Mentioned {
			filtered = append(filtered, sc)
			continue
		}
		decision, err := o.states.CanRespond(ctx, msg.GroupID, sc.AgentID)
		if err != nil {
			slog.Warn("orchestrator: eligibility check failed", "group", msg.GroupID, "agent", sc.AgentID, "error", err)
			continue
		}
		if !decision.Allowed {
			slog.Debug("orchestrator: candidate filtered", "group", msg.GroupID, "agent", sc.AgentID, "reason", decision.Reason)
			continue
		}
		filtered = append(filtered, sc)
	}

	selected := o.selector.SelectRespondingAgents(filtered, msg.MentionedAgents)
	span.SetAttributes(attribute.Int("selected", len(selected)))

	for rank, sc := range selected {
		o.events.Broadcast(bus.Event{
			ID:      uuid.NewString(),
			Name:    bus.EventResponderSelected,
			GroupID: msg.GroupID,
			Payload: bus.SelectionPayload{AgentID: sc.AgentID, Score: sc.Total, Rank: rank},
		})
		o.wg.Add(1)
		go o.respond(msg, sc)
	}
	return selected, nil
}

// Wait blocks until all in-flight respond cycles complete. Shutdown hook.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// ClearGroup resets all orchestrator state for a group.
func (o *Orchestrator) ClearGroup(ctx context.Context, groupID string) error {
	if err := o.states.ClearGroupStates(ctx, groupID); err != nil {
		return err
	}
	o.events.Broadcast(bus.Event{
		ID:      uuid.NewString(),
		Name:    bus.EventStatesCleared,
		GroupID: groupID,
	})
	return nil
}

// respond drives one selected agent through its full state cycle. Runs on
// its own goroutine; every exit path lands the agent in cooldown or idle.
func (o *Orchestrator) respond(msg bus.InboundGroupMessage, sc disposition.Score) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.RespondBudget)
	defer cancel()

	agent := facts.Agent{ID: sc.AgentID, Name: sc.AgentName}

	// Re-check between selection and respond: another instance may have
	// filled the typing slots meanwhile. Best effort, mentions excepted.
	if !sc.Mentioned {
		decision, err := o.states.CanRespond(ctx, msg.GroupID, sc.AgentID)
		if err == nil && !decision.Allowed {
			slog.Debug("orchestrator: respond aborted", "group", msg.GroupID, "agent", sc.AgentID, "reason", decision.Reason)
			return
		}
	}

	pers, err := o.sources.Personalities.Personality(ctx, sc.AgentID)
	if err != nil {
		pers = facts.DefaultPersonality()
	}

	if err := o.states.SetState(ctx, msg.GroupID, sc.AgentID, state.StateReading); err != nil {
		slog.Warn("orchestrator: set reading failed", "group", msg.GroupID, "agent", sc.AgentID, "error", err)
	}
	o.sleep(ctx, readingDuration(msg.Content, pers, o.opts.Pacing))

	if err := o.states.SetState(ctx, msg.GroupID, sc.AgentID, state.StateTyping); err != nil {
		slog.Warn("orchestrator: set typing failed", "group", msg.GroupID, "agent", sc.AgentID, "error", err)
	}
	o.events.Broadcast(bus.Event{
		ID:      uuid.NewString(),
		Name:    bus.EventTypingStart,
		GroupID: msg.GroupID,
		Payload: bus.TypingPayload{AgentID: sc.AgentID, AgentName: sc.AgentName},
	})

	var reply string
	if o.responder != nil {
		reply, err = o.responder(ctx, agent, msg)
		if err != nil {
			slog.Warn("orchestrator: responder failed", "group", msg.GroupID, "agent", sc.AgentID, "error", err)
			o.stopTyping(ctx, msg.GroupID, sc, state.StateIdle)
			return
		}
	}
	o.sleep(ctx, typingDuration(reply, pers, o.opts.Pacing))

	o.stopTyping(ctx, msg.GroupID, sc, state.StateCooldown)

	if sc.SpacedOnly {
		if err := o.sources.Availability.RecordSpacedResponse(ctx, sc.AgentID); err != nil {
			slog.Warn("orchestrator: record spaced response failed", "agent", sc.AgentID, "error", err)
		}
	}
}

func (o *Orchestrator) stopTyping(ctx context.Context, groupID string, sc disposition.Score, next state.AgentState) {
	if err := o.states.SetState(ctx, groupID, sc.AgentID, next); err != nil {
		slog.Warn("orchestrator: state transition failed", "group", groupID, "agent", sc.AgentID, "state", next, "error", err)
	}
	o.events.Broadcast(bus.Event{
		ID:      uuid.NewString(),
		Name:    bus.EventTypingStop,
		GroupID: groupID,
		Payload: bus.TypingPayload{AgentID: sc.AgentID, AgentName: sc.AgentName},
	})
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
