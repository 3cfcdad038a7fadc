// Package facts defines the read-only external inputs the orchestrator
// consumes: relationship strength, symbolic bonds, personality traits,
// availability, and recent participation. The orchestrator never writes any
// of this (except the spaced-response timestamp, which availability owns).
//
// Every lookup that finds no record returns ErrNotFound; callers substitute
// the Default* values instead of failing. The value types are always fully
// populated — scoring code never branches on "is this field present".
package facts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by any source when no record exists for the
// requested subject. Not an error condition for scoring.
var ErrNotFound = errors.New("facts: not found")

// Stage is the coarse relationship depth classification.
type Stage string

const (
	StageStranger     Stage = "stranger"
	StageAcquaintance Stage = "acquaintance"
	StageFriend       Stage = "friend"
	StageClose        Stage = "close"
	StageIntimate     Stage = "intimate"
)

// BondStatus is the health classification of a symbolic bond.
type BondStatus string

const (
	BondActive  BondStatus = "active"
	BondDormant BondStatus = "dormant"
	BondFragile BondStatus = "fragile"
	BondAtRisk  BondStatus = "at_risk"
)

// Relationship holds the 0–1 strength dimensions between one agent and one user.
type Relationship struct {
	Trust    float64
	Affinity float64
	Respect  float64
	Stage    Stage
}

// DefaultRelationship is substituted when no relationship record exists.
func DefaultRelationship() Relationship {
	return Relationship{Trust: 0.5, Affinity: 0.5, Respect: 0.5, Stage: StageStranger}
}

// Bond holds the symbolic-bond facts between one agent and one user.
type Bond struct {
	EmotionalResonance float64 // 0–1
	Status             BondStatus
}

// Personality holds the traits the orchestrator reads. Extraversion is on
// the 0–100 scale the trait store uses.
type Personality struct {
	Extraversion float64
}

// DefaultPersonality is substituted when no trait record exists.
func DefaultPersonality() Personality {
	return Personality{Extraversion: 50}
}

// Availability is the result of the external availability check.
type Availability struct {
	Available        bool
	CanRespondSpaced bool
	Reason           string
}

// Agent is one AI member of a group.
type Agent struct {
	ID   string
	Name string
}

// RelationshipSource reads relationship facts for an (agent, user) pair.
type RelationshipSource interface {
	Relationship(ctx context.Context, agentID, userID string) (Relationship, error)
}

// BondSource reads symbolic-bond facts for an (agent, user) pair.
type BondSource interface {
	Bond(ctx context.Context, agentID, userID string) (Bond, error)
}

// PersonalitySource reads personality traits for an agent.
type PersonalitySource interface {
	Personality(ctx context.Context, agentID string) (Personality, error)
}

// AvailabilitySource answers whether an agent can respond right now.
// RecordSpacedResponse is called after an agent responds inside its spaced
// window so the next check can push it back out.
type AvailabilitySource interface {
	CheckAvailability(ctx context.Context, agentID string, stage Stage) (Availability, error)
	RecordSpacedResponse(ctx context.Context, agentID string) error
}

// ParticipationSource counts messages an agent authored in a group within a
// trailing window.
type ParticipationSource interface {
	RecentMessageCount(ctx context.Context, groupID, agentID string, window time.Duration) (int, error)
}

// MemberSource lists the active AI members of a group and gates whether the
// group should get automatic responses at all.
type MemberSource interface {
	GroupEligible(ctx context.Context, groupID string) (bool, error)
	ListAgents(ctx context.Context, groupID string) ([]Agent, error)
}

// Sources bundles every external collaborator the orchestrator consumes.
type Sources struct {
	Relationships RelationshipSource
	Bonds         BondSource
	Personalities PersonalitySource
	Availability  AvailabilitySource
	Participation ParticipationSource
	Members       MemberSource
}

// AlwaysAvailable is the availability source used when no schedule data is
// wired (standalone deployments without routine tables).
type AlwaysAvailable struct{}

func (AlwaysAvailable) CheckAvailability(ctx context.Context, agentID string, stage Stage) (Availability, error) {
	return Availability{Available: true}, nil
}

func (AlwaysAvailable) RecordSpacedResponse(ctx context.Context, agentID string) error {
	return nil
}
