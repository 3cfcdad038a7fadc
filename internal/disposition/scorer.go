// Package disposition computes per-agent response disposition scores and
// selects the responding subset for one inbound group message. Scores are
// ephemeral — computed fresh per message, never persisted.
package disposition

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/chorus/internal/facts"
)

// Component names used in the Score breakdown.
const (
	CompMention      = "mention"
	CompAffinity     = "affinity"
	CompTrust        = "trust"
	CompRespect      = "respect"
	CompStage        = "stage"
	CompResonance    = "resonance"
	CompBondStatus   = "bond_status"
	CompPersonality  = "personality"
	CompRecency      = "recency"
	CompRandom       = "random"
	CompAvailability = "availability"
)

// Score is one candidate's disposition for the current message.
type Score struct {
	AgentID    string
	AgentName  string
	Total      float64
	Components map[string]float64
	Reasons    []string
	Mentioned  bool
	// SpacedOnly means the agent is inside its spaced-response window: it may
	// still respond, but the responder must record the spaced response.
	SpacedOnly bool
}

var stageScores = map[facts.Stage]float64{
	facts.StageStranger:     0,
	facts.StageAcquaintance: 5,
	facts.StageFriend:       10,
	facts.StageClose:        15,
	facts.StageIntimate:     20,
}

var bondStatusScores = map[facts.BondStatus]float64{
	facts.BondActive:  10,
	facts.BondDormant: 5,
	facts.BondFragile: 2,
	facts.BondAtRisk:  0,
}

// defaultBondStatusScore applies when the pair has no bond record at all.
const defaultBondStatusScore = 5

// ScorerOptions tunes the scoring pass.
type ScorerOptions struct {
	RecentWindow  time.Duration // participation window (default 10m)
	LookupTimeout time.Duration // overall budget for all fact lookups (default 2s)
}

func (o ScorerOptions) withDefaults() ScorerOptions {
	if o.RecentWindow <= 0 {
		o.RecentWindow = 10 * time.Minute
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 2 * time.Second
	}
	return o
}

// Scorer computes disposition scores from external facts. The random source
// is injectable so tests can fix the jitter; production uses a time-seeded
// generator.
type Scorer struct {
	sources facts.Sources
	opts    ScorerOptions

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewScorer(sources facts.Sources, opts ScorerOptions) *Scorer {
	return &Scorer{
		sources: sources,
		opts:    opts.withDefaults(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the jitter source. Test hook.
func (s *Scorer) SetRand(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd = r
}

// SetOptions swaps the tunables. Used by config hot reload.
func (s *Scorer) SetOptions(opts ScorerOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts.withDefaults()
}

func (s *Scorer) options() ScorerOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Scorer) jitter() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() * 5
}

// CalculateGroupScores scores every active AI member of a group against the
// triggering user and message, sorted descending by total. Individual
// lookup failures and timeouts degrade to defaults — a candidate is never
// dropped because a collaborator was slow, only made unavailable when the
// availability check itself cannot answer.
func (s *Scorer) CalculateGroupScores(ctx context.Context, groupID, userID, content string, mentioned []string) ([]Score, error) {
	agents, err := s.sources.Members.ListAgents(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}

	mentionedSet := make(map[string]bool, len(mentioned))
	for _, id := range mentioned {
		mentionedSet[id] = true
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.options().LookupTimeout)
	defer cancel()

	scores := make([]Score, len(agents))
	g, gctx := errgroup.WithContext(lookupCtx)
	for i, agent := range agents {
		g.Go(func() error {
			scores[i] = s.scoreAgent(gctx, groupID, userID, agent, mentionedSet[agent.ID])
			return nil
		})
	}
	g.Wait()

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Total > scores[j].Total })
	return scores, nil
}

// scoreAgent runs the five fact lookups for one candidate concurrently and
// folds them into the additive component model.
func (s *Scorer) scoreAgent(ctx context.Context, groupID, userID string, agent facts.Agent, mentioned bool) Score {
	var (
		rel       facts.Relationship
		bond      facts.Bond
		hasBond   bool
		pers      facts.Personality
		avail     facts.Availability
		availFail bool
		recent    int
	)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		// The availability check takes the relationship stage as input, so
		// these two run chained; everything else is fully parallel.
		defer wg.Done()
		r, err := s.sources.Relationships.Relationship(ctx, agent.ID, userID)
		if err != nil {
			r = facts.DefaultRelationship()
		}
		rel = r
		a, err := s.sources.Availability.CheckAvailability(ctx, agent.ID, rel.Stage)
		if err != nil {
			availFail = true
			return
		}
		avail = a
	}()
	go func() {
		defer wg.Done()
		b, err := s.sources.Bonds.Bond(ctx, agent.ID, userID)
		if err != nil {
			return
		}
		bond, hasBond = b, true
	}()
	go func() {
		defer wg.Done()
		p, err := s.sources.Personalities.Personality(ctx, agent.ID)
		if err != nil {
			pers = facts.DefaultPersonality()
			return
		}
		pers = p
	}()
	go func() {
		defer wg.Done()
		n, err := s.sources.Participation.RecentMessageCount(ctx, groupID, agent.ID, s.options().RecentWindow)
		if err != nil {
			return
		}
		recent = n
	}()
	wg.Wait()

	score := Score{
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		Components: make(map[string]float64, 11),
		Mentioned:  mentioned,
	}
	add := func(name string, v float64) {
		score.Components[name] = v
		score.Total += v
	}

	if mentioned {
		add(CompMention, 100)
		score.Reasons = append(score.Reasons, "mentioned")
	} else {
		add(CompMention, 0)
	}

	add(CompAffinity, rel.Affinity*30)
	add(CompTrust, rel.Trust*25)
	add(CompRespect, rel.Respect*15)
	add(CompStage, stageScores[rel.Stage])

	if hasBond {
		add(CompResonance, bond.EmotionalResonance*15)
		add(CompBondStatus, bondStatusScores[bond.Status])
		score.Reasons = append(score.Reasons, "bond:"+string(bond.Status))
	} else {
		add(CompResonance, 0)
		add(CompBondStatus, defaultBondStatusScore)
	}

	add(CompPersonality, pers.Extraversion/10)

	recency := 10 - 2*float64(recent)
	if recency < 0 {
		recency = 0
	}
	add(CompRecency, recency)

	add(CompRandom, s.jitter())

	// Availability check timeout is conservative: disqualify for this turn.
	switch {
	case availFail:
		add(CompAvailability, -1000)
		score.Reasons = append(score.Reasons, "availability_check_failed")
	case !avail.Available && !avail.CanRespondSpaced:
		add(CompAvailability, -1000)
		score.Reasons = append(score.Reasons, "unavailable:"+avail.Reason)
	case !avail.Available && avail.CanRespondSpaced:
		add(CompAvailability, -500)
		score.SpacedOnly = true
		score.Reasons = append(score.Reasons, "spaced_window")
	default:
		add(CompAvailability, 0)
	}

	return score
}
