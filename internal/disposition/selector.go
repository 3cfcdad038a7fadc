package disposition

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// SelectorOptions tunes the selection policy.
type SelectorOptions struct {
	MaxResponders int     // final cap on responders per message (default 3)
	NearTieMargin float64 // force-include window for the top two non-mentioned (default 5)
}

func (o SelectorOptions) withDefaults() SelectorOptions {
	if o.MaxResponders <= 0 {
		o.MaxResponders = 3
	}
	if o.NearTieMargin <= 0 {
		o.NearTieMargin = 5
	}
	return o
}

// Selector picks the final responding subset from scored candidates.
// One uniform draw decides how many non-mentioned agents join; mentioned
// agents are always included. The random source is injectable for tests.
type Selector struct {
	opts SelectorOptions

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector(opts SelectorOptions) *Selector {
	return &Selector{
		opts: opts.withDefaults(),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the draw source. Test hook.
func (s *Selector) SetRand(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd = r
}

// SetOptions swaps the tunables. Used by config hot reload.
func (s *Selector) SetOptions(opts SelectorOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts.withDefaults()
}

func (s *Selector) options() SelectorOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Selector) draw() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// additionalCount maps one uniform draw to the number of non-mentioned
// agents joining the response. With a mention the distribution is much
// stingier — the mentioned agent already carries the turn.
func additionalCount(roll float64, anyMentioned bool) int {
	if anyMentioned {
		switch {
		case roll < 0.70:
			return 0
		case roll < 0.95:
			return 1
		default:
			return 2
		}
	}
	switch {
	case roll < 0.60:
		return 1
	case roll < 0.90:
		return 2
	default:
		return 3
	}
}

// SelectRespondingAgents applies the selection policy to scored candidates:
//
//  1. every mentioned agent is included unconditionally;
//  2. one draw decides how many additional non-mentioned agents join;
//  3. top-N non-mentioned by score fill those slots;
//  4. a near-tie between the top two non-mentioned force-includes both;
//  5. the final set is capped, dropping the weakest non-mentioned first.
//
// Output preserves descending score order among the included set. Zero
// candidates produce an empty result.
func (s *Selector) SelectRespondingAgents(scores []Score, mentioned []string) []Score {
	if len(scores) == 0 {
		return nil
	}

	mentionedSet := make(map[string]bool, len(mentioned))
	for _, id := range mentioned {
		mentionedSet[id] = true
	}

	opts := s.options()

	var included, others []Score
	for _, sc := range scores {
		if sc.Mentioned || mentionedSet[sc.AgentID] {
			included = append(included, sc)
		} else {
			others = append(others, sc)
		}
	}
	sort.SliceStable(others, func(i, j int) bool { return others[i].Total > others[j].Total })

	n := additionalCount(s.draw(), len(included) > 0)
	if len(others) >= 2 && others[0].Total-others[1].Total < opts.NearTieMargin && n < 2 {
		// Near-ties are not resolved by the draw alone.
		n = 2
	}
	if n > len(others) {
		n = len(others)
	}
	included = append(included, others[:n]...)

	sort.SliceStable(included, func(i, j int) bool { return included[i].Total > included[j].Total })

	// Cap the final set, dropping weakest non-mentioned first. If mentions
	// alone exceed the cap the weakest mentioned go too — the cap is absolute.
	for len(included) > opts.MaxResponders {
		dropped := false
		for i := len(included) - 1; i >= 0; i-- {
			if !included[i].Mentioned && !mentionedSet[included[i].AgentID] {
				included = append(included[:i], included[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			included = included[:len(included)-1]
		}
	}
	return included
}
