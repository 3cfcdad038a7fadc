package disposition

import (
	"math"
	"math/rand"
	"testing"
)

// fixedSource makes rand.Float64 return (approximately) a chosen value so a
// selection test can pin the draw.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (s fixedSource) Seed(int64)   {}

func fixedRand(roll float64) *rand.Rand {
	return rand.New(fixedSource{v: int64(roll * float64(math.MaxInt64))})
}

func TestAdditionalCount(t *testing.T) {
	tests := []struct {
		name         string
		roll         float64
		anyMentioned bool
		want         int
	}{
		{"no mention low roll", 0.0, false, 1},
		{"no mention below first cut", 0.59, false, 1},
		{"no mention mid band", 0.60, false, 2},
		{"no mention upper mid", 0.89, false, 2},
		{"no mention top band", 0.90, false, 3},
		{"mention low roll", 0.0, true, 0},
		{"mention below first cut", 0.69, true, 0},
		{"mention mid band", 0.70, true, 1},
		{"mention upper mid", 0.94, true, 1},
		{"mention top band", 0.95, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := additionalCount(tt.roll, tt.anyMentioned); got != tt.want {
				t.Errorf("additionalCount(%v, %v) = %d, want %d", tt.roll, tt.anyMentioned, got, tt.want)
			}
		})
	}
}

func TestSelectRespondingAgents_MentionedAlwaysIncluded(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.0)) // stingiest draw: 0 additional with a mention

	scores := []Score{
		{AgentID: "b", Total: 90},
		{AgentID: "c", Total: 40},
		{AgentID: "a", Total: 155, Mentioned: true},
	}
	got := s.SelectRespondingAgents(scores, []string{"a"})
	if len(got) != 1 || got[0].AgentID != "a" {
		t.Fatalf("selected = %v, want just the mentioned agent", ids(got))
	}
}

func TestSelectRespondingAgents_MentionPlusOne(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.80)) // with a mention: 1 additional

	scores := []Score{
		{AgentID: "a", Total: 155, Mentioned: true},
		{AgentID: "b", Total: 90},
		{AgentID: "c", Total: 40},
	}
	got := s.SelectRespondingAgents(scores, []string{"a"})
	if len(got) != 2 {
		t.Fatalf("selected %d agents, want 2: %v", len(got), ids(got))
	}
	if got[0].AgentID != "a" || got[1].AgentID != "b" {
		t.Errorf("selected = %v, want [a b]", ids(got))
	}
}

func TestSelectRespondingAgents_NoMention(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.0)) // no mention: 1 responder

	scores := []Score{
		{AgentID: "b", Total: 40},
		{AgentID: "a", Total: 90},
	}
	got := s.SelectRespondingAgents(scores, nil)
	if len(got) != 1 || got[0].AgentID != "a" {
		t.Fatalf("selected = %v, want just the top scorer", ids(got))
	}
}

func TestSelectRespondingAgents_NearTieForcesBoth(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.0)) // draw alone would pick only 1

	scores := []Score{
		{AgentID: "a", Total: 80},
		{AgentID: "b", Total: 78},
		{AgentID: "c", Total: 40},
	}
	got := s.SelectRespondingAgents(scores, nil)
	if len(got) != 2 {
		t.Fatalf("selected %d agents, want near-tied pair: %v", len(got), ids(got))
	}
	if got[0].AgentID != "a" || got[1].AgentID != "b" {
		t.Errorf("selected = %v, want [a b]", ids(got))
	}
}

func TestSelectRespondingAgents_NearTieMarginBoundary(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.0))

	// Exactly 5 apart: not a near-tie.
	scores := []Score{
		{AgentID: "a", Total: 80},
		{AgentID: "b", Total: 75},
	}
	got := s.SelectRespondingAgents(scores, nil)
	if len(got) != 1 {
		t.Fatalf("selected %d agents at exact margin, want 1: %v", len(got), ids(got))
	}
}

func TestSelectRespondingAgents_CapIsAbsolute(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.99))

	t.Run("drops weakest non-mentioned first", func(t *testing.T) {
		// Two mentions + two additional (roll 0.99) overflows the cap by one.
		scores := []Score{
			{AgentID: "m1", Total: 120, Mentioned: true},
			{AgentID: "m2", Total: 110, Mentioned: true},
			{AgentID: "a", Total: 90},
			{AgentID: "b", Total: 80},
			{AgentID: "c", Total: 70},
		}
		got := s.SelectRespondingAgents(scores, []string{"m1", "m2"})
		if len(got) != 3 {
			t.Fatalf("selected %d agents, want 3: %v", len(got), ids(got))
		}
		want := []string{"m1", "m2", "a"}
		for i, id := range want {
			if got[i].AgentID != id {
				t.Fatalf("selected = %v, want %v", ids(got), want)
			}
		}
	})

	t.Run("more mentions than the cap", func(t *testing.T) {
		scores := []Score{
			{AgentID: "m1", Total: 160, Mentioned: true},
			{AgentID: "m2", Total: 150, Mentioned: true},
			{AgentID: "m3", Total: 140, Mentioned: true},
			{AgentID: "m4", Total: 130, Mentioned: true},
		}
		got := s.SelectRespondingAgents(scores, []string{"m1", "m2", "m3", "m4"})
		if len(got) != 3 {
			t.Fatalf("selected %d agents, want 3 even with 4 mentions: %v", len(got), ids(got))
		}
		for _, sc := range got {
			if sc.AgentID == "m4" {
				t.Errorf("weakest mentioned survived the cap: %v", ids(got))
			}
		}
	})
}

func TestSelectRespondingAgents_Empty(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	if got := s.SelectRespondingAgents(nil, nil); len(got) != 0 {
		t.Fatalf("selected %d agents from no candidates", len(got))
	}
}

func TestSelectRespondingAgents_DescendingOrder(t *testing.T) {
	s := NewSelector(SelectorOptions{})
	s.SetRand(fixedRand(0.99)) // no mention: 3 responders

	scores := []Score{
		{AgentID: "c", Total: 40},
		{AgentID: "a", Total: 90},
		{AgentID: "b", Total: 80},
	}
	got := s.SelectRespondingAgents(scores, nil)
	for i := 1; i < len(got); i++ {
		if got[i].Total > got[i-1].Total {
			t.Fatalf("output not descending: %v", ids(got))
		}
	}
}

func ids(scores []Score) []string {
	out := make([]string, len(scores))
	for i, sc := range scores {
		out[i] = sc.AgentID
	}
	return out
}
