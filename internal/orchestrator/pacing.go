package orchestrator

import (
	"time"

	"github.com/nextlevelbuilder/chorus/internal/facts"
)

// Humanized pacing: how long an agent "reads" the incoming messages before
// its typing indicator appears, and how long it "types" its reply. Both
// scale with content length and the agent's extraversion — extraverts jump
// in faster and type quicker.

// PacingOptions bounds the simulated durations. Zero values take defaults;
// set MinReading/MinTyping negative in tests to collapse pacing entirely.
type PacingOptions struct {
	ReadingPerChar time.Duration // per input char (default 12ms)
	MinReading     time.Duration // default 500ms
	MaxReading     time.Duration // default 4s
	TypingPerChar  time.Duration // per reply char (default 50ms)
	MinTyping      time.Duration // default 1s
	MaxTyping      time.Duration // default 8s
}

func (p PacingOptions) withDefaults() PacingOptions {
	if p.ReadingPerChar == 0 {
		p.ReadingPerChar = 12 * time.Millisecond
	}
	if p.MinReading == 0 {
		p.MinReading = 500 * time.Millisecond
	}
	if p.MaxReading == 0 {
		p.MaxReading = 4 * time.Second
	}
	if p.TypingPerChar == 0 {
		p.TypingPerChar = 50 * time.Millisecond
	}
	if p.MinTyping == 0 {
		p.MinTyping = time.Second
	}
	if p.MaxTyping == 0 {
		p.MaxTyping = 8 * time.Second
	}
	return p
}

// Zero disables pacing. Used by tests and by callers that do their own
// indicator timing.
func Zero() PacingOptions {
	return PacingOptions{
		ReadingPerChar: -1, MinReading: -1, MaxReading: -1,
		TypingPerChar: -1, MinTyping: -1, MaxTyping: -1,
	}
}

// extraversionFactor maps the 0–100 trait to a speed multiplier in
// [0.8, 1.2]: 100 → 0.8 (fast), 0 → 1.2 (slow).
func extraversionFactor(p facts.Personality) float64 {
	e := p.Extraversion
	if e < 0 {
		e = 0
	}
	if e > 100 {
		e = 100
	}
	return 1.2 - e/250
}

func paced(chars int, perChar, min, max time.Duration, factor float64) time.Duration {
	if perChar <= 0 {
		return 0
	}
	d := time.Duration(float64(chars) * float64(perChar) * factor)
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}

func readingDuration(content string, pers facts.Personality, opts PacingOptions) time.Duration {
	return paced(len(content), opts.ReadingPerChar, opts.MinReading, opts.MaxReading, extraversionFactor(pers))
}

func typingDuration(reply string, pers facts.Personality, opts PacingOptions) time.Duration {
	if reply == "" {
		// No generated text to pace against; hold the indicator briefly.
		return opts.MinTyping
	}
	return paced(len(reply), opts.TypingPerChar, opts.MinTyping, opts.MaxTyping, extraversionFactor(pers))
}
