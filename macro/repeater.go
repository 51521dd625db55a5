package macro

import (
	"errors"
	"fmt"

	"github.com/fightstick/fightstick/device/pokken"
)

// DefaultRepeat is the number of extra polls each fresh report is held for.
const DefaultRepeat = 4

var ErrInvalidRepeat = errors.New("repeat factor must not be negative")

// Generator produces one fresh report per call.
type Generator interface {
	Next() pokken.Report
}

// Repeater replays each fresh report from gen for R further polls, so every
// generator step is visible for exactly R+1 consecutive polls.
//
// The terminal idle report goes through the same cache as every other
// report.
type Repeater struct {
	gen       Generator
	repeat    int
	cached    pokken.Report
	remaining int
}

func NewRepeater(gen Generator, repeat int) (*Repeater, error) {
	if repeat < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRepeat, repeat)
	}
	return &Repeater{gen: gen, repeat: repeat}, nil
}

// NextReport returns the report for one poll.
func (r *Repeater) NextReport() pokken.Report {
	if r.remaining > 0 {
		r.remaining--
		return r.cached
	}
	r.cached = r.gen.Next()
	r.remaining = r.repeat
	return r.cached
}

// Repeat returns R.
func (r *Repeater) Repeat() int { return r.repeat }

// Fresh reports whether the last report returned was freshly computed.
func (r *Repeater) Fresh() bool { return r.remaining == r.repeat }

// Engine is a Player behind a Repeater. It is the report source the pad
// polls.
type Engine struct {
	player   *Player
	repeater *Repeater
	ticks    uint64
}

func NewEngine(s *Script, repeat int) (*Engine, error) {
	if s == nil {
		return nil, ErrEmptyScript
	}
	p := NewPlayer(s)
	r, err := NewRepeater(p, repeat)
	if err != nil {
		return nil, err
	}
	return &Engine{player: p, repeater: r}, nil
}

// NextReport advances playback by one poll.
func (e *Engine) NextReport() pokken.Report {
	e.ticks++
	return e.repeater.NextReport()
}

func (e *Engine) Player() *Player { return e.player }

func (e *Engine) Repeat() int { return e.repeater.Repeat() }

// Fresh reports whether the last tick ran the player.
func (e *Engine) Fresh() bool { return e.repeater.Fresh() }

// Ticks returns the number of polls served.
func (e *Engine) Ticks() uint64 { return e.ticks }

// PollsFor returns how many polls a script takes to play: startup covers
// Sync and Wait, run covers every step. A zero-duration step counts as one
// unit.
func PollsFor(s *Script, repeat int) (startup, run int) {
	units := 0
	for _, in := range s.Steps() {
		units += max(int(in.Duration), 1)
	}
	return 2 * (repeat + 1), units * (repeat + 1)
}
