package macro

import (
	"fmt"

	"github.com/fightstick/fightstick/device/pokken"
)

type State uint8

const (
	// StateSync is the first fresh computation after start.
	StateSync State = iota
	// StateWait is the second.
	StateWait
	// StateRun plays Script steps.
	StateRun
	// StateDone is terminal: the script is exhausted.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSync:
		return "sync"
	case StateWait:
		return "wait"
	case StateRun:
		return "run"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Cursor is the playback position. Elapsed counts time units already spent
// on Step.
type Cursor struct {
	Step    int
	Elapsed int
}

// Player walks a Script one macro time unit per Next call.
// It is not safe for concurrent use.
type Player struct {
	script *Script
	state  State
	cursor Cursor
}

func NewPlayer(s *Script) *Player {
	return &Player{script: s}
}

// Next performs one fresh computation and returns its report.
func (p *Player) Next() pokken.Report {
	switch p.state {
	case StateSync:
		p.state = StateWait
		return pokken.NeutralReport()
	case StateWait:
		p.state = StateRun
		return pokken.NeutralReport()
	case StateRun:
		if p.cursor.Step >= p.script.Len() {
			p.state = StateDone
			return pokken.NeutralReport()
		}
		in := p.script.At(p.cursor.Step)
		p.cursor.Elapsed++
		// A zero duration still plays for one unit.
		if p.cursor.Elapsed >= int(in.Duration) {
			p.cursor.Step++
			p.cursor.Elapsed = 0
			if p.cursor.Step >= p.script.Len() {
				p.state = StateDone
			}
		}
		return in.Report()
	default:
		return pokken.NeutralReport()
	}
}

func (p *Player) State() State { return p.state }

func (p *Player) Cursor() Cursor { return p.cursor }

// Done reports whether the script has been played to the end.
func (p *Player) Done() bool { return p.state == StateDone }

func (p *Player) Script() *Script { return p.script }
