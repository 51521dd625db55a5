// Package macro plays a fixed sequence of pad inputs back as controller
// reports.
//
// A Script is an immutable list of Instructions. A Player walks the script
// one macro time unit per call, and a Repeater holds each produced report for
// a fixed number of extra host polls so that one time unit spans R+1 polls.
// Engine ties the two together and is what the transport polls.
package macro

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fightstick/fightstick/device/pokken"
)

// InstructionSize is the packed size of one Instruction in bytes.
const InstructionSize = 3

// InstructionButtons is the set of buttons an Instruction can hold: the low
// 12 bits, Y through RClick. Home and Capture only exist in reports.
const InstructionButtons pokken.Button = 0x0FFF

const (
	directionShift = 12
	buttonsMask    = 0x0FFF
)

var (
	ErrInvalidButtons   = errors.New("buttons outside the 12-bit instruction set")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrTruncated        = errors.New("truncated instruction data")
)

// Instruction is one scripted step: hold Buttons and Direction for Duration
// macro time units.
//
// Packed form (InstructionSize bytes):
//
//	0-1: buttons (bits 0-11) | direction << 12, little-endian
//	  2: duration
type Instruction struct {
	Buttons   pokken.Button
	Direction pokken.Direction
	Duration  uint8
}

// Validate checks the buttons fit 12 bits and the direction is legal.
func (i Instruction) Validate() error {
	if i.Buttons&^InstructionButtons != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidButtons, i.Buttons)
	}
	if !i.Direction.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, i.Direction)
	}
	return nil
}

// Report translates the instruction into a controller report: buttons
// zero-extended, direction copied, sticks neutral.
func (i Instruction) Report() pokken.Report {
	r := pokken.NeutralReport()
	r.Buttons = i.Buttons
	r.Direction = i.Direction
	return r
}

// AppendBinary appends the packed instruction to b.
func (i Instruction) AppendBinary(b []byte) ([]byte, error) {
	if err := i.Validate(); err != nil {
		return b, err
	}
	word := uint16(i.Buttons) | uint16(i.Direction)<<directionShift
	b = binary.LittleEndian.AppendUint16(b, word)
	return append(b, i.Duration), nil
}

// MarshalBinary encodes the instruction to InstructionSize bytes.
func (i Instruction) MarshalBinary() ([]byte, error) {
	return i.AppendBinary(make([]byte, 0, InstructionSize))
}

// UnmarshalBinary decodes InstructionSize bytes. A direction nibble above
// the nine legal values is rejected.
func (i *Instruction) UnmarshalBinary(data []byte) error {
	if len(data) < InstructionSize {
		return ErrTruncated
	}
	word := binary.LittleEndian.Uint16(data[0:2])
	dec := Instruction{
		Buttons:   pokken.Button(word & buttonsMask),
		Direction: pokken.Direction(word >> directionShift),
		Duration:  data[2],
	}
	if err := dec.Validate(); err != nil {
		return err
	}
	*i = dec
	return nil
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %s x%d", i.Buttons, i.Direction, i.Duration)
}
