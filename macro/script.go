package macro

import (
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"slices"

	"golang.org/x/crypto/blake2b"
)

var ErrEmptyScript = errors.New("script has no steps")

// StepError reports which step of a script failed validation.
type StepError struct {
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Script is an ordered, immutable list of Instructions.
// Every step is validated once, when the script is built.
type Script struct {
	steps []Instruction
}

// NewScript copies steps into a validated Script.
func NewScript(steps ...Instruction) (*Script, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyScript
	}
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			return nil, &StepError{Index: i, Err: err}
		}
	}
	return &Script{steps: slices.Clone(steps)}, nil
}

// MustScript is NewScript for static tables; it panics on invalid input.
func MustScript(steps ...Instruction) *Script {
	s, err := NewScript(steps...)
	if err != nil {
		panic(err)
	}
	return s
}

// UnmarshalScript decodes concatenated packed instructions.
func UnmarshalScript(data []byte) (*Script, error) {
	if len(data)%InstructionSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncated, len(data), InstructionSize)
	}
	steps := make([]Instruction, len(data)/InstructionSize)
	for i := range steps {
		if err := steps[i].UnmarshalBinary(data[i*InstructionSize:]); err != nil {
			return nil, &StepError{Index: i, Err: err}
		}
	}
	return NewScript(steps...)
}

// Len returns the number of steps.
func (s *Script) Len() int {
	return len(s.steps)
}

// At returns step i. Callers bound-check; i outside [0, Len) panics.
func (s *Script) At(i int) Instruction {
	return s.steps[i]
}

// Steps iterates over the script in order.
func (s *Script) Steps() iter.Seq2[int, Instruction] {
	return slices.All(s.steps)
}

// TotalUnits is the sum of all step durations.
func (s *Script) TotalUnits() int {
	n := 0
	for _, st := range s.steps {
		n += int(st.Duration)
	}
	return n
}

// MarshalBinary packs the script as consecutive InstructionSize records.
func (s *Script) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, len(s.steps)*InstructionSize)
	for i, st := range s.steps {
		var err error
		if b, err = st.AppendBinary(b); err != nil {
			return nil, &StepError{Index: i, Err: err}
		}
	}
	return b, nil
}

// Fingerprint is the hex BLAKE2b-256 digest of the packed script. Two
// scripts with the same fingerprint play back identically.
func (s *Script) Fingerprint() string {
	packed, err := s.MarshalBinary()
	if err != nil {
		// unreachable: steps were validated in NewScript
		panic(err)
	}
	sum := blake2b.Sum256(packed)
	return hex.EncodeToString(sum[:])
}
