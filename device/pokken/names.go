package pokken

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownButton    = errors.New("unknown button")
	ErrUnknownDirection = errors.New("unknown direction")
)

var buttonNames = []struct {
	b    Button
	name string
}{
	{ButtonY, "Y"},
	{ButtonB, "B"},
	{ButtonA, "A"},
	{ButtonX, "X"},
	{ButtonL, "L"},
	{ButtonR, "R"},
	{ButtonZL, "ZL"},
	{ButtonZR, "ZR"},
	{ButtonMinus, "MINUS"},
	{ButtonPlus, "PLUS"},
	{ButtonLClick, "LCLICK"},
	{ButtonRClick, "RCLICK"},
	{ButtonHome, "HOME"},
	{ButtonCapture, "CAPTURE"},
}

var buttonAliases = map[string]Button{
	"-":        ButtonMinus,
	"+":        ButtonPlus,
	"SELECT":   ButtonMinus,
	"START":    ButtonPlus,
	"L3":       ButtonLClick,
	"R3":       ButtonRClick,
	"LSTICK":   ButtonLClick,
	"RSTICK":   ButtonRClick,
	"SCREEN":   ButtonCapture,
	"SNAPSHOT": ButtonCapture,
}

var directionNames = [DirectionCount]string{
	"center", "up", "up-right", "right", "down-right", "down", "down-left", "left", "up-left",
}

var directionAliases = map[string]Direction{
	"none":         DirCenter,
	"neutral":      DirCenter,
	"top":          DirUp,
	"top-right":    DirUpRight,
	"bottom-right": DirDownRight,
	"bottom":       DirDown,
	"bottom-left":  DirDownLeft,
	"top-left":     DirUpLeft,
	"n":            DirUp,
	"ne":           DirUpRight,
	"e":            DirRight,
	"se":           DirDownRight,
	"s":            DirDown,
	"sw":           DirDownLeft,
	"w":            DirLeft,
	"nw":           DirUpLeft,
}

// ParseButton resolves a single button name, case-insensitively.
func ParseButton(name string) (Button, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, bn := range buttonNames {
		if bn.name == n {
			return bn.b, nil
		}
	}
	if b, ok := buttonAliases[n]; ok {
		return b, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownButton, name)
}

// ParseButtons resolves a "+"-separated combination such as "Y+B".
// A lone "+" names the Plus button; "none" and "" give no buttons.
func ParseButtons(combo string) (Button, error) {
	combo = strings.TrimSpace(combo)
	switch strings.ToLower(combo) {
	case "", "none":
		return ButtonNone, nil
	case "+":
		return ButtonPlus, nil
	}
	var out Button
	for _, part := range strings.Split(combo, "+") {
		b, err := ParseButton(part)
		if err != nil {
			return 0, err
		}
		out |= b
	}
	return out, nil
}

// Names lists the canonical names of the set bits, lowest bit first.
func (b Button) Names() []string {
	var out []string
	for _, bn := range buttonNames {
		if b&bn.b != 0 {
			out = append(out, bn.name)
		}
	}
	return out
}

func (b Button) String() string {
	if b == ButtonNone {
		return "NONE"
	}
	s := strings.Join(b.Names(), "+")
	if rest := b &^ ButtonsAll; rest != 0 {
		if s != "" {
			s += "+"
		}
		s += fmt.Sprintf("0x%04x", uint16(rest))
	}
	return s
}

// ParseDirection resolves a direction name, case-insensitively.
// Spaces and underscores are treated like hyphens.
func ParseDirection(name string) (Direction, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "-", "_", "-").Replace(n)
	if n == "" {
		return DirCenter, nil
	}
	for i, dn := range directionNames {
		if dn == n || strings.ReplaceAll(dn, "-", "") == n {
			return Direction(i), nil
		}
	}
	if d, ok := directionAliases[n]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, name)
}

// Valid reports whether d is one of the nine legal positions.
func (d Direction) Valid() bool {
	return d < DirectionCount
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
	return directionNames[d]
}
