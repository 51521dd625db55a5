package macro

import "github.com/fightstick/fightstick/device/pokken"

const (
	y  = pokken.ButtonY
	yb = pokken.ButtonY | pokken.ButtonB
)

// builtinSteps is a Super Mario Maker speedrun route, played from the
// pause menu of the level.
var builtinSteps = []Instruction{
	// Startup
	{pokken.ButtonNone, pokken.DirCenter, 4},
	{pokken.ButtonL | pokken.ButtonR, pokken.DirCenter, 3},
	{pokken.ButtonNone, pokken.DirCenter, 4},
	// Unpause
	{pokken.ButtonPlus, pokken.DirCenter, 3},
	// Run right and open door
	{y, pokken.DirRight, 17},
	{y, pokken.DirUp, 3},
	{pokken.ButtonNone, pokken.DirCenter, 20},
	// Wait descend
	{pokken.ButtonNone, pokken.DirCenter, 90},
	// Second door
	{y, pokken.DirRight, 15},
	{y, pokken.DirUp, 3},
	{pokken.ButtonNone, pokken.DirCenter, 50},
	{y, pokken.DirRight, 13},
	{y, pokken.DirDownRight, 1},
	// Spines
	{yb, pokken.DirDownRight, 4},
	{y, pokken.DirDownRight, 2},
	{y, pokken.DirDown, 4},
	{y, pokken.DirRight, 10},
	// To first P-Switch
	{yb, pokken.DirCenter, 4},
	{yb, pokken.DirRight, 4},
	{y, pokken.DirRight, 1},
	{pokken.ButtonNone, pokken.DirCenter, 5},
	// To second P-Switch
	{yb, pokken.DirRight, 16},
	{y, pokken.DirCenter, 4},
	// To platform
	{yb, pokken.DirLeft, 8},
	{y, pokken.DirCenter, 9},
	// First platform, first jump
	{yb, pokken.DirCenter, 4},
	{yb, pokken.DirLeft, 5},
	{y, pokken.DirLeft, 4},
	{y, pokken.DirRight, 8},
	{y, pokken.DirCenter, 7},
	// First platform, second jump
	{yb, pokken.DirLeft, 8},
	{y, pokken.DirLeft, 11},
	// Second platform
	{yb, pokken.DirLeft, 16},
	{y, pokken.DirLeft, 4},
	// Shell
	{yb, pokken.DirLeft, 50},
	{y, pokken.DirRight, 18},
	// Red block into question block
	{yb, pokken.DirRight, 1},
	{y, pokken.DirRight, 4},
	{y, pokken.DirLeft, 4},
	// Red block into higher level
	{yb, pokken.DirLeft, 25},
	{pokken.ButtonPlus, pokken.DirCenter, 3},
}

var builtin = MustScript(builtinSteps...)

// Builtin returns the macro compiled into the binary.
func Builtin() *Script {
	return builtin
}
