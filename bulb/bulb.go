// Package bulb defines the indestructible light bulb: a lamp that toggles,
// changes color while lit and nominally breaks, except that its break rule is
// guarded so that it never fires.
package bulb

import (
	_ "embed"

	"github.com/stateforward/go-fsm"
)

const (
	Unlit  fsm.Mode = "unlit"
	Lit    fsm.Mode = "lit"
	Broken fsm.Mode = "broken"
)

const (
	Toggle      fsm.Kind = "TOGGLE"
	Break       fsm.Kind = "BREAK"
	Reset       fsm.Kind = "RESET"
	ChangeColor fsm.Kind = "CHANGE_COLOR"
)

// Definition is the YAML rendition of the machine built by Define.
//
//go:embed bulb.yaml
var Definition []byte

// Controls are the bare events a shell exposes as buttons.
var Controls = []fsm.Kind{Toggle, Break, Reset}

// Colors are the values offered for CHANGE_COLOR.
var Colors = []string{"white", "red", "blue", "green"}

var palette = map[string]string{
	"white": "#feffeb",
	"red":   "#ff674f",
	"blue":  "#5cb6ff",
	"green": "#8ff244",
}

func Defaults() fsm.Attributes {
	return fsm.Attributes{"color": "white"}
}

func Define() *fsm.Model {
	unbreakable := fsm.On(Break, Broken, fsm.Guard(fsm.Never, "never"))
	return fsm.Define("bulb",
		fsm.Initial(Unlit, Defaults()),
		fsm.When(Unlit,
			unbreakable,
			fsm.On(Toggle, Lit),
		),
		fsm.When(Lit,
			unbreakable,
			fsm.On(ChangeColor, Lit),
			fsm.On(Toggle, Unlit),
		),
		fsm.When(Broken),
		fsm.Any(Reset, Unlit),
		fsm.Update(ChangeColor, fsm.Set("color")),
		fsm.Restore(Reset),
	)
}

// Color builds a CHANGE_COLOR event.
func Color(color string) fsm.Event {
	return fsm.NewEvent(ChangeColor, fsm.Payload{"color": color})
}

// Hex returns the display color for a palette name, or "" when unknown.
func Hex(color string) string {
	return palette[color]
}

// Fill returns the bulb fill for state: the palette color when lit, "none"
// when unlit and "" when broken or unknown.
func Fill(state fsm.State) string {
	switch state.Mode {
	case Lit:
		color, _ := state.Attributes["color"].(string)
		return Hex(color)
	case Unlit:
		return "none"
	}
	return ""
}
