package bulb_test

import (
	"testing"

	"github.com/stateforward/go-fsm"
	"github.com/stateforward/go-fsm/bulb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reachable(model *fsm.Model) []fsm.State {
	states := []fsm.State{model.Initial()}
	for _, color := range bulb.Colors {
		states = append(states, fsm.State{Mode: bulb.Lit, Attributes: fsm.Attributes{"color": color}})
		states = append(states, fsm.State{Mode: bulb.Unlit, Attributes: fsm.Attributes{"color": color}})
	}
	return states
}

func TestShape(t *testing.T) {
	model := bulb.Define()
	initial := model.Initial()
	assert.Equal(t, bulb.Unlit, initial.Mode)
	assert.True(t, bulb.Defaults().Equal(initial.Attributes))
	assert.True(t, model.Modes().ContainsAll(bulb.Unlit, bulb.Lit, bulb.Broken))
	assert.Equal(t, 3, model.Modes().Size())
	assert.True(t, model.Kinds(bulb.Unlit).ContainsAll(bulb.Toggle, bulb.Break, bulb.Reset))
	assert.False(t, model.Kinds(bulb.Unlit).Contains(bulb.ChangeColor), "color changes only while lit")
	assert.True(t, model.Kinds(bulb.Lit).ContainsAll(bulb.Toggle, bulb.Break, bulb.Reset, bulb.ChangeColor))
	assert.Equal(t, 1, model.Kinds(bulb.Broken).Size())
}

func TestChangeColorKeepsMode(t *testing.T) {
	model := bulb.Define()
	white := fsm.State{Mode: bulb.Lit, Attributes: fsm.Attributes{"color": "white"}}
	red := model.Step(white, bulb.Color("red"))
	assert.True(t, fsm.State{Mode: bulb.Lit, Attributes: fsm.Attributes{"color": "red"}}.Equal(red), "got %s", red)
}

func TestResetFromEveryMode(t *testing.T) {
	model := bulb.Define()
	for _, mode := range []fsm.Mode{bulb.Unlit, bulb.Lit, bulb.Broken} {
		state := fsm.State{Mode: mode, Attributes: fsm.Attributes{"color": "blue"}}
		actual := fsm.Evaluate(model, state, bulb.Reset)
		assert.True(t, actual.Equal(fsm.State{Mode: bulb.Unlit, Attributes: bulb.Defaults()}), "RESET from %s gave %s", mode, actual)
	}
}

func TestToggleRoundTrip(t *testing.T) {
	model := bulb.Define()
	initial := model.Initial()
	lit := fsm.Evaluate(model, initial, bulb.Toggle)
	require.Equal(t, bulb.Lit, lit.Mode)
	assert.True(t, initial.Equal(fsm.Evaluate(model, lit, bulb.Toggle)))
}

func TestBreakIsInert(t *testing.T) {
	model := bulb.Define()
	for _, state := range reachable(model) {
		actual := fsm.Evaluate(model, state, bulb.Break)
		assert.True(t, state.Equal(actual), "BREAK changed %s into %s", state, actual)
	}
	rule, ok := model.Rule(bulb.Lit, bulb.Break)
	require.True(t, ok, "the break rule is declared even though it never fires")
	assert.Equal(t, bulb.Broken, rule.Target)
}

func TestBrokenOnlyResets(t *testing.T) {
	model := bulb.Define()
	broken := fsm.State{Mode: bulb.Broken, Attributes: bulb.Defaults()}
	for _, kind := range []fsm.Kind{bulb.Toggle, bulb.Break, bulb.ChangeColor} {
		assert.True(t, broken.Equal(fsm.Evaluate(model, broken, kind)), "%s should be ignored while broken", kind)
	}
}

func TestFill(t *testing.T) {
	assert.Equal(t, "none", bulb.Fill(fsm.State{Mode: bulb.Unlit, Attributes: bulb.Defaults()}))
	assert.Equal(t, "#ff674f", bulb.Fill(fsm.State{Mode: bulb.Lit, Attributes: fsm.Attributes{"color": "red"}}))
	assert.Equal(t, "", bulb.Fill(fsm.State{Mode: bulb.Broken}))
	for _, color := range bulb.Colors {
		assert.NotEmpty(t, bulb.Hex(color), "color %s has no hex value", color)
	}
	assert.Empty(t, bulb.Hex("purple"))
}

func TestControls(t *testing.T) {
	assert.Equal(t, []fsm.Kind{bulb.Toggle, bulb.Break, bulb.Reset}, bulb.Controls)
	assert.NotEmpty(t, bulb.Definition)
}
