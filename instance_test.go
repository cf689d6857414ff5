package fsm_test

import (
	"context"
	"slices"
	"testing"

	"github.com/stateforward/go-fsm"
	"github.com/stateforward/go-fsm/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Trace struct {
	sync []string
}

func (t *Trace) reset() {
	t.sync = []string{}
}

func (t *Trace) matches(expected []string) bool {
	return slices.Equal(t.sync, expected)
}

func TestInstance(t *testing.T) {
	trace := &Trace{}
	sm := fsm.New(context.Background(), lamp())
	require.NotEmpty(t, sm.ID())
	require.True(t, sm.State().Equal(sm.Model().Initial()))

	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		trace.sync = append(trace.sync, string(from.Mode)+"-"+string(event.Kind)+"->"+string(to.Mode))
	})

	trace.reset()
	if !fsm.Dispatch(sm, "TOGGLE") {
		t.Fatal("event TOGGLE not handled")
	}
	if sm.State().Mode != "lit" {
		t.Fatal("state is not correct", "state", sm.State())
	}
	if !sm.Send(fsm.NewEvent("CHANGE_COLOR", fsm.Payload{"color": "blue"})) {
		t.Fatal("event CHANGE_COLOR not handled")
	}
	if sm.State().Attributes["color"] != "blue" {
		t.Fatal("color is not correct", "state", sm.State())
	}
	if fsm.Dispatch(sm, "BREAK") {
		t.Fatal("BREAK should never fire")
	}
	if fsm.Dispatch(sm, "EXPLODE") {
		t.Fatal("unknown events should be ignored")
	}
	if !fsm.Dispatch(sm, fsm.Kind("RESET")) {
		t.Fatal("event RESET not handled")
	}
	if !sm.State().Equal(sm.Model().Initial()) {
		t.Fatal("state is not correct", "state", sm.State())
	}
	if !trace.matches([]string{"unlit-TOGGLE->lit", "lit-CHANGE_COLOR->lit", "lit-RESET->unlit"}) {
		t.Fatal("transitions are not correct", "trace", trace.sync)
	}
}

func TestInstanceRunToCompletion(t *testing.T) {
	sm := fsm.New(context.Background(), lamp())
	order := []string{}
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		order = append(order, "first:"+string(event.Kind))
		if event.Kind == "TOGGLE" && to.Mode == "lit" {
			assert.False(t, sm.Send(fsm.NewEvent("CHANGE_COLOR", fsm.Payload{"color": "red"})), "nested sends are queued")
			assert.Equal(t, fsm.Mode("lit"), sm.State().Mode)
			assert.Equal(t, "white", sm.State().Attributes["color"], "queued event must not run before listeners finish")
		}
	})
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		order = append(order, "second:"+string(event.Kind))
	})
	require.True(t, fsm.Dispatch(sm, "TOGGLE"))
	assert.Equal(t, "red", sm.State().Attributes["color"])
	assert.Equal(t, []string{"first:TOGGLE", "second:TOGGLE", "first:CHANGE_COLOR", "second:CHANGE_COLOR"}, order)
}

func TestInstanceUnsubscribe(t *testing.T) {
	sm := fsm.New(context.Background(), lamp())
	calls := 0
	unsubscribe := sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		calls++
	})
	fsm.Dispatch(sm, "TOGGLE")
	unsubscribe()
	fsm.Dispatch(sm, "TOGGLE")
	assert.Equal(t, 1, calls)
}

func TestInstanceOptions(t *testing.T) {
	start := fsm.State{Mode: "lit", Attributes: fsm.Attributes{"color": "green"}}
	sm := fsm.New(context.Background(), lamp(), fsm.WithID("lamp-1"), fsm.WithState(start))
	assert.Equal(t, "lamp-1", sm.ID())
	assert.True(t, start.Equal(sm.State()))
	start.Attributes["color"] = "red"
	assert.Equal(t, "green", sm.State().Attributes["color"], "WithState must copy attributes")
}

func TestInstanceTerminate(t *testing.T) {
	sm := fsm.New(context.Background(), lamp())
	calls := 0
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		calls++
		sm.Send(fsm.Event{Kind: "TOGGLE"})
		sm.Terminate()
	})
	assert.True(t, fsm.Dispatch(sm, "TOGGLE"))
	assert.Equal(t, 1, calls, "pending events are dropped on terminate")
	assert.Equal(t, fsm.Mode("lit"), sm.State().Mode)
	assert.False(t, fsm.Dispatch(sm, "TOGGLE"))
	assert.Equal(t, fsm.Mode("lit"), sm.State().Mode)
}

func TestInstanceTerminateSkipsListeners(t *testing.T) {
	sm := fsm.New(context.Background(), lamp())
	calls := []string{}
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		calls = append(calls, "first")
		sm.Terminate()
	})
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		calls = append(calls, "second")
	})
	assert.True(t, fsm.Dispatch(sm, "TOGGLE"))
	assert.Equal(t, []string{"first"}, calls)
}

func TestInstanceListenerPanic(t *testing.T) {
	sm := fsm.New(context.Background(), lamp())
	panicking := true
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {
		if panicking {
			panicking = false
			sm.Send(fsm.Event{Kind: "TOGGLE"})
			panic("listener failed")
		}
	})
	assert.Panics(t, func() { fsm.Dispatch(sm, "TOGGLE") })
	assert.Equal(t, fsm.Mode("lit"), sm.State().Mode)

	require.True(t, sm.Send(fsm.NewEvent("CHANGE_COLOR", fsm.Payload{"color": "blue"})))
	assert.Equal(t, fsm.Mode("lit"), sm.State().Mode, "events queued before a panic must not run later")
	assert.Equal(t, "blue", sm.State().Attributes["color"])
}

func TestInstanceTrace(t *testing.T) {
	recorder := telemetry.NewRecorder("test")
	sm := fsm.New(context.Background(), lamp(), fsm.WithTrace(telemetry.Trace(recorder)))
	sm.OnTransition(func(from, to fsm.State, event fsm.Event) {})
	fsm.Dispatch(sm, "TOGGLE")
	fsm.Dispatch(sm, "BREAK")

	names := []string{}
	for _, span := range recorder.Spans() {
		names = append(names, span.Name())
		assert.True(t, telemetry.Ended(span), "span %s not ended", span.Name())
	}
	assert.Equal(t, []string{"Dispatch", "evaluate", "notify", "Dispatch", "evaluate"}, names)

	spans := recorder.Spans()
	fired, ok := telemetry.Attribute(spans[1], "fsm.fired")
	require.True(t, ok)
	assert.True(t, fired.AsBool())
	mode, ok := telemetry.Attribute(spans[4], "fsm.mode")
	require.True(t, ok)
	assert.Equal(t, "lit", mode.AsString())
	fired, ok = telemetry.Attribute(spans[4], "fsm.fired")
	require.True(t, ok)
	assert.False(t, fired.AsBool())
}

func TestNilInstance(t *testing.T) {
	var sm *fsm.Instance
	assert.False(t, sm.Send(fsm.Event{Kind: "TOGGLE"}))
	assert.Equal(t, fsm.State{}, sm.State())
	assert.Empty(t, sm.ID())
	sm.Terminate()
}
