package fsm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"

	"github.com/google/uuid"
	"github.com/stateforward/go-fsm/pkg/set"
)

// Logger is the default logger used by instances created without WithLogger.
var Logger = slog.Default()

var (
	ErrInvalidDefinition = errors.New("invalid definition")
	ErrUnknownMode       = errors.New("unknown mode")
	ErrDuplicateRule     = errors.New("duplicate rule")
	ErrDuplicateUpdater  = errors.New("duplicate updater")
	ErrNoInitial         = errors.New("no initial mode")
	ErrMisplaced         = errors.New("misplaced element")
)

/******* Mode & Kind *******/

// Mode is the discrete named state of a machine.
type Mode string

// Kind names an event.
type Kind string

/******* Attributes *******/

// Attributes is the auxiliary data carried alongside a mode.
type Attributes map[string]any

func (attributes Attributes) Clone() Attributes {
	if attributes == nil {
		return nil
	}
	return maps.Clone(attributes)
}

// Equal reports whether both attribute sets hold the same values. A nil and an
// empty set are equal.
func (attributes Attributes) Equal(other Attributes) bool {
	if len(attributes) == 0 && len(other) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]any(attributes), map[string]any(other))
}

/******* State *******/

// State is a value: evaluation never mutates it, it returns a replacement.
type State struct {
	Mode       Mode       `json:"mode"`
	Attributes Attributes `json:"attributes"`
}

func (state State) Equal(other State) bool {
	return state.Mode == other.Mode && state.Attributes.Equal(other.Attributes)
}

// String renders the debug projection of the state.
func (state State) String() string {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Sprintf("%s %v", state.Mode, map[string]any(state.Attributes))
	}
	return string(data)
}

func (state State) MarshalJSON() ([]byte, error) {
	attributes := state.Attributes
	if attributes == nil {
		attributes = Attributes{}
	}
	return json.Marshal(map[string]any{
		"mode":       state.Mode,
		"attributes": map[string]any(attributes),
	})
}

/******* Events *******/

type Payload = map[string]any

type Event struct {
	Kind    Kind    `json:"kind"`
	Payload Payload `json:"payload,omitempty"`
}

// NewEvent builds a structured event. Multiple payloads are merged, later keys win.
func NewEvent(kind Kind, maybePayload ...Payload) Event {
	event := Event{Kind: kind}
	for _, payload := range maybePayload {
		if len(payload) == 0 {
			continue
		}
		if event.Payload == nil {
			event.Payload = Payload{}
		}
		maps.Copy(event.Payload, payload)
	}
	return event
}

func (event Event) Get(key string) (any, bool) {
	value, ok := event.Payload[key]
	return value, ok
}

// Signal is what callers may hand to the evaluator: a bare kind name or a
// structured event.
type Signal interface {
	Kind | string | Event
}

// Normalize resolves a signal into a structured event. A bare kind carries no payload.
func Normalize[S Signal](signal S) Event {
	switch signal := any(signal).(type) {
	case Event:
		return signal
	case Kind:
		return Event{Kind: signal}
	default:
		return Event{Kind: Kind(signal.(string))}
	}
}

/******* Transition *******/

// Constraint is a guard predicate over the normalized event.
type Constraint func(event Event) bool

func Always() bool { return true }

func Never() bool { return false }

func always(Event) bool { return true }

// Transition is the rule for one (mode, kind) pair. Guard is never nil on a
// built model; GuardName is empty when the guard was omitted.
type Transition struct {
	Source    Mode
	Kind      Kind
	Target    Mode
	Guard     Constraint
	GuardName string
}

/******* Updater *******/

// Updater computes new attributes from the previous ones and the event. The
// attributes it receives are a private copy.
type Updater func(attributes Attributes, event Event) Attributes

// Set copies the event payload field key (defaulting to field) into the
// attribute field. A missing payload field leaves the attribute untouched.
func Set(field string, maybeKey ...string) Updater {
	key := field
	if len(maybeKey) > 0 {
		key = maybeKey[0]
	}
	return func(attributes Attributes, event Event) Attributes {
		value, ok := event.Get(key)
		if !ok {
			return attributes
		}
		if attributes == nil {
			attributes = Attributes{}
		}
		attributes[field] = value
		return attributes
	}
}

/******* Model *******/

type mode struct {
	name  Mode
	rules map[Kind]*Transition
	order []Kind
}

// Model is an immutable machine definition. It is safe to share between
// instances and goroutines once built.
type Model struct {
	name     string
	id       string
	initial  State
	defined  bool
	modes    map[Mode]*mode
	order    []Mode
	updaters map[Kind]Updater
	deferred []Element
}

// Element is a partial definition applied while a model is built. The stack
// holds the enclosing owners, innermost last.
type Element = func(model *Model, stack []any) error

func (model *Model) Name() string {
	if model == nil {
		return ""
	}
	return model.name
}

func (model *Model) ID() string {
	if model == nil {
		return ""
	}
	return model.id
}

// Initial returns the designated initial state with a private attribute copy.
func (model *Model) Initial() State {
	if model == nil {
		return State{}
	}
	return State{Mode: model.initial.Mode, Attributes: model.initial.Attributes.Clone()}
}

func (model *Model) Modes() set.Set[Mode] {
	modes := set.New[Mode]()
	if model == nil {
		return modes
	}
	modes.Add(model.order...)
	return modes
}

// Kinds returns the event kinds with a rule under the given mode.
func (model *Model) Kinds(name Mode) set.Set[Kind] {
	kinds := set.New[Kind]()
	if model == nil {
		return kinds
	}
	if mode, ok := model.modes[name]; ok {
		kinds.Add(mode.order...)
	}
	return kinds
}

func (model *Model) Rule(name Mode, kind Kind) (Transition, bool) {
	if transition := model.rule(name, kind); transition != nil {
		return *transition, true
	}
	return Transition{}, false
}

// Rules lists every rule in declaration order.
func (model *Model) Rules() []Transition {
	if model == nil {
		return nil
	}
	rules := []Transition{}
	for _, name := range model.order {
		mode := model.modes[name]
		for _, kind := range mode.order {
			rules = append(rules, *mode.rules[kind])
		}
	}
	return rules
}

// ModeOrder lists modes in declaration order.
func (model *Model) ModeOrder() []Mode {
	if model == nil {
		return nil
	}
	return append([]Mode(nil), model.order...)
}

func (model *Model) HasUpdater(kind Kind) bool {
	if model == nil {
		return false
	}
	_, ok := model.updaters[kind]
	return ok
}

func (model *Model) rule(name Mode, kind Kind) *Transition {
	if model == nil {
		return nil
	}
	mode, ok := model.modes[name]
	if !ok {
		return nil
	}
	return mode.rules[kind]
}

/******* Evaluation *******/

// Evaluate computes the state that follows state when signal arrives.
func Evaluate[S Signal](model *Model, state State, signal S) State {
	return model.Step(state, Normalize(signal))
}

// Step is Evaluate for an already normalized event. Events with no rule for
// the current mode and events whose guard fails return state unchanged.
func (model *Model) Step(state State, event Event) State {
	next, _ := model.step(state, event)
	return next
}

// Enabled reports whether event would fire from state.
func (model *Model) Enabled(state State, event Event) bool {
	transition := model.rule(state.Mode, event.Kind)
	return transition != nil && transition.Guard(event)
}

func (model *Model) step(state State, event Event) (State, bool) {
	transition := model.rule(state.Mode, event.Kind)
	if transition == nil {
		return state, false
	}
	if !transition.Guard(event) {
		return state, false
	}
	attributes := state.Attributes
	if updater, ok := model.updaters[event.Kind]; ok {
		attributes = updater(state.Attributes.Clone(), event)
	}
	return State{Mode: transition.Target, Attributes: attributes}, true
}

/******* Definition *******/

func apply(model *Model, stack []any, elements ...Element) error {
	for _, element := range elements {
		if err := element(model, stack); err != nil {
			return err
		}
	}
	return nil
}

func find[T any](stack []any) (T, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if owner, ok := stack[i].(T); ok {
			return owner, true
		}
	}
	var zero T
	return zero, false
}

// Define builds a model and panics if the definition is invalid.
func Define(name string, elements ...Element) *Model {
	model, err := Compile(name, elements...)
	if err != nil {
		Logger.Error("failed to define model", "name", name, "error", err)
		panic(err)
	}
	return model
}

// Compile builds a model, reporting invalid definitions as errors wrapping
// ErrInvalidDefinition.
func Compile(name string, elements ...Element) (*Model, error) {
	model := &Model{
		name:     name,
		id:       uuid.Must(uuid.NewV7()).String(),
		modes:    map[Mode]*mode{},
		updaters: map[Kind]Updater{},
	}
	stack := []any{model}
	if err := apply(model, stack, elements...); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidDefinition, name, err)
	}
	for len(model.deferred) > 0 {
		deferred := model.deferred
		model.deferred = nil
		if err := apply(model, stack, deferred...); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidDefinition, name, err)
		}
	}
	if err := model.validate(); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidDefinition, name, err)
	}
	return model, nil
}

func (model *Model) validate() error {
	if !model.defined {
		return ErrNoInitial
	}
	if _, ok := model.modes[model.initial.Mode]; !ok {
		return fmt.Errorf("initial %w %q", ErrUnknownMode, model.initial.Mode)
	}
	for _, name := range model.order {
		mode := model.modes[name]
		for _, kind := range mode.order {
			target := mode.rules[kind].Target
			if _, ok := model.modes[target]; !ok {
				return fmt.Errorf("rule %s/%s targets %w %q", name, kind, ErrUnknownMode, target)
			}
		}
	}
	return nil
}

func (model *Model) addRule(owner *mode, transition *Transition) error {
	if _, exists := owner.rules[transition.Kind]; exists {
		return fmt.Errorf("%w %s/%s", ErrDuplicateRule, owner.name, transition.Kind)
	}
	if transition.Guard == nil {
		transition.Guard = always
	}
	owner.rules[transition.Kind] = transition
	owner.order = append(owner.order, transition.Kind)
	return nil
}

// When declares a mode and the rules handled while in it.
func When(name Mode, rules ...Element) Element {
	return func(model *Model, stack []any) error {
		if _, ok := find[*mode](stack); ok {
			return fmt.Errorf("%w: mode %q declared inside another mode", ErrMisplaced, name)
		}
		owner, ok := model.modes[name]
		if !ok {
			owner = &mode{name: name, rules: map[Kind]*Transition{}}
			model.modes[name] = owner
			model.order = append(model.order, name)
		}
		return apply(model, append(stack, owner), rules...)
	}
}

// On declares the rule for kind in the enclosing mode.
func On(kind Kind, target Mode, options ...Element) Element {
	return func(model *Model, stack []any) error {
		owner, ok := find[*mode](stack)
		if !ok {
			return fmt.Errorf("%w: rule %s must be declared within When", ErrMisplaced, kind)
		}
		transition := &Transition{Source: owner.name, Kind: kind, Target: target}
		if err := apply(model, append(stack, transition), options...); err != nil {
			return err
		}
		return model.addRule(owner, transition)
	}
}

// Any declares the rule for kind on every mode of the model, including modes
// declared after it.
func Any(kind Kind, target Mode, options ...Element) Element {
	return func(model *Model, stack []any) error {
		model.deferred = append(model.deferred, func(model *Model, stack []any) error {
			for _, name := range model.order {
				if err := On(kind, target, options...)(model, append(stack, model.modes[name])); err != nil {
					return err
				}
			}
			return nil
		})
		return nil
	}
}

// Guard attaches a predicate to the enclosing rule. Both argument-free and
// event-aware predicates are accepted.
func Guard[T interface {
	func() bool | func(Event) bool | Constraint
}](fn T, maybeName ...string) Element {
	name := "guard"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	var constraint Constraint
	switch fn := any(fn).(type) {
	case func() bool:
		constraint = func(Event) bool { return fn() }
	case func(Event) bool:
		constraint = fn
	case Constraint:
		constraint = fn
	}
	return func(model *Model, stack []any) error {
		transition, ok := find[*Transition](stack)
		if !ok {
			return fmt.Errorf("%w: guard %s must be declared within On", ErrMisplaced, name)
		}
		if constraint == nil {
			return nil
		}
		transition.Guard = constraint
		transition.GuardName = name
		return nil
	}
}

// Initial designates the initial mode and its attributes.
func Initial(name Mode, maybeAttributes ...Attributes) Element {
	return func(model *Model, stack []any) error {
		if _, ok := find[*mode](stack); ok {
			return fmt.Errorf("%w: initial %q declared inside a mode", ErrMisplaced, name)
		}
		if model.defined {
			return fmt.Errorf("%w: initial already set to %q", ErrMisplaced, model.initial.Mode)
		}
		attributes := Attributes{}
		for _, partial := range maybeAttributes {
			maps.Copy(attributes, partial)
		}
		model.initial = State{Mode: name, Attributes: attributes}
		model.defined = true
		return nil
	}
}

// Update registers the attribute updater for kind.
func Update(kind Kind, updater Updater) Element {
	return func(model *Model, stack []any) error {
		if _, exists := model.updaters[kind]; exists {
			return fmt.Errorf("%w %s", ErrDuplicateUpdater, kind)
		}
		if updater == nil {
			return nil
		}
		model.updaters[kind] = updater
		return nil
	}
}

// Restore registers an updater for kind that returns the initial attributes.
func Restore(kind Kind) Element {
	return func(model *Model, stack []any) error {
		return Update(kind, func(Attributes, Event) Attributes {
			return model.initial.Attributes.Clone()
		})(model, stack)
	}
}
