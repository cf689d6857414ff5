package fsm

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/stateforward/go-fsm/queue"
	"go.opentelemetry.io/otel/attribute"
)

// Trace is invoked at the start of a traced step and returns the function
// that ends it. End functions may receive the step's results.
type Trace func(ctx context.Context, step string, attributes ...attribute.KeyValue) func(...any)

// Listener observes fired transitions.
type Listener func(from, to State, event Event)

type subscription struct {
	listener Listener
}

// Instance owns the current state of one running machine. It is not safe for
// concurrent use; the model it runs is.
type Instance struct {
	ctx        context.Context
	id         string
	model      *Model
	state      State
	logger     *slog.Logger
	trace      Trace
	listeners  []*subscription
	queue      *queue.Queue[Event]
	processing bool
	terminated bool
}

type Option func(instance *Instance)

func WithLogger(logger *slog.Logger) Option {
	return func(instance *Instance) {
		instance.logger = logger
	}
}

func WithTrace(trace Trace) Option {
	return func(instance *Instance) {
		instance.trace = trace
	}
}

// WithState starts the instance from state instead of the model's initial state.
func WithState(state State) Option {
	return func(instance *Instance) {
		instance.state = State{Mode: state.Mode, Attributes: state.Attributes.Clone()}
	}
}

func WithID(id string) Option {
	return func(instance *Instance) {
		instance.id = id
	}
}

func New(ctx context.Context, model *Model, options ...Option) *Instance {
	instance := &Instance{
		ctx:   ctx,
		model: model,
		state: model.Initial(),
		queue: queue.New[Event](),
	}
	for _, option := range options {
		option(instance)
	}
	if instance.id == "" {
		instance.id = uuid.Must(uuid.NewV7()).String()
	}
	if instance.logger == nil {
		instance.logger = Logger
	}
	instance.logger = instance.logger.With("instance", instance.id, "model", model.Name())
	return instance
}

func (instance *Instance) ID() string {
	if instance == nil {
		return ""
	}
	return instance.id
}

func (instance *Instance) Model() *Model {
	if instance == nil {
		return nil
	}
	return instance.model
}

func (instance *Instance) State() State {
	if instance == nil {
		return State{}
	}
	return instance.state
}

// OnTransition registers a listener and returns the function removing it.
func (instance *Instance) OnTransition(listener Listener) func() {
	if instance == nil || listener == nil {
		return func() {}
	}
	current := &subscription{listener: listener}
	instance.listeners = append(instance.listeners, current)
	return func() {
		instance.listeners = slices.DeleteFunc(instance.listeners, func(other *subscription) bool {
			return other == current
		})
	}
}

// Dispatch normalizes signal and sends it to the instance.
func Dispatch[S Signal](instance *Instance, signal S) bool {
	return instance.Send(Normalize(signal))
}

// Send evaluates event against the held state and replaces it with the
// result. It reports whether a transition fired. Events sent by a listener
// while another event is being processed are queued and run afterwards; Send
// reports false for them.
func (instance *Instance) Send(event Event) bool {
	if instance == nil || instance.terminated {
		return false
	}
	if instance.trace != nil {
		defer instance.trace(instance.ctx, "Dispatch",
			attribute.String("fsm.instance", instance.id),
			attribute.String("fsm.event", string(event.Kind)),
		)()
	}
	if instance.processing {
		instance.queue.Push(event)
		return false
	}
	instance.processing = true
	completed := false
	defer func() {
		instance.processing = false
		// a panicking listener abandons the events it queued
		if !completed {
			instance.queue.Clear()
		}
	}()
	fired := instance.process(event)
	for !instance.terminated {
		next, ok := instance.queue.Pop()
		if !ok {
			break
		}
		instance.process(next)
	}
	completed = true
	return fired
}

func (instance *Instance) process(event Event) bool {
	from := instance.state
	var end func(...any)
	if instance.trace != nil {
		end = instance.trace(instance.ctx, "evaluate",
			attribute.String("fsm.instance", instance.id),
			attribute.String("fsm.mode", string(from.Mode)),
			attribute.String("fsm.event", string(event.Kind)),
		)
	}
	to, fired := instance.model.step(from, event)
	if end != nil {
		end(fired)
	}
	if !fired {
		instance.logger.Debug("event ignored", "mode", from.Mode, "event", event.Kind)
		return false
	}
	instance.state = to
	instance.logger.Debug("transition", "from", from.Mode, "to", to.Mode, "event", event.Kind)
	instance.notify(from, to, event)
	return true
}

func (instance *Instance) notify(from, to State, event Event) {
	if len(instance.listeners) == 0 {
		return
	}
	if instance.trace != nil {
		defer instance.trace(instance.ctx, "notify",
			attribute.String("fsm.instance", instance.id),
			attribute.Int("fsm.listeners", len(instance.listeners)),
		)()
	}
	for _, current := range slices.Clone(instance.listeners) {
		if instance.terminated {
			return
		}
		current.listener(from, to, event)
	}
}

// Terminate drops listeners and pending events, including listeners not yet
// notified of the current transition. Later sends are ignored.
func (instance *Instance) Terminate() {
	if instance == nil || instance.terminated {
		return
	}
	if instance.trace != nil {
		defer instance.trace(instance.ctx, "Terminate", attribute.String("fsm.instance", instance.id))()
	}
	instance.terminated = true
	instance.listeners = nil
	instance.queue.Clear()
	instance.logger.Debug("terminated", "mode", instance.state.Mode)
}
