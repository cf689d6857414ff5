// Package config loads machine definitions from YAML documents.
//
// A document names the initial mode, the rules of every mode, rules shared by
// all modes and the attribute updaters:
//
//	name: bulb
//	initial: { mode: unlit, attributes: { color: white } }
//	modes:
//	  unlit: { TOGGLE: lit, BREAK: { target: broken, guard: never } }
//	  lit: { TOGGLE: unlit, CHANGE_COLOR: lit }
//	  broken:
//	any: { RESET: unlit }
//	updaters:
//	  CHANGE_COLOR: { set: color }
//	  RESET: { restore: true }
//
// A rule is either a bare target mode or a mapping with a target and a guard
// name. Guards and custom updaters are resolved by name through a Registry.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/stateforward/go-fsm"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownGuard   = errors.New("unknown guard")
	ErrUnknownUpdater = errors.New("unknown updater")
	ErrInvalidUpdater = errors.New("invalid updater")
)

type Initial struct {
	Mode       string         `yaml:"mode"`
	Attributes map[string]any `yaml:"attributes"`
}

type Rule struct {
	Kind   string `yaml:"-"`
	Target string `yaml:"target"`
	Guard  string `yaml:"guard"`
}

func (rule *Rule) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		rule.Target = value.Value
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			switch key := value.Content[i]; key.Value {
			case "target", "guard":
			default:
				return fmt.Errorf("line %d: field %q not found in rule", key.Line, key.Value)
			}
		}
		type plain Rule
		var tmp plain
		if err := value.Decode(&tmp); err != nil {
			return err
		}
		*rule = Rule(tmp)
		if rule.Target == "" {
			return fmt.Errorf("line %d: rule has no target", value.Line)
		}
		return nil
	}
	return fmt.Errorf("line %d: rule must be a target mode or a mapping", value.Line)
}

// Rules keeps the document order of a kind-to-rule mapping.
type Rules []Rule

func (rules *Rules) UnmarshalYAML(value *yaml.Node) error {
	if isNull(value) {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: rules must be a mapping of event kinds", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i], value.Content[i+1]
		var rule Rule
		if err := node.Decode(&rule); err != nil {
			return err
		}
		rule.Kind = key.Value
		*rules = append(*rules, rule)
	}
	return nil
}

type Mode struct {
	Name  string
	Rules Rules
}

// Modes keeps the document order of the mode mapping.
type Modes []Mode

func (modes *Modes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: modes must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i], value.Content[i+1]
		mode := Mode{Name: key.Value}
		if err := mode.Rules.UnmarshalYAML(node); err != nil {
			return err
		}
		*modes = append(*modes, mode)
	}
	return nil
}

type Updater struct {
	Set     string `yaml:"set"`
	From    string `yaml:"from"`
	Restore bool   `yaml:"restore"`
	Use     string `yaml:"use"`
}

type Document struct {
	Name     string             `yaml:"name"`
	Initial  Initial            `yaml:"initial"`
	Modes    Modes              `yaml:"modes"`
	Any      Rules              `yaml:"any"`
	Updaters map[string]Updater `yaml:"updaters"`
}

func isNull(value *yaml.Node) bool {
	return value == nil || (value.Kind == yaml.ScalarNode && value.Tag == "!!null")
}

// Registry resolves guard and updater names used by documents.
type Registry struct {
	guards   map[string]func(fsm.Event) bool
	updaters map[string]fsm.Updater
}

// NewRegistry returns a registry holding the always and never guards.
func NewRegistry() *Registry {
	return &Registry{
		guards: map[string]func(fsm.Event) bool{
			"always": func(fsm.Event) bool { return true },
			"never":  func(fsm.Event) bool { return false },
		},
		updaters: map[string]fsm.Updater{},
	}
}

func (registry *Registry) RegisterGuard(name string, guard func(fsm.Event) bool) *Registry {
	registry.guards[name] = guard
	return registry
}

func (registry *Registry) RegisterUpdater(name string, updater fsm.Updater) *Registry {
	registry.updaters[name] = updater
	return registry
}

func (registry *Registry) options(rule Rule) ([]fsm.Element, error) {
	if rule.Guard == "" {
		return nil, nil
	}
	guard, ok := registry.guards[rule.Guard]
	if !ok {
		return nil, fmt.Errorf("%w %q on %s", ErrUnknownGuard, rule.Guard, rule.Kind)
	}
	return []fsm.Element{fsm.Guard(guard, rule.Guard)}, nil
}

func (registry *Registry) updater(kind string, config Updater) (fsm.Element, error) {
	set := 0
	for _, present := range []bool{config.Set != "", config.Restore, config.Use != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w %s: exactly one of set, restore or use is required", ErrInvalidUpdater, kind)
	}
	switch {
	case config.Restore:
		return fsm.Restore(fsm.Kind(kind)), nil
	case config.Use != "":
		updater, ok := registry.updaters[config.Use]
		if !ok {
			return nil, fmt.Errorf("%w %q on %s", ErrUnknownUpdater, config.Use, kind)
		}
		return fsm.Update(fsm.Kind(kind), updater), nil
	}
	if config.From != "" {
		return fsm.Update(fsm.Kind(kind), fsm.Set(config.Set, config.From)), nil
	}
	return fsm.Update(fsm.Kind(kind), fsm.Set(config.Set)), nil
}

// Elements translates the document into model elements.
func (document *Document) Elements(registry *Registry) ([]fsm.Element, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	elements := []fsm.Element{}
	if document.Initial.Mode != "" {
		elements = append(elements, fsm.Initial(fsm.Mode(document.Initial.Mode), document.Initial.Attributes))
	}
	for _, mode := range document.Modes {
		rules := []fsm.Element{}
		for _, rule := range mode.Rules {
			options, err := registry.options(rule)
			if err != nil {
				return nil, fmt.Errorf("mode %s: %w", mode.Name, err)
			}
			rules = append(rules, fsm.On(fsm.Kind(rule.Kind), fsm.Mode(rule.Target), options...))
		}
		elements = append(elements, fsm.When(fsm.Mode(mode.Name), rules...))
	}
	for _, rule := range document.Any {
		options, err := registry.options(rule)
		if err != nil {
			return nil, fmt.Errorf("any: %w", err)
		}
		elements = append(elements, fsm.Any(fsm.Kind(rule.Kind), fsm.Mode(rule.Target), options...))
	}
	kinds := make([]string, 0, len(document.Updaters))
	for kind := range document.Updaters {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		element, err := registry.updater(kind, document.Updaters[kind])
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	return elements, nil
}

type Option func(*loader)

type loader struct {
	registry *Registry
	name     string
}

func WithRegistry(registry *Registry) Option {
	return func(loader *loader) {
		loader.registry = registry
	}
}

// WithName overrides the document's model name.
func WithName(name string) Option {
	return func(loader *loader) {
		loader.name = name
	}
}

// Decode reads a document, rejecting unknown fields.
func Decode(reader io.Reader) (*Document, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	document := &Document{}
	if err := decoder.Decode(document); err != nil {
		return nil, fmt.Errorf("decode machine definition: %w", err)
	}
	return document, nil
}

// Load decodes a document and compiles it into a model.
func Load(reader io.Reader, options ...Option) (*fsm.Model, error) {
	loader := &loader{}
	for _, option := range options {
		option(loader)
	}
	document, err := Decode(reader)
	if err != nil {
		return nil, err
	}
	elements, err := document.Elements(loader.registry)
	if err != nil {
		return nil, err
	}
	name := document.Name
	if loader.name != "" {
		name = loader.name
	}
	return fsm.Compile(name, elements...)
}

func LoadFile(path string, options ...Option) (*fsm.Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer file.Close()
	model, err := Load(file, options...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return model, nil
}
