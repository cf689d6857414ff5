package plantuml

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/stateforward/go-fsm"
)

func id(name string) string {
	return strings.NewReplacer("-", "_", "/", "_", ".", "_", " ", "_").Replace(name)
}

func generateState(builder *strings.Builder, model *fsm.Model, mode fsm.Mode) {
	fmt.Fprintf(builder, "state %s\n", id(string(mode)))
	initial := model.Initial()
	if initial.Mode != mode {
		return
	}
	keys := make([]string, 0, len(initial.Attributes))
	for key := range initial.Attributes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(builder, "state %s : %s = %v\n", id(string(mode)), key, initial.Attributes[key])
	}
}

func generateTransition(builder *strings.Builder, model *fsm.Model, transition fsm.Transition) {
	label := string(transition.Kind)
	if transition.GuardName != "" {
		label = fmt.Sprintf("%s [%s]", label, transition.GuardName)
	}
	if model.HasUpdater(transition.Kind) {
		label = fmt.Sprintf("%s / update", label)
	}
	fmt.Fprintf(builder, "%s --> %s : %s\n", id(string(transition.Source)), id(string(transition.Target)), label)
}

// Generate writes a PlantUML state diagram of model. Modes and rules appear
// in declaration order.
func Generate(writer io.Writer, model *fsm.Model) error {
	if model == nil {
		return fmt.Errorf("plantuml: nil model")
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", id(model.Name()))
	for _, mode := range model.ModeOrder() {
		generateState(&builder, model, mode)
	}
	fmt.Fprintf(&builder, "[*] --> %s\n", id(string(model.Initial().Mode)))
	for _, transition := range model.Rules() {
		generateTransition(&builder, model, transition)
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
