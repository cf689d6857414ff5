// Command bulb replays events against a machine definition and prints the
// state after each one.
//
//	bulb TOGGLE "CHANGE_COLOR color=red" BREAK RESET
//	echo TOGGLE | bulb -config machine.yaml
//	bulb -diagram
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/stateforward/go-fsm"
	"github.com/stateforward/go-fsm/bulb"
	"github.com/stateforward/go-fsm/pkg/config"
	"github.com/stateforward/go-fsm/pkg/plantuml"
	"github.com/stateforward/go-fsm/pkg/set"
	"github.com/stateforward/go-fsm/pkg/telemetry"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "bulb:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("bulb", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "YAML machine definition (defaults to the built-in bulb)")
	diagram := flags.Bool("diagram", false, "print a PlantUML diagram of the machine and exit")
	traced := flags.Bool("trace", false, "print recorded trace spans to stderr on exit")
	logLevel := flags.String("log-level", "warn", "log level: debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", *logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	model, err := loadModel(*configPath)
	if err != nil {
		return err
	}
	if *diagram {
		return plantuml.Generate(stdout, model)
	}

	options := []fsm.Option{fsm.WithLogger(logger)}
	var recorder *telemetry.Recorder
	if *traced {
		recorder = telemetry.NewRecorder("bulb")
		options = append(options, fsm.WithTrace(telemetry.Trace(recorder)))
	}
	instance := fsm.New(ctx, model, options...)
	defer instance.Terminate()
	instance.OnTransition(func(from, to fsm.State, event fsm.Event) {
		logger.Info("transition", "from", from.Mode, "to", to.Mode, "event", event.Kind)
	})

	fmt.Fprintln(stdout, instance.State())
	send := func(line string) error {
		event, ok, err := parseEvent(line)
		if err != nil || !ok {
			return err
		}
		if !instance.Send(event) {
			logger.Info("event ignored",
				"event", event.Kind,
				"mode", instance.State().Mode,
				"handled", set.Sorted(model.Kinds(instance.State().Mode)),
			)
		}
		fmt.Fprintln(stdout, instance.State())
		return nil
	}

	if flags.NArg() > 0 {
		for _, arg := range flags.Args() {
			if err := send(arg); err != nil {
				return err
			}
		}
	} else {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if err := send(scanner.Text()); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read events: %w", err)
		}
	}

	if recorder != nil {
		for _, span := range recorder.Spans() {
			attributes := []string{}
			for _, kv := range span.Attributes() {
				attributes = append(attributes, fmt.Sprintf("%s=%s", kv.Key, kv.Value.Emit()))
			}
			fmt.Fprintf(stderr, "span %s %s\n", span.Name(), strings.Join(attributes, " "))
		}
	}
	return nil
}

func loadModel(path string) (*fsm.Model, error) {
	if path == "" {
		return bulb.Define(), nil
	}
	return config.LoadFile(path)
}
