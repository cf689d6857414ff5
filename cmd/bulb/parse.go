package main

import (
	"fmt"
	"strings"

	"github.com/stateforward/go-fsm"
)

// parseEvent reads "KIND" or "KIND key=value ...". Values stay strings.
func parseEvent(line string) (fsm.Event, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return fsm.Event{}, false, nil
	}
	payload := fsm.Payload{}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return fsm.Event{}, false, fmt.Errorf("malformed field %q, expected key=value", field)
		}
		payload[key] = value
	}
	return fsm.NewEvent(fsm.Kind(fields[0]), payload), true, nil
}
