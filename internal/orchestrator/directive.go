package orchestrator

import (
	"encoding/json"
	"strings"
)

// directiveEnvelope is the small, well-defined JSON object the system
// prompt instructs the model to emit as the very first thing in its
// response when it wants to trigger a side effect. A plain answer has no
// leading JSON at all.
type directiveEnvelope struct {
	Actions []directiveAction `json:"actions"`
}

type directiveAction struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// extractDirective splits a leading JSON action envelope from the
// user-facing text that follows it. json.Decoder.Decode reads exactly one
// JSON value and leaves InputOffset pointing just past it, so the
// remainder of the response - whatever the model wrote after the
// envelope - is recovered without needing to know its length in advance.
func extractDirective(full string) (directiveEnvelope, string) {
	trimmed := strings.TrimLeft(full, " \t\r\n")
	if !strings.HasPrefix(trimmed, "{") {
		return directiveEnvelope{}, full
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var env directiveEnvelope
	if err := dec.Decode(&env); err != nil {
		return directiveEnvelope{}, full
	}

	rest := trimmed[dec.InputOffset():]
	return env, strings.TrimLeft(rest, " \t\r\n")
}
