package orchestrator

import "testing"

func TestExtractDirectiveSplitsLeadingEnvelope(t *testing.T) {
	full := `{"actions":[{"kind":"email","payload":{"to":"a@example.com"}}]}` + "\nI've sent that email."
	env, answer := extractDirective(full)
	if len(env.Actions) != 1 || env.Actions[0].Kind != "email" {
		t.Fatalf("env.Actions = %#v", env.Actions)
	}
	if env.Actions[0].Payload["to"] != "a@example.com" {
		t.Fatalf("payload = %#v", env.Actions[0].Payload)
	}
	if answer != "I've sent that email." {
		t.Fatalf("answer = %q", answer)
	}
}

func TestExtractDirectiveReturnsFullTextWhenNoEnvelope(t *testing.T) {
	full := "The capital of Atlantis is Sunhaven."
	env, answer := extractDirective(full)
	if len(env.Actions) != 0 {
		t.Fatalf("expected no actions, got %#v", env.Actions)
	}
	if answer != full {
		t.Fatalf("answer = %q, want unchanged full text", answer)
	}
}

func TestExtractDirectiveFallsBackOnMalformedJSON(t *testing.T) {
	full := `{"actions": [this is not valid json}` + "\nstill an answer"
	env, answer := extractDirective(full)
	if len(env.Actions) != 0 {
		t.Fatalf("expected no actions for malformed envelope, got %#v", env.Actions)
	}
	if answer != full {
		t.Fatalf("answer = %q, want the original full text preserved", answer)
	}
}

func TestExtractDirectiveTrimsLeadingWhitespace(t *testing.T) {
	full := "  \n  {\"actions\":[]}\n\nHello there."
	_, answer := extractDirective(full)
	if answer != "Hello there." {
		t.Fatalf("answer = %q", answer)
	}
}
