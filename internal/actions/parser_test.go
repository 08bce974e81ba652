package actions

import "testing"

func TestParseExtractsKnownDirective(t *testing.T) {
	text := `Hello there. <discord-action>{"type":"sendMessage","channel":"general","content":"hi"}</discord-action> bye.`
	res := Parse(text)
	if len(res.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(res.Actions))
	}
	if res.Actions[0].Type != TypeSendMessage {
		t.Fatalf("unexpected type: %v", res.Actions[0].Type)
	}
	if res.CleanText == text {
		t.Fatalf("expected clean text to have the block removed")
	}
	if res.ParseFailures != 0 {
		t.Fatalf("expected no parse failures, got %d", res.ParseFailures)
	}
}

func TestParseStripsUnrecognizedType(t *testing.T) {
	text := `<discord-action>{"type":"doSomethingWeird"}</discord-action>`
	res := Parse(text)
	if len(res.Actions) != 0 {
		t.Fatalf("expected 0 actions, got %d", len(res.Actions))
	}
	if len(res.StrippedUnrecognizedTypes) != 1 || res.StrippedUnrecognizedTypes[0] != "doSomethingWeird" {
		t.Fatalf("expected unrecognized type recorded, got %v", res.StrippedUnrecognizedTypes)
	}
}

func TestParseCountsMalformedJSON(t *testing.T) {
	text := `<discord-action>{not json}</discord-action>`
	res := Parse(text)
	if res.ParseFailures != 1 {
		t.Fatalf("expected 1 parse failure, got %d", res.ParseFailures)
	}
}

func TestFilterDisabledSeparatesByCategory(t *testing.T) {
	directives := []Directive{
		{Type: TypeSendMessage},
		{Type: TypeCreateCron},
	}
	flags := Flags{CategoryMessaging: true, CategoryCronCRUD: false}
	enabled, disabled := FilterDisabled(directives, flags)
	if len(enabled) != 1 || enabled[0].Type != TypeSendMessage {
		t.Fatalf("unexpected enabled: %v", enabled)
	}
	if len(disabled) != 1 || disabled[0] != TypeCreateCron {
		t.Fatalf("unexpected disabled: %v", disabled)
	}
}
