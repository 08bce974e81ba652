package forumsync

import "testing"

func TestNewPolicyEmptyExprAllowsEverything(t *testing.T) {
	p, err := NewPolicy("")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Allows("anything", "messaging") {
		t.Fatal("empty policy expression should allow everything")
	}
}

func TestPolicyAllowsEvaluatesChannelAndCategory(t *testing.T) {
	p, err := NewPolicy(`channel == "alpha" && category != "moderation"`)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Allows("alpha", "messaging") {
		t.Fatal("expected alpha/messaging to be allowed")
	}
	if p.Allows("alpha", "moderation") {
		t.Fatal("expected alpha/moderation to be denied")
	}
	if p.Allows("beta", "messaging") {
		t.Fatal("expected beta/messaging to be denied")
	}
}

func TestNewPolicyRejectsInvalidExpression(t *testing.T) {
	if _, err := NewPolicy("channel ==="); err == nil {
		t.Fatal("expected a compile error for malformed CEL expression")
	}
}

func TestNilPolicyAllowsEverything(t *testing.T) {
	var p *Policy
	if !p.Allows("any", "any") {
		t.Fatal("a nil policy must fail open (no configured gate == no restriction)")
	}
}
