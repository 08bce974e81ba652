package forumsync

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Policy evaluates a CEL boolean expression against a channel name and an
// action category, used as the configurable channel allow-list / action-
// category gate referenced from DESIGN.md for both the sync engine's
// orphan/archive decisions and the action dispatcher's category flags.
// New code: channel policy has no direct teacher equivalent, but
// expression-gated authorization is exactly what cel-go is for, and it's
// already part of the example corpus's dependency set.
type Policy struct {
	program cel.Program
}

// defaultPolicyExpr allows everything; a host with no configured policy
// should behave exactly as if no gate existed.
const defaultPolicyExpr = "true"

// NewPolicy compiles expr (a CEL boolean expression over `channel` and
// `category` string variables) into a reusable evaluator. An empty expr
// falls back to defaultPolicyExpr.
func NewPolicy(expr string) (*Policy, error) {
	if expr == "" {
		expr = defaultPolicyExpr
	}
	env, err := cel.NewEnv(
		cel.Variable("channel", cel.StringType),
		cel.Variable("category", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("forumsync: build cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("forumsync: compile policy %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("forumsync: build cel program: %w", err)
	}
	return &Policy{program: prg}, nil
}

// Allows reports whether channel is permitted to carry actions of
// category. A policy evaluation error is treated as a denial (fail
// closed).
func (p *Policy) Allows(channel, category string) bool {
	if p == nil {
		return true
	}
	out, _, err := p.program.Eval(map[string]any{
		"channel":  channel,
		"category": category,
	})
	if err != nil {
		return false
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok
}
