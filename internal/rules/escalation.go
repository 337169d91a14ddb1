package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// EscalationInput is the attribute bag a tenant's auto-escalation
// expression is evaluated against.
type EscalationInput struct {
	MessageCount int64
	Priority     string
	Category     string
	MinutesOpen  int64
}

// Escalator compiles and caches tenant-configured CEL auto-escalation
// predicates, the same compile-once-evaluate-many shape as the
// schedule-window evaluation in internal/store/pg.
type Escalator struct {
	mu    sync.Mutex
	env   *cel.Env
	cache map[string]cel.Program
}

func NewEscalator() (*Escalator, error) {
	env, err := cel.NewEnv(
		cel.Variable("message_count", cel.IntType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("minutes_open", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: build escalation CEL env: %w", err)
	}
	return &Escalator{env: env, cache: make(map[string]cel.Program)}, nil
}

// ShouldEscalate evaluates expr (e.g. `priority == "high" && minutes_open > 30`)
// against in, compiling and caching the program per distinct expression string.
func (e *Escalator) ShouldEscalate(expr string, in EscalationInput) (bool, error) {
	if expr == "" {
		return false, nil
	}
	prg, err := e.compile(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"message_count": in.MessageCount,
		"priority":      in.Priority,
		"category":      in.Category,
		"minutes_open":  in.MinutesOpen,
	})
	if err != nil {
		return false, fmt.Errorf("rules: eval escalation expr %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rules: escalation expr %q did not evaluate to bool", expr)
	}
	return b, nil
}

func (e *Escalator) compile(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("rules: compile escalation expr %q: %w", expr, iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rules: build escalation program %q: %w", expr, err)
	}
	e.cache[expr] = prg
	return prg, nil
}
