// Package rules evaluates the tenant-configurable predicates referenced
// throughout the pipeline and ticket guard: handoff triggers (keyword match
// plus an optional goja expression) and ticket auto-escalation (a CEL
// boolean expression over the conversation's running attributes).
package rules

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/orbitalcx/convoy/internal/store"
)

// ShouldHandoff reports whether the latest message should transition a chat
// from AI to human handling, per the handoffTriggers section of
// advanced_config.
func ShouldHandoff(triggers store.HandoffTriggers, latestMessage string) (bool, error) {
	if !triggers.Enabled {
		return false, nil
	}

	lower := strings.ToLower(latestMessage)
	for _, kw := range triggers.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, nil
		}
	}

	if triggers.Expr == "" {
		return false, nil
	}
	return evalHandoffExpr(triggers.Expr, latestMessage)
}

// evalHandoffExpr runs a tenant-authored JS-like boolean expression over
// the message text, for handoff rules too nuanced for plain keyword match
// (e.g. "message.length > 200 && message.includes('refund')").
func evalHandoffExpr(expr, message string) (bool, error) {
	vm := goja.New()
	if err := vm.Set("message", message); err != nil {
		return false, fmt.Errorf("rules: bind message: %w", err)
	}

	result, err := vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("rules: handoff expression %q failed: %w", expr, err)
	}
	return result.ToBoolean(), nil
}
