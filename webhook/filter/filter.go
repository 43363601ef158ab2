package filter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

/* Evaluator runs per-webhook filter expressions against a triggered event
 * Expressions see two variables: event (string) and data (decoded JSON)
 * Compiled programs are cached by expression string
 */
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEvaluator creates an evaluator with an empty program cache
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Compile checks that expression is a valid boolean expression
func Compile(expression string) error {
	if _, err := expr.Compile(expression, expr.AsBool()); err != nil {
		return fmt.Errorf("compiling filter: %w", err)
	}
	return nil
}

// Match reports whether the event passes expression
// An empty expression always matches
func (e *Evaluator) Match(expression, event string, data json.RawMessage) (bool, error) {
	if expression == "" {
		return true, nil
	}

	prog, err := e.program(expression)
	if err != nil {
		return false, err
	}

	var decoded any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			return false, fmt.Errorf("decoding event data: %w", err)
		}
	}

	env := map[string]any{
		"event": event,
		"data":  decoded,
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluating filter: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not return bool")
	}
	return matched, nil
}

func (e *Evaluator) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}
