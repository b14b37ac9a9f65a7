package engine

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowdeck/flowdeck/pkg/schema"
)

// RuleEngine evaluates manifest input_rules against execution input. Rules
// are expr expressions over an "input" variable and must evaluate to true
// for the input to be accepted.
// Thread-safe: compiled *vm.Program objects are cached and reused across
// goroutines.
type RuleEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewRuleEngine creates an empty RuleEngine.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Check evaluates every rule against the input. The first rule that fails
// to compile, fails to evaluate, or evaluates to anything but true stops
// the check and is reported as a validation error.
func (e *RuleEngine) Check(rules []string, input map[string]any) error {
	if len(rules) == 0 {
		return nil
	}
	env := map[string]any{"input": input}
	if input == nil {
		env["input"] = map[string]any{}
	}

	for _, rule := range rules {
		prg, err := e.getOrCompile(rule)
		if err != nil {
			return err
		}
		out, err := vm.Run(prg, env)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"input rule %q failed to evaluate: %s", rule, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"rule": rule})
		}
		if ok, _ := out.(bool); !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"input rule %q not satisfied", rule).
				WithDetails(map[string]any{"rule": rule})
		}
	}
	return nil
}

// getOrCompile returns a cached compiled program or compiles and caches a
// new one.
func (e *RuleEngine) getOrCompile(rule string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[rule]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[rule]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(rule, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"input rule %q does not compile: %s", rule, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"rule": rule})
	}

	e.cache[rule] = prg
	return prg, nil
}
