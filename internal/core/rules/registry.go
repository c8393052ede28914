package rules

import (
	"fmt"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// Registry is the lookup table from (source unit, target unit, option) to
// the registered aggregation rule. Built once at startup; read-only after.
type Registry struct {
	rules map[Key]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[Key]Rule)}
}

// Register adds a rule. Registering a second rule for an existing key is a
// configuration bug and fails loudly.
func (r *Registry) Register(rule Rule) error {
	if rule.Convert == nil || rule.TimeReduce == nil || rule.GroupReduce == nil {
		return fmt.Errorf("rule %v: converter and reducers are required", rule.Key)
	}
	if _, exists := r.rules[rule.Key]; exists {
		return fmt.Errorf("rule %v: duplicate registration", rule.Key)
	}
	r.rules[rule.Key] = rule
	return nil
}

// Lookup returns the rule for the triple, or ErrUnsupportedConversion.
// Lookup is pure: repeated calls return the same rule.
func (r *Registry) Lookup(source, target unit.Unit, option Option) (Rule, error) {
	rule, ok := r.rules[Key{Source: source, Target: target, Option: option}]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s -> %s (option %q)",
			coreerrors.ErrUnsupportedConversion, source, target, option)
	}
	return rule, nil
}

// Keys returns all registered keys. Test and diagnostics helper.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	return keys
}

// Verify checks that every required triple resolves. Run at startup so a
// missing registration aborts boot instead of surfacing as a runtime lookup
// failure in production.
func (r *Registry) Verify(required []Key) error {
	for _, k := range required {
		if _, ok := r.rules[k]; !ok {
			return fmt.Errorf("registry verification: missing rule %s -> %s (option %q)",
				k.Source, k.Target, k.Option)
		}
	}
	return nil
}
