package fhir

import (
	"fmt"
	"strings"
	"sync"
)

// MaxChainDepth is the maximum number of chain levels accepted in one parameter.
const MaxChainDepth = 3

// ChainTarget describes how a reference parameter on the searched resource
// leads to a target resource whose parameters may be chained.
type ChainTarget struct {
	ResourceType    string                       // e.g. "Patient"
	ReferenceColumn string                       // column on the searched table, e.g. "patient_id"
	TargetTable     string                       // e.g. "patient"
	Params          map[string]SearchParamConfig // search parameters of the target
	Chains          *ChainRegistry               // chains of the target, for deeper chains
}

// ChainRegistry maps reference parameters to their chain targets.
// It is safe for concurrent use.
type ChainRegistry struct {
	mu      sync.RWMutex
	targets map[string][]ChainTarget
}

// NewChainRegistry creates a new empty ChainRegistry.
func NewChainRegistry() *ChainRegistry {
	return &ChainRegistry{targets: make(map[string][]ChainTarget)}
}

// Register adds a chain target for refParam (e.g. "subject").
func (r *ChainRegistry) Register(refParam string, target ChainTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[refParam] = append(r.targets[refParam], target)
}

// Resolve splits a chained parameter name such as "subject:Patient.name" or
// "subject.name:exact" into its target and the remaining parameter name.
func (r *ChainRegistry) Resolve(name string) (ChainTarget, string, error) {
	dot := strings.Index(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return ChainTarget{}, "", Invalidf("invalid chained parameter %q", name)
	}
	refParam, rest := name[:dot], name[dot+1:]
	refParam, typ := ParseParamModifier(refParam)

	r.mu.RLock()
	candidates := r.targets[refParam]
	r.mu.RUnlock()

	if typ != "" {
		for _, t := range candidates {
			if t.ResourceType == string(typ) {
				return t, rest, nil
			}
		}
		return ChainTarget{}, "", Invalidf("unknown chained parameter %q", name)
	}
	switch len(candidates) {
	case 0:
		return ChainTarget{}, "", Invalidf("unknown chained parameter %q", name)
	case 1:
		return candidates[0], rest, nil
	default:
		return ChainTarget{}, "", Invalidf("chained parameter %q is ambiguous, add a :Type modifier", name)
	}
}

// Apply adds a sub-select for a chained parameter to q:
// refCol IN (SELECT id FROM target WHERE voided = false AND ...).
func (r *ChainRegistry) Apply(q *SearchQuery, name, value string) error {
	return r.apply(q, name, value, 1)
}

func (r *ChainRegistry) apply(q *SearchQuery, name, value string, depth int) error {
	if depth > MaxChainDepth {
		return Invalidf("chained parameter %q exceeds the maximum depth of %d", name, MaxChainDepth)
	}
	target, rest, err := r.Resolve(name)
	if err != nil {
		return err
	}

	sub := &SearchQuery{where: " AND voided = false", idx: q.idx}
	if strings.Contains(rest, ".") {
		if target.Chains == nil {
			return Invalidf("unknown chained parameter %q", name)
		}
		if err := target.Chains.apply(sub, rest, value, depth+1); err != nil {
			return err
		}
	} else {
		base, modifier := ParseParamModifier(rest)
		config, ok := target.Params[base]
		if !ok {
			return Invalidf("unknown search parameter %q on %s", base, target.ResourceType)
		}
		if err := sub.ApplyParam(config, modifier, value); err != nil {
			return err
		}
	}

	q.Add(fmt.Sprintf("%s IN (SELECT id FROM %s WHERE 1=1%s)", target.ReferenceColumn, target.TargetTable, sub.where), sub.args...)
	return nil
}
