// Package param provides the named-parameter store shared by priors,
// posteriors and likelihoods. The store is the sole owner of each named
// scalar; everything else holds non-owning handles resolved by name.
package param

import (
	"fmt"
	"math/rand"
	"time"
)

// Parameters owns a set of named scalar values and a pseudo-random
// generator used by prior sampling. Not safe for concurrent use; each
// chain works on its own clone.
type Parameters struct {
	index  map[string]int
	names  []string
	values []float64
	rng    *rand.Rand
}

// NewParameters creates an empty store. A zero seed selects a
// time-based seed, matching the reproducibility convention used
// throughout the module.
func NewParameters(seed int64) *Parameters {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Parameters{
		index: make(map[string]int),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Declare registers a named scalar with an initial value and returns a
// handle to it. Re-declaring an existing name only returns the handle;
// the stored value is left untouched.
func (p *Parameters) Declare(name string, value float64) Parameter {
	if i, ok := p.index[name]; ok {
		return Parameter{store: p, idx: i, name: name}
	}
	i := len(p.values)
	p.index[name] = i
	p.names = append(p.names, name)
	p.values = append(p.values, value)
	return Parameter{store: p, idx: i, name: name}
}

// Get resolves a handle by name.
func (p *Parameters) Get(name string) (Parameter, error) {
	i, ok := p.index[name]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return Parameter{store: p, idx: i, name: name}, nil
}

// Has reports whether a name is declared.
func (p *Parameters) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Names returns the declared names in declaration order.
func (p *Parameters) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Clone deep-copies the store. The clone gets its own generator so that
// sampling on the clone never advances the original's random stream.
func (p *Parameters) Clone(seed int64) *Parameters {
	c := NewParameters(seed)
	c.names = make([]string, len(p.names))
	copy(c.names, p.names)
	c.values = make([]float64, len(p.values))
	copy(c.values, p.values)
	c.index = make(map[string]int, len(p.index))
	for k, v := range p.index {
		c.index[k] = v
	}
	return c
}

// Parameter is a non-owning handle to one named scalar in a store.
type Parameter struct {
	store *Parameters
	idx   int
	name  string
}

// Name returns the parameter's name.
func (h Parameter) Name() string { return h.name }

// Evaluate returns the current value.
func (h Parameter) Evaluate() float64 { return h.store.values[h.idx] }

// Set overwrites the current value.
func (h Parameter) Set(v float64) { h.store.values[h.idx] = v }

// EvaluateGenerator consumes one uniform(0,1) draw from the owning
// store's generator.
func (h Parameter) EvaluateGenerator() float64 { return h.store.rng.Float64() }

// Clone re-resolves the handle against a different store.
func (h Parameter) Clone(other *Parameters) (Parameter, error) {
	return other.Get(h.name)
}
