// Package posterior combines prior distributions with an external
// likelihood into a log-posterior density and provides the numerical
// machinery to explore it: simplex optimization, goodness-of-fit
// p-values, and proposal-covariance construction for downstream
// samplers.
package posterior

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hepstat/bayesfit/param"
	"github.com/hepstat/bayesfit/prior"
)

var (
	// ErrUndefinedPrior is returned when the prior is evaluated
	// before any prior has been added.
	ErrUndefinedPrior = errors.New("prior is undefined")

	// ErrDimensionMismatch signals a parameter point whose length
	// does not match the registered descriptions.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrOutOfRange signals a supplied parameter value outside its
	// declared range.
	ErrOutOfRange = errors.New("parameter out of range")
)

// Constraint is one likelihood sub-block contributing a standardized
// deviation between prediction and measurement.
type Constraint interface {
	Name() string

	// Significance returns the deviation in Gaussian sigma units at
	// the current parameter values.
	Significance() float64
}

// ObservableCache exposes the likelihood's predicted observables for
// reporting.
type ObservableCache interface {
	Len() int
	Name(i int) string
	Value(i int) float64
}

// LogLikelihood is the external physics likelihood collaborator. It
// owns the parameter store that priors and posteriors bind against.
type LogLikelihood interface {
	// Parameters returns the store owning the named parameters the
	// likelihood depends on.
	Parameters() *param.Parameters

	// Evaluate returns the log-likelihood at the current parameter
	// values.
	Evaluate() float64

	NumberOfObservations() int

	// BootstrapPValue simulates n datasets and returns the p-value
	// of the observed data together with the implied chi-squared
	// quantile at the observation count.
	BootstrapPValue(n int) (pValue, chiSquared float64, err error)

	Constraints() []Constraint

	ObservableCache() ObservableCache

	// Clone returns an independent copy owning its own parameter
	// store.
	Clone() (LogLikelihood, error)
}

// Posterior owns an ordered collection of priors over the parameters of
// one likelihood. Priors are cloned against the posterior's own store
// at add time so evaluation and mutation stay isolated per instance.
//
// A Posterior is not safe for concurrent use; run one clone per chain.
type Posterior struct {
	likelihood LogLikelihood
	parameters *param.Parameters

	priors       []prior.LogPrior
	descriptions []*prior.Description
	seen         map[string]struct{}

	informativePriors int

	log *zap.Logger
}

// Option configures a Posterior.
type Option func(*Posterior)

// WithLogger attaches a structured logger for optimizer and
// goodness-of-fit reporting. The default is a no-op logger; results
// never depend on whether anything observes these events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Posterior) {
		p.log = l
	}
}

// New creates a posterior around the given likelihood, binding to the
// likelihood's parameter store.
func New(likelihood LogLikelihood, opts ...Option) *Posterior {
	p := &Posterior{
		likelihood: likelihood,
		parameters: likelihood.Parameters(),
		seen:       make(map[string]struct{}),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Add clones the prior against the posterior's own parameter store and
// registers its parameter descriptions with the caller-supplied
// nuisance flag. A prior naming an already-registered parameter is
// rejected: Add returns false and the registry is left unchanged.
//
// The informative counter is incremented before the duplicate check,
// so a rejected add still inflates it.
func (p *Posterior) Add(pr prior.LogPrior, nuisance bool) (bool, error) {
	clone, err := pr.Clone(p.parameters)
	if err != nil {
		return false, err
	}

	if pr.Informative() {
		p.informativePriors++
	}

	descs := clone.Descriptions()
	for _, d := range descs {
		if _, dup := p.seen[d.Parameter.Name()]; dup {
			return false, nil
		}
	}
	for _, d := range descs {
		p.seen[d.Parameter.Name()] = struct{}{}
		d.Nuisance = nuisance
		p.descriptions = append(p.descriptions, d)
	}
	p.priors = append(p.priors, clone)

	return true, nil
}

// LogPrior sums all priors' evaluations. Prior components are assumed
// mutually independent, so the logs simply add up.
func (p *Posterior) LogPrior() (float64, error) {
	if len(p.priors) == 0 {
		return 0, ErrUndefinedPrior
	}
	sum := 0.0
	for _, pr := range p.priors {
		sum += pr.Evaluate()
	}
	return sum, nil
}

// LogLikelihood evaluates the likelihood at the current parameter
// values.
func (p *Posterior) LogLikelihood() float64 {
	return p.likelihood.Evaluate()
}

// LogPosterior returns LogPrior() + LogLikelihood().
func (p *Posterior) LogPosterior() (float64, error) {
	lp, err := p.LogPrior()
	if err != nil {
		return 0, err
	}
	return lp + p.likelihood.Evaluate(), nil
}

// Likelihood returns the external likelihood collaborator.
func (p *Posterior) Likelihood() LogLikelihood { return p.likelihood }

// Parameters returns the parameter store the posterior binds against.
func (p *Posterior) Parameters() *param.Parameters { return p.parameters }

// Clone deep-copies the likelihood, rebuilds every prior against the
// clone's own store and synchronizes range and nuisance metadata in
// add-order. Parameter values are not copied; they live in the store
// the cloned likelihood owns.
func (p *Posterior) Clone() (*Posterior, error) {
	ll, err := p.likelihood.Clone()
	if err != nil {
		return nil, err
	}

	c := New(ll, WithLogger(p.log))
	for _, pr := range p.priors {
		ok, err := c.Add(pr, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("clone: duplicate parameter while re-adding prior %q", pr.Describe())
		}
	}

	for i, d := range p.descriptions {
		cd := c.descriptions[i]
		cd.Min = d.Min
		cd.Max = d.Max
		cd.Nuisance = d.Nuisance
	}

	return c, nil
}

// Index returns the position of the named parameter among the
// registered descriptions.
func (p *Posterior) Index(name string) (int, error) {
	for i, d := range p.descriptions {
		if d.Parameter.Name() == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no such parameter %q", param.ErrUnknownParameter, name)
}

// PriorOf returns the prior that contributed the named parameter, or
// nil if none claims it. If more than one claims it, contrary to the
// registry invariant, the last match wins.
func (p *Posterior) PriorOf(name string) prior.LogPrior {
	var found prior.LogPrior
	for _, pr := range p.priors {
		for _, d := range pr.Descriptions() {
			if d.Parameter.Name() == name {
				found = pr
			}
		}
	}
	return found
}

// Nuisance reports the nuisance flag of the named parameter.
func (p *Posterior) Nuisance(name string) (bool, error) {
	i, err := p.Index(name)
	if err != nil {
		return false, err
	}
	return p.descriptions[i].Nuisance, nil
}

// InformativePriors returns the informative-prior counter.
func (p *Posterior) InformativePriors() int { return p.informativePriors }

// Descriptions returns the registered parameter descriptions in
// add-order. The elements are shared with the contributing priors.
func (p *Posterior) Descriptions() []*prior.Description {
	out := make([]*prior.Description, len(p.descriptions))
	copy(out, p.descriptions)
	return out
}

// At returns the parameter handle at the given registry position.
func (p *Posterior) At(i int) param.Parameter {
	return p.descriptions[i].Parameter
}

// negLogPosterior writes the point into the bound parameters and
// returns the negated log-posterior. Callers guarantee at least one
// prior is registered and the point has the registry's dimension.
func (p *Posterior) negLogPosterior(x []float64) float64 {
	for i, d := range p.descriptions {
		d.Parameter.Set(x[i])
	}
	sum := 0.0
	for _, pr := range p.priors {
		sum += pr.Evaluate()
	}
	return -(sum + p.likelihood.Evaluate())
}
