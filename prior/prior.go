// Package prior implements the prior distribution family of the
// Bayesian fitting core: flat, asymmetric truncated Gaussian, scale
// (Jeffreys-like) and correlated multivariate Gaussian priors over
// named parameters.
package prior

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hepstat/bayesfit/param"
)

var (
	// ErrRange signals invalid construction input: inverted or
	// degenerate ranges, non-monotonic knee points, non-positive
	// scale parameters.
	ErrRange = errors.New("range error")

	// ErrCovariance signals an invalid covariance matrix: wrong
	// shape, dimension mismatch, or a failed Cholesky factorization.
	ErrCovariance = errors.New("invalid covariance")

	// ErrUnknownPrior is returned by Parse for unrecognized
	// description strings.
	ErrUnknownPrior = errors.New("unknown prior")
)

// Range is the admissible interval of one parameter.
type Range struct {
	Min float64
	Max float64
}

// Description binds a live parameter handle to its declared range and
// nuisance classification. Descriptions are shared between the
// contributing prior and the posterior that owns it; both sides read
// and write through the same pointer.
type Description struct {
	Parameter param.Parameter
	Min       float64
	Max       float64
	Nuisance  bool
}

// LogPrior is the closed variant family of prior distributions. All
// implementations are bound to a parameter store at construction and
// re-bound by name when cloned against another store.
//
// Evaluate returns the natural-log prior density at the bound
// parameters' current values, with one exception: Scale returns a
// linear-scale density (see Scale).
type LogPrior interface {
	Evaluate() float64

	// Sample draws new values from the prior and writes them back
	// into the bound parameters, consuming one uniform(0,1) draw per
	// scalar dimension from the store's generator.
	Sample()

	// Clone produces an independent copy bound to params,
	// re-resolving every parameter by name.
	Clone(params *param.Parameters) (LogPrior, error)

	// Describe renders the prior type and numeric configuration.
	Describe() string

	Informative() bool

	// Variance returns the prior variance of the named parameter.
	// Univariate priors answer only for their own parameter; the
	// multivariate prior returns the marginal variance.
	Variance(name string) (float64, error)

	// Descriptions returns the parameter descriptions this prior
	// contributes, in a fixed order. The slice elements are live:
	// the owning posterior adjusts their nuisance flags in place.
	Descriptions() []*Description
}

func fstr(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Flat is the uniform prior over a finite range.
type Flat struct {
	parameter    param.Parameter
	name         string
	rnge         Range
	value        float64 // log(1/(max-min)), returned by every Evaluate
	descriptions []*Description
}

// NewFlat creates a uniform prior for the named parameter.
func NewFlat(params *param.Parameters, name string, r Range) (*Flat, error) {
	if r.Min >= r.Max {
		return nil, fmt.Errorf("%w: Flat(%s): minimum (%g) must be smaller than maximum (%g)",
			ErrRange, name, r.Min, r.Max)
	}
	handle, err := params.Get(name)
	if err != nil {
		return nil, err
	}
	f := &Flat{
		parameter: handle,
		name:      name,
		rnge:      r,
		value:     math.Log(1.0 / (r.Max - r.Min)),
	}
	f.descriptions = []*Description{{Parameter: handle, Min: r.Min, Max: r.Max}}
	return f, nil
}

// Evaluate returns the constant log-density. The current parameter
// value is not checked against the range; the range only steers
// sampling and downstream bookkeeping.
func (f *Flat) Evaluate() float64 { return f.value }

// Sample draws uniformly in [min,max].
func (f *Flat) Sample() {
	f.parameter.Set(f.parameter.EvaluateGenerator()*(f.rnge.Max-f.rnge.Min) + f.rnge.Min)
}

// Clone re-binds the prior to a different parameter store.
func (f *Flat) Clone(params *param.Parameters) (LogPrior, error) {
	return NewFlat(params, f.name, f.rnge)
}

func (f *Flat) Describe() string {
	return "Parameter: " + f.name + ", prior type: flat, range: [" +
		fstr(f.rnge.Min) + "," + fstr(f.rnge.Max) + "]"
}

func (f *Flat) Informative() bool { return false }

// Variance returns the uniform variance (max-min)^2/12.
func (f *Flat) Variance(name string) (float64, error) {
	if name != f.name {
		return 0, fmt.Errorf("%w: %q", param.ErrUnknownParameter, name)
	}
	w := f.rnge.Max - f.rnge.Min
	return w * w / 12.0, nil
}

func (f *Flat) Descriptions() []*Description { return f.descriptions }

// CurtailedGauss is an asymmetric Gaussian with independent left and
// right standard deviations, truncated to [min,max]. The density is
// piecewise
//
//	P(y|x,a,b) = θ(y-x) c_a N(y|x,a) + θ(x-y) c_b N(y|x,b)
//
// with c_a, c_b fixed so that the density is continuous at the central
// value x and integrates to one over the range.
type CurtailedGauss struct {
	parameter param.Parameter
	name      string
	rnge      Range

	lower, central, upper  float64
	sigmaLower, sigmaUpper float64
	cA, cB                 float64

	// probability mass to the left of central; precomputed so
	// sampling picks a branch without a CDF call
	probLower float64

	normLower, normUpper float64

	descriptions []*Description
}

// NewCurtailedGauss creates an asymmetric truncated Gaussian prior with
// knee points lower < central < upper inside the range r.
func NewCurtailedGauss(params *param.Parameters, name string, r Range, lower, central, upper float64) (*CurtailedGauss, error) {
	if lower >= central {
		return nil, fmt.Errorf("%w: CurtailedGauss(%s): lower value (%g) >= central value (%g)",
			ErrRange, name, lower, central)
	}
	if upper <= central {
		return nil, fmt.Errorf("%w: CurtailedGauss(%s): upper value (%g) <= central value (%g)",
			ErrRange, name, upper, central)
	}
	if r.Min >= r.Max {
		return nil, fmt.Errorf("%w: CurtailedGauss(%s): minimum (%g) must be smaller than maximum (%g)",
			ErrRange, name, r.Min, r.Max)
	}
	handle, err := params.Get(name)
	if err != nil {
		return nil, err
	}

	sigmaLower := central - lower
	sigmaUpper := upper - central
	cdfLower := distuv.Normal{Mu: 0, Sigma: sigmaLower}
	cdfUpper := distuv.Normal{Mu: 0, Sigma: sigmaUpper}
	cA := 1.0 / ((sigmaLower/sigmaUpper)*(0.5-cdfLower.CDF(r.Min-central)) +
		cdfUpper.CDF(r.Max-central) - 0.5)
	cB := sigmaLower / sigmaUpper * cA

	g := &CurtailedGauss{
		parameter:  handle,
		name:       name,
		rnge:       r,
		lower:      lower,
		central:    central,
		upper:      upper,
		sigmaLower: sigmaLower,
		sigmaUpper: sigmaUpper,
		cA:         cA,
		cB:         cB,
		probLower:  cB * (0.5 - cdfLower.CDF(r.Min-central)),
		normLower:  math.Log(cB / math.Sqrt(2*math.Pi) / sigmaLower),
		normUpper:  math.Log(cA / math.Sqrt(2*math.Pi) / sigmaUpper),
	}
	g.descriptions = []*Description{{Parameter: handle, Min: r.Min, Max: r.Max}}
	return g, nil
}

// Evaluate returns the log-density at the parameter's current value,
// selecting the left or right branch against the central value.
func (g *CurtailedGauss) Evaluate() float64 {
	x := g.parameter.Evaluate()

	sigma, norm := g.sigmaUpper, g.normUpper
	if x < g.central {
		sigma, norm = g.sigmaLower, g.normLower
	}
	d := (x - g.central) / sigma
	return norm - 0.5*d*d
}

// Sample inverts the truncated CDF in closed form: the branch is picked
// by comparing the uniform draw to the precomputed left mass, then the
// matching half-Gaussian quantile is evaluated.
func (g *CurtailedGauss) Sample() {
	p := g.parameter.EvaluateGenerator()

	if p < g.probLower {
		q := distuv.Normal{Mu: 0, Sigma: g.sigmaLower}.Quantile((p-g.probLower)/g.cB + 0.5)
		g.parameter.Set(q + g.central)
		return
	}
	q := distuv.Normal{Mu: 0, Sigma: g.sigmaUpper}.Quantile((p-g.probLower)/g.cA + 0.5)
	g.parameter.Set(q + g.central)
}

// Clone re-binds the prior to a different parameter store.
func (g *CurtailedGauss) Clone(params *param.Parameters) (LogPrior, error) {
	return NewCurtailedGauss(params, g.name, g.rnge, g.lower, g.central, g.upper)
}

func (g *CurtailedGauss) Describe() string {
	s := "Parameter: " + g.name + ", prior type: Gaussian, range: [" +
		fstr(g.rnge.Min) + "," + fstr(g.rnge.Max) + "], x = " + fstr(g.central)
	if math.Abs(g.sigmaUpper-g.sigmaLower) < 1e-15 {
		return s + " +- " + fstr(g.sigmaUpper)
	}
	return s + " + " + fstr(g.sigmaUpper) + " - " + fstr(g.sigmaLower)
}

func (g *CurtailedGauss) Informative() bool { return true }

// Variance returns the square of the wider branch width. The exact
// truncated variance has no convenient closed form; the wider branch
// is a safe proposal seed.
func (g *CurtailedGauss) Variance(name string) (float64, error) {
	if name != g.name {
		return 0, fmt.Errorf("%w: %q", param.ErrUnknownParameter, name)
	}
	sigma := math.Max(g.sigmaLower, g.sigmaUpper)
	return sigma * sigma, nil
}

func (g *CurtailedGauss) Descriptions() []*Description { return g.descriptions }

// Scale is a Jeffreys-style prior for a multiplicative scale parameter:
// log(x) is uniform over [mu0/lambda, mu0*lambda].
//
// Evaluate returns 1/(2*ln(lambda)*x) inside the range, which is the
// density in linear units rather than a log-density; all other variants
// return log-densities. Callers summing priors in log space inherit
// this inconsistency unchanged.
type Scale struct {
	parameter param.Parameter
	name      string

	mu0, lambda float64
	min, max    float64
	lnLambda    float64

	descriptions []*Description
}

// NewScale creates a scale prior with reference value mu0 > 0 and
// scale factor lambda > 1; the admissible range is implied as
// [mu0/lambda, mu0*lambda].
func NewScale(params *param.Parameters, name string, mu0, lambda float64) (*Scale, error) {
	if mu0 <= 0 {
		return nil, fmt.Errorf("%w: Scale(%s): default value mu_0 must be strictly positive, got %g",
			ErrRange, name, mu0)
	}
	if lambda <= 1 {
		return nil, fmt.Errorf("%w: Scale(%s): scale factor lambda must be strictly larger than 1, got %g",
			ErrRange, name, lambda)
	}
	handle, err := params.Get(name)
	if err != nil {
		return nil, err
	}
	s := &Scale{
		parameter: handle,
		name:      name,
		mu0:       mu0,
		lambda:    lambda,
		min:       mu0 / lambda,
		max:       mu0 * lambda,
		lnLambda:  math.Log(lambda),
	}
	s.descriptions = []*Description{{Parameter: handle, Min: s.min, Max: s.max}}
	return s, nil
}

// Evaluate returns the linear-scale density 1/(2*ln(lambda)*x), or
// -Inf outside the implied range.
func (s *Scale) Evaluate() float64 {
	x := s.parameter.Evaluate()
	if x < s.min || s.max < x {
		return math.Inf(-1)
	}
	return 1.0 / (2.0 * s.lnLambda * x)
}

// Sample inverts the CDF in closed form: x = mu0 * lambda^(2p-1).
func (s *Scale) Sample() {
	s.parameter.Set(s.mu0 * math.Pow(s.lambda, 2.0*s.parameter.EvaluateGenerator()-1.0))
}

// Clone re-binds the prior to a different parameter store.
func (s *Scale) Clone(params *param.Parameters) (LogPrior, error) {
	return NewScale(params, s.name, s.mu0, s.lambda)
}

func (s *Scale) Describe() string {
	return "Parameter: " + s.name + ", prior type: Scale, range: [" +
		fstr(s.min) + "," + fstr(s.max) + "], mu_0 = " + fstr(s.mu0) +
		", lambda = " + fstr(s.lambda)
}

func (s *Scale) Informative() bool { return true }

// Variance returns the closed-form variance of the log-uniform density
// over the implied range.
func (s *Scale) Variance(name string) (float64, error) {
	if name != s.name {
		return 0, fmt.Errorf("%w: %q", param.ErrUnknownParameter, name)
	}
	mean := (s.max - s.min) / (2.0 * s.lnLambda)
	second := (s.max*s.max - s.min*s.min) / (4.0 * s.lnLambda)
	return second - mean*mean, nil
}

func (s *Scale) Descriptions() []*Description { return s.descriptions }

// Parse reconstructs a prior from its Describe string. Only the flat
// and Gaussian forms round-trip; the other variants are not encoded in
// persisted description tables.
func Parse(params *param.Parameters, s string) (LogPrior, error) {
	name, ok := field(s, "Parameter: ")
	if !ok {
		return nil, fmt.Errorf("%w: cannot construct prior from %q", ErrUnknownPrior, s)
	}
	kind, ok := field(s, "prior type: ")
	if !ok {
		return nil, fmt.Errorf("%w: cannot construct prior from %q", ErrUnknownPrior, s)
	}

	open := strings.Index(s, "[")
	end := strings.Index(s, "]")
	if open < 0 || end < open {
		return nil, fmt.Errorf("%w: missing range in %q", ErrUnknownPrior, s)
	}
	bounds := strings.SplitN(s[open+1:end], ",", 2)
	if len(bounds) != 2 {
		return nil, fmt.Errorf("%w: malformed range in %q", ErrUnknownPrior, s)
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPrior, err)
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPrior, err)
	}
	r := Range{Min: min, Max: max}

	switch kind {
	case "flat":
		return NewFlat(params, name, r)
	case "Gaussian":
		idx := strings.Index(s, "x = ")
		if idx < 0 {
			return nil, fmt.Errorf("%w: missing central value in %q", ErrUnknownPrior, s)
		}
		rest := s[idx+len("x = "):]

		var central, sigmaUpper, sigmaLower float64
		if i := strings.Index(rest, " +- "); i >= 0 {
			central, err = strconv.ParseFloat(rest[:i], 64)
			if err == nil {
				sigmaUpper, err = strconv.ParseFloat(rest[i+len(" +- "):], 64)
			}
			sigmaLower = sigmaUpper
		} else if i := strings.Index(rest, " + "); i >= 0 {
			j := strings.Index(rest, " - ")
			if j < i {
				return nil, fmt.Errorf("%w: malformed sigmas in %q", ErrUnknownPrior, s)
			}
			central, err = strconv.ParseFloat(rest[:i], 64)
			if err == nil {
				sigmaUpper, err = strconv.ParseFloat(rest[i+len(" + "):j], 64)
			}
			if err == nil {
				sigmaLower, err = strconv.ParseFloat(rest[j+len(" - "):], 64)
			}
		} else {
			return nil, fmt.Errorf("%w: missing sigmas in %q", ErrUnknownPrior, s)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownPrior, err)
		}
		return NewCurtailedGauss(params, name, r, central-sigmaLower, central, central+sigmaUpper)
	}

	return nil, fmt.Errorf("%w: cannot construct prior from %q", ErrUnknownPrior, s)
}

// field extracts the comma-terminated value following key.
func field(s, key string) (string, bool) {
	i := strings.Index(s, key)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(key):]
	if j := strings.Index(rest, ","); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), rest != ""
}
