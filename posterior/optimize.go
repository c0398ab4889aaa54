package posterior

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"
)

// OptimizationOptions configures the simplex search.
type OptimizationOptions struct {
	// InitialStepSize is the fraction of each parameter's declared
	// range used as the initial simplex edge, in (0,1].
	InitialStepSize float64

	// Tolerance is the convergence threshold on the posterior
	// improvement across simplex steps, in (0,1].
	Tolerance float64

	// MaximumIterations caps the number of simplex iterations.
	MaximumIterations int
}

// DefaultOptimizationOptions returns the standard configuration.
func DefaultOptimizationOptions() OptimizationOptions {
	return OptimizationOptions{
		InitialStepSize:   0.1,
		Tolerance:         1e-1,
		MaximumIterations: 8000,
	}
}

func (o OptimizationOptions) validate() error {
	if o.InitialStepSize <= 0 || o.InitialStepSize > 1 {
		return fmt.Errorf("%w: initial step size %g outside (0,1]", ErrOutOfRange, o.InitialStepSize)
	}
	if o.Tolerance <= 0 || o.Tolerance > 1 {
		return fmt.Errorf("%w: tolerance %g outside (0,1]", ErrOutOfRange, o.Tolerance)
	}
	if o.MaximumIterations <= 0 {
		return fmt.Errorf("%w: maximum iterations %d must be positive", ErrOutOfRange, o.MaximumIterations)
	}
	return nil
}

// OptimizationResult is the outcome of a posterior maximization.
type OptimizationResult struct {
	// X is the best point found, or the initial guess when the
	// search did not improve on it.
	X []float64

	// LogPosterior is the posterior value at X.
	LogPosterior float64

	// Improved reports whether the search beat the initial guess.
	Improved bool

	// Iterations is the number of simplex iterations performed.
	Iterations int
}

// Optimize maximizes the posterior by Nelder-Mead simplex minimization
// of the negated log-posterior, seeded at initialGuess. The initial
// simplex spans each dimension with edge (max-min)*InitialStepSize.
// When the search does not improve on the seed, the seed is returned
// unchanged together with its own posterior value.
func (p *Posterior) Optimize(initialGuess []float64, opts OptimizationOptions) (*OptimizationResult, error) {
	n := len(p.descriptions)
	if len(initialGuess) != n {
		return nil, fmt.Errorf("%w: starting point has dimension %d, want %d",
			ErrDimensionMismatch, len(initialGuess), n)
	}
	if len(p.priors) == 0 {
		return nil, ErrUndefinedPrior
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	seed := append([]float64(nil), initialGuess...)
	initialMinimum := p.negLogPosterior(seed)

	// simplex around the seed, one vertex per dimension offset by a
	// fraction of the declared range
	vertices := make([][]float64, n+1)
	values := make([]float64, n+1)
	vertices[0] = append([]float64(nil), seed...)
	values[0] = initialMinimum
	for i := 0; i < n; i++ {
		v := append([]float64(nil), seed...)
		v[i] += (p.descriptions[i].Max - p.descriptions[i].Min) * opts.InitialStepSize
		vertices[i+1] = v
		values[i+1] = p.negLogPosterior(v)
	}

	problem := optimize.Problem{Func: p.negLogPosterior}
	method := &optimize.NelderMead{
		InitialVertices: vertices,
		InitialValues:   values,
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaximumIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, seed, settings, method)

	mode := seed
	minimum := math.Inf(1)
	iterations := 0
	if res != nil {
		mode = res.X
		minimum = res.F
		iterations = res.Stats.MajorIterations
		p.log.Debug("simplex search finished",
			zap.Stringer("status", res.Status),
			zap.Int("iterations", iterations),
			zap.Float64("minimum", minimum))
	}
	if err != nil {
		p.log.Warn("simplex search stopped early", zap.Error(err))
	}

	if minimum >= initialMinimum {
		p.log.Warn("simplex algorithm did not improve on initial guess")
		for i, d := range p.descriptions {
			d.Parameter.Set(seed[i])
		}
		return &OptimizationResult{
			X:            append([]float64(nil), initialGuess...),
			LogPosterior: -initialMinimum,
			Improved:     false,
			Iterations:   iterations,
		}, nil
	}

	for i, d := range p.descriptions {
		d.Parameter.Set(mode[i])
	}
	p.log.Info("simplex algorithm converged",
		zap.Int("iterations", iterations),
		zap.Float64("log_posterior", -minimum),
		zap.Float64s("mode", mode))

	return &OptimizationResult{
		X:            append([]float64(nil), mode...),
		LogPosterior: -minimum,
		Improved:     true,
		Iterations:   iterations,
	}, nil
}
