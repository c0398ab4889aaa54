package posterior

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"
)

// GoodnessOfFit collects the fit-quality measures computed at one
// parameter point. SimulatedPValue and AnalyticPValue are the primary
// results; everything else is reporting and persistence material.
type GoodnessOfFit struct {
	// SimulatedPValue is the bootstrap p-value from simulated
	// datasets.
	SimulatedPValue float64

	// AnalyticPValue is the chi-squared p-value with
	// dof = n_observations - n_parameters. Zero and invalid when the
	// dof is not positive.
	AnalyticPValue      float64
	AnalyticPValueValid bool

	// ScanPValue uses dof = n_observations - n_scan_parameters.
	ScanPValue      float64
	ScanPValueValid bool

	// ChiSquared is the quantile implied by the simulated p-value at
	// the observation count.
	ChiSquared float64

	DoF     float64
	DoFScan float64

	// Per-constraint significances in sigma units, in constraint
	// order, and their accumulated sum of squares.
	Significances            []float64
	ConstraintNames          []string
	TotalSignificanceSquared float64

	// Gaussian-approximation p-values derived from the accumulated
	// significances against the two dof values.
	SignificancePValue          float64
	SignificancePValueValid     bool
	ScanSignificancePValue      float64
	ScanSignificancePValueValid bool

	// LogPosterior at the evaluated point.
	LogPosterior float64
}

// GoodnessOfFit sets the registered parameters to the given point and
// characterizes the fit quality there: a bootstrap p-value over
// simulatedDatasets pseudo experiments, analytic chi-squared p-values
// for the full and scan-only degrees of freedom, and per-constraint
// significances. Values outside their declared ranges are fatal;
// non-positive degrees of freedom only mark the matching p-value as not
// computable.
func (p *Posterior) GoodnessOfFit(parameterValues []float64, simulatedDatasets int) (*GoodnessOfFit, error) {
	if len(parameterValues) != len(p.descriptions) {
		return nil, fmt.Errorf("%w: starting point has dimension %d, want %d",
			ErrDimensionMismatch, len(parameterValues), len(p.descriptions))
	}

	scanParameters := 0
	for _, d := range p.descriptions {
		if !d.Nuisance {
			scanParameters++
		}
	}

	for i, d := range p.descriptions {
		if parameterValues[i] < d.Min || parameterValues[i] > d.Max {
			return nil, fmt.Errorf("%w: parameter %q out of bounds [%g, %g]: %g",
				ErrOutOfRange, d.Parameter.Name(), d.Min, d.Max, parameterValues[i])
		}
		d.Parameter.Set(parameterValues[i])
	}

	ll := p.likelihood.Evaluate()
	lp, err := p.LogPrior()
	if err != nil {
		return nil, err
	}

	g := &GoodnessOfFit{LogPosterior: ll + lp}
	p.log.Info("calculating p-values",
		zap.Float64s("point", parameterValues),
		zap.Float64("log_posterior", g.LogPosterior))

	simP, chiSquared, err := p.likelihood.BootstrapPValue(simulatedDatasets)
	if err != nil {
		return nil, err
	}
	g.SimulatedPValue = simP
	g.ChiSquared = chiSquared

	nObs := float64(p.likelihood.NumberOfObservations())
	g.DoF = nObs - float64(len(p.descriptions))
	g.DoFScan = nObs - float64(scanParameters)

	if g.DoF > 0 {
		g.AnalyticPValue = distuv.ChiSquared{K: g.DoF}.Survival(chiSquared)
		g.AnalyticPValueValid = true
		p.log.Info("p-value from simulated pseudo experiments after dof correction",
			zap.Float64("p", g.AnalyticPValue),
			zap.Float64("dof", g.DoF))
	} else {
		p.log.Warn("cannot compute p-value for non-positive dof; need more constraints or fewer parameters",
			zap.Float64("dof", g.DoF))
	}

	if g.DoFScan > 0 {
		g.ScanPValue = distuv.ChiSquared{K: g.DoFScan}.Survival(chiSquared)
		g.ScanPValueValid = true
		p.log.Info("p-value from simulated pseudo experiments after dof correction (scan parameters only)",
			zap.Float64("p", g.ScanPValue),
			zap.Float64("dof_scan", g.DoFScan))
	} else {
		p.log.Warn("cannot compute p-value for non-positive scan dof; need more constraints or fewer parameters",
			zap.Float64("dof_scan", g.DoFScan))
	}

	for _, c := range p.likelihood.Constraints() {
		s := c.Significance()
		p.log.Info("constraint significance",
			zap.String("constraint", c.Name()),
			zap.Float64("sigma", s))
		g.TotalSignificanceSquared += s * s
		g.Significances = append(g.Significances, s)
		g.ConstraintNames = append(g.ConstraintNames, c.Name())
	}

	cache := p.likelihood.ObservableCache()
	for i := 0; i < cache.Len(); i++ {
		p.log.Debug("predicted observable",
			zap.String("observable", cache.Name(i)),
			zap.Float64("value", cache.Value(i)))
	}

	if g.DoF > 0 {
		g.SignificancePValue = distuv.ChiSquared{K: g.DoF}.Survival(g.TotalSignificanceSquared)
		g.SignificancePValueValid = true
		p.log.Info("p-value from significances under the Gaussian approximation",
			zap.Float64("p", g.SignificancePValue),
			zap.Float64("pseudo_chi2_per_dof", g.TotalSignificanceSquared/g.DoF))
	}
	if g.DoFScan > 0 {
		g.ScanSignificancePValue = distuv.ChiSquared{K: g.DoFScan}.Survival(g.TotalSignificanceSquared)
		g.ScanSignificancePValueValid = true
		p.log.Info("p-value from significances under the Gaussian approximation (scan parameters only)",
			zap.Float64("p", g.ScanSignificancePValue),
			zap.Float64("pseudo_chi2_per_dof", g.TotalSignificanceSquared/g.DoFScan))
	}

	return g, nil
}
