package posterior

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hepstat/bayesfit/param"
)

// ProposalCovariance builds a diagonal covariance matrix for seeding
// downstream samplers: each diagonal entry is the matching parameter's
// prior variance, divided by scaleReduction^2 unless the parameter is a
// nuisance parameter and scaleNuisance is false. Correlations the
// priors may encode are ignored; off-diagonal entries stay zero.
func (p *Posterior) ProposalCovariance(scaleReduction float64, scaleNuisance bool) (*mat.Dense, error) {
	n := len(p.descriptions)
	covariance := mat.NewDense(n, n, nil)

	for i, d := range p.descriptions {
		name := d.Parameter.Name()
		pr := p.PriorOf(name)
		if pr == nil {
			return nil, fmt.Errorf("%w: no prior contributed %q", param.ErrUnknownParameter, name)
		}
		v, err := pr.Variance(name)
		if err != nil {
			return nil, err
		}
		if !d.Nuisance || scaleNuisance {
			v /= scaleReduction * scaleReduction
		}
		covariance.Set(i, i, v)
	}

	return covariance, nil
}
