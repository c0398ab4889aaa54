package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hepstat/bayesfit/param"
)

// MultivariateGaussian is a correlated Gaussian prior over an ordered
// group of parameters. The Cholesky factor of the covariance drives
// sampling; the inverse covariance and log-normalization are
// precomputed for density evaluation. All matrix and vector buffers are
// exclusively owned by the prior instance.
type MultivariateGaussian struct {
	parameters []param.Parameter
	names      []string
	dim        int

	mean       *mat.VecDense
	covariance *mat.Dense

	chol   *mat.TriDense // lower-triangular factor L with L*L^T = covariance
	covInv *mat.SymDense
	norm   float64 // -k/2*log(2*pi) - 1/2*log(det(covariance))

	// scratch buffers for evaluation and sampling
	diff *mat.VecDense
	z    *mat.VecDense
	y    *mat.VecDense

	descriptions []*Description
}

// NewMultivariateGaussian creates a correlated Gaussian prior over the
// named parameters with the given mean vector and covariance matrix.
// The inputs are copied; the prior never aliases caller-owned buffers.
func NewMultivariateGaussian(params *param.Parameters, names []string, mean *mat.VecDense, covariance *mat.Dense) (*MultivariateGaussian, error) {
	rows, cols := covariance.Dims()
	if rows != cols {
		return nil, fmt.Errorf("%w: covariance matrix is not square (%dx%d)", ErrCovariance, rows, cols)
	}
	if rows != mean.Len() {
		return nil, fmt.Errorf("%w: covariance dimension (%d) does not match mean vector length (%d)",
			ErrCovariance, rows, mean.Len())
	}
	if len(names) != mean.Len() {
		return nil, fmt.Errorf("%w: number of parameters (%d) does not match mean vector length (%d)",
			ErrCovariance, len(names), mean.Len())
	}

	k := len(names)
	m := &MultivariateGaussian{
		names:      append([]string(nil), names...),
		dim:        k,
		mean:       mat.NewVecDense(k, nil),
		covariance: mat.NewDense(k, k, nil),
		chol:       mat.NewTriDense(k, mat.Lower, nil),
		covInv:     mat.NewSymDense(k, nil),
		diff:       mat.NewVecDense(k, nil),
		z:          mat.NewVecDense(k, nil),
		y:          mat.NewVecDense(k, nil),
	}
	m.mean.CopyVec(mean)
	m.covariance.Copy(covariance)

	var ch mat.Cholesky
	if ok := ch.Factorize(denseToSym(m.covariance)); !ok {
		return nil, fmt.Errorf("%w: Cholesky decomposition failed", ErrCovariance)
	}
	ch.LTo(m.chol)
	if err := ch.InverseTo(m.covInv); err != nil {
		return nil, fmt.Errorf("%w: Cholesky inversion failed: %v", ErrCovariance, err)
	}
	m.norm = -0.5*float64(k)*math.Log(2*math.Pi) - 0.5*ch.LogDet()

	m.parameters = make([]param.Parameter, 0, k)
	m.descriptions = make([]*Description, 0, k)
	for _, n := range names {
		handle, err := params.Get(n)
		if err != nil {
			return nil, err
		}
		m.parameters = append(m.parameters, handle)
		m.descriptions = append(m.descriptions, &Description{
			Parameter: handle,
			Min:       -math.MaxFloat64,
			Max:       math.MaxFloat64,
		})
	}

	return m, nil
}

// denseToSym copies the lower triangle of a square dense matrix into a
// symmetric matrix.
func denseToSym(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sym.SetSym(i, j, d.At(i, j))
		}
	}
	return sym
}

// Evaluate returns the multivariate normal log-density at the
// parameters' current values: norm - chi^2/2 with
// chi^2 = (v-mean)^T Sigma^-1 (v-mean).
func (m *MultivariateGaussian) Evaluate() float64 {
	for i, h := range m.parameters {
		m.diff.SetVec(i, h.Evaluate()-m.mean.AtVec(i))
	}
	chi2 := mat.Inner(m.diff, m.covInv, m.diff)
	return m.norm - 0.5*chi2
}

// Sample draws k independent standard normals via the inverse CDF of
// per-parameter uniform draws, transforms them by the Cholesky factor,
// adds the mean and writes each component back.
func (m *MultivariateGaussian) Sample() {
	for i, h := range m.parameters {
		m.z.SetVec(i, distuv.UnitNormal.Quantile(h.EvaluateGenerator()))
	}
	m.y.MulVec(m.chol, m.z)
	m.y.AddVec(m.y, m.mean)
	for i, h := range m.parameters {
		h.Set(m.y.AtVec(i))
	}
}

// Clone re-binds the prior to a different parameter store, rebuilding
// the derived factors from copies of the mean and covariance.
func (m *MultivariateGaussian) Clone(params *param.Parameters) (LogPrior, error) {
	mean := mat.NewVecDense(m.dim, nil)
	mean.CopyVec(m.mean)
	covariance := mat.NewDense(m.dim, m.dim, nil)
	covariance.Copy(m.covariance)
	return NewMultivariateGaussian(params, m.names, mean, covariance)
}

func (m *MultivariateGaussian) Describe() string {
	s := "Parameters: ["
	for i, n := range m.names {
		if i > 0 {
			s += ", "
		}
		s += n
	}
	return s + "], prior type: multivariate gaussian, dim: " + fmt.Sprint(m.dim)
}

func (m *MultivariateGaussian) Informative() bool { return true }

// Variance returns the marginal variance of the named component, i.e.
// the matching diagonal entry of the covariance.
func (m *MultivariateGaussian) Variance(name string) (float64, error) {
	for i, n := range m.names {
		if n == name {
			return m.covariance.At(i, i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", param.ErrUnknownParameter, name)
}

func (m *MultivariateGaussian) Descriptions() []*Description { return m.descriptions }
