package posterior

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hepstat/bayesfit/param"
	"github.com/hepstat/bayesfit/prior"
)

type fakeConstraint struct {
	name  string
	sigma float64
}

func (c fakeConstraint) Name() string          { return c.name }
func (c fakeConstraint) Significance() float64 { return c.sigma }

type fakeCache struct {
	names  []string
	values []float64
}

func (c fakeCache) Len() int            { return len(c.names) }
func (c fakeCache) Name(i int) string   { return c.names[i] }
func (c fakeCache) Value(i int) float64 { return c.values[i] }

// fakeLikelihood is a stand-in physics likelihood: a fixed
// log-likelihood value, a fixed observation count and constraint set,
// and a bootstrap that reports a preset p-value with its implied
// chi-squared quantile.
type fakeLikelihood struct {
	params      *param.Parameters
	value       float64
	nObs        int
	bootstrapP  float64
	constraints []Constraint
	cache       fakeCache
	cloneSeed   int64
}

func (f *fakeLikelihood) Parameters() *param.Parameters { return f.params }
func (f *fakeLikelihood) Evaluate() float64             { return f.value }
func (f *fakeLikelihood) NumberOfObservations() int     { return f.nObs }

func (f *fakeLikelihood) BootstrapPValue(n int) (float64, float64, error) {
	chi2 := distuv.ChiSquared{K: float64(f.nObs)}.Quantile(1.0 - f.bootstrapP)
	return f.bootstrapP, chi2, nil
}

func (f *fakeLikelihood) Constraints() []Constraint        { return f.constraints }
func (f *fakeLikelihood) ObservableCache() ObservableCache { return f.cache }

func (f *fakeLikelihood) Clone() (LogLikelihood, error) {
	f.cloneSeed++
	clone := *f
	clone.params = f.params.Clone(1000 + f.cloneSeed)
	return &clone, nil
}

func newFakeLikelihood(seed int64, names ...string) *fakeLikelihood {
	params := param.NewParameters(seed)
	for _, n := range names {
		params.Declare(n, 0)
	}
	return &fakeLikelihood{
		params:     params,
		nObs:       5,
		bootstrapP: 0.3,
		constraints: []Constraint{
			fakeConstraint{name: "c1", sigma: 1.0},
			fakeConstraint{name: "c2", sigma: 2.0},
		},
		cache: fakeCache{
			names:  []string{"obs1", "obs2"},
			values: []float64{0.1, 0.2},
		},
	}
}

func mustFlat(t *testing.T, params *param.Parameters, name string, min, max float64) prior.LogPrior {
	t.Helper()
	f, err := prior.NewFlat(params, name, prior.Range{Min: min, Max: max})
	require.NoError(t, err)
	return f
}

func TestAddRejectsDuplicates(t *testing.T) {
	ll := newFakeLikelihood(42, "x")
	p := New(ll)

	ok, err := p.Add(mustFlat(t, ll.params, "x", 0, 1), false)
	require.NoError(t, err)
	assert.True(t, ok)

	g, err := prior.NewCurtailedGauss(ll.params, "x", prior.Range{Min: 0, Max: 1}, 0.25, 0.5, 0.75)
	require.NoError(t, err)
	ok, err = p.Add(g, false)
	require.NoError(t, err)
	assert.False(t, ok)

	descs := p.Descriptions()
	require.Len(t, descs, 1)
	assert.Equal(t, "x", descs[0].Parameter.Name())

	// the informative counter moved even though the add was rejected
	assert.Equal(t, 1, p.InformativePriors())
}

func TestAddMultivariatePartialDuplicate(t *testing.T) {
	ll := newFakeLikelihood(42, "a", "b")
	p := New(ll)

	ok, err := p.Add(mustFlat(t, ll.params, "a", 0, 1), false)
	require.NoError(t, err)
	require.True(t, ok)

	m, err := prior.NewMultivariateGaussian(ll.params, []string{"b", "a"},
		mat.NewVecDense(2, []float64{0, 0}),
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	require.NoError(t, err)

	ok, err = p.Add(m, false)
	require.NoError(t, err)
	assert.False(t, ok)

	// neither name of the rejected prior is registered
	require.Len(t, p.Descriptions(), 1)
	_, err = p.Index("b")
	require.ErrorIs(t, err, param.ErrUnknownParameter)
}

func TestLogPriorAndPosterior(t *testing.T) {
	ll := newFakeLikelihood(42, "x", "y")
	ll.value = -1.5
	p := New(ll)

	_, err := p.LogPrior()
	require.ErrorIs(t, err, ErrUndefinedPrior)
	_, err = p.LogPosterior()
	require.ErrorIs(t, err, ErrUndefinedPrior)

	ok, err := p.Add(mustFlat(t, ll.params, "x", 0, 2), false)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = p.Add(mustFlat(t, ll.params, "y", 0, 4), true)
	require.NoError(t, err)
	require.True(t, ok)

	want := -math.Log(2.0) - math.Log(4.0)
	lp, err := p.LogPrior()
	require.NoError(t, err)
	assert.InDelta(t, want, lp, 1e-14)

	post, err := p.LogPosterior()
	require.NoError(t, err)
	assert.InDelta(t, want-1.5, post, 1e-14)
	assert.Equal(t, -1.5, p.LogLikelihood())
}

func TestIndexAndAccessors(t *testing.T) {
	ll := newFakeLikelihood(42, "x", "y")
	p := New(ll)

	_, err := p.Add(mustFlat(t, ll.params, "x", 0, 1), false)
	require.NoError(t, err)
	_, err = p.Add(mustFlat(t, ll.params, "y", -1, 1), true)
	require.NoError(t, err)

	i, err := p.Index("x")
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	i, err = p.Index("y")
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	_, err = p.Index("z")
	require.ErrorIs(t, err, param.ErrUnknownParameter)

	nuis, err := p.Nuisance("y")
	require.NoError(t, err)
	assert.True(t, nuis)
	nuis, err = p.Nuisance("x")
	require.NoError(t, err)
	assert.False(t, nuis)

	pr := p.PriorOf("y")
	require.NotNil(t, pr)
	assert.Contains(t, pr.Describe(), "Parameter: y")
	assert.Nil(t, p.PriorOf("z"))

	assert.Equal(t, "x", p.At(0).Name())
	assert.Equal(t, "y", p.At(1).Name())
}

func TestCloneRoundTrip(t *testing.T) {
	ll := newFakeLikelihood(42, "a", "b")
	p := New(ll)

	_, err := p.Add(mustFlat(t, ll.params, "a", 0, 1), false)
	require.NoError(t, err)
	g, err := prior.NewCurtailedGauss(ll.params, "b", prior.Range{Min: -2, Max: 2}, -0.5, 0, 0.5)
	require.NoError(t, err)
	_, err = p.Add(g, true)
	require.NoError(t, err)

	c, err := p.Clone()
	require.NoError(t, err)

	orig := p.Descriptions()
	cloned := c.Descriptions()
	require.Len(t, cloned, len(orig))
	for i := range orig {
		assert.Equal(t, orig[i].Parameter.Name(), cloned[i].Parameter.Name())
		assert.Equal(t, orig[i].Min, cloned[i].Min)
		assert.Equal(t, orig[i].Max, cloned[i].Max)
		assert.Equal(t, orig[i].Nuisance, cloned[i].Nuisance)
	}
	assert.Equal(t, p.InformativePriors(), c.InformativePriors())

	// clones share no mutable state
	p.At(0).Set(0.9)
	assert.NotEqual(t, 0.9, c.At(0).Evaluate())

	// identical points give identical prior density
	c.At(0).Set(0.9)
	c.At(1).Set(p.At(1).Evaluate())
	lp, err := p.LogPrior()
	require.NoError(t, err)
	lc, err := c.LogPrior()
	require.NoError(t, err)
	assert.InDelta(t, lp, lc, 1e-14)
}

func TestProposalCovariance(t *testing.T) {
	ll := newFakeLikelihood(42, "m", "s")
	p := New(ll)

	// symmetric widths 2 and 3 give prior variances 4 and 9
	gm, err := prior.NewCurtailedGauss(ll.params, "m", prior.Range{Min: -10, Max: 10}, -2, 0, 2)
	require.NoError(t, err)
	gs, err := prior.NewCurtailedGauss(ll.params, "s", prior.Range{Min: -10, Max: 10}, -3, 0, 3)
	require.NoError(t, err)

	_, err = p.Add(gm, true) // nuisance
	require.NoError(t, err)
	_, err = p.Add(gs, false) // scan
	require.NoError(t, err)

	cov, err := p.ProposalCovariance(2.0, false)
	require.NoError(t, err)

	r, c := cov.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
	assert.InDelta(t, 4.0, cov.At(0, 0), 1e-14)
	assert.InDelta(t, 9.0/4.0, cov.At(1, 1), 1e-14)
	assert.Equal(t, 0.0, cov.At(0, 1))
	assert.Equal(t, 0.0, cov.At(1, 0))

	// scaling nuisance parameters too
	cov, err = p.ProposalCovariance(2.0, true)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cov.At(0, 0), 1e-14)
	assert.InDelta(t, 9.0/4.0, cov.At(1, 1), 1e-14)
}
