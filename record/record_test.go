package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepstat/bayesfit/param"
	"github.com/hepstat/bayesfit/posterior"
	"github.com/hepstat/bayesfit/prior"
)

type stubConstraint struct{ name string }

func (c stubConstraint) Name() string          { return c.name }
func (c stubConstraint) Significance() float64 { return 1.0 }

type stubCache struct{ names []string }

func (c stubCache) Len() int            { return len(c.names) }
func (c stubCache) Name(i int) string   { return c.names[i] }
func (c stubCache) Value(i int) float64 { return 0 }

type stubLikelihood struct {
	params *param.Parameters
}

func (s *stubLikelihood) Parameters() *param.Parameters { return s.params }
func (s *stubLikelihood) Evaluate() float64             { return 0 }
func (s *stubLikelihood) NumberOfObservations() int     { return 3 }
func (s *stubLikelihood) BootstrapPValue(n int) (float64, float64, error) {
	return 0.5, 2.37, nil
}
func (s *stubLikelihood) Constraints() []posterior.Constraint {
	return []posterior.Constraint{stubConstraint{name: "B->K::ff"}}
}
func (s *stubLikelihood) ObservableCache() posterior.ObservableCache {
	return stubCache{names: []string{"BR", "A_FB"}}
}
func (s *stubLikelihood) Clone() (posterior.LogLikelihood, error) {
	return &stubLikelihood{params: s.params.Clone(0)}, nil
}

func TestDescriptionsOf(t *testing.T) {
	params := param.NewParameters(42)
	params.Declare("x", 0.5)
	params.Declare("y", 0.0)
	p := posterior.New(&stubLikelihood{params: params})

	f, err := prior.NewFlat(params, "x", prior.Range{Min: 0, Max: 1})
	require.NoError(t, err)
	g, err := prior.NewCurtailedGauss(params, "y", prior.Range{Min: -1, Max: 1}, -0.3, 0, 0.3)
	require.NoError(t, err)
	_, err = p.Add(f, false)
	require.NoError(t, err)
	_, err = p.Add(g, true)
	require.NoError(t, err)

	d := DescriptionsOf(p)
	assert.Equal(t, Version, d.Version)

	require.Len(t, d.Parameters, 2)
	assert.Equal(t, Parameter{
		Name: "x", Min: 0, Max: 1, Nuisance: 0,
		Prior: "Parameter: x, prior type: flat, range: [0,1]",
	}, d.Parameters[0])
	assert.Equal(t, "y", d.Parameters[1].Name)
	assert.Equal(t, 1, d.Parameters[1].Nuisance)

	assert.Equal(t, []Name{{Name: "B->K::ff"}}, d.Constraints)
	assert.Equal(t, []Name{{Name: "BR"}, {Name: "A_FB"}}, d.Observables)
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := Descriptions{
		Version: Version,
		Parameters: []Parameter{
			{Name: "x", Min: 0, Max: 1, Nuisance: 1, Prior: "Parameter: x, prior type: flat, range: [0,1]"},
		},
		Constraints: []Name{{Name: "c"}},
		Observables: []Name{{Name: "o"}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, d))

	var got Descriptions
	require.NoError(t, Read(&buf, &got))
	assert.Equal(t, d, got)
}

func TestFitOf(t *testing.T) {
	g := &posterior.GoodnessOfFit{
		Significances:            []float64{1.0, -0.5},
		TotalSignificanceSquared: 1.25,
		ChiSquared:               3.1,
	}
	f := FitOf([]float64{0.2, 0.4}, g)

	assert.Equal(t, []float64{0.2, 0.4}, f.Point)
	assert.Equal(t, []float64{1.0, -0.5}, f.Significances)
	assert.Equal(t, 1.25, f.Chi2Significance)
	assert.Equal(t, 3.1, f.Chi2Simulation)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	var got Fit
	require.NoError(t, Read(&buf, &got))
	assert.Equal(t, f, got)
}
