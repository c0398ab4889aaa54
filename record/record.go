// Package record defines the persisted artifact schema produced from a
// posterior: the parameter-description table with a version tag, the
// constraint and observable name tables, and the goodness-of-fit
// vectors and attributes. Encoding is YAML; heavier persistence lives
// outside this module.
package record

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hepstat/bayesfit/posterior"
)

// Version tags written description tables.
const Version = "bayesfit/1"

// Parameter is one row of the parameter-description table.
type Parameter struct {
	Name     string  `yaml:"name"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	Nuisance int     `yaml:"nuisance"`
	Prior    string  `yaml:"prior"`
}

// Name is one row of a name table.
type Name struct {
	Name string `yaml:"name"`
}

// Descriptions is the structural snapshot of a posterior.
type Descriptions struct {
	Version     string      `yaml:"version"`
	Parameters  []Parameter `yaml:"parameters"`
	Constraints []Name      `yaml:"constraints"`
	Observables []Name      `yaml:"observables"`
}

// Fit is the artifact of one goodness-of-fit run.
type Fit struct {
	Point            []float64 `yaml:"point"`
	Significances    []float64 `yaml:"significances"`
	Chi2Significance float64   `yaml:"chi2_significance"`
	Chi2Simulation   float64   `yaml:"chi2_simulation"`
}

// DescriptionsOf snapshots the posterior's parameter descriptions,
// constraint names and observable names.
func DescriptionsOf(p *posterior.Posterior) Descriptions {
	d := Descriptions{Version: Version}

	for _, desc := range p.Descriptions() {
		name := desc.Parameter.Name()
		priorString := ""
		if pr := p.PriorOf(name); pr != nil {
			priorString = pr.Describe()
		}
		nuisance := 0
		if desc.Nuisance {
			nuisance = 1
		}
		d.Parameters = append(d.Parameters, Parameter{
			Name:     name,
			Min:      desc.Min,
			Max:      desc.Max,
			Nuisance: nuisance,
			Prior:    priorString,
		})
	}

	ll := p.Likelihood()
	for _, c := range ll.Constraints() {
		d.Constraints = append(d.Constraints, Name{Name: c.Name()})
	}
	cache := ll.ObservableCache()
	for i := 0; i < cache.Len(); i++ {
		d.Observables = append(d.Observables, Name{Name: cache.Name(i)})
	}

	return d
}

// FitOf builds the goodness-of-fit artifact for the evaluated point.
func FitOf(point []float64, g *posterior.GoodnessOfFit) Fit {
	return Fit{
		Point:            append([]float64(nil), point...),
		Significances:    append([]float64(nil), g.Significances...),
		Chi2Significance: g.TotalSignificanceSquared,
		Chi2Simulation:   g.ChiSquared,
	}
}

// Write YAML-encodes a record.
func Write(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Read decodes a record written by Write.
func Read(r io.Reader, v interface{}) error {
	return yaml.NewDecoder(r).Decode(v)
}
