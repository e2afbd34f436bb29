package bayes

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// Prior is a log prior density over the coefficient vector. Implementations
// must be safe for concurrent use: parallel chains evaluate the same prior.
type Prior interface {
	// LogDensity returns the log prior density at beta. beta must have
	// exactly Dim elements.
	LogDensity(beta []float64) float64

	// Dim returns the number of coefficients the prior covers.
	Dim() int
}

// NormalPrior is an independent zero-mean Normal prior with a per-coefficient
// standard deviation. It is the usual weakly-informative choice for choice
// models: a tight sd for effects with a known scale (price), a loose one for
// indicator effects (brand, ad).
type NormalPrior struct {
	dists []distuv.Normal
}

// NewNormalPrior creates a NormalPrior from per-coefficient standard
// deviations. Non-positive or non-finite sd values are rejected.
func NewNormalPrior(sd []float64) (*NormalPrior, error) {
	if len(sd) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "in NewNormalPrior")
	}
	dists := make([]distuv.Normal, len(sd))
	for i, s := range sd {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, errors.NewValidationError("sd",
				fmt.Sprintf("standard deviation must be positive and finite, got %g at index %d", s, i), s)
		}
		dists[i] = distuv.Normal{Mu: 0, Sigma: s}
	}
	return &NormalPrior{dists: dists}, nil
}

// NewIsotropicNormalPrior creates a zero-mean Normal prior with the same
// standard deviation for every coefficient. A large sd gives an effectively
// diffuse prior under which the posterior concentrates near the MLE.
func NewIsotropicNormalPrior(dim int, sd float64) (*NormalPrior, error) {
	if dim <= 0 {
		return nil, errors.NewValidationError("dim",
			fmt.Sprintf("dimension must be positive, got %d", dim), dim)
	}
	sds := make([]float64, dim)
	for i := range sds {
		sds[i] = sd
	}
	return NewNormalPrior(sds)
}

// LogDensity returns Σ_k log N(beta_k; 0, sd_k).
func (p *NormalPrior) LogDensity(beta []float64) float64 {
	total := 0.0
	for i, d := range p.dists {
		total += d.LogProb(beta[i])
	}
	return total
}

// Dim returns the number of coefficients the prior covers.
func (p *NormalPrior) Dim() int { return len(p.dists) }
