package bayes

import (
	"github.com/YuminosukeSato/gochoice/choice"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// Target is an unnormalized log density the sampler explores. The transition
// kernel is generic over targets; the posterior of a choice model is the one
// this package is built for, but any log density works (tests use analytic
// targets). Evaluation errors abort the chain.
type Target interface {
	// LogDensity returns the unnormalized log density at beta.
	LogDensity(beta []float64) (float64, error)

	// Dim returns the number of parameters.
	Dim() int
}

// Posterior is the unnormalized log posterior of a multinomial logit model:
// log-likelihood plus log prior.
type Posterior struct {
	ll    *choice.LogLikelihood
	prior Prior
}

// NewPosterior combines a log-likelihood engine and a prior into a sampling
// target. The prior dimension must match the design-matrix column count.
func NewPosterior(ll *choice.LogLikelihood, prior Prior) (*Posterior, error) {
	if ll == nil {
		return nil, errors.NewValidationError("ll", "log-likelihood engine must not be nil", nil)
	}
	if prior == nil {
		return nil, errors.NewValidationError("prior", "prior must not be nil", nil)
	}
	if prior.Dim() != ll.Dim() {
		return nil, errors.NewDimensionError("NewPosterior", ll.Dim(), prior.Dim(), 1)
	}
	return &Posterior{ll: ll, prior: prior}, nil
}

// LogDensity returns ℓ(beta) + log prior(beta). Likelihood failures (non-finite
// utilities and the like) are returned unchanged.
func (p *Posterior) LogDensity(beta []float64) (float64, error) {
	ll, err := p.ll.Value(beta)
	if err != nil {
		return 0, err
	}
	return ll + p.prior.LogDensity(beta), nil
}

// Dim returns the number of coefficients.
func (p *Posterior) Dim() int { return p.ll.Dim() }
