// Package bayes implements posterior sampling for choice models: Normal
// priors, a random-walk Metropolis sampler with warmup step-size adaptation,
// parallel chains, and posterior summaries (mean, credible interval,
// effective sample size, R̂).
package bayes

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
	"github.com/YuminosukeSato/gochoice/pkg/log"
)

// phase is the chain lifecycle: step-size adaptation runs during warmup only
// and freezes on entering the sampling phase, so the retained draws come from
// a fixed transition kernel.
type phase int

const (
	phaseWarmup phase = iota
	phaseSampling
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseWarmup:
		return "warmup"
	case phaseSampling:
		return "sampling"
	default:
		return "done"
	}
}

const (
	// adaptWindow is the number of warmup iterations per step-size update.
	adaptWindow = 50
	// adaptGain scales the log-step correction per window.
	adaptGain = 1.0
	// stepCollapse and stepDiverge bound the adapted step size; crossing
	// either ends the chain with SamplerStalledError instead of returning a
	// degenerate trace.
	stepCollapse = 1e-12
	stepDiverge  = 1e12
)

// Metropolis is a symmetric Gaussian random-walk Metropolis sampler.
// Proposals are β′ = β + step·z with z ~ N(0, I); the scalar step size is
// adapted toward the target acceptance rate in fixed windows during warmup.
// A rejection records the current state again, so every sample slot is
// filled. The zero value is not usable; use NewMetropolis.
type Metropolis struct {
	warmup      int
	samples     int
	targetRate  float64
	initialStep float64
	seed        int64
	init        []float64
}

// MetropolisOption は設定オプション
type MetropolisOption func(*Metropolis)

// WithWarmup sets the number of warmup (adaptation) iterations.
func WithWarmup(n int) MetropolisOption {
	return func(m *Metropolis) {
		m.warmup = n
	}
}

// WithSamples sets the number of retained draws per chain.
func WithSamples(n int) MetropolisOption {
	return func(m *Metropolis) {
		m.samples = n
	}
}

// WithTargetAcceptance sets the acceptance rate the warmup adaptation steers
// toward.
func WithTargetAcceptance(rate float64) MetropolisOption {
	return func(m *Metropolis) {
		m.targetRate = rate
	}
}

// WithInitialStep sets the proposal step size before adaptation.
func WithInitialStep(step float64) MetropolisOption {
	return func(m *Metropolis) {
		m.initialStep = step
	}
}

// WithSeed sets the base random seed; chain i runs on seed+i.
func WithSeed(seed int64) MetropolisOption {
	return func(m *Metropolis) {
		m.seed = seed
	}
}

// WithInit sets the chains' starting coefficient vector. The default start is
// the zero vector.
func WithInit(beta []float64) MetropolisOption {
	return func(m *Metropolis) {
		m.init = append([]float64(nil), beta...)
	}
}

// NewMetropolis creates a new Metropolis sampler.
func NewMetropolis(options ...MetropolisOption) *Metropolis {
	m := &Metropolis{
		warmup:      500,
		samples:     1000,
		targetRate:  0.35,
		initialStep: 0.1,
		seed:        42,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Chain is the result of one Metropolis run: the retained draws (samples×dim,
// one row per slot, duplicates included), the number of accepted transitions
// during the sampling phase, and the step size the sampling phase ran with.
type Chain struct {
	ChainID  int
	Draws    *mat.Dense
	Accepted int
	StepSize float64
}

// AcceptanceRate returns the realized acceptance rate of the sampling phase.
func (c *Chain) AcceptanceRate() float64 {
	rows, _ := c.Draws.Dims()
	if rows == 0 {
		return 0
	}
	return float64(c.Accepted) / float64(rows)
}

func (m *Metropolis) validate(target Target) error {
	if target == nil {
		return errors.NewValidationError("target", "target must not be nil", nil)
	}
	if target.Dim() <= 0 {
		return errors.NewValidationError("target",
			fmt.Sprintf("target dimension must be positive, got %d", target.Dim()), target.Dim())
	}
	if m.warmup < 0 {
		return errors.NewValidationError("warmup",
			fmt.Sprintf("warmup iterations must be non-negative, got %d", m.warmup), m.warmup)
	}
	if m.samples <= 0 {
		return errors.NewValidationError("samples",
			fmt.Sprintf("sample count must be positive, got %d", m.samples), m.samples)
	}
	if m.targetRate <= 0 || m.targetRate >= 1 {
		return errors.NewValidationError("targetRate",
			fmt.Sprintf("target acceptance rate must be in (0, 1), got %g", m.targetRate), m.targetRate)
	}
	if m.initialStep <= 0 || math.IsNaN(m.initialStep) || math.IsInf(m.initialStep, 0) {
		return errors.NewValidationError("initialStep",
			fmt.Sprintf("initial step size must be positive and finite, got %g", m.initialStep), m.initialStep)
	}
	if m.init != nil && len(m.init) != target.Dim() {
		return errors.NewDimensionError("Metropolis.Sample", target.Dim(), len(m.init), 1)
	}
	return nil
}

// Sample runs a single chain against the target. The chain is seeded with
// seed+chainID, so a fixed seed and configuration reproduce the trace
// exactly. Target evaluation errors abort the chain as-is; a NaN or +Inf log
// density, a collapsed step size or a diverged one raise SamplerStalledError.
func (m *Metropolis) Sample(target Target, chainID int) (*Chain, error) {
	if err := m.validate(target); err != nil {
		return nil, err
	}
	dim := target.Dim()

	chainSeed := m.seed + int64(chainID)
	src := rand.NewPCG(uint64(chainSeed), uint64(chainSeed))
	r := rand.New(src)
	stdNormal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	logger := log.GetLoggerWithName("bayes.metropolis")
	logger.Debug("Starting chain",
		log.ChainKey, chainID,
		log.WarmupKey, m.warmup,
		log.DrawsKey, m.samples,
		log.StepSizeKey, m.initialStep,
		log.RandomSeedKey, chainSeed)

	cur := make([]float64, dim)
	copy(cur, m.init)
	lpCur, err := target.LogDensity(cur)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(lpCur) || math.IsInf(lpCur, 0) {
		return nil, errors.NewSamplerStalledError(chainID, 0, m.initialStep,
			"initial log posterior is not finite")
	}

	step := m.initialStep
	draws := mat.NewDense(m.samples, dim, nil)
	prop := make([]float64, dim)
	ph := phaseWarmup
	if m.warmup == 0 {
		ph = phaseSampling
	}
	accepted := 0
	windowAccepted := 0

	total := m.warmup + m.samples
	for iter := 0; iter < total; iter++ {
		if ph == phaseWarmup && iter == m.warmup {
			ph = phaseSampling
			logger.Debug("Entering sampling phase",
				log.ChainKey, chainID,
				log.PhaseKey, ph.String(),
				log.StepSizeKey, step)
		}

		for k := range prop {
			prop[k] = cur[k] + step*stdNormal.Rand()
		}
		lpProp, perr := target.LogDensity(prop)
		if perr != nil {
			return nil, perr
		}
		if math.IsNaN(lpProp) {
			return nil, errors.NewSamplerStalledError(chainID, iter, step,
				"log posterior is NaN at the proposal")
		}
		if math.IsInf(lpProp, 1) {
			return nil, errors.NewSamplerStalledError(chainID, iter, step,
				"log posterior diverged to +Inf at the proposal")
		}

		// Metropolis rule. A -Inf proposal density has acceptance
		// probability zero and falls through to the duplicate record.
		if r.Float64() < math.Exp(lpProp-lpCur) {
			copy(cur, prop)
			lpCur = lpProp
			if ph == phaseSampling {
				accepted++
			} else {
				windowAccepted++
			}
		}

		if ph == phaseSampling {
			draws.SetRow(iter-m.warmup, cur)
			continue
		}

		// Warmup step-size adaptation, one multiplicative correction per
		// window, frozen once the sampling phase starts.
		if (iter+1)%adaptWindow == 0 {
			rate := float64(windowAccepted) / float64(adaptWindow)
			step *= math.Exp(adaptGain * (rate - m.targetRate))
			windowAccepted = 0
			if step < stepCollapse {
				return nil, errors.NewSamplerStalledError(chainID, iter, step,
					fmt.Sprintf("step size collapsed below %g during warmup adaptation", stepCollapse))
			}
			if step > stepDiverge || math.IsNaN(step) || math.IsInf(step, 0) {
				return nil, errors.NewSamplerStalledError(chainID, iter, step,
					"step size diverged during warmup adaptation")
			}
		}
	}
	ph = phaseDone

	chain := &Chain{ChainID: chainID, Draws: draws, Accepted: accepted, StepSize: step}
	logger.Debug("Chain finished",
		log.ChainKey, chainID,
		log.PhaseKey, ph.String(),
		log.AcceptanceRateKey, chain.AcceptanceRate(),
		log.StepSizeKey, step)
	return chain, nil
}
