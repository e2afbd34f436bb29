package bayes

import (
	"fmt"
	"sync"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
	"github.com/YuminosukeSato/gochoice/pkg/log"
)

// Trace holds the draws of one or more chains with identical shape. The
// summarizer and the plotting helpers read chains through it.
type Trace struct {
	chains []*Chain
}

// NewTrace bundles chains into a trace. All chains must have the same number
// of draws and parameters.
func NewTrace(chains []*Chain) (*Trace, error) {
	if len(chains) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "in NewTrace")
	}
	for i, c := range chains {
		if c == nil || c.Draws == nil {
			return nil, errors.NewValidationError("chains",
				fmt.Sprintf("chain %d has no draws", i), nil)
		}
	}
	rows, cols := chains[0].Draws.Dims()
	for _, c := range chains[1:] {
		r, k := c.Draws.Dims()
		if r != rows || k != cols {
			return nil, errors.NewDimensionError("NewTrace", rows, r, 0)
		}
	}
	return &Trace{chains: chains}, nil
}

// NumChains returns the number of chains.
func (t *Trace) NumChains() int { return len(t.chains) }

// NumDraws returns the number of retained draws per chain.
func (t *Trace) NumDraws() int {
	rows, _ := t.chains[0].Draws.Dims()
	return rows
}

// NumParams returns the number of sampled parameters.
func (t *Trace) NumParams() int {
	_, cols := t.chains[0].Draws.Dims()
	return cols
}

// Chain returns the i-th chain.
func (t *Trace) Chain(i int) *Chain { return t.chains[i] }

// Series returns a copy of one parameter's draws from one chain, in sampling
// order.
func (t *Trace) Series(chain, param int) []float64 {
	draws := t.chains[chain].Draws
	rows, _ := draws.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = draws.At(i, param)
	}
	return out
}

// Pooled returns one parameter's draws concatenated across chains.
func (t *Trace) Pooled(param int) []float64 {
	out := make([]float64, 0, t.NumChains()*t.NumDraws())
	for c := range t.chains {
		out = append(out, t.Series(c, param)...)
	}
	return out
}

// SampleChains runs numChains independent chains concurrently and collects
// them into a Trace. Chain i is seeded with seed+i, so the whole run is
// reproducible; the chains share only the read-only target. The first chain
// error (by chain index) aborts the run.
func (m *Metropolis) SampleChains(target Target, numChains int) (*Trace, error) {
	if numChains <= 0 {
		return nil, errors.NewValidationError("numChains",
			fmt.Sprintf("number of chains must be positive, got %d", numChains), numChains)
	}
	if err := m.validate(target); err != nil {
		return nil, err
	}

	logger := log.GetLoggerWithName("bayes.metropolis")
	logger.Info("Starting posterior sampling",
		log.ChainsKey, numChains,
		log.WarmupKey, m.warmup,
		log.DrawsKey, m.samples,
		log.RandomSeedKey, m.seed)

	chains := make([]*Chain, numChains)
	chainErrs := make([]error, numChains)

	var wg sync.WaitGroup
	for i := 0; i < numChains; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chains[i], chainErrs[i] = m.Sample(target, i)
		}(i)
	}
	wg.Wait()

	for _, err := range chainErrs {
		if err != nil {
			return nil, err
		}
	}

	trace, err := NewTrace(chains)
	if err != nil {
		return nil, err
	}

	totalAccepted := 0
	for _, c := range chains {
		totalAccepted += c.Accepted
	}
	logger.Info("Posterior sampling finished",
		log.ChainsKey, numChains,
		log.DrawsKey, numChains*m.samples,
		log.AcceptanceRateKey, float64(totalAccepted)/float64(numChains*m.samples))
	return trace, nil
}
