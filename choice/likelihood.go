package choice

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// LogLikelihood evaluates the multinomial logit log-likelihood, its analytic
// gradient and the implied choice probabilities over a fixed ChoiceDataset.
// An instance holds no mutable state and is safe for concurrent readers, which
// is what lets independent MCMC chains share one engine.
type LogLikelihood struct {
	ds *ChoiceDataset
}

// NewLogLikelihood creates a log-likelihood engine over the dataset.
func NewLogLikelihood(ds *ChoiceDataset) *LogLikelihood {
	return &LogLikelihood{ds: ds}
}

// Dim returns the parameter dimension (the number of design columns).
func (ll *LogLikelihood) Dim() int { return ll.ds.NumColumns() }

// utilities fills u with the alternatives' utilities x_j·beta for task t.
// Any non-finite utility is fatal, never clipped.
func (ll *LogLikelihood) utilities(t int, beta, u []float64) error {
	numAlts := ll.ds.numAlts
	for j := 0; j < numAlts; j++ {
		row := ll.ds.design.RawRowView(t*numAlts + j)
		uj := 0.0
		for k, x := range row {
			uj += x * beta[k]
		}
		if math.IsNaN(uj) || math.IsInf(uj, 0) {
			return errors.NewNumericalInstabilityError("utility", []float64{uj}, t)
		}
		u[j] = uj
	}
	return nil
}

// Value returns the total log-likelihood ℓ(beta) = Σ_t log P(chosen_t).
// The per-task softmax subtracts the maximum utility before exponentiating
// (log-sum-exp form), so large utility spreads cannot overflow.
func (ll *LogLikelihood) Value(beta []float64) (float64, error) {
	if len(beta) != ll.ds.NumColumns() {
		return 0, errors.NewDimensionError("LogLikelihood.Value", ll.ds.NumColumns(), len(beta), 1)
	}

	u := make([]float64, ll.ds.numAlts)
	total := 0.0
	for t := 0; t < ll.ds.NumTasks(); t++ {
		if err := ll.utilities(t, beta, u); err != nil {
			return 0, err
		}
		total += u[ll.ds.chosen[t]] - errors.LogSumExp(u)
	}
	if err := errors.CheckScalar("log_likelihood", total, 0); err != nil {
		return 0, err
	}
	return total, nil
}

// TaskValues fills dst with the per-task log-likelihood contributions and
// returns it. A nil dst is allocated; otherwise its length must equal NumTasks.
func (ll *LogLikelihood) TaskValues(dst, beta []float64) ([]float64, error) {
	if len(beta) != ll.ds.NumColumns() {
		return nil, errors.NewDimensionError("LogLikelihood.TaskValues", ll.ds.NumColumns(), len(beta), 1)
	}
	if dst == nil {
		dst = make([]float64, ll.ds.NumTasks())
	} else if len(dst) != ll.ds.NumTasks() {
		return nil, errors.NewDimensionError("LogLikelihood.TaskValues", ll.ds.NumTasks(), len(dst), 0)
	}

	u := make([]float64, ll.ds.numAlts)
	for t := 0; t < ll.ds.NumTasks(); t++ {
		if err := ll.utilities(t, beta, u); err != nil {
			return nil, err
		}
		dst[t] = u[ll.ds.chosen[t]] - errors.LogSumExp(u)
	}
	return dst, nil
}

// Gradient fills grad with the analytic score
// ∂ℓ/∂β = Σ_t [x_chosen_t − Σ_j P(j) x_j].
func (ll *LogLikelihood) Gradient(grad, beta []float64) error {
	numCols := ll.ds.NumColumns()
	if len(beta) != numCols {
		return errors.NewDimensionError("LogLikelihood.Gradient", numCols, len(beta), 1)
	}
	if len(grad) != numCols {
		return errors.NewDimensionError("LogLikelihood.Gradient", numCols, len(grad), 1)
	}

	for k := range grad {
		grad[k] = 0
	}

	numAlts := ll.ds.numAlts
	u := make([]float64, numAlts)
	for t := 0; t < ll.ds.NumTasks(); t++ {
		if err := ll.utilities(t, beta, u); err != nil {
			return err
		}
		lse := errors.LogSumExp(u)
		for j := 0; j < numAlts; j++ {
			p := math.Exp(u[j] - lse)
			row := ll.ds.design.RawRowView(t*numAlts + j)
			for k, x := range row {
				grad[k] -= p * x
			}
		}
		chosenRow := ll.ds.design.RawRowView(t*numAlts + ll.ds.chosen[t])
		for k, x := range chosenRow {
			grad[k] += x
		}
	}
	return errors.CheckNumericalStability("gradient", grad, 0)
}

// Probabilities fills dst with the tasks×J matrix of choice probabilities and
// returns it. A nil dst is allocated; otherwise its dimensions must match.
func (ll *LogLikelihood) Probabilities(dst *mat.Dense, beta []float64) (*mat.Dense, error) {
	if len(beta) != ll.ds.NumColumns() {
		return nil, errors.NewDimensionError("LogLikelihood.Probabilities", ll.ds.NumColumns(), len(beta), 1)
	}
	numTasks := ll.ds.NumTasks()
	numAlts := ll.ds.numAlts
	if dst == nil {
		dst = mat.NewDense(numTasks, numAlts, nil)
	} else {
		rows, cols := dst.Dims()
		if rows != numTasks {
			return nil, errors.NewDimensionError("LogLikelihood.Probabilities", numTasks, rows, 0)
		}
		if cols != numAlts {
			return nil, errors.NewDimensionError("LogLikelihood.Probabilities", numAlts, cols, 1)
		}
	}

	u := make([]float64, numAlts)
	for t := 0; t < numTasks; t++ {
		if err := ll.utilities(t, beta, u); err != nil {
			return nil, err
		}
		lse := errors.LogSumExp(u)
		out := dst.RawRowView(t)
		for j := 0; j < numAlts; j++ {
			out[j] = math.Exp(u[j] - lse)
		}
	}
	return dst, nil
}
