// Package choice implements estimation of multinomial logit (MNL) discrete
// choice models from task-grouped panel data.
//
// The workflow mirrors a conjoint study: declare a UtilitySpec describing how
// alternative attributes enter the utility, assemble the raw panel rows into a
// ChoiceDataset, then fit a MultinomialLogit by maximum likelihood or hand the
// dataset's LogLikelihood to the bayes package for posterior sampling.
package choice

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/core/parallel"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// Alternative is the raw attribute bundle of one alternative within a task.
type Alternative struct {
	Categorical map[string]string
	Numeric     map[string]float64
}

// Observation is one raw panel row: one alternative shown to one respondent in
// one choice task, with the indicator of whether it was the chosen one.
type Observation struct {
	RespondentID string
	TaskID       string
	Alternative
	Chosen bool
}

// TaskInfo identifies one assembled choice task.
type TaskInfo struct {
	RespondentID string
	TaskID       string
	Chosen       int // within-task index of the chosen alternative
}

// encodeParallelThreshold is the task count above which dataset encoding fans
// out across CPUs.
const encodeParallelThreshold = 256

// ChoiceDataset is the validated, task-grouped representation of a choice
// panel. Rows are grouped once at construction into one contiguous design
// matrix: row t*J+j holds the encoded features of alternative j of task t,
// preserving the within-task order of the raw input. The dataset is immutable
// after construction.
type ChoiceDataset struct {
	design  *mat.Dense
	tasks   []TaskInfo
	chosen  []int
	cols    []string
	numAlts int
}

// NewChoiceDataset groups raw panel rows into tasks keyed by
// (respondent, task) in order of first appearance and encodes every
// alternative through the utility specification. Every task must contain
// exactly numAlternatives rows with exactly one chosen row; any violation
// raises MalformedPanelError and no partial dataset is returned. Non-finite
// encoded values raise NumericalInstabilityError.
func NewChoiceDataset(obs []Observation, spec *UtilitySpec, numAlternatives int) (*ChoiceDataset, error) {
	if spec == nil {
		return nil, errors.NewValidationError("spec", "utility specification must not be nil", nil)
	}
	if numAlternatives < 2 {
		return nil, errors.NewValidationError("numAlternatives", "a choice task needs at least 2 alternatives", numAlternatives)
	}
	if spec.NumColumns() == 0 {
		return nil, errors.NewValidationError("spec", "utility specification declares no attributes", nil)
	}
	if len(obs) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "in NewChoiceDataset")
	}

	type taskKey struct {
		respondent string
		task       string
	}

	// Group row indices by task in order of first appearance, preserving the
	// within-task row order.
	index := make(map[taskKey]int)
	keys := make([]taskKey, 0)
	rows := make([][]int, 0)
	for i, o := range obs {
		k := taskKey{o.RespondentID, o.TaskID}
		t, seen := index[k]
		if !seen {
			t = len(rows)
			index[k] = t
			keys = append(keys, k)
			rows = append(rows, nil)
		}
		rows[t] = append(rows[t], i)
	}

	// Validate the panel structure before any encoding work.
	numTasks := len(rows)
	chosen := make([]int, numTasks)
	tasks := make([]TaskInfo, numTasks)
	for t := 0; t < numTasks; t++ {
		chosenCount := 0
		chosenIdx := -1
		for j, rowIdx := range rows[t] {
			if obs[rowIdx].Chosen {
				chosenCount++
				chosenIdx = j
			}
		}
		if len(rows[t]) != numAlternatives {
			return nil, errors.NewMalformedPanelError(keys[t].respondent, keys[t].task,
				len(rows[t]), chosenCount,
				fmt.Sprintf("expected %d alternatives, got %d", numAlternatives, len(rows[t])))
		}
		if chosenCount != 1 {
			return nil, errors.NewMalformedPanelError(keys[t].respondent, keys[t].task,
				len(rows[t]), chosenCount,
				fmt.Sprintf("expected exactly one chosen alternative, got %d", chosenCount))
		}
		chosen[t] = chosenIdx
		tasks[t] = TaskInfo{RespondentID: keys[t].respondent, TaskID: keys[t].task, Chosen: chosenIdx}
	}

	// Encode into one contiguous block, fanning out over tasks on large panels.
	numCols := spec.NumColumns()
	design := mat.NewDense(numTasks*numAlternatives, numCols, nil)
	encodeErrs := make([]error, numTasks)
	parallel.ParallelizeWithThreshold(numTasks, encodeParallelThreshold, func(start, end int) {
		for t := start; t < end; t++ {
			for j, rowIdx := range rows[t] {
				dst := design.RawRowView(t*numAlternatives + j)
				if err := spec.EncodeTo(dst, obs[rowIdx].Alternative); err != nil {
					encodeErrs[t] = errors.Wrapf(err, "encoding respondent %q task %q alternative %d",
						keys[t].respondent, keys[t].task, j)
					return
				}
				if err := errors.CheckNumericalStability("ChoiceDataset encoding", dst, t); err != nil {
					encodeErrs[t] = errors.Wrapf(err, "encoding respondent %q task %q alternative %d",
						keys[t].respondent, keys[t].task, j)
					return
				}
			}
		}
	})
	for _, err := range encodeErrs {
		if err != nil {
			return nil, err
		}
	}

	return &ChoiceDataset{
		design:  design,
		tasks:   tasks,
		chosen:  chosen,
		cols:    spec.Columns(),
		numAlts: numAlternatives,
	}, nil
}

// NumTasks returns the number of choice tasks in the panel.
func (ds *ChoiceDataset) NumTasks() int { return len(ds.tasks) }

// NumAlternatives returns the fixed number of alternatives per task.
func (ds *ChoiceDataset) NumAlternatives() int { return ds.numAlts }

// NumColumns returns the number of design matrix columns.
func (ds *ChoiceDataset) NumColumns() int { return len(ds.cols) }

// ColumnNames returns the design column names in encoding order.
func (ds *ChoiceDataset) ColumnNames() []string {
	cols := make([]string, len(ds.cols))
	copy(cols, ds.cols)
	return cols
}

// Design returns the full (tasks*J)×columns design matrix. Callers must treat
// it as read-only.
func (ds *ChoiceDataset) Design() mat.Matrix { return ds.design }

// TaskBlock returns the J×columns design block of task t.
func (ds *ChoiceDataset) TaskBlock(t int) mat.Matrix {
	return ds.design.Slice(t*ds.numAlts, (t+1)*ds.numAlts, 0, len(ds.cols))
}

// Chosen returns the within-task index of the chosen alternative of task t.
func (ds *ChoiceDataset) Chosen(t int) int { return ds.chosen[t] }

// ChosenIndices returns the chosen alternative index of every task.
func (ds *ChoiceDataset) ChosenIndices() []int {
	indices := make([]int, len(ds.chosen))
	copy(indices, ds.chosen)
	return indices
}

// Task returns the identifiers and chosen index of task t.
func (ds *ChoiceDataset) Task(t int) TaskInfo { return ds.tasks[t] }
