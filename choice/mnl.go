package choice

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/gochoice/core/model"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
	"github.com/YuminosukeSato/gochoice/pkg/log"
)

// MultinomialLogit estimates the multinomial logit model by maximum
// likelihood: it minimizes the negative log-likelihood with BFGS and reports
// standard errors from the inverse observed information matrix at the
// optimum. Coefficients are shared across alternatives; alternative-specific
// effects enter only through the encoded attributes.
type MultinomialLogit struct {
	state *model.StateManager

	// Hyperparameters
	maxIter int
	tol     float64
	init    []float64

	modelType string
	version   string

	// Fitted attributes
	coef_       []float64
	stdErr_     []float64
	cov_        *mat.SymDense
	colNames_   []string
	logLik_     float64
	nullLogLik_ float64
	numIter_    int
	converged_  bool
	numTasks_   int
	numAlts_    int
}

// NewMultinomialLogit creates a new MultinomialLogit estimator.
func NewMultinomialLogit(options ...MNLOption) *MultinomialLogit {
	m := &MultinomialLogit{
		state:     model.NewStateManager(),
		maxIter:   100,
		tol:       1e-6,
		modelType: "MultinomialLogit",
		version:   "1.0.0",
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// MNLOption は設定オプション
type MNLOption func(*MultinomialLogit)

// WithMNLMaxIter sets the BFGS major-iteration limit.
func WithMNLMaxIter(n int) MNLOption {
	return func(m *MultinomialLogit) {
		m.maxIter = n
	}
}

// WithMNLTol sets the gradient infinity-norm convergence threshold.
func WithMNLTol(tol float64) MNLOption {
	return func(m *MultinomialLogit) {
		m.tol = tol
	}
}

// WithMNLInit sets the optimizer's starting coefficient vector. The default
// start is the zero vector.
func WithMNLInit(beta []float64) MNLOption {
	return func(m *MultinomialLogit) {
		m.init = append([]float64(nil), beta...)
	}
}

// convergedStatus reports whether the optimizer terminated by an actual
// convergence criterion rather than a limit or a failure.
func convergedStatus(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	default:
		return false
	}
}

// Fit estimates the coefficients on the dataset by minimizing the negative
// log-likelihood. Non-convergence of the optimizer, a non-finite optimum,
// or a non-positive-definite information matrix raise
// OptimizationDivergedError; the model keeps no partial result in that case.
func (m *MultinomialLogit) Fit(ds *ChoiceDataset) (err error) {
	defer errors.Recover(&err, "MultinomialLogit.Fit")

	if ds == nil {
		return errors.NewValidationError("ds", "dataset must not be nil", nil)
	}
	numCols := ds.NumColumns()
	if m.init != nil && len(m.init) != numCols {
		return errors.NewDimensionError("MultinomialLogit.Fit", numCols, len(m.init), 1)
	}

	logger := log.GetLoggerWithName("choice.mnl")
	logger.Debug("Starting MNL estimation",
		log.TasksKey, ds.NumTasks(),
		log.AlternativesKey, ds.NumAlternatives(),
		log.FeaturesKey, numCols)

	engine := NewLogLikelihood(ds)

	// The optimizer works on -ℓ. Engine failures (NaN utilities and the like)
	// are recorded once and surfaced after the run; the optimizer itself only
	// sees +Inf.
	var engineErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v, ferr := engine.Value(x)
			if ferr != nil {
				if engineErr == nil {
					engineErr = ferr
				}
				return math.Inf(1)
			}
			return -v
		},
		Grad: func(grad, x []float64) {
			if gerr := engine.Gradient(grad, x); gerr != nil {
				if engineErr == nil {
					engineErr = gerr
				}
				for i := range grad {
					grad[i] = math.Inf(1)
				}
				return
			}
			for i := range grad {
				grad[i] = -grad[i]
			}
		},
	}

	initX := make([]float64, numCols)
	copy(initX, m.init)

	settings := &optimize.Settings{
		GradientThreshold: m.tol,
		MajorIterations:   m.maxIter,
	}

	result, optErr := optimize.Minimize(problem, initX, settings, &optimize.BFGS{})
	if engineErr != nil {
		return engineErr
	}
	status := "unknown"
	iters := 0
	if result != nil {
		status = result.Status.String()
		iters = result.MajorIterations
	}
	if optErr != nil {
		return errors.NewOptimizationDivergedError("BFGS", iters, status, optErr.Error())
	}
	if !convergedStatus(result.Status) {
		return errors.NewOptimizationDivergedError("BFGS", iters, status,
			"optimizer stopped without reaching a convergence criterion")
	}
	if err := errors.CheckNumericalStability("MultinomialLogit.Fit", result.X, iters); err != nil {
		return errors.NewOptimizationDivergedError("BFGS", iters, status, "optimum has non-finite coefficients")
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return errors.NewOptimizationDivergedError("BFGS", iters, status, "optimum has a non-finite objective value")
	}

	coef := append([]float64(nil), result.X...)

	// Asymptotic covariance from the analytic observed information at β̂.
	probs, perr := engine.Probabilities(nil, coef)
	if perr != nil {
		return perr
	}
	info := observedInformation(ds, probs)
	var chol mat.Cholesky
	if !chol.Factorize(info) {
		return errors.NewOptimizationDivergedError("BFGS", iters, status,
			"observed information matrix is not positive definite")
	}
	cov := mat.NewSymDense(numCols, nil)
	if cerr := chol.InverseTo(cov); cerr != nil {
		return errors.NewOptimizationDivergedError("BFGS", iters, status,
			"observed information matrix could not be inverted")
	}
	stdErr := make([]float64, numCols)
	for i := 0; i < numCols; i++ {
		stdErr[i] = math.Sqrt(cov.At(i, i))
	}

	m.coef_ = coef
	m.stdErr_ = stdErr
	m.cov_ = cov
	m.colNames_ = ds.ColumnNames()
	m.logLik_ = -result.F
	m.nullLogLik_ = -float64(ds.NumTasks()) * math.Log(float64(ds.NumAlternatives()))
	m.numIter_ = iters
	m.converged_ = true
	m.numTasks_ = ds.NumTasks()
	m.numAlts_ = ds.NumAlternatives()

	m.state.SetFitted()
	m.state.SetDimensions(numCols, ds.NumTasks())

	logger.Info("MNL estimation finished",
		log.IterationKey, m.numIter_,
		log.ConvergedKey, m.converged_,
		log.LogLikelihoodKey, m.logLik_)
	return nil
}

// observedInformation accumulates Σ_t Σ_j p_tj (x_tj − x̄_t)(x_tj − x̄_t)ᵀ
// with x̄_t = Σ_j p_tj x_tj, the observed information of the MNL likelihood.
func observedInformation(ds *ChoiceDataset, probs *mat.Dense) *mat.SymDense {
	numCols := ds.NumColumns()
	numAlts := ds.numAlts
	info := mat.NewSymDense(numCols, nil)
	xbar := make([]float64, numCols)
	centered := make([]float64, numCols)

	for t := 0; t < ds.NumTasks(); t++ {
		p := probs.RawRowView(t)
		for i := range xbar {
			xbar[i] = 0
		}
		for j := 0; j < numAlts; j++ {
			row := ds.design.RawRowView(t*numAlts + j)
			for i, x := range row {
				xbar[i] += p[j] * x
			}
		}
		for j := 0; j < numAlts; j++ {
			row := ds.design.RawRowView(t*numAlts + j)
			for i := range centered {
				centered[i] = row[i] - xbar[i]
			}
			for a := 0; a < numCols; a++ {
				ca := p[j] * centered[a]
				if ca == 0 {
					continue
				}
				for b := a; b < numCols; b++ {
					info.SetSym(a, b, info.At(a, b)+ca*centered[b])
				}
			}
		}
	}
	return info
}

// Coef returns a copy of the estimated coefficients.
func (m *MultinomialLogit) Coef() []float64 {
	if m.coef_ == nil {
		return nil
	}
	coef := make([]float64, len(m.coef_))
	copy(coef, m.coef_)
	return coef
}

// StdErr returns a copy of the coefficient standard errors.
func (m *MultinomialLogit) StdErr() []float64 {
	if m.stdErr_ == nil {
		return nil
	}
	se := make([]float64, len(m.stdErr_))
	copy(se, m.stdErr_)
	return se
}

// ZScores returns the coefficient z-statistics (coefficient / standard error).
func (m *MultinomialLogit) ZScores() []float64 {
	if m.coef_ == nil {
		return nil
	}
	z := make([]float64, len(m.coef_))
	for i := range z {
		z[i] = m.coef_[i] / m.stdErr_[i]
	}
	return z
}

// CovMatrix returns a copy of the asymptotic coefficient covariance matrix.
func (m *MultinomialLogit) CovMatrix() *mat.SymDense {
	if m.cov_ == nil {
		return nil
	}
	cov := mat.NewSymDense(m.cov_.SymmetricDim(), nil)
	cov.CopySym(m.cov_)
	return cov
}

// LogLik returns the maximized log-likelihood.
func (m *MultinomialLogit) LogLik() float64 { return m.logLik_ }

// NullLogLik returns the log-likelihood of the equal-shares model (β = 0).
func (m *MultinomialLogit) NullLogLik() float64 { return m.nullLogLik_ }

// PseudoR2 returns McFadden's pseudo-R², 1 − ℓ(β̂)/ℓ(0).
func (m *MultinomialLogit) PseudoR2() float64 {
	if m.nullLogLik_ == 0 {
		return 0
	}
	return 1 - m.logLik_/m.nullLogLik_
}

// Converged reports whether the last Fit reached a convergence criterion.
func (m *MultinomialLogit) Converged() bool { return m.converged_ }

// NumIter returns the number of optimizer major iterations of the last Fit.
func (m *MultinomialLogit) NumIter() int { return m.numIter_ }

// IsFitted returns whether the model has been fitted.
func (m *MultinomialLogit) IsFitted() bool { return m.state.IsFitted() }

// PredictProba returns the tasks×J matrix of choice probabilities the fitted
// coefficients imply on the given dataset.
func (m *MultinomialLogit) PredictProba(ds *ChoiceDataset) (*mat.Dense, error) {
	if !m.state.IsFitted() {
		return nil, errors.NewNotFittedError("MultinomialLogit", "PredictProba")
	}
	if ds == nil {
		return nil, errors.NewValidationError("ds", "dataset must not be nil", nil)
	}
	if ds.NumColumns() != len(m.coef_) {
		return nil, errors.NewDimensionError("MultinomialLogit.PredictProba", len(m.coef_), ds.NumColumns(), 1)
	}
	return NewLogLikelihood(ds).Probabilities(nil, m.coef_)
}

// FitSummary is the estimation result table: one row per design column with
// coefficient, standard error and z-statistic, plus the fit diagnostics.
type FitSummary struct {
	Columns    []string
	Coef       []float64
	StdErr     []float64
	Z          []float64
	LogLik     float64
	NullLogLik float64
	PseudoR2   float64
	NumTasks   int
	NumAlts    int
	NumIter    int
	Converged  bool
}

// Summary returns the estimation result table.
func (m *MultinomialLogit) Summary() (*FitSummary, error) {
	if !m.state.IsFitted() {
		return nil, errors.NewNotFittedError("MultinomialLogit", "Summary")
	}
	return &FitSummary{
		Columns:    append([]string(nil), m.colNames_...),
		Coef:       m.Coef(),
		StdErr:     m.StdErr(),
		Z:          m.ZScores(),
		LogLik:     m.logLik_,
		NullLogLik: m.nullLogLik_,
		PseudoR2:   m.PseudoR2(),
		NumTasks:   m.numTasks_,
		NumAlts:    m.numAlts_,
		NumIter:    m.numIter_,
		Converged:  m.converged_,
	}, nil
}

// String renders the summary as a fixed-width table.
func (s *FitSummary) String() string {
	nameWidth := len("column")
	for _, name := range s.Columns {
		if len(name) > nameWidth {
			nameWidth = len(name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Multinomial Logit (MNL)\n")
	fmt.Fprintf(&b, "tasks: %d  alternatives: %d  converged: %t  iterations: %d\n",
		s.NumTasks, s.NumAlts, s.Converged, s.NumIter)
	fmt.Fprintf(&b, "log-likelihood: %.4f  null: %.4f  McFadden pseudo-R2: %.4f\n\n",
		s.LogLik, s.NullLogLik, s.PseudoR2)
	fmt.Fprintf(&b, "%-*s  %10s  %10s  %8s\n", nameWidth, "column", "coef", "std err", "z")
	for i, name := range s.Columns {
		fmt.Fprintf(&b, "%-*s  %10.4f  %10.4f  %8.3f\n", nameWidth, name, s.Coef[i], s.StdErr[i], s.Z[i])
	}
	return b.String()
}

// ExportWeights exports the fitted coefficients, standard errors and fit
// metadata for persistence.
func (m *MultinomialLogit) ExportWeights() (*model.ModelWeights, error) {
	if !m.state.IsFitted() {
		return nil, errors.NewNotFittedError("MultinomialLogit", "ExportWeights")
	}
	return &model.ModelWeights{
		ModelType:    m.modelType,
		Version:      m.version,
		Coefficients: m.Coef(),
		StdErrors:    m.StdErr(),
		Features:     append([]string(nil), m.colNames_...),
		IsFitted:     true,
		Hyperparameters: map[string]interface{}{
			"max_iter": m.maxIter,
			"tol":      m.tol,
		},
		Metadata: map[string]interface{}{
			"log_likelihood":      m.logLik_,
			"null_log_likelihood": m.nullLogLik_,
			"pseudo_r2":           m.PseudoR2(),
			"n_tasks":             m.numTasks_,
			"n_alternatives":      m.numAlts_,
			"iterations":          m.numIter_,
		},
	}, nil
}

// String returns the string representation of the model.
func (m *MultinomialLogit) String() string {
	if !m.state.IsFitted() {
		return fmt.Sprintf("MultinomialLogit(max_iter=%d, tol=%g)", m.maxIter, m.tol)
	}
	return fmt.Sprintf("MultinomialLogit(max_iter=%d, n_features=%d, fitted=true)",
		m.maxIter, len(m.coef_))
}
