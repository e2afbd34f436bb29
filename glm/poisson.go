// Package glm implements generalized linear models for count outcomes,
// currently Poisson regression with a log link fitted by iteratively
// reweighted least squares.
package glm

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/core/model"
	"github.com/YuminosukeSato/gochoice/core/parallel"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
	"github.com/YuminosukeSato/gochoice/pkg/log"
)

// PoissonRegression models a count response y_i ~ Poisson(exp(b0 + x_i·b)).
// Each IRLS step solves the weighted normal equations by Cholesky
// factorization; standard errors come from the inverse of the final weighted
// cross-product matrix.
type PoissonRegression struct {
	state *model.StateManager

	// Hyperparameters
	maxIter int
	tol     float64
	names   []string

	modelType string
	version   string

	// Fitted attributes
	coef_            []float64
	intercept_       float64
	stdErr_          []float64
	interceptStdErr_ float64
	deviance_        float64
	nullDeviance_    float64
	numIter_         int
	converged_       bool
	nFeatures_       int
	nObs_            int
}

// NewPoissonRegression creates a new PoissonRegression estimator.
func NewPoissonRegression(options ...PoissonOption) *PoissonRegression {
	p := &PoissonRegression{
		state:     model.NewStateManager(),
		maxIter:   100,
		tol:       1e-8,
		modelType: "PoissonRegression",
		version:   "1.0.0",
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// PoissonOption は設定オプション
type PoissonOption func(*PoissonRegression)

// WithPoissonMaxIter sets the IRLS iteration limit.
func WithPoissonMaxIter(n int) PoissonOption {
	return func(p *PoissonRegression) {
		p.maxIter = n
	}
}

// WithPoissonTol sets the relative deviance-change convergence threshold.
func WithPoissonTol(tol float64) PoissonOption {
	return func(p *PoissonRegression) {
		p.tol = tol
	}
}

// WithPoissonFeatureNames labels the design columns in summaries and exports.
func WithPoissonFeatureNames(names []string) PoissonOption {
	return func(p *PoissonRegression) {
		p.names = append([]string(nil), names...)
	}
}

// poissonDeviance is 2 Σ [y log(y/mu) − (y − mu)], with the y = 0 terms
// reducing to 2 mu.
func poissonDeviance(y, mu []float64) float64 {
	dev := 0.0
	for i, yi := range y {
		if yi > 0 {
			dev += yi*math.Log(yi/mu[i]) - (yi - mu[i])
		} else {
			dev += mu[i]
		}
	}
	return 2 * dev
}

// Fit estimates the coefficients by IRLS. A singular weighted cross-product
// matrix raises OptimizationDivergedError, a non-finite linear predictor
// raises NumericalInstabilityError, and hitting the iteration limit emits a
// ConvergenceWarning while keeping the last iterate.
func (p *PoissonRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "PoissonRegression.Fit")

	if X == nil || y == nil {
		return errors.NewValidationError("X", "training data and counts must not be nil", nil)
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("PoissonRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if yCols != 1 {
		return errors.NewValueError("PoissonRegression.Fit", "y must be a column vector")
	}
	if yRows != rows {
		return errors.NewDimensionError("PoissonRegression.Fit", rows, yRows, 0)
	}
	if rows < cols+1 {
		return errors.NewValidationError("X",
			"need at least as many observations as parameters", rows)
	}
	if p.names != nil && len(p.names) != cols {
		return errors.NewDimensionError("PoissonRegression.Fit", cols, len(p.names), 1)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValidationError("X", "features must be finite", v)
			}
		}
	}

	counts := make([]float64, rows)
	total := 0.0
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError("y", "counts must be non-negative and finite", v)
		}
		counts[i] = v
		total += v
	}
	if total == 0 {
		return errors.NewValidationError("y", "counts must contain at least one positive value", nil)
	}

	logger := log.GetLoggerWithName("glm.poisson")
	logger.Debug("Starting Poisson IRLS",
		log.SamplesKey, rows,
		log.FeaturesKey, cols)

	// Design matrix with a leading intercept column.
	nParams := cols + 1
	design := mat.NewDense(rows, nParams, nil)
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(rows, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			design.Set(i, 0, 1.0)
			for j := 0; j < cols; j++ {
				design.Set(i, j+1, X.At(i, j))
			}
		}
	})

	// Start from mu_i = (y_i + ybar)/2, positive even at zero counts.
	ybar := total / float64(rows)
	eta := make([]float64, rows)
	mu := make([]float64, rows)
	for i := range counts {
		mu[i] = (counts[i] + ybar) / 2
		eta[i] = math.Log(mu[i])
	}
	nullMu := make([]float64, rows)
	for i := range nullMu {
		nullMu[i] = ybar
	}
	nullDev := poissonDeviance(counts, nullMu)
	dev := poissonDeviance(counts, mu)

	crossProduct := func() *mat.SymDense {
		a := mat.NewSymDense(nParams, nil)
		for r := 0; r < nParams; r++ {
			for c := r; c < nParams; c++ {
				sum := 0.0
				for i := 0; i < rows; i++ {
					sum += mu[i] * design.At(i, r) * design.At(i, c)
				}
				a.SetSym(r, c, sum)
			}
		}
		return a
	}

	beta := mat.NewVecDense(nParams, nil)
	etaVec := mat.NewVecDense(rows, nil)
	var chol mat.Cholesky
	converged := false
	numIter := 0

	for iter := 1; iter <= p.maxIter; iter++ {
		numIter = iter

		// Weighted normal equations: (Xᵀ W X) beta = Xᵀ W z with W = diag(mu)
		// and working response z_i = eta_i + (y_i − mu_i)/mu_i, so that
		// (W z)_i = mu_i eta_i + (y_i − mu_i).
		if !chol.Factorize(crossProduct()) {
			return errors.NewOptimizationDivergedError("IRLS", iter, "singular",
				"weighted cross-product matrix is not positive definite")
		}
		b := mat.NewVecDense(nParams, nil)
		for r := 0; r < nParams; r++ {
			sum := 0.0
			for i := 0; i < rows; i++ {
				sum += design.At(i, r) * (mu[i]*eta[i] + counts[i] - mu[i])
			}
			b.SetVec(r, sum)
		}
		if serr := chol.SolveVecTo(beta, b); serr != nil {
			return errors.NewOptimizationDivergedError("IRLS", iter, "singular",
				"weighted normal equations could not be solved")
		}

		etaVec.MulVec(design, beta)
		for i := 0; i < rows; i++ {
			eta[i] = etaVec.AtVec(i)
			mu[i] = math.Exp(eta[i])
		}
		if verr := errors.CheckNumericalStability("PoissonRegression.Fit", eta, iter); verr != nil {
			return verr
		}
		if verr := errors.CheckNumericalStability("PoissonRegression.Fit", mu, iter); verr != nil {
			return verr
		}

		devNew := poissonDeviance(counts, mu)
		if math.Abs(dev-devNew)/(math.Abs(devNew)+0.1) < p.tol {
			dev = devNew
			converged = true
			break
		}
		dev = devNew
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("PoissonRegression", p.maxIter,
			"IRLS reached the iteration limit without converging"))
	}

	// Standard errors from the inverse weighted cross-product at the final mu.
	if !chol.Factorize(crossProduct()) {
		return errors.NewOptimizationDivergedError("IRLS", numIter, "singular",
			"final weighted cross-product matrix is not positive definite")
	}
	cov := mat.NewSymDense(nParams, nil)
	if cerr := chol.InverseTo(cov); cerr != nil {
		return errors.NewOptimizationDivergedError("IRLS", numIter, "singular",
			"final weighted cross-product matrix could not be inverted")
	}

	p.intercept_ = beta.AtVec(0)
	p.interceptStdErr_ = math.Sqrt(cov.At(0, 0))
	p.coef_ = make([]float64, cols)
	p.stdErr_ = make([]float64, cols)
	for j := 0; j < cols; j++ {
		p.coef_[j] = beta.AtVec(j + 1)
		p.stdErr_[j] = math.Sqrt(cov.At(j+1, j+1))
	}
	p.deviance_ = dev
	p.nullDeviance_ = nullDev
	p.numIter_ = numIter
	p.converged_ = converged
	p.nFeatures_ = cols
	p.nObs_ = rows

	p.state.SetFitted()
	p.state.SetDimensions(cols, rows)

	logger.Info("Poisson IRLS finished",
		log.IterationKey, numIter,
		log.ConvergedKey, converged,
		log.DevianceKey, dev)
	return nil
}

// Predict returns the expected counts exp(b0 + x·b) as an n×1 matrix.
func (p *PoissonRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("PoissonRegression", "Predict")
	}
	if X == nil {
		return nil, errors.NewValidationError("X", "query data must not be nil", nil)
	}
	rows, cols := X.Dims()
	if cols != p.nFeatures_ {
		return nil, errors.NewDimensionError("PoissonRegression.Predict", p.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		eta := p.intercept_
		for j := 0; j < cols; j++ {
			eta += X.At(i, j) * p.coef_[j]
		}
		lambda := math.Exp(eta)
		if math.IsNaN(lambda) || math.IsInf(lambda, 0) {
			return nil, errors.NewNumericalInstabilityError("PoissonRegression.Predict",
				[]float64{eta}, i)
		}
		predictions.Set(i, 0, lambda)
	}
	return predictions, nil
}

// Coef returns a copy of the fitted feature coefficients.
func (p *PoissonRegression) Coef() []float64 {
	if p.coef_ == nil {
		return nil
	}
	return append([]float64(nil), p.coef_...)
}

// Intercept returns the fitted intercept.
func (p *PoissonRegression) Intercept() float64 { return p.intercept_ }

// StdErr returns a copy of the coefficient standard errors.
func (p *PoissonRegression) StdErr() []float64 {
	if p.stdErr_ == nil {
		return nil
	}
	return append([]float64(nil), p.stdErr_...)
}

// InterceptStdErr returns the standard error of the intercept.
func (p *PoissonRegression) InterceptStdErr() float64 { return p.interceptStdErr_ }

// ZScores returns coefficient z-statistics, coef/stderr per feature.
func (p *PoissonRegression) ZScores() []float64 {
	if p.coef_ == nil {
		return nil
	}
	z := make([]float64, len(p.coef_))
	for i := range z {
		z[i] = p.coef_[i] / p.stdErr_[i]
	}
	return z
}

// Deviance returns the residual deviance of the fitted model.
func (p *PoissonRegression) Deviance() float64 { return p.deviance_ }

// NullDeviance returns the deviance of the intercept-only model.
func (p *PoissonRegression) NullDeviance() float64 { return p.nullDeviance_ }

// NumIter returns the number of IRLS iterations of the last Fit.
func (p *PoissonRegression) NumIter() int { return p.numIter_ }

// Converged reports whether the last Fit met the deviance criterion.
func (p *PoissonRegression) Converged() bool { return p.converged_ }

// IsFitted returns whether the model has been fitted.
func (p *PoissonRegression) IsFitted() bool { return p.state.IsFitted() }

// featureName resolves the display name of design column j.
func (p *PoissonRegression) featureName(j int) string {
	if p.names != nil {
		return p.names[j]
	}
	return fmt.Sprintf("x[%d]", j)
}

// PoissonSummary is the estimation result table, intercept first.
type PoissonSummary struct {
	Terms        []string
	Coef         []float64
	StdErr       []float64
	Z            []float64
	Deviance     float64
	NullDeviance float64
	NumObs       int
	NumIter      int
	Converged    bool
}

// Summary returns the estimation result table.
func (p *PoissonRegression) Summary() (*PoissonSummary, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("PoissonRegression", "Summary")
	}
	terms := make([]string, 0, len(p.coef_)+1)
	coefs := make([]float64, 0, len(p.coef_)+1)
	stdErrs := make([]float64, 0, len(p.coef_)+1)
	zs := make([]float64, 0, len(p.coef_)+1)

	terms = append(terms, "(intercept)")
	coefs = append(coefs, p.intercept_)
	stdErrs = append(stdErrs, p.interceptStdErr_)
	zs = append(zs, p.intercept_/p.interceptStdErr_)
	for j := range p.coef_ {
		terms = append(terms, p.featureName(j))
		coefs = append(coefs, p.coef_[j])
		stdErrs = append(stdErrs, p.stdErr_[j])
		zs = append(zs, p.coef_[j]/p.stdErr_[j])
	}

	return &PoissonSummary{
		Terms:        terms,
		Coef:         coefs,
		StdErr:       stdErrs,
		Z:            zs,
		Deviance:     p.deviance_,
		NullDeviance: p.nullDeviance_,
		NumObs:       p.nObs_,
		NumIter:      p.numIter_,
		Converged:    p.converged_,
	}, nil
}

// String renders the summary as a fixed-width table.
func (s *PoissonSummary) String() string {
	nameWidth := len("term")
	for _, name := range s.Terms {
		if len(name) > nameWidth {
			nameWidth = len(name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Poisson Regression (log link)\n")
	fmt.Fprintf(&b, "observations: %d  converged: %t  iterations: %d\n",
		s.NumObs, s.Converged, s.NumIter)
	fmt.Fprintf(&b, "deviance: %.4f  null deviance: %.4f\n\n", s.Deviance, s.NullDeviance)
	fmt.Fprintf(&b, "%-*s  %10s  %10s  %8s\n", nameWidth, "term", "coef", "std err", "z")
	for i, name := range s.Terms {
		fmt.Fprintf(&b, "%-*s  %10.4f  %10.4f  %8.3f\n", nameWidth, name, s.Coef[i], s.StdErr[i], s.Z[i])
	}
	return b.String()
}

// ExportWeights exports the fitted coefficients, standard errors and fit
// metadata for persistence.
func (p *PoissonRegression) ExportWeights() (*model.ModelWeights, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("PoissonRegression", "ExportWeights")
	}
	features := make([]string, p.nFeatures_)
	for j := range features {
		features[j] = p.featureName(j)
	}
	return &model.ModelWeights{
		ModelType:    p.modelType,
		Version:      p.version,
		Coefficients: p.Coef(),
		StdErrors:    p.StdErr(),
		Intercept:    p.intercept_,
		Features:     features,
		IsFitted:     true,
		Hyperparameters: map[string]interface{}{
			"max_iter": p.maxIter,
			"tol":      p.tol,
		},
		Metadata: map[string]interface{}{
			"deviance":      p.deviance_,
			"null_deviance": p.nullDeviance_,
			"n_obs":         p.nObs_,
			"iterations":    p.numIter_,
		},
	}, nil
}

// String returns the string representation of the model.
func (p *PoissonRegression) String() string {
	if !p.state.IsFitted() {
		return fmt.Sprintf("PoissonRegression(max_iter=%d, tol=%g)", p.maxIter, p.tol)
	}
	return fmt.Sprintf("PoissonRegression(max_iter=%d, n_features=%d, fitted=true)",
		p.maxIter, len(p.coef_))
}
