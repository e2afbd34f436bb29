// Package log defines standard attribute keys for estimation operations.
//
// This file contains predefined attribute keys that provide consistency across
// all logging operations in GoChoice. Using these standard keys enables better
// log analysis, monitoring, and debugging of estimation workflows.
//
// The attributes are organized into categories:
//   - Model and Operation Context
//   - Panel Shape and Characteristics
//   - Optimization and Fit Diagnostics
//   - Sampler Diagnostics
//   - Error Context
//
// These keys follow a hierarchical naming convention (e.g., "model.name",
// "panel.tasks") to enable structured log analysis and filtering.
package log

// Model and Operation Context
// These attributes identify the model type, instance, and operation being performed.
const (
	// ModelNameKey identifies the type of estimator or sampler.
	// Examples: "MultinomialLogit", "Metropolis", "PoissonRegression"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a specific model instance.
	// This is useful for tracking multiple instances of the same model type.
	// Examples: "mnl-001", "kmeans-abc123", UUID strings
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the estimation operation being performed.
	// Standard values: "fit", "predict", "transform", "sample", "summarize", "score"
	OperationKey = "op"

	// ComponentKey identifies which component or package is performing the operation.
	// Examples: "choice.mnl", "bayes.sampler", "datasets.loader"
	ComponentKey = "component"
)

// Panel Shape and Characteristics
// These attributes describe the structure of the choice data being processed.
const (
	// RespondentsKey indicates the number of respondents in the panel.
	RespondentsKey = "panel.respondents"

	// TasksKey indicates the number of choice tasks in the dataset.
	// This is the effective sample size of a choice model.
	TasksKey = "panel.tasks"

	// AlternativesKey indicates the number of alternatives per task (J).
	AlternativesKey = "panel.alternatives"

	// FeaturesKey indicates the number of design columns (utility parameters).
	// Important for dimensionality tracking and debugging shape mismatches.
	FeaturesKey = "panel.features"

	// SamplesKey indicates the number of samples (rows) for non-panel estimators
	// such as the clustering and regression demos.
	SamplesKey = "data.samples"
)

// Optimization and Fit Diagnostics
// These attributes capture timing, convergence, and fit quality information.
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the current or final iteration number of an
	// iterative procedure (BFGS major iterations, IRLS sweeps, Lloyd rounds).
	IterationKey = "opt.iteration"

	// ConvergedKey records whether an iterative procedure reported convergence.
	ConvergedKey = "opt.converged"

	// LogLikelihoodKey records the maximized (or current) log-likelihood.
	LogLikelihoodKey = "fit.log_likelihood"

	// DevianceKey records the residual deviance of a GLM fit.
	DevianceKey = "fit.deviance"

	// InertiaKey records the within-cluster sum of squares of a clustering fit.
	InertiaKey = "fit.inertia"

	// AccuracyKey records classification accuracy for evaluation operations.
	// Range typically [0.0, 1.0].
	AccuracyKey = "metrics.accuracy"
)

// Sampler Diagnostics
// These attributes describe MCMC runs and their health.
const (
	// ChainKey identifies the chain index within a multi-chain run.
	ChainKey = "mcmc.chain"

	// ChainsKey records the number of parallel chains in a run.
	ChainsKey = "mcmc.chains"

	// WarmupKey records the number of warmup (adaptation) iterations.
	WarmupKey = "mcmc.warmup"

	// DrawsKey records the number of retained posterior draws per chain.
	DrawsKey = "mcmc.draws"

	// PhaseKey records the chain phase ("warmup", "sampling", "done").
	PhaseKey = "mcmc.phase"

	// StepSizeKey records the random-walk proposal step size.
	StepSizeKey = "mcmc.step_size"

	// AcceptanceRateKey records the realized Metropolis acceptance rate.
	AcceptanceRateKey = "mcmc.acceptance_rate"

	// RandomSeedKey records the random seed for reproducibility.
	// Essential for debugging and ensuring reproducible results.
	RandomSeedKey = "config.random_seed"
)

// Error and Warning Context
// These attributes provide additional context for error and warning messages.
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	// Examples: "MALFORMED_PANEL", "NOT_FITTED", "OPTIMIZATION_DIVERGED"
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	// Examples: "ValidationError", "SamplerStalledError", "UnknownLevelError"
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	// Examples: "Check the chosen column coding", "Increase warmup iterations"
	SuggestionKey = "error.suggestion"
)

// Standard attribute value constants for common operations.
// Using these constants ensures consistency across the codebase.
const (
	// Standard estimation operations
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationSample       = "sample"
	OperationSummarize    = "summarize"
	OperationScore        = "score"

	// Standard error codes
	ErrorNotFitted            = "NOT_FITTED"
	ErrorDimensionMismatch    = "DIMENSION_MISMATCH"
	ErrorEmptyData            = "EMPTY_DATA"
	ErrorInvalidInput         = "INVALID_INPUT"
	ErrorMalformedPanel       = "MALFORMED_PANEL"
	ErrorUnknownLevel         = "UNKNOWN_LEVEL"
	ErrorOptimizationDiverged = "OPTIMIZATION_DIVERGED"
	ErrorSamplerStalled       = "SAMPLER_STALLED"
	ErrorNumericalInstability = "NUMERICAL_INSTABILITY"
	ErrorSingularMatrix       = "SINGULAR_MATRIX"
)
